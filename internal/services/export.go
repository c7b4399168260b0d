package services

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/regdesk/backend/internal/models"
	"gorm.io/gorm"
)

// ExportColumns is the CSV column contract, one row per member.
var ExportColumns = []string{
	"team_id", "team_name", "category", "project_title", "status",
	"contact_name", "contact_email", "contact_phone", "institution", "member_count",
	"member_name", "member_email", "member_year", "member_department",
	"payment_proof_url", "qr_code_url", "verified_at", "verified_by",
	"notification_status", "created_at",
}

type ExportService struct {
	db *gorm.DB
}

func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{db: db}
}

// WriteCSV streams the filtered teams as CSV.
func (s *ExportService) WriteCSV(w io.Writer, req *TeamListRequest) error {
	teamSvc := &TeamService{db: s.db}
	var teams []models.Team
	if err := teamSvc.filtered(req).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at ASC").
		Find(&teams).Error; err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, team := range teams {
		members := team.Members
		if len(members) == 0 {
			members = []models.Member{{}}
		}
		for _, m := range members {
			if err := cw.Write(exportRow(&team, &m)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(t *models.Team, m *models.Member) []string {
	return []string{
		t.ID, sanitizeCell(t.TeamName), string(t.Category), sanitizeCell(t.ProjectTitle), string(t.Status),
		sanitizeCell(t.ContactName), t.ContactEmail, sanitizeCell(t.ContactPhone), sanitizeCell(t.Institution), strconv.Itoa(t.MemberCount),
		sanitizeCell(m.Name), m.Email, sanitizeCell(m.Year), sanitizeCell(m.Department),
		t.PaymentProofURL, deref(t.QRCodeURL), formatTime(t.VerifiedAt), deref(t.VerifiedBy),
		t.NotificationStatus, t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// sanitizeCell stops spreadsheet apps from evaluating user input.
func sanitizeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@", rune(v[0])) {
		return "'" + v
	}
	return v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
