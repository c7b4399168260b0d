package services

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/storage"
	"github.com/regdesk/backend/pkg/logger"
	"gorm.io/gorm"
)

const MaxUploadSize = 5 << 20

var allowedUploadTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"application/pdf": true,
}

type MemberInput struct {
	Name       string `json:"name" form:"name"`
	Email      string `json:"email" form:"email"`
	Year       string `json:"year" form:"year"`
	Department string `json:"department" form:"department"`
}

type RegistrationRequest struct {
	TeamName           string        `json:"team_name" form:"team_name"`
	Category           string        `json:"category" form:"category"`
	ProjectTitle       string        `json:"project_title" form:"project_title"`
	ProjectDescription string        `json:"project_description" form:"project_description"`
	TechStack          string        `json:"tech_stack" form:"tech_stack"`
	ContactName        string        `json:"contact_name" form:"contact_name"`
	ContactEmail       string        `json:"contact_email" form:"contact_email"`
	ContactPhone       string        `json:"contact_phone" form:"contact_phone"`
	Institution        string        `json:"institution" form:"institution"`
	Members            []MemberInput `json:"members" form:"-"`
	CaptchaToken       string        `json:"captcha_token" form:"captcha_token"`
}

// Upload is a file received with a registration.
type Upload struct {
	Filename string
	Data     []byte
}

// ContentType sniffs the content instead of trusting the client header.
func (u Upload) ContentType() string {
	ct := http.DetectContentType(u.Data)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func (u Upload) validate(field string) error {
	if len(u.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrValidation, field)
	}
	if len(u.Data) > MaxUploadSize {
		return fmt.Errorf("%w: %s exceeds %d MiB", ErrValidation, field, MaxUploadSize>>20)
	}
	if !allowedUploadTypes[u.ContentType()] {
		return fmt.Errorf("%w: %s must be an image or PDF", ErrValidation, field)
	}
	return nil
}

type RegistrationService struct {
	db      *gorm.DB
	blobs   storage.BlobStore
	captcha CaptchaVerifier
	timeout time.Duration
	events  *EventHub
}

func NewRegistrationService(db *gorm.DB, blobs storage.BlobStore, captcha CaptchaVerifier, timeout time.Duration) *RegistrationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RegistrationService{db: db, blobs: blobs, captcha: captcha, timeout: timeout}
}

// SetEventHub announces new registrations on h.
func (s *RegistrationService) SetEventHub(h *EventHub) {
	s.events = h
}

// Validate checks the request without touching storage. Addresses given as
// "Name <addr>" are reduced to their lowercased bare address.
func (req *RegistrationRequest) Validate() error {
	required := []struct{ field, value string }{
		{"team_name", req.TeamName},
		{"project_title", req.ProjectTitle},
		{"contact_name", req.ContactName},
		{"contact_email", req.ContactEmail},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, r.field)
		}
	}
	if !models.TeamCategory(strings.ToUpper(strings.TrimSpace(req.Category))).Valid() {
		return fmt.Errorf("%w: category must be SOFTWARE or HARDWARE", ErrValidation)
	}
	contact, err := parseEmail(req.ContactEmail)
	if err != nil {
		return fmt.Errorf("%w: contact_email is invalid", ErrValidation)
	}
	req.ContactEmail = contact

	n := len(req.Members)
	if n < models.MinTeamMembers || n > models.MaxTeamMembers {
		return fmt.Errorf("%w: a team has %d to %d members, got %d", ErrValidation, models.MinTeamMembers, models.MaxTeamMembers, n)
	}
	seen := make(map[string]bool, n)
	for i, m := range req.Members {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: member %d name is required", ErrValidation, i+1)
		}
		addr, err := parseEmail(m.Email)
		if err != nil {
			return fmt.Errorf("%w: member %d email is invalid", ErrValidation, i+1)
		}
		if seen[addr] {
			return fmt.Errorf("%w: member email %s is listed twice", ErrValidation, addr)
		}
		seen[addr] = true
		req.Members[i].Email = addr
	}
	return nil
}

func parseEmail(v string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(v))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

// Register validates the submission, checks the CAPTCHA, stores the uploads
// and creates the team with its members in one transaction.
func (s *RegistrationService) Register(ctx context.Context, req *RegistrationRequest, remoteIP string, proof Upload, extraDoc *Upload) (*models.Team, error) {
	if err := req.Validate(); err != nil {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if err := proof.validate("payment proof"); err != nil {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if extraDoc != nil {
		if err := extraDoc.validate("document"); err != nil {
			registrationsTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	ok, err := s.captcha.Verify(ctx, req.CaptchaToken, remoteIP)
	if err != nil {
		logger.Warnf("[Registration] CAPTCHA provider error: %v", err)
	}
	if err != nil || !ok {
		registrationsTotal.WithLabelValues("captcha_failed").Inc()
		return nil, ErrCaptchaFailed
	}

	proofURL, err := s.put(ctx, proof, storage.FolderPaymentProofs)
	if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	var extraURL *string
	if extraDoc != nil {
		u, err := s.put(ctx, *extraDoc, storage.FolderDocuments)
		if err != nil {
			registrationsTotal.WithLabelValues("error").Inc()
			logOrphanedUploads(err, proofURL)
			return nil, err
		}
		extraURL = &u
	}

	team := &models.Team{
		ID:                 uuid.NewString(),
		TeamName:           strings.TrimSpace(req.TeamName),
		Category:           models.TeamCategory(strings.ToUpper(strings.TrimSpace(req.Category))),
		ProjectTitle:       strings.TrimSpace(req.ProjectTitle),
		ProjectDescription: strings.TrimSpace(req.ProjectDescription),
		TechStack:          strings.TrimSpace(req.TechStack),
		ContactName:        strings.TrimSpace(req.ContactName),
		ContactEmail:       req.ContactEmail,
		ContactPhone:       strings.TrimSpace(req.ContactPhone),
		Institution:        strings.TrimSpace(req.Institution),
		MemberCount:        len(req.Members),
		PaymentProofURL:    proofURL,
		ExtraDocURL:        extraURL,
		Status:             models.TeamStatusPending,
	}
	for i, m := range req.Members {
		team.Members = append(team.Members, models.Member{
			Position:   i,
			Name:       strings.TrimSpace(m.Name),
			Email:      m.Email,
			Year:       strings.TrimSpace(m.Year),
			Department: strings.TrimSpace(m.Department),
		})
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(team).Error
	}); err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		logOrphanedUploads(err, proofURL, deref(extraURL))
		return nil, err
	}

	registrationsTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("team_id", team.ID).Str("team", team.TeamName).
		Int("members", team.MemberCount).Msg("[Registration] team registered")
	s.events.Publish(newTeamEvent(EventTeamRegistered, team, team.ContactEmail, team.CreatedAt))
	return team, nil
}

// logOrphanedUploads records blobs stored for a registration that was not
// created, so an operator can remove them.
func logOrphanedUploads(cause error, urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		logger.Warn().Str("url", u).Err(cause).Msg("[Registration] upload orphaned by failed registration")
	}
}

func (s *RegistrationService) put(ctx context.Context, u Upload, folder string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url, err := s.blobs.Put(ctx, u.Data, folder, u.Filename, u.ContentType())
	if err != nil {
		blobUploadsTotal.WithLabelValues(folder, "failed").Inc()
		return "", fmt.Errorf("%w: %v", ErrBlobStore, err)
	}
	blobUploadsTotal.WithLabelValues(folder, "ok").Inc()
	return url, nil
}
