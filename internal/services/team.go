package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/regdesk/backend/internal/models"
	"gorm.io/gorm"
)

type TeamService struct {
	db    *gorm.DB
	store TeamStore
}

func NewTeamService(db *gorm.DB, store TeamStore) *TeamService {
	return &TeamService{db: db, store: store}
}

type TeamListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	Category string `form:"category"`
	Search   string `form:"search"`
	// Notification filters on delivery state, e.g. "failed".
	Notification string `form:"notification"`
}

type TeamListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.Team `json:"items"`
}

func (s *TeamService) filtered(req *TeamListRequest) *gorm.DB {
	query := s.db.Model(&models.Team{})
	if req.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(req.Status))
	}
	if req.Category != "" {
		query = query.Where("category = ?", strings.ToUpper(req.Category))
	}
	if req.Notification != "" {
		query = query.Where("notification_status = ?", strings.ToLower(req.Notification))
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("team_name LIKE ? OR project_title LIKE ? OR contact_email LIKE ? OR institution LIKE ?",
			like, like, like, like)
	}
	return query
}

// List returns teams newest first.
func (s *TeamService) List(req *TeamListRequest) (*TeamListResponse, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	query := s.filtered(req)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var teams []models.Team
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&teams).Error; err != nil {
		return nil, err
	}

	return &TeamListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    teams,
	}, nil
}

// GetByID returns a team with its members.
func (s *TeamService) GetByID(ctx context.Context, id string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	team.Members = members
	return team, nil
}

func (s *TeamService) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	if _, err := s.store.GetTeam(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAuditLogs(ctx, id)
}

// SetGalleryVisibility shows or hides a verified team in the public gallery.
func (s *TeamService) SetGalleryVisibility(ctx context.Context, id string, show bool, actor string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	if show && team.Status != models.TeamStatusVerified {
		return nil, fmt.Errorf("%w: only verified teams can be shown in the gallery", ErrInvalidStateTransition)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Team{}).Where("id = ?", id).Update("show_in_gallery", show).Error; err != nil {
			return err
		}
		detail := fmt.Sprintf("show_in_gallery=%t", show)
		return tx.Create(&models.AuditLog{
			TeamID:      id,
			Action:      models.AuditGalleryToggled,
			PerformedBy: actor,
			Details:     &detail,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	team.ShowInGallery = show
	return team, nil
}

type GalleryItem struct {
	ID                 string              `json:"id"`
	TeamName           string              `json:"team_name"`
	Category           models.TeamCategory `json:"category"`
	ProjectTitle       string              `json:"project_title"`
	ProjectDescription string              `json:"project_description"`
	TechStack          string              `json:"tech_stack"`
	Institution        string              `json:"institution"`
	MemberCount        int                 `json:"member_count"`
}

// Gallery lists verified teams flagged for public display. Contact
// details are never exposed.
func (s *TeamService) Gallery(category string) ([]GalleryItem, error) {
	query := s.db.Model(&models.Team{}).
		Where("status = ? AND show_in_gallery = ?", models.TeamStatusVerified, true)
	if category != "" {
		query = query.Where("category = ?", strings.ToUpper(category))
	}

	var items []GalleryItem
	err := query.Order("team_name ASC").
		Select("id, team_name, category, project_title, project_description, tech_stack, institution, member_count").
		Scan(&items).Error
	return items, err
}

type TeamStats struct {
	Total               int64            `json:"total"`
	ByStatus            map[string]int64 `json:"by_status"`
	ByCategory          map[string]int64 `json:"by_category"`
	NotificationFailed  int64            `json:"notification_failed"`
	NotificationPending int64            `json:"notification_pending"`
	ArtifactMissing     int64            `json:"artifact_missing"`
	InGallery           int64            `json:"in_gallery"`
	Participants        int64            `json:"participants"`
}

type groupCount struct {
	Name  string
	Total int64
}

func (s *TeamService) Stats() (*TeamStats, error) {
	stats := &TeamStats{
		ByStatus:   map[string]int64{},
		ByCategory: map[string]int64{},
	}
	for _, st := range []models.TeamStatus{models.TeamStatusPending, models.TeamStatusVerified, models.TeamStatusRejected} {
		stats.ByStatus[string(st)] = 0
	}

	var byStatus []groupCount
	if err := s.db.Model(&models.Team{}).Select("status AS name, COUNT(*) AS total").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, g := range byStatus {
		stats.ByStatus[g.Name] = g.Total
		stats.Total += g.Total
	}

	var byCategory []groupCount
	if err := s.db.Model(&models.Team{}).Select("category AS name, COUNT(*) AS total").Group("category").Scan(&byCategory).Error; err != nil {
		return nil, err
	}
	for _, g := range byCategory {
		stats.ByCategory[g.Name] = g.Total
	}

	counts := []struct {
		dst   *int64
		where string
		args  []interface{}
	}{
		{&stats.NotificationFailed, "notification_status = ?", []interface{}{models.NotificationFailed}},
		{&stats.NotificationPending, "notification_status = ? AND status <> ?", []interface{}{models.NotificationPending, models.TeamStatusPending}},
		{&stats.ArtifactMissing, "artifact_status = ?", []interface{}{models.ArtifactMissing}},
		{&stats.InGallery, "show_in_gallery = ?", []interface{}{true}},
	}
	for _, c := range counts {
		if err := s.db.Model(&models.Team{}).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(&models.Member{}).Count(&stats.Participants).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// CountByStatus backs the teams-by-status gauge.
func (s *TeamService) CountByStatus() (map[string]int64, error) {
	stats, err := s.Stats()
	if err != nil {
		return nil, err
	}
	return stats.ByStatus, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTeamNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
