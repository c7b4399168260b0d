package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/regdesk/backend/internal/models"
	"gorm.io/gorm"
)

// StatusTransition is a PENDING to terminal state change together with the
// audit entry that records it.
type StatusTransition struct {
	TeamID       string
	To           models.TeamStatus
	Note         *string
	Actor        string
	At           time.Time
	AuditAction  string
	AuditDetails *string
}

// TeamStore is the persistence contract of the verification workflow. Each
// call is atomic on return. Callers serialize work on the same team through
// TransitionStatus and ClaimNotification, which are conditional updates.
type TeamStore interface {
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListMembers(ctx context.Context, teamID string) ([]models.Member, error)
	TransitionStatus(ctx context.Context, t StatusTransition) error
	SetArtifactRef(ctx context.Context, teamID, url string) error
	MarkArtifactMissing(ctx context.Context, teamID string) error
	ClaimNotification(ctx context.Context, teamID string, force bool, staleBefore time.Time) (bool, error)
	RecordNotification(ctx context.Context, teamID string, sendErr error) error
	AppendAuditLog(ctx context.Context, teamID, action, actor string, details *string) error
	ListAuditLogs(ctx context.Context, teamID string) ([]models.AuditLog, error)
}

type GormTeamStore struct {
	db *gorm.DB
}

func NewGormTeamStore(db *gorm.DB) *GormTeamStore {
	return &GormTeamStore{db: db}
}

func (s *GormTeamStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	var team models.Team
	err := s.db.WithContext(ctx).First(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *GormTeamStore) ListMembers(ctx context.Context, teamID string) ([]models.Member, error) {
	var members []models.Member
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("position ASC, id ASC").
		Find(&members).Error
	return members, err
}

// TransitionStatus moves a PENDING team to t.To and appends the audit entry
// in the same transaction. A team that is no longer PENDING yields
// ErrInvalidStateTransition and nothing is written.
func (s *GormTeamStore) TransitionStatus(ctx context.Context, t StatusTransition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":              t.To,
			"verification_note":   t.Note,
			"notification_status": models.NotificationPending,
		}
		if t.To == models.TeamStatusVerified {
			updates["verified_at"] = t.At
			updates["verified_by"] = t.Actor
		}

		res := tx.Model(&models.Team{}).
			Where("id = ? AND status = ?", t.TeamID, models.TeamStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: team %s is no longer pending", ErrInvalidStateTransition, t.TeamID)
		}

		return tx.Create(&models.AuditLog{
			TeamID:      t.TeamID,
			Action:      t.AuditAction,
			PerformedBy: t.Actor,
			Details:     t.AuditDetails,
			CreatedAt:   t.At,
		}).Error
	})
}

func (s *GormTeamStore) SetArtifactRef(ctx context.Context, teamID, url string) error {
	return s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		Updates(map[string]interface{}{
			"qr_code_url":     url,
			"artifact_status": models.ArtifactStored,
		}).Error
}

func (s *GormTeamStore) MarkArtifactMissing(ctx context.Context, teamID string) error {
	return s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("artifact_status", models.ArtifactMissing).Error
}

// ClaimNotification marks a decided team's delivery as in flight. Without
// force only failed deliveries, or pending ones untouched since
// staleBefore, can be claimed. Returns false when another caller owns it.
func (s *GormTeamStore) ClaimNotification(ctx context.Context, teamID string, force bool, staleBefore time.Time) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ? AND status <> ?", teamID, models.TeamStatusPending)
	if !force {
		q = q.Where("(notification_status = ? OR (notification_status = ? AND updated_at < ?))",
			models.NotificationFailed, models.NotificationPending, staleBefore)
	}
	res := q.Updates(map[string]interface{}{
		"notification_status": models.NotificationPending,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordNotification stores the outcome of one delivery attempt.
func (s *GormTeamStore) RecordNotification(ctx context.Context, teamID string, sendErr error) error {
	updates := map[string]interface{}{
		"notification_attempts": gorm.Expr("notification_attempts + ?", 1),
	}
	if sendErr == nil {
		updates["notification_status"] = models.NotificationSent
		updates["notification_error"] = ""
		updates["notified_at"] = time.Now()
	} else {
		updates["notification_status"] = models.NotificationFailed
		updates["notification_error"] = sendErr.Error()
	}
	return s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		Updates(updates).Error
}

func (s *GormTeamStore) AppendAuditLog(ctx context.Context, teamID, action, actor string, details *string) error {
	return s.db.WithContext(ctx).Create(&models.AuditLog{
		TeamID:      teamID,
		Action:      action,
		PerformedBy: actor,
		Details:     details,
	}).Error
}

func (s *GormTeamStore) ListAuditLogs(ctx context.Context, teamID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	return logs, err
}
