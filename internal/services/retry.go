package services

import (
	"errors"
	"time"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const RetryBatchSize = 20

// RetryService periodically re-queues notifications that failed or were
// left pending by a crashed process.
type RetryService struct {
	db            *gorm.DB
	queue         TaskQueue
	cfg           config.WorkflowConfig
	cronScheduler *cron.Cron
	now           func() time.Time
}

func NewRetryService(db *gorm.DB, queue TaskQueue, cfg config.WorkflowConfig) *RetryService {
	return &RetryService{
		db:    db,
		queue: queue,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *RetryService) StartScheduler() error {
	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(s.cfg.RetrySchedule, func() {
		s.ProcessUndelivered()
	}); err != nil {
		return err
	}
	s.cronScheduler.Start()
	logger.Infof("[Retry] Scheduler started (cron: %s, max attempts: %d)", s.cfg.RetrySchedule, s.cfg.NotificationMaxAttempts)
	return nil
}

func (s *RetryService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// FindUndelivered returns decided teams whose notification failed with
// attempts left, or is pending but untouched for longer than the stale age.
func (s *RetryService) FindUndelivered() ([]models.Team, error) {
	staleBefore := s.now().Add(-s.cfg.StalePendingAfter)

	var teams []models.Team
	err := s.db.
		Where("status <> ?", models.TeamStatusPending).
		Where("(notification_status = ? AND notification_attempts < ?) OR (notification_status = ? AND updated_at < ?)",
			models.NotificationFailed, s.cfg.NotificationMaxAttempts,
			models.NotificationPending, staleBefore).
		Order("updated_at ASC").
		Limit(RetryBatchSize).
		Find(&teams).Error
	return teams, err
}

// ProcessUndelivered enqueues one task per undelivered team and returns
// how many were queued.
func (s *RetryService) ProcessUndelivered() int {
	teams, err := s.FindUndelivered()
	if err != nil {
		logger.Errorf("[Retry] Failed to fetch undelivered notifications: %v", err)
		return 0
	}
	if len(teams) == 0 {
		return 0
	}

	logger.Infof("[Retry] Re-queueing %d undelivered notification(s)", len(teams))
	queued := 0
	for _, team := range teams {
		if err := s.queue.Enqueue(&NotificationTask{TeamID: team.ID}); err != nil {
			logger.Warnf("[Retry] Enqueue failed for team %s: %v", team.ID, err)
			continue
		}
		queued++
	}
	return queued
}

// isSkippable reports errors that mean a delivery task has nothing to do.
func isSkippable(err error) bool {
	return errors.Is(err, ErrNothingToResend) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrTeamNotFound)
}
