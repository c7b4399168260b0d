package services

import (
	"encoding/json"
	"time"

	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var activityDB *gorm.DB

func InitActivityLogger(db *gorm.DB) {
	activityDB = db
}

func LogActivity(module, action, message, adminEmail, ip, userAgent string, extra interface{}) {
	writeActivity("info", module, action, message, adminEmail, ip, userAgent, extra)
}

func LogActivityWarning(module, action, message, adminEmail, ip, userAgent string, extra interface{}) {
	writeActivity("warning", module, action, message, adminEmail, ip, userAgent, extra)
}

func LogActivityError(module, action, message, adminEmail, ip, userAgent string, extra interface{}) {
	writeActivity("error", module, action, message, adminEmail, ip, userAgent, extra)
}

func writeActivity(level, module, action, message, adminEmail, ip, userAgent string, extra interface{}) {
	if activityDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.ActivityLog{
		Level:      level,
		Module:     module,
		Action:     action,
		Message:    message,
		AdminEmail: adminEmail,
		IP:         ip,
		UserAgent:  userAgent,
		Extra:      extraStr,
		CreatedAt:  time.Now(),
	}
	if err := activityDB.Create(entry).Error; err != nil {
		logger.Warnf("[ActivityLog] write failed: %v", err)
	}
}

type ActivityLogService struct {
	db            *gorm.DB
	retentionDays int
	cronScheduler *cron.Cron
}

func NewActivityLogService(db *gorm.DB, retentionDays int) *ActivityLogService {
	return &ActivityLogService{db: db, retentionDays: retentionDays}
}

type ActivityLogListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

type ActivityLogListResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Items    []models.ActivityLog `json:"items"`
}

func (s *ActivityLogService) List(req *ActivityLogListRequest) (*ActivityLogListResponse, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	var logs []models.ActivityLog
	var total int64

	query := s.db.Model(&models.ActivityLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &ActivityLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

func (s *ActivityLogService) RetentionDays() int { return s.retentionDays }

// CleanupOldLogs deletes activity older than retentionDays and returns the
// number of deleted rows. Audit log entries are never touched.
func (s *ActivityLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartCleanupScheduler runs the cleanup once now and then daily at 03:00.
func (s *ActivityLogService) StartCleanupScheduler() error {
	s.runCleanup()

	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc("0 3 * * *", s.runCleanup); err != nil {
		return err
	}
	s.cronScheduler.Start()
	return nil
}

func (s *ActivityLogService) StopCleanupScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

func (s *ActivityLogService) runCleanup() {
	if s.retentionDays <= 0 {
		logger.Infof("[ActivityLog] Cleanup disabled (retention_days <= 0)")
		return
	}

	deleted, err := s.CleanupOldLogs(s.retentionDays)
	if err != nil {
		logger.Errorf("[ActivityLog] Failed to cleanup old logs: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[ActivityLog] Cleaned up %d logs older than %d days", deleted, s.retentionDays)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
