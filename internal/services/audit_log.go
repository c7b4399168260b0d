package services

import (
	"github.com/regdesk/backend/internal/models"
	"gorm.io/gorm"
)

// AuditLogService reads the append-only team audit trail. Writes go
// through TeamStore.
type AuditLogService struct {
	db *gorm.DB
}

func NewAuditLogService(db *gorm.DB) *AuditLogService {
	return &AuditLogService{db: db}
}

type AuditLogListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	TeamID   string `form:"team_id"`
	Action   string `form:"action"`
	Actor    string `form:"actor"`
}

type AuditLogListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.AuditLog `json:"items"`
}

func (s *AuditLogService) List(req *AuditLogListRequest) (*AuditLogListResponse, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	query := s.db.Model(&models.AuditLog{})
	if req.TeamID != "" {
		query = query.Where("team_id = ?", req.TeamID)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}
	if req.Actor != "" {
		query = query.Where("performed_by = ?", req.Actor)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.AuditLog
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}

	return &AuditLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}
