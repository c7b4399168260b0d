package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
	"gorm.io/gorm"
)

type AuditLogHandler struct {
	auditLogService *services.AuditLogService
}

func NewAuditLogHandler(db *gorm.DB) *AuditLogHandler {
	return &AuditLogHandler{auditLogService: services.NewAuditLogService(db)}
}

// List
// GET /api/admin/audit-logs
func (h *AuditLogHandler) List(c *gin.Context) {
	var req services.AuditLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.auditLogService.List(&req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}
