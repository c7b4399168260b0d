package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
)

type ActivityLogHandler struct {
	activityLogService *services.ActivityLogService
}

func NewActivityLogHandler(svc *services.ActivityLogService) *ActivityLogHandler {
	return &ActivityLogHandler{activityLogService: svc}
}

// GET /api/admin/activity-logs
func (h *ActivityLogHandler) List(c *gin.Context) {
	var req services.ActivityLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.activityLogService.List(&req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}

// Cleanup removes entries older than the configured retention.
// POST /api/admin/activity-logs/cleanup
func (h *ActivityLogHandler) Cleanup(c *gin.Context) {
	deleted, err := h.activityLogService.CleanupOldLogs(h.activityLogService.RetentionDays())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"deleted":        deleted,
		"retention_days": h.activityLogService.RetentionDays(),
	})
}
