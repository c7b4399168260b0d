package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, the queue and the
// delivery backlog.
type HealthHandler struct {
	db     *gorm.DB
	queue  services.TaskQueue
	events *services.EventHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, events *services.EventHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, events: events}
}

// CheckHealth
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	code := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	components := gin.H{
		"database":    dbStatus,
		"queue_mode":  queueMode,
		"sse_clients": h.events.ClientCount(),
	}
	if dbStatus == "ok" {
		var pendingTeams, failedNotifications int64
		h.db.Model(&models.Team{}).Where("status = ?", models.TeamStatusPending).Count(&pendingTeams)
		h.db.Model(&models.Team{}).Where("notification_status = ?", models.NotificationFailed).Count(&failedNotifications)
		components["pending_teams"] = pendingTeams
		components["failed_notifications"] = failedNotifications
	}

	c.JSON(code, gin.H{
		"status":     overall,
		"service":    "regdesk",
		"components": components,
	})
}
