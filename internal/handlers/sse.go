package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/rs/zerolog"
)

// SSEHandler streams team updates to the admin console.
type SSEHandler struct {
	hub       *services.EventHub
	keepAlive time.Duration
	log       zerolog.Logger
}

func NewSSEHandler(hub *services.EventHub) *SSEHandler {
	return &SSEHandler{hub: hub, keepAlive: 25 * time.Second, log: logger.Component("sse")}
}

// StreamTeamEvents sends one "data:" frame per event. Auth is handled by
// the route middleware; EventSource clients authenticate with the session
// cookie.
// GET /api/admin/events
func (h *SSEHandler) StreamTeamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	h.log.Info().Str("client_id", clientID).Str("request_id", logger.RequestID(c)).Str("admin", middleware.GetAdminEmail(c)).
		Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			h.log.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
