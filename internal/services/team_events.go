package services

import (
	"sync"
	"time"

	"github.com/regdesk/backend/internal/models"
)

// Team event types pushed to connected admin consoles.
const (
	EventTeamRegistered = "team.registered"
	EventTeamDecided    = "team.decided"
	EventTeamDelivery   = "team.delivery"
)

// TeamEvent is a real-time update about one team.
type TeamEvent struct {
	Type               string            `json:"type"`
	TeamID             string            `json:"team_id"`
	TeamName           string            `json:"team_name"`
	Status             models.TeamStatus `json:"status"`
	ArtifactStatus     string            `json:"artifact_status,omitempty"`
	NotificationStatus string            `json:"notification_status,omitempty"`
	Actor              string            `json:"actor,omitempty"`
	At                 time.Time         `json:"at"`
}

func newTeamEvent(eventType string, team *models.Team, actor string, at time.Time) TeamEvent {
	return TeamEvent{
		Type:               eventType,
		TeamID:             team.ID,
		TeamName:           team.TeamName,
		Status:             team.Status,
		ArtifactStatus:     team.ArtifactStatus,
		NotificationStatus: team.NotificationStatus,
		Actor:              actor,
		At:                 at,
	}
}

// EventHub fans team events out to subscribers. A nil hub drops events.
type EventHub struct {
	clients map[string]chan TeamEvent
	mu      sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]chan TeamEvent),
	}
}

// Subscribe registers a client and returns its event channel.
func (h *EventHub) Subscribe(clientID string) <-chan TeamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan TeamEvent, 100)
	h.clients[clientID] = ch
	return ch
}

func (h *EventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts without blocking; a client with a full buffer misses
// the event.
func (h *EventHub) Publish(event TeamEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *EventHub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
