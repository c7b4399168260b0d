package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
)

// PublicHandler serves the unauthenticated read endpoints of the site.
type PublicHandler struct {
	teams        *services.TeamService
	settings     *services.EventSettingService
	cookieSecure bool
}

func NewPublicHandler(teams *services.TeamService, settings *services.EventSettingService, cookieSecure bool) *PublicHandler {
	return &PublicHandler{teams: teams, settings: settings, cookieSecure: cookieSecure}
}

type EventInfo struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Venue        string `json:"venue"`
	Address      string `json:"address"`
	PaymentQRURL string `json:"payment_qr_url"`
}

// Event
// GET /api/event
func (h *PublicHandler) Event(c *gin.Context) {
	values, err := h.settings.All()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, EventInfo{
		Date:         values[models.SettingEventDate],
		Time:         values[models.SettingEventTime],
		Venue:        values[models.SettingEventVenue],
		Address:      values[models.SettingEventAddress],
		PaymentQRURL: values[models.SettingPaymentQRURL],
	})
}

// Gallery lists verified teams opted into public display.
// GET /api/gallery?category=HARDWARE
func (h *PublicHandler) Gallery(c *gin.Context) {
	items, err := h.teams.Gallery(c.Query("category"))
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []services.GalleryItem{}
	}
	response.Success(c, items)
}

// CSRFToken issues a double-submit token.
// GET /api/csrf
func (h *PublicHandler) CSRFToken(c *gin.Context) {
	token := middleware.IssueCSRFToken(c, h.cookieSecure)
	response.Success(c, gin.H{"token": token, "header": middleware.CSRFHeader})
}
