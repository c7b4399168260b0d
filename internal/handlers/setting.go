package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
)

type SettingHandler struct {
	settings *services.EventSettingService
}

func NewSettingHandler(settings *services.EventSettingService) *SettingHandler {
	return &SettingHandler{settings: settings}
}

// GetAll returns every event setting keyed by name.
// GET /api/admin/settings
func (h *SettingHandler) GetAll(c *gin.Context) {
	values, err := h.settings.All()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, values)
}

// Update writes the provided keys. Omitted keys keep their value; the last
// writer wins.
// PUT /api/admin/settings
func (h *SettingHandler) Update(c *gin.Context) {
	var req services.UpdateEventSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.settings.Update(&req); err != nil {
		handleError(c, err)
		return
	}
	values, err := h.settings.All()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, values)
}
