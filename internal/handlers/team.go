package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/regdesk/backend/pkg/response"
)

type TeamHandler struct {
	teams    *services.TeamService
	verifier *services.VerificationService
	settings *services.EventSettingService
	export   *services.ExportService
}

func NewTeamHandler(teams *services.TeamService, verifier *services.VerificationService, settings *services.EventSettingService, export *services.ExportService) *TeamHandler {
	return &TeamHandler{
		teams:    teams,
		verifier: verifier,
		settings: settings,
		export:   export,
	}
}

type DecisionBody struct {
	Decision string  `json:"decision" binding:"required"`
	Note     *string `json:"note"`
}

type ResendBody struct {
	Force bool `json:"force"`
}

type GalleryBody struct {
	Show *bool `json:"show" binding:"required"`
}

// List
// GET /api/admin/teams
func (h *TeamHandler) List(c *gin.Context) {
	var req services.TeamListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.teams.List(&req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}

// GetByID returns the team with its members.
// GET /api/admin/teams/:id
func (h *TeamHandler) GetByID(c *gin.Context) {
	team, err := h.teams.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, team)
}

// Decide verifies or rejects a pending team. A degraded result is still a
// success: the decision stands and the response lists what is missing.
// POST /api/admin/teams/:id/decision
func (h *TeamHandler) Decide(c *gin.Context) {
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	decision := services.Decision(strings.ToUpper(strings.TrimSpace(body.Decision)))
	if !decision.Valid() {
		response.BadRequest(c, "decision must be VERIFY or REJECT")
		return
	}

	settings, err := h.settings.Snapshot()
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := h.verifier.Decide(c.Request.Context(), services.DecisionRequest{
		TeamID:   c.Param("id"),
		Decision: decision,
		Note:     body.Note,
		Actor:    middleware.GetAdminEmail(c),
	}, settings)
	if err != nil {
		handleError(c, err)
		return
	}
	if result.Degraded {
		logger.Warn().
			Str("team_id", result.Team.ID).
			Strs("issues", result.Issues).
			Msg("[Teams] Decision committed with missing side effects")
		response.Degraded(c, result, result.Issues)
		return
	}
	response.Success(c, result)
}

// Resend re-delivers the decision email, regenerating the QR when it is
// missing.
// POST /api/admin/teams/:id/resend
func (h *TeamHandler) Resend(c *gin.Context) {
	var body ResendBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	settings, err := h.settings.Snapshot()
	if err != nil {
		handleError(c, err)
		return
	}
	result, err := h.verifier.ResendNotification(c.Request.Context(), c.Param("id"), middleware.GetAdminEmail(c), body.Force, settings)
	if err != nil {
		handleError(c, err)
		return
	}
	if result.Degraded {
		response.Degraded(c, result, result.Issues)
		return
	}
	response.Success(c, result)
}

// ToggleGallery
// PUT /api/admin/teams/:id/gallery
func (h *TeamHandler) ToggleGallery(c *gin.Context) {
	var body GalleryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	team, err := h.teams.SetGalleryVisibility(c.Request.Context(), c.Param("id"), *body.Show, middleware.GetAdminEmail(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, team)
}

// AuditTrail
// GET /api/admin/teams/:id/audit-logs
func (h *TeamHandler) AuditTrail(c *gin.Context) {
	logs, err := h.teams.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, logs)
}

// Stats
// GET /api/admin/stats
func (h *TeamHandler) Stats(c *gin.Context) {
	stats, err := h.teams.Stats()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

// Export streams the filtered teams as CSV, one row per member.
// GET /api/admin/teams/export
func (h *TeamHandler) Export(c *gin.Context) {
	var req services.TeamListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	filename := fmt.Sprintf("teams-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := h.export.WriteCSV(c.Writer, &req); err != nil {
		if !c.Writer.Written() {
			c.Header("Content-Type", "")
			c.Header("Content-Disposition", "")
			handleError(c, err)
			return
		}
		logger.Error().Err(err).Msg("[Teams] CSV export aborted mid-stream")
	}
}
