package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/response"
)

const (
	formPaymentProof  = "payment_proof"
	formExtraDocument = "extra_document"

	// Two uploads plus form fields.
	maxRegistrationBody = 2*services.MaxUploadSize + 1<<20
)

type RegistrationHandler struct {
	registrations *services.RegistrationService
}

func NewRegistrationHandler(registrations *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Register accepts a multipart team registration. Members come either as a
// JSON array in the "members" field or as indexed fields such as
// members[0][name].
// POST /api/registrations
func (h *RegistrationHandler) Register(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRegistrationBody)

	var req services.RegistrationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	members, err := parseMembers(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if len(members) > 0 {
		req.Members = members
	}
	if req.CaptchaToken == "" {
		// Turnstile widgets post their token under this name.
		req.CaptchaToken = c.PostForm("cf-turnstile-response")
	}

	proofHeader, err := c.FormFile(formPaymentProof)
	if err != nil {
		response.BadRequest(c, "payment_proof file is required")
		return
	}
	proof, err := readUpload(proofHeader)
	if err != nil {
		handleError(c, err)
		return
	}

	var extraDoc *services.Upload
	if docHeader, err := c.FormFile(formExtraDocument); err == nil {
		doc, err := readUpload(docHeader)
		if err != nil {
			handleError(c, err)
			return
		}
		extraDoc = &doc
	}

	team, err := h.registrations.Register(c.Request.Context(), &req, c.ClientIP(), proof, extraDoc)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, gin.H{
		"id":        team.ID,
		"team_name": team.TeamName,
		"status":    team.Status,
	})
}

func parseMembers(c *gin.Context) ([]services.MemberInput, error) {
	if raw := strings.TrimSpace(c.PostForm("members")); raw != "" {
		var members []services.MemberInput
		if err := json.Unmarshal([]byte(raw), &members); err != nil {
			return nil, fmt.Errorf("members must be a JSON array: %w", err)
		}
		return members, nil
	}

	var members []services.MemberInput
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("members[%d]", i)
		m := services.MemberInput{
			Name:       c.PostForm(prefix + "[name]"),
			Email:      c.PostForm(prefix + "[email]"),
			Year:       c.PostForm(prefix + "[year]"),
			Department: c.PostForm(prefix + "[department]"),
		}
		if m == (services.MemberInput{}) {
			break
		}
		members = append(members, m)
	}
	return members, nil
}

func readUpload(fh *multipart.FileHeader) (services.Upload, error) {
	if fh.Size > services.MaxUploadSize {
		return services.Upload{}, fmt.Errorf("%w: %s exceeds %d MiB", services.ErrValidation, fh.Filename, services.MaxUploadSize>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, services.MaxUploadSize+1))
	if err != nil {
		return services.Upload{}, err
	}
	return services.Upload{Filename: fh.Filename, Data: data}, nil
}
