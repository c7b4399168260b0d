package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/regdesk/backend/pkg/response"
)

// toAppError maps domain errors onto HTTP errors. Unknown errors become a
// 500 without leaking their text.
func toAppError(err error) *response.AppError {
	var appErr *response.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, services.ErrTeamNotFound), services.IsNotFound(err):
		return response.NewNotFound("team not found")
	case errors.Is(err, services.ErrInvalidStateTransition):
		return response.NewAlreadyDecided(err.Error())
	case errors.Is(err, services.ErrNothingToResend):
		return response.NewNothingToResend(err.Error())
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrCaptchaFailed):
		return response.NewBadRequest(err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		return response.NewUnauthorized(err.Error())
	case errors.Is(err, services.ErrArtifactGeneration):
		return response.NewArtifactFailed("could not generate check-in artifacts")
	case errors.Is(err, services.ErrBlobStore):
		return response.NewStorageUnavailable("file storage is unavailable")
	default:
		return response.NewServerError("internal server error")
	}
}

func handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Error(c, appErr)
}
