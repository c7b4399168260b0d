package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every API endpoint writes.
//
// Code is 0 on success. Errors carry the HTTP status as their code unless a
// more specific application code below applies.
type Response struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Application codes that refine the HTTP status.
const (
	// CodeDegraded marks a committed write whose follow-up steps did not all
	// complete. The request succeeded; Warnings lists what is outstanding.
	CodeDegraded = 2001
	// CodeCSRFInvalid asks the client to refresh its anti-forgery token and
	// replay the request.
	CodeCSRFInvalid = 4031
	// CodeAlreadyDecided is returned when a team has left PENDING.
	CodeAlreadyDecided = 4091
	// CodeNothingToResend is returned when no delivery is claimable.
	CodeNothingToResend = 4092
	// CodeArtifactFailed means check-in artifacts could not be rendered.
	CodeArtifactFailed = 5001
	// CodeStorageUnavailable means the blob store rejected an upload.
	CodeStorageUnavailable = 5031
)

// AppError is an error with the status and code it should be written with.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(status, code int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: code, Message: msg}
}

func NewBadRequest(msg string) *AppError {
	return newError(http.StatusBadRequest, 400, msg)
}

func NewUnauthorized(msg string) *AppError {
	return newError(http.StatusUnauthorized, 401, msg)
}

func NewForbidden(msg string) *AppError {
	return newError(http.StatusForbidden, 403, msg)
}

// NewCSRFInvalid is the rejection clients answer with one token refresh.
func NewCSRFInvalid(msg string) *AppError {
	return newError(http.StatusForbidden, CodeCSRFInvalid, msg)
}

func NewNotFound(msg string) *AppError {
	return newError(http.StatusNotFound, 404, msg)
}

func NewConflict(msg string) *AppError {
	return newError(http.StatusConflict, 409, msg)
}

func NewAlreadyDecided(msg string) *AppError {
	return newError(http.StatusConflict, CodeAlreadyDecided, msg)
}

func NewNothingToResend(msg string) *AppError {
	return newError(http.StatusConflict, CodeNothingToResend, msg)
}

func NewArtifactFailed(msg string) *AppError {
	return newError(http.StatusInternalServerError, CodeArtifactFailed, msg)
}

func NewStorageUnavailable(msg string) *AppError {
	return newError(http.StatusServiceUnavailable, CodeStorageUnavailable, msg)
}

func NewServerError(msg string) *AppError {
	return newError(http.StatusInternalServerError, 500, msg)
}

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "ok", Data: data})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// Degraded sends a 200 for a write that committed but left side effects
// outstanding. Operators see the warnings; clients must not retry the write.
func Degraded(c *gin.Context, data interface{}, warnings []string) {
	c.JSON(http.StatusOK, Response{
		Code:     CodeDegraded,
		Message:  "committed with pending follow-up",
		Data:     data,
		Warnings: warnings,
	})
}

// Error writes err. An *AppError anywhere in the chain is used as is; any
// other error becomes a generic 500 whose text is not exposed.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewServerError("internal server error")
	}
	c.JSON(appErr.HTTPStatus, Response{Code: appErr.Code, Message: appErr.Message})
}

// Abort writes the error and stops the handler chain. For middlewares.
func Abort(c *gin.Context, err *AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, Response{Code: err.Code, Message: err.Message})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, NewBadRequest(msg))
}

func NotFound(c *gin.Context, msg string) {
	Error(c, NewNotFound(msg))
}
