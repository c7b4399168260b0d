package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/regdesk/backend/pkg/response"
)

const (
	CSRFCookie = "regdesk_csrf"
	CSRFHeader = "X-CSRF-Token"

	// CodeCSRFInvalid tells clients to fetch a fresh token and replay.
	CodeCSRFInvalid = response.CodeCSRFInvalid
)

const csrfMaxAge = 12 * 60 * 60

// IssueCSRFToken sets a fresh anti-forgery cookie and returns the token so
// the caller can echo it in the CSRF header.
func IssueCSRFToken(c *gin.Context, secure bool) string {
	token := uuid.NewString()
	c.SetSameSite(http.SameSiteStrictMode)
	// Readable by scripts: the double-submit pattern needs the client to copy it.
	c.SetCookie(CSRFCookie, token, csrfMaxAge, "/", "", secure, false)
	return token
}

// CSRFProtect enforces the double-submit token on state-changing requests.
func CSRFProtect() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookie)
		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			response.Abort(c, response.NewCSRFInvalid("invalid or missing CSRF token"))
			return
		}
		c.Next()
	}
}
