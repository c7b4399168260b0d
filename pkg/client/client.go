// Package client is a small Go client for the regdesk admin API. It keeps
// the session cookie and the anti-forgery token for the lifetime of the
// Client and replays a request once when the server rejects a stale token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	csrfHeader      = "X-CSRF-Token"
	codeCSRFInvalid = 4031
)

// TokenHolder stores the anti-forgery token of one session.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *TokenHolder) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// RetryPolicy bounds how often a request rejected for its CSRF token is
// replayed after a refresh.
type RetryPolicy struct {
	MaxRetries int
}

var DefaultRetryPolicy = RetryPolicy{MaxRetries: 1}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("regdesk: %d (code %d): %s", e.Status, e.Code, e.Message)
}

// IsConflict reports a refused state change, e.g. deciding a team twice.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

type Client struct {
	baseURL string
	http    *http.Client
	csrf    *TokenHolder
	retry   RetryPolicy

	mu          sync.RWMutex
	accessToken string
}

type Option func(*Client)

// WithHTTPClient replaces the default client. A cookie jar is added when
// it has none; the CSRF cookie must round-trip.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		csrf:    &TokenHolder{},
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	if c.retry.MaxRetries < 0 {
		c.retry.MaxRetries = 0
	}
	return c, nil
}

// CSRFToken returns the token currently held by the session.
func (c *Client) CSRFToken() string { return c.csrf.Get() }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RefreshCSRF fetches a new anti-forgery token.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/csrf", nil, &out); err != nil {
		return fmt.Errorf("refresh csrf token: %w", err)
	}
	if out.Token == "" {
		return errors.New("refresh csrf token: empty token")
	}
	c.csrf.Set(out.Token)
	return nil
}

// do sends an authenticated request. A 403 carrying the CSRF code triggers
// a token refresh and a replay, at most RetryPolicy.MaxRetries times.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if method != http.MethodGet && c.csrf.Get() == "" {
		if err := c.RefreshCSRF(ctx); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.send(ctx, method, path, body, out)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Code != codeCSRFInvalid {
			return err
		}
		if attempt >= c.retry.MaxRetries {
			return err
		}
		if err := c.RefreshCSRF(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.csrf.Get(); token != "" {
		req.Header.Set(csrfHeader, token)
	}
	c.mu.RLock()
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

type Admin struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

type LoginResult struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
	Admin    Admin     `json:"admin"`
}

// Login authenticates and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.accessToken = out.Token
	c.mu.Unlock()
	return &out, nil
}

type Team struct {
	ID                 string     `json:"id"`
	TeamName           string     `json:"team_name"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	VerificationNote   *string    `json:"verification_note"`
	QRCodeURL          *string    `json:"qr_code_url"`
	VerifiedAt         *time.Time `json:"verified_at"`
	VerifiedBy         *string    `json:"verified_by"`
	ShowInGallery      bool       `json:"show_in_gallery"`
	ArtifactStatus     string     `json:"artifact_status"`
	NotificationStatus string     `json:"notification_status"`
}

type DecisionResult struct {
	Team     Team     `json:"team"`
	Notified bool     `json:"notified"`
	Degraded bool     `json:"degraded"`
	Issues   []string `json:"issues"`
}

// Decide sends VERIFY or REJECT for a pending team.
func (c *Client) Decide(ctx context.Context, teamID, decision string, note *string) (*DecisionResult, error) {
	var out DecisionResult
	err := c.do(ctx, http.MethodPost, "/api/admin/teams/"+url.PathEscape(teamID)+"/decision", map[string]interface{}{
		"decision": decision,
		"note":     note,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResendNotification(ctx context.Context, teamID string, force bool) (*DecisionResult, error) {
	var out DecisionResult
	err := c.do(ctx, http.MethodPost, "/api/admin/teams/"+url.PathEscape(teamID)+"/resend", map[string]bool{"force": force}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ToggleGallery(ctx context.Context, teamID string, show bool) (*Team, error) {
	var out Team
	err := c.do(ctx, http.MethodPut, "/api/admin/teams/"+url.PathEscape(teamID)+"/gallery", map[string]bool{"show": show}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
