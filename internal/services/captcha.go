package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/regdesk/backend/internal/config"
)

// CaptchaVerifier is a boolean check against an external CAPTCHA provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

func NewCaptchaVerifier(cfg *config.CaptchaConfig) CaptchaVerifier {
	if !cfg.Enabled {
		return AllowAllCaptcha{}
	}
	return &TurnstileVerifier{
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// AllowAllCaptcha is used when CAPTCHA checks are disabled.
type AllowAllCaptcha struct{}

func (AllowAllCaptcha) Verify(context.Context, string, string) (bool, error) { return true, nil }

// TurnstileVerifier speaks the siteverify protocol shared by Cloudflare
// Turnstile and hCaptcha.
type TurnstileVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha verify: unexpected status %d", resp.StatusCode)
	}

	var body siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("captcha verify: decode: %w", err)
	}
	return body.Success, nil
}
