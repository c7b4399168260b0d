package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/pkg/logger"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

// Attachment is a named binary part of a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outgoing notification.
type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	Inline      []Attachment // referenced from the body as cid:<Filename>
	Attachments []Attachment
}

// Mailer delivers a message or returns an error wrapping ErrNotification.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

type EmailService struct {
	cfg     *config.SMTPConfig
	breaker *gobreaker.CircuitBreaker
	dial    func(ctx context.Context, m *mail.Msg) error
}

func NewEmailService(cfg *config.SMTPConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	s.dial = s.dialAndSend
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SMTPCircuitBreaker",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnf("[Email] %s state changed from %s to %s", name, from, to)
		},
	})
	return s
}

func (s *EmailService) Send(ctx context.Context, msg *Message) error {
	if !s.cfg.Enabled || s.cfg.Host == "" {
		return fmt.Errorf("%w: smtp is not configured", ErrNotification)
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrNotification)
	}

	m, err := s.buildMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.dial(ctx, m)
	})
	if err != nil {
		logger.Errorf("[Email] Failed to send %q to %v: %v", msg.Subject, msg.To, err)
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	logger.Infof("[Email] Sent %q to %d recipient(s)", msg.Subject, len(msg.To))
	return nil
}

func (s *EmailService) buildMessage(msg *Message) (*mail.Msg, error) {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	for _, part := range msg.Inline {
		if err := m.EmbedReader(part.Filename, bytes.NewReader(part.Data),
			mail.WithFileContentType(mail.ContentType(part.ContentType))); err != nil {
			return nil, fmt.Errorf("embed %s: %w", part.Filename, err)
		}
	}
	for _, part := range msg.Attachments {
		if err := m.AttachReader(part.Filename, bytes.NewReader(part.Data),
			mail.WithFileContentType(mail.ContentType(part.ContentType))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", part.Filename, err)
		}
	}
	return m, nil
}

func (s *EmailService) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	switch {
	case s.cfg.UseTLS && s.cfg.Port == 465:
		opts = append(opts, mail.WithSSL())
	case s.cfg.UseTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}

// IsCircuitOpen reports whether SMTP calls are currently short-circuited.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

var verifiedTemplate = template.Must(template.New("verified").Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>Your team is verified</h2>
<p>Hi {{.TeamName}},</p>
<p>Your registration for <strong>{{.ProjectTitle}}</strong> ({{.Category}}) has been verified. See you at the event.</p>
<table style="border-collapse: collapse; margin-bottom: 20px;">
<tr><td style="padding: 8px; border: 1px solid #ddd; font-weight: bold;">Date</td><td style="padding: 8px; border: 1px solid #ddd;">{{.Date}}</td></tr>
<tr><td style="padding: 8px; border: 1px solid #ddd; font-weight: bold;">Time</td><td style="padding: 8px; border: 1px solid #ddd;">{{.Time}}</td></tr>
<tr><td style="padding: 8px; border: 1px solid #ddd; font-weight: bold;">Venue</td><td style="padding: 8px; border: 1px solid #ddd;">{{.Location}}</td></tr>
</table>
{{if .Note}}<p><strong>Note from the organisers:</strong> {{.Note}}</p>{{end}}
<p>Show this QR code at check-in:</p>
<p><img src="cid:{{.QRName}}" alt="Check-in QR code" width="300" height="300"></p>
<p>A calendar invite is attached.</p>
<hr><p style="color: #888; font-size: 12px;">Sent by regdesk</p>
</body></html>`))

var rejectedTemplate = template.Must(template.New("rejected").Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>Registration update</h2>
<p>Hi {{.ContactName}},</p>
<p>We are sorry, the registration of team <strong>{{.TeamName}}</strong> could not be accepted.</p>
{{if .Note}}<p><strong>Reason:</strong> {{.Note}}</p>{{end}}
<p>Reply to this email if you believe this is a mistake.</p>
<hr><p style="color: #888; font-size: 12px;">Sent by regdesk</p>
</body></html>`))

type emailData struct {
	TeamName     string
	ContactName  string
	ProjectTitle string
	Category     string
	Date         string
	Time         string
	Location     string
	Note         string
	QRName       string
}

func renderTemplate(t *template.Template, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
