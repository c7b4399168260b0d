package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/storage"
	"github.com/regdesk/backend/pkg/logger"
)

type Decision string

const (
	DecisionVerify Decision = "VERIFY"
	DecisionReject Decision = "REJECT"
)

func (d Decision) Valid() bool {
	return d == DecisionVerify || d == DecisionReject
}

// ActorSystem performs deliveries triggered by the queue or the sweeper.
const ActorSystem = "system"

type DecisionRequest struct {
	TeamID   string
	Decision Decision
	Note     *string
	Actor    string
}

// DecisionResult describes a committed decision. Degraded means the state
// change stands but at least one side effect is missing; Issues says which.
type DecisionResult struct {
	Team     *models.Team `json:"team"`
	Notified bool         `json:"notified"`
	Degraded bool         `json:"degraded"`
	Issues   []string     `json:"issues,omitempty"`
}

func (r *DecisionResult) degrade(issue string) {
	r.Degraded = true
	r.Issues = append(r.Issues, issue)
}

// artifacts holds everything rendered before the first write.
type artifacts struct {
	qr      []byte
	message *Message
}

type VerificationService struct {
	store  TeamStore
	blobs  storage.BlobStore
	mailer Mailer
	queue  TaskQueue
	events *EventHub
	cfg    config.WorkflowConfig
	now    func() time.Time
}

type VerificationOption func(*VerificationService)

// WithTaskQueue enables background re-delivery of failed notifications.
func WithTaskQueue(q TaskQueue) VerificationOption {
	return func(s *VerificationService) { s.queue = q }
}

// WithEventHub publishes decision and delivery updates.
func WithEventHub(h *EventHub) VerificationOption {
	return func(s *VerificationService) { s.events = h }
}

func WithClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) { s.now = now }
}

func NewVerificationService(store TeamStore, blobs storage.BlobStore, mailer Mailer, cfg config.WorkflowConfig, opts ...VerificationOption) *VerificationService {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	if cfg.BlobRetryAttempts < 1 {
		cfg.BlobRetryAttempts = 1
	}
	s := &VerificationService{
		store:  store,
		blobs:  blobs,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide moves a PENDING team to VERIFIED or REJECTED and performs the side
// effects of that decision. Errors returned before the status write leave
// nothing behind; failures after it produce a degraded result instead.
func (s *VerificationService) Decide(ctx context.Context, req DecisionRequest, settings EventSettings) (*DecisionResult, error) {
	if !req.Decision.Valid() {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, req.Decision)
	}
	if strings.TrimSpace(req.Actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	label := strings.ToLower(string(req.Decision))

	team, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		decisionsTotal.WithLabelValues(label, outcomeError).Inc()
		return nil, err
	}
	if team.Status != models.TeamStatusPending {
		logger.Warn().Str("team_id", team.ID).Str("status", string(team.Status)).
			Str("decision", string(req.Decision)).Str("actor", req.Actor).
			Msg("[Verification] decision on a team that is already decided")
		decisionsTotal.WithLabelValues(label, outcomeRejected).Inc()
		return nil, fmt.Errorf("%w: team %s is %s", ErrInvalidStateTransition, team.ID, team.Status)
	}

	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		decisionsTotal.WithLabelValues(label, outcomeError).Inc()
		return nil, err
	}
	team.Members = members

	now := s.now()
	target := models.TeamStatusRejected
	action := models.AuditTeamRejected
	if req.Decision == DecisionVerify {
		target = models.TeamStatusVerified
		action = models.AuditTeamVerified
		team.VerifiedAt = &now
		team.VerifiedBy = &req.Actor
	}
	team.VerificationNote = req.Note
	team.Status = target

	art, err := s.prepare(team, settings, now)
	if err != nil {
		decisionsTotal.WithLabelValues(label, outcomeError).Inc()
		return nil, err
	}

	if err := s.store.TransitionStatus(ctx, StatusTransition{
		TeamID:       team.ID,
		To:           target,
		Note:         req.Note,
		Actor:        req.Actor,
		At:           now,
		AuditAction:  action,
		AuditDetails: req.Note,
	}); err != nil {
		if errors.Is(err, ErrInvalidStateTransition) {
			decisionsTotal.WithLabelValues(label, outcomeRejected).Inc()
		} else {
			decisionsTotal.WithLabelValues(label, outcomeError).Inc()
		}
		return nil, err
	}
	team.NotificationStatus = models.NotificationPending

	logger.Info().Str("team_id", team.ID).Str("decision", string(req.Decision)).
		Str("actor", req.Actor).Msg("[Verification] status committed")

	// The transition is durable; finish the side effects even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	result := &DecisionResult{Team: team}

	if target == models.TeamStatusVerified {
		s.storeQR(ctx, team, art.qr, req.Actor, result)
	}

	result.Notified = s.deliver(ctx, team, art.message, req.Actor, label, result)
	if !result.Notified {
		s.enqueueRedelivery(team.ID)
	}

	if result.Degraded {
		decisionsTotal.WithLabelValues(label, outcomeDegraded).Inc()
	} else {
		decisionsTotal.WithLabelValues(label, outcomeOK).Inc()
	}
	s.events.Publish(newTeamEvent(EventTeamDecided, team, req.Actor, now))
	return result, nil
}

// ResendNotification re-delivers the decision notification of a decided
// team. Without force only failed or stale deliveries are claimed. A QR
// code whose upload failed earlier is regenerated and uploaded first.
func (s *VerificationService) ResendNotification(ctx context.Context, teamID, actor string, force bool, settings EventSettings) (*DecisionResult, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Status == models.TeamStatusPending {
		return nil, fmt.Errorf("%w: team %s has not been decided", ErrInvalidStateTransition, team.ID)
	}

	members, err := s.store.ListMembers(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	team.Members = members

	stamp := s.now()
	if team.VerifiedAt != nil {
		stamp = *team.VerifiedAt
	}
	art, err := s.prepare(team, settings, stamp)
	if err != nil {
		return nil, err
	}

	staleBefore := s.now().Add(-s.cfg.StalePendingAfter)
	claimed, err := s.store.ClaimNotification(ctx, team.ID, force, staleBefore)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: team %s delivery is %q", ErrNothingToResend, team.ID, team.NotificationStatus)
	}
	team.NotificationStatus = models.NotificationPending

	ctx = context.WithoutCancel(ctx)
	result := &DecisionResult{Team: team}

	if team.Status == models.TeamStatusVerified && (team.ArtifactStatus == models.ArtifactMissing || team.QRCodeURL == nil) {
		if s.storeQR(ctx, team, art.qr, actor, result) {
			s.audit(ctx, team.ID, models.AuditArtifactRegenerated, actor, team.QRCodeURL)
		}
	}

	kind := "resend"
	result.Notified = s.deliver(ctx, team, art.message, actor, kind, result)
	if result.Notified {
		detail := fmt.Sprintf("sent to %d recipient(s)", len(art.message.To))
		s.audit(ctx, team.ID, models.AuditNotificationResent, actor, &detail)
	}
	s.events.Publish(newTeamEvent(EventTeamDelivery, team, actor, s.now()))
	return result, nil
}

// prepare renders the QR code, calendar and email before anything is
// written so a rendering failure leaves the team untouched.
func (s *VerificationService) prepare(team *models.Team, settings EventSettings, stamp time.Time) (*artifacts, error) {
	data := emailData{
		TeamName:     team.TeamName,
		ContactName:  team.ContactName,
		ProjectTitle: team.ProjectTitle,
		Category:     string(team.Category),
		Date:         settings.Date,
		Time:         settings.Time,
		Location:     settings.Location(),
		QRName:       QRInlineName,
	}
	if team.VerificationNote != nil {
		data.Note = *team.VerificationNote
	}

	if team.Status == models.TeamStatusRejected {
		body, err := renderTemplate(rejectedTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("%w: email body: %v", ErrArtifactGeneration, err)
		}
		return &artifacts{message: &Message{
			To:       []string{team.ContactEmail},
			Subject:  fmt.Sprintf("Registration update for %s", team.TeamName),
			HTMLBody: body,
		}}, nil
	}

	qr, err := RenderQRImage(MakeCheckInToken(team))
	if err != nil {
		return nil, err
	}
	ical, err := RenderCalendarEvent(settings, team, stamp)
	if err != nil {
		return nil, err
	}
	body, err := renderTemplate(verifiedTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("%w: email body: %v", ErrArtifactGeneration, err)
	}

	recipients := team.MemberEmails()
	if len(recipients) == 0 {
		recipients = []string{team.ContactEmail}
	}
	return &artifacts{
		qr: qr,
		message: &Message{
			To:       recipients,
			Subject:  fmt.Sprintf("%s is verified - your check-in QR code", team.TeamName),
			HTMLBody: body,
			Inline: []Attachment{{
				Filename:    QRInlineName,
				ContentType: "image/png",
				Data:        qr,
			}},
			Attachments: []Attachment{{
				Filename:    CalendarFilename(team),
				ContentType: calendarContentType,
				Data:        ical,
			}},
		},
	}, nil
}

// storeQR uploads the QR image with bounded exponential backoff. On final
// failure the team is flagged artifact-missing for later regeneration.
func (s *VerificationService) storeQR(ctx context.Context, team *models.Team, qr []byte, actor string, result *DecisionResult) bool {
	url, err := s.uploadWithRetry(ctx, qr, storage.FolderQRCodes, team.ID+".png", "image/png")
	if err == nil {
		if err = s.store.SetArtifactRef(ctx, team.ID, url); err == nil {
			team.QRCodeURL = &url
			team.ArtifactStatus = models.ArtifactStored
			return true
		}
	}

	logger.Warn().Str("team_id", team.ID).Err(err).Msg("[Verification] QR code could not be stored")
	if markErr := s.store.MarkArtifactMissing(ctx, team.ID); markErr != nil {
		logger.Error().Str("team_id", team.ID).Err(markErr).Msg("[Verification] failed to flag missing artifact")
	}
	team.ArtifactStatus = models.ArtifactMissing
	detail := err.Error()
	s.audit(ctx, team.ID, models.AuditArtifactUploadFailed, actor, &detail)
	result.degrade("verified but QR code missing: " + detail)
	return false
}

func (s *VerificationService) uploadWithRetry(ctx context.Context, data []byte, folder, filename, contentType string) (string, error) {
	eb := backoff.NewExponentialBackOff()
	if s.cfg.BlobRetryInterval > 0 {
		eb.InitialInterval = s.cfg.BlobRetryInterval
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.BlobRetryAttempts-1)), ctx)

	var url string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()

		u, err := s.blobs.Put(stepCtx, data, folder, filename, contentType)
		if err != nil {
			logger.Warnf("[Verification] upload to %s failed (attempt %d/%d): %v", folder, attempt, s.cfg.BlobRetryAttempts, err)
			if errors.Is(err, storage.ErrEmptyObject) {
				return backoff.Permanent(err)
			}
			return err
		}
		url = u
		return nil
	}, policy)
	if err != nil {
		blobUploadsTotal.WithLabelValues(folder, "failed").Inc()
		return "", fmt.Errorf("%w: %v", ErrBlobStore, err)
	}
	blobUploadsTotal.WithLabelValues(folder, "ok").Inc()
	return url, nil
}

// deliver makes one send attempt and records its outcome on the team.
func (s *VerificationService) deliver(ctx context.Context, team *models.Team, msg *Message, actor, kind string, result *DecisionResult) bool {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	sendErr := s.mailer.Send(stepCtx, msg)
	cancel()

	if err := s.store.RecordNotification(ctx, team.ID, sendErr); err != nil {
		logger.Error().Str("team_id", team.ID).Err(err).Msg("[Verification] failed to record notification outcome")
	}
	team.NotificationAttempts++

	if sendErr == nil {
		now := s.now()
		team.NotificationStatus = models.NotificationSent
		team.NotifiedAt = &now
		team.NotificationError = ""
		notificationsTotal.WithLabelValues(kind, "sent").Inc()
		return true
	}

	team.NotificationStatus = models.NotificationFailed
	team.NotificationError = sendErr.Error()
	notificationsTotal.WithLabelValues(kind, "failed").Inc()
	logger.Warn().Str("team_id", team.ID).Str("kind", kind).Err(sendErr).
		Msg("[Verification] notification failed")

	detail := sendErr.Error()
	s.audit(ctx, team.ID, models.AuditNotificationFailed, actor, &detail)
	result.degrade("notification not delivered: " + detail)
	return false
}

func (s *VerificationService) audit(ctx context.Context, teamID, action, actor string, details *string) {
	if err := s.store.AppendAuditLog(ctx, teamID, action, actor, details); err != nil {
		logger.Error().Str("team_id", teamID).Str("action", action).Err(err).
			Msg("[Verification] failed to append audit entry")
	}
}

func (s *VerificationService) enqueueRedelivery(teamID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(&NotificationTask{TeamID: teamID, Delay: time.Minute}); err != nil {
		logger.Warnf("[Verification] could not queue redelivery for team %s: %v", teamID, err)
	}
}
