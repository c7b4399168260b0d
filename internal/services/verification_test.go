package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/regdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_VerifyAlpha(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)

	result, err := f.service.Decide(context.Background(), DecisionRequest{
		TeamID:   "t1",
		Decision: DecisionVerify,
		Note:     strPtr("Welcome"),
		Actor:    "admin@example.com",
	}, testSettings())
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.True(t, result.Notified)

	team := reloadTeam(t, f.db, "t1")
	assert.Equal(t, models.TeamStatusVerified, team.Status)
	require.NotNil(t, team.VerifiedAt)
	require.NotNil(t, team.VerifiedBy)
	assert.Equal(t, "admin@example.com", *team.VerifiedBy)
	require.NotNil(t, team.VerificationNote)
	assert.Equal(t, "Welcome", *team.VerificationNote)
	require.NotNil(t, team.QRCodeURL)
	assert.Contains(t, *team.QRCodeURL, "qr-codes/")
	assert.Equal(t, models.ArtifactStored, team.ArtifactStatus)
	assert.Equal(t, models.NotificationSent, team.NotificationStatus)
	assert.NotNil(t, team.NotifiedAt)

	assert.Equal(t, []string{models.AuditTeamVerified}, auditActions(t, f.db, "t1"))

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.ElementsMatch(t, []string{"m1-t1@example.com", "m2-t1@example.com"}, sent[0].To)
	require.Len(t, sent[0].Attachments, 1)
	assert.True(t, strings.HasSuffix(sent[0].Attachments[0].Filename, ".ics"))
	assert.Contains(t, string(sent[0].Attachments[0].Data), "STATUS:CONFIRMED")
	require.Len(t, sent[0].Inline, 1)
	assert.Equal(t, QRInlineName, sent[0].Inline[0].Filename)
	assert.Contains(t, sent[0].HTMLBody, "cid:"+QRInlineName)
	assert.Contains(t, sent[0].HTMLBody, "Welcome")

	assert.Empty(t, f.queue.Tasks())
}

func TestDecide_VerifyThreeMembersOneCall(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t3", "Gamma", 3)

	_, err := f.service.Decide(context.Background(), DecisionRequest{
		TeamID: "t3", Decision: DecisionVerify, Actor: "admin",
	}, testSettings())
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].To, 3)
}

func TestDecide_RejectNotifiesContactOnly(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t2", "Beta", 4)

	result, err := f.service.Decide(context.Background(), DecisionRequest{
		TeamID: "t2", Decision: DecisionReject, Note: strPtr("Payment proof unreadable"), Actor: "admin",
	}, testSettings())
	require.NoError(t, err)
	assert.False(t, result.Degraded)

	team := reloadTeam(t, f.db, "t2")
	assert.Equal(t, models.TeamStatusRejected, team.Status)
	assert.Nil(t, team.VerifiedAt)
	assert.Nil(t, team.QRCodeURL)
	require.NotNil(t, team.VerificationNote)
	assert.Equal(t, "Payment proof unreadable", *team.VerificationNote)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"contact-t2@example.com"}, sent[0].To)
	assert.Empty(t, sent[0].Attachments)
	assert.Contains(t, sent[0].HTMLBody, "Payment proof unreadable")

	assert.Zero(t, f.blobs.Calls())
	assert.Equal(t, []string{models.AuditTeamRejected}, auditActions(t, f.db, "t2"))
}

func TestDecide_MissingTeam(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.service.Decide(context.Background(), DecisionRequest{
		TeamID: "missing-id", Decision: DecisionVerify, Actor: "admin",
	}, testSettings())
	assert.ErrorIs(t, err, ErrTeamNotFound)

	assert.Empty(t, f.mailer.Sent())
	assert.Zero(t, f.blobs.Calls())
	var count int64
	f.db.Model(&models.AuditLog{}).Count(&count)
	assert.Zero(t, count)
}

// membersFailingStore fails member lookups and delegates everything else.
type membersFailingStore struct {
	*GormTeamStore
}

func (membersFailingStore) ListMembers(context.Context, string) ([]models.Member, error) {
	return nil, errors.New("members table unavailable")
}

func TestDecide_MemberLookupFailureCountsError(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)
	svc := NewVerificationService(membersFailingStore{NewGormTeamStore(f.db)}, f.blobs, f.mailer, testWorkflowConfig())

	errCounter := decisionsTotal.WithLabelValues("verify", outcomeError)
	before := testutil.ToFloat64(errCounter)

	_, err := svc.Decide(context.Background(), DecisionRequest{
		TeamID: "t1", Decision: DecisionVerify, Actor: "admin",
	}, testSettings())
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(errCounter))
	assert.Equal(t, models.TeamStatusPending, reloadTeam(t, f.db, "t1").Status)
	assert.Empty(t, f.mailer.Sent())
}

func TestDecide_SecondCallIsNoop(t *testing.T) {
	tests := []struct {
		name   string
		first  Decision
		second Decision
		status models.TeamStatus
	}{
		{"verify then verify", DecisionVerify, DecisionVerify, models.TeamStatusVerified},
		{"verify then reject", DecisionVerify, DecisionReject, models.TeamStatusVerified},
		{"reject then verify", DecisionReject, DecisionVerify, models.TeamStatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkflowFixture(t)
			seedTeam(t, f.db, "t1", "Alpha", 2)

			_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: tt.first, Actor: "a1"}, testSettings())
			require.NoError(t, err)
			firstQR := reloadTeam(t, f.db, "t1").QRCodeURL
			blobCalls := f.blobs.Calls()

			_, err = f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: tt.second, Actor: "a2"}, testSettings())
			assert.ErrorIs(t, err, ErrInvalidStateTransition)

			team := reloadTeam(t, f.db, "t1")
			assert.Equal(t, tt.status, team.Status)
			assert.Equal(t, firstQR, team.QRCodeURL)
			assert.Len(t, f.mailer.Sent(), 1)
			assert.Equal(t, blobCalls, f.blobs.Calls())
			assert.Len(t, auditActions(t, f.db, "t1"), 1)
		})
	}
}

func TestDecide_ConcurrentCallsOneWinner(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := DecisionVerify
			if i%2 == 1 {
				decision = DecisionReject
			}
			_, errs[i] = f.service.Decide(context.Background(), DecisionRequest{
				TeamID: "t1", Decision: decision, Actor: "admin",
			}, testSettings())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.mailer.Sent(), 1)
	assert.Len(t, auditActions(t, f.db, "t1"), 1)
}

func TestDecide_InvalidRequest(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: "APPROVE", Actor: "admin"}, testSettings())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify}, testSettings())
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, models.TeamStatusPending, reloadTeam(t, f.db, "t1").Status)
}

func TestDecide_BlobRetrySucceeds(t *testing.T) {
	f := newWorkflowFixture(t)
	f.blobs.failures = 2
	seedTeam(t, f.db, "t1", "Alpha", 2)

	result, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, 3, f.blobs.Calls())
	assert.NotNil(t, reloadTeam(t, f.db, "t1").QRCodeURL)
}

func TestDecide_BlobFailureIsDegraded(t *testing.T) {
	f := newWorkflowFixture(t)
	f.blobs.failures = 100
	seedTeam(t, f.db, "t1", "Alpha", 2)

	result, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.NotEmpty(t, result.Issues)
	assert.Contains(t, result.Issues[0], "QR code missing")
	assert.Equal(t, testWorkflowConfig().BlobRetryAttempts, f.blobs.Calls())

	team := reloadTeam(t, f.db, "t1")
	assert.Equal(t, models.TeamStatusVerified, team.Status)
	assert.Nil(t, team.QRCodeURL)
	assert.Equal(t, models.ArtifactMissing, team.ArtifactStatus)

	// The email still carries the QR code inline.
	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Inline, 1)

	assert.Equal(t, []string{models.AuditTeamVerified, models.AuditArtifactUploadFailed}, auditActions(t, f.db, "t1"))
}

func TestDecide_NotificationFailureKeepsStatus(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mailer.SetErr(errors.New("smtp down"))
	seedTeam(t, f.db, "t1", "Alpha", 2)

	result, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.False(t, result.Notified)

	team := reloadTeam(t, f.db, "t1")
	assert.Equal(t, models.TeamStatusVerified, team.Status)
	assert.Equal(t, models.NotificationFailed, team.NotificationStatus)
	assert.Equal(t, 1, team.NotificationAttempts)
	assert.Contains(t, team.NotificationError, "smtp down")

	assert.Equal(t, []string{models.AuditTeamVerified, models.AuditNotificationFailed}, auditActions(t, f.db, "t1"))

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].TeamID)
}

func TestResendNotification_AfterFailure(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mailer.SetErr(errors.New("smtp down"))
	f.blobs.failures = 3
	seedTeam(t, f.db, "t1", "Alpha", 2)

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)
	blobCallsAfterDecide := f.blobs.Calls()

	f.mailer.SetErr(nil)
	result, err := f.service.ResendNotification(context.Background(), "t1", "operator", false, testSettings())
	require.NoError(t, err)
	assert.True(t, result.Notified)
	assert.False(t, result.Degraded)
	assert.Equal(t, blobCallsAfterDecide+1, f.blobs.Calls())

	team := reloadTeam(t, f.db, "t1")
	assert.Equal(t, models.NotificationSent, team.NotificationStatus)
	assert.Equal(t, models.ArtifactStored, team.ArtifactStatus)
	assert.NotNil(t, team.QRCodeURL)
	assert.Equal(t, 2, team.NotificationAttempts)

	assert.Equal(t, []string{
		models.AuditTeamVerified,
		models.AuditArtifactUploadFailed,
		models.AuditNotificationFailed,
		models.AuditArtifactRegenerated,
		models.AuditNotificationResent,
	}, auditActions(t, f.db, "t1"))

	// The regenerated QR code encodes the same token.
	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].Inline[0].Data, sent[1].Inline[0].Data)
}

func TestResendNotification_NothingToResend(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)

	_, err = f.service.ResendNotification(context.Background(), "t1", "operator", false, testSettings())
	assert.ErrorIs(t, err, ErrNothingToResend)
	assert.Len(t, f.mailer.Sent(), 1)

	result, err := f.service.ResendNotification(context.Background(), "t1", "operator", true, testSettings())
	require.NoError(t, err)
	assert.True(t, result.Notified)
	assert.Len(t, f.mailer.Sent(), 2)
}

func TestResendNotification_PendingTeam(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "t1", "Alpha", 2)

	_, err := f.service.ResendNotification(context.Background(), "t1", "operator", true, testSettings())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Empty(t, f.mailer.Sent())

	_, err = f.service.ResendNotification(context.Background(), "nope", "operator", true, testSettings())
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestResendNotification_RejectedTeam(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mailer.SetErr(errors.New("timeout"))
	seedTeam(t, f.db, "t1", "Alpha", 3)

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionReject, Note: strPtr("Late"), Actor: "admin"}, testSettings())
	require.NoError(t, err)

	f.mailer.SetErr(nil)
	_, err = f.service.ResendNotification(context.Background(), "t1", ActorSystem, false, testSettings())
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{"contact-t1@example.com"}, sent[1].To)
	assert.Zero(t, f.blobs.Calls())
}
