package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/regdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryService_FindUndelivered(t *testing.T) {
	db := newTestDB(t)
	cfg := testWorkflowConfig()

	seedTeam(t, db, "pending", "Pending", 2)
	seedTeam(t, db, "sent", "Sent", 2)
	seedTeam(t, db, "failed", "Failed", 2)
	seedTeam(t, db, "exhausted", "Exhausted", 2)
	seedTeam(t, db, "inflight", "Inflight", 2)
	seedTeam(t, db, "stale", "Stale", 2)

	old := time.Now().Add(-time.Hour)
	set := func(id string, cols map[string]interface{}) {
		cols["status"] = models.TeamStatusVerified
		require.NoError(t, db.Model(&models.Team{}).Where("id = ?", id).UpdateColumns(cols).Error)
	}
	set("sent", map[string]interface{}{"notification_status": models.NotificationSent})
	set("failed", map[string]interface{}{"notification_status": models.NotificationFailed, "notification_attempts": 1})
	set("exhausted", map[string]interface{}{"notification_status": models.NotificationFailed, "notification_attempts": cfg.NotificationMaxAttempts})
	set("inflight", map[string]interface{}{"notification_status": models.NotificationPending, "updated_at": time.Now()})
	set("stale", map[string]interface{}{"notification_status": models.NotificationPending, "updated_at": old})

	queue := &recordingQueue{}
	svc := NewRetryService(db, queue, cfg)

	teams, err := svc.FindUndelivered()
	require.NoError(t, err)
	ids := make([]string, 0, len(teams))
	for _, team := range teams {
		ids = append(ids, team.ID)
	}
	assert.ElementsMatch(t, []string{"failed", "stale"}, ids)

	assert.Equal(t, 2, svc.ProcessUndelivered())
	assert.Len(t, queue.Tasks(), 2)
}

func TestRetryService_StartSchedulerRejectsBadSpec(t *testing.T) {
	cfg := testWorkflowConfig()
	cfg.RetrySchedule = "not a cron spec"
	svc := NewRetryService(newTestDB(t), &recordingQueue{}, cfg)
	assert.Error(t, svc.StartScheduler())
}

func TestNotificationProcessor_RedeliversFailed(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mailer.SetErr(errors.New("smtp down"))
	seedTeam(t, f.db, "t1", "Alpha", 2)
	require.NoError(t, models.SeedEventSettings(f.db))

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "t1", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)

	f.mailer.SetErr(nil)
	process := NotificationProcessor(f.service, NewEventSettingService(f.db, "UTC"))
	require.NoError(t, process(context.Background(), &NotificationTask{TeamID: "t1"}))
	assert.Equal(t, models.NotificationSent, reloadTeam(t, f.db, "t1").NotificationStatus)

	// A second task finds nothing to claim and is not an error.
	require.NoError(t, process(context.Background(), &NotificationTask{TeamID: "t1"}))
	assert.Len(t, f.mailer.Sent(), 2)

	require.NoError(t, process(context.Background(), &NotificationTask{TeamID: "gone"}))
}
