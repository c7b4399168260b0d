package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/regdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamService_ListFilters(t *testing.T) {
	db := newTestDB(t)
	seedTeam(t, db, "a", "Alpha", 2)
	seedTeam(t, db, "b", "Beta", 3)
	hw := seedTeam(t, db, "c", "Gamma", 2)
	require.NoError(t, db.Model(hw).Updates(map[string]interface{}{"category": models.CategoryHardware, "status": models.TeamStatusVerified}).Error)

	svc := NewTeamService(db, NewGormTeamStore(db))

	tests := []struct {
		name  string
		req   TeamListRequest
		total int64
	}{
		{"all", TeamListRequest{}, 3},
		{"by status", TeamListRequest{Status: "pending"}, 2},
		{"by category", TeamListRequest{Category: "HARDWARE"}, 1},
		{"search", TeamListRequest{Search: "bet"}, 1},
		{"paged", TeamListRequest{Page: 2, PageSize: 2}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.List(&tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.total, resp.Total)
		})
	}

	resp, err := svc.List(&TeamListRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 1)
}

func TestTeamService_GetByID(t *testing.T) {
	db := newTestDB(t)
	seedTeam(t, db, "a", "Alpha", 3)
	svc := NewTeamService(db, NewGormTeamStore(db))

	team, err := svc.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, team.Members, 3)
	assert.Equal(t, "Member 1", team.Members[0].Name)

	_, err = svc.GetByID(context.Background(), "zzz")
	assert.True(t, IsNotFound(err))
}

func TestTeamService_Gallery(t *testing.T) {
	db := newTestDB(t)
	seedTeam(t, db, "a", "Alpha", 2)
	v := seedTeam(t, db, "b", "Beta", 2)
	require.NoError(t, db.Model(v).Update("status", models.TeamStatusVerified).Error)
	svc := NewTeamService(db, NewGormTeamStore(db))

	_, err := svc.SetGalleryVisibility(context.Background(), "a", true, "admin")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	team, err := svc.SetGalleryVisibility(context.Background(), "b", true, "admin")
	require.NoError(t, err)
	assert.True(t, team.ShowInGallery)
	assert.Equal(t, []string{models.AuditGalleryToggled}, auditActions(t, db, "b"))

	items, err := svc.Gallery("")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Beta", items[0].TeamName)

	_, err = svc.SetGalleryVisibility(context.Background(), "b", false, "admin")
	require.NoError(t, err)
	items, err = svc.Gallery("")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTeamService_Stats(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "a", "Alpha", 2)
	seedTeam(t, f.db, "b", "Beta", 3)
	seedTeam(t, f.db, "c", "Gamma", 4)

	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "a", Decision: DecisionVerify, Actor: "admin"}, testSettings())
	require.NoError(t, err)
	f.mailer.SetErr(assert.AnError)
	_, err = f.service.Decide(context.Background(), DecisionRequest{TeamID: "b", Decision: DecisionReject, Actor: "admin"}, testSettings())
	require.NoError(t, err)

	stats, err := NewTeamService(f.db, NewGormTeamStore(f.db)).Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.ByStatus["PENDING"])
	assert.EqualValues(t, 1, stats.ByStatus["VERIFIED"])
	assert.EqualValues(t, 1, stats.ByStatus["REJECTED"])
	assert.EqualValues(t, 3, stats.ByCategory["SOFTWARE"])
	assert.EqualValues(t, 1, stats.NotificationFailed)
	assert.EqualValues(t, 9, stats.Participants)
}

func TestExportService_WriteCSV(t *testing.T) {
	db := newTestDB(t)
	seedTeam(t, db, "a", "=Alpha", 2)
	seedTeam(t, db, "b", "Beta", 3)
	now := time.Now()
	require.NoError(t, db.Model(&models.Team{}).Where("id = ?", "a").Updates(map[string]interface{}{
		"status": models.TeamStatusVerified, "verified_at": now, "verified_by": "admin",
	}).Error)

	var buf bytes.Buffer
	require.NoError(t, NewExportService(db).WriteCSV(&buf, &TeamListRequest{}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+5)
	assert.Equal(t, ExportColumns, rows[0])
	assert.Equal(t, "'=Alpha", rows[1][1])
	assert.Equal(t, "admin", rows[1][17])

	buf.Reset()
	require.NoError(t, NewExportService(db).WriteCSV(&buf, &TeamListRequest{Status: "VERIFIED"}))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1+2)
}

func TestActivityLogService(t *testing.T) {
	db := newTestDB(t)
	InitActivityLogger(db)
	t.Cleanup(func() { InitActivityLogger(nil) })

	LogActivity("team", "decide", "verified t1", "admin@example.com", "127.0.0.1", "test", map[string]string{"team_id": "t1"})
	LogActivityWarning("auth", "login", "failed login", "", "127.0.0.1", "test", nil)
	require.NoError(t, db.Create(&models.ActivityLog{Level: "info", Module: "team", Action: "old", CreatedAt: time.Now().AddDate(0, 0, -100)}).Error)

	svc := NewActivityLogService(db, 90)
	resp, err := svc.List(&ActivityLogListRequest{Module: "team"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)

	deleted, err := svc.CleanupOldLogs(90)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	resp, err = svc.List(&ActivityLogListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)
	assert.Contains(t, resp.Items[0].Extra+resp.Items[1].Extra, `"team_id":"t1"`)
}

func TestAuditLogService_List(t *testing.T) {
	f := newWorkflowFixture(t)
	seedTeam(t, f.db, "a", "Alpha", 2)
	seedTeam(t, f.db, "b", "Beta", 2)
	_, err := f.service.Decide(context.Background(), DecisionRequest{TeamID: "a", Decision: DecisionVerify, Actor: "ann"}, testSettings())
	require.NoError(t, err)
	_, err = f.service.Decide(context.Background(), DecisionRequest{TeamID: "b", Decision: DecisionReject, Actor: "bob"}, testSettings())
	require.NoError(t, err)

	svc := NewAuditLogService(f.db)
	resp, err := svc.List(&AuditLogListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)

	resp, err = svc.List(&AuditLogListRequest{Action: models.AuditTeamRejected})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "bob", resp.Items[0].PerformedBy)
}
