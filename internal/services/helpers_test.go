package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// newTestDB opens a private in-memory database. A single connection keeps
// every goroutine on the same database and serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbNameSanitizer.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

// seedTeam inserts a PENDING team with the given member count.
func seedTeam(t *testing.T, db *gorm.DB, id, name string, members int) *models.Team {
	t.Helper()
	team := &models.Team{
		ID:              id,
		TeamName:        name,
		Category:        models.CategorySoftware,
		ProjectTitle:    name + " Project",
		ContactName:     "Contact " + name,
		ContactEmail:    fmt.Sprintf("contact-%s@example.com", id),
		MemberCount:     members,
		PaymentProofURL: "http://blob.test/payment-proofs/" + id + ".png",
		Status:          models.TeamStatusPending,
	}
	for i := 0; i < members; i++ {
		team.Members = append(team.Members, models.Member{
			Position: i,
			Name:     fmt.Sprintf("Member %d", i+1),
			Email:    fmt.Sprintf("m%d-%s@example.com", i+1, id),
		})
	}
	require.NoError(t, db.Create(team).Error)
	return team
}

func reloadTeam(t *testing.T, db *gorm.DB, id string) *models.Team {
	t.Helper()
	var team models.Team
	require.NoError(t, db.First(&team, "id = ?", id).Error)
	return &team
}

func auditActions(t *testing.T, db *gorm.DB, teamID string) []string {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, db.Where("team_id = ?", teamID).Order("id ASC").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

type fakeBlobStore struct {
	mu       sync.Mutex
	failures int // number of leading Put calls that fail
	calls    int
	objects  map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, data []byte, folder, filename, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("blob backend unavailable")
	}
	url := fmt.Sprintf("http://blob.test/%s/%d-%s", folder, f.calls, filename)
	f.objects[url] = append([]byte(nil), data...)
	return url, nil
}

func (f *fakeBlobStore) Close() error { return nil }

func (f *fakeBlobStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []*Message
}

func (f *fakeMailer) Send(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, f.err)
	}
	return nil
}

func (f *fakeMailer) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMailer) Sent() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Message(nil), f.sent...)
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*NotificationTask
}

func (q *recordingQueue) Enqueue(task *NotificationTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func (q *recordingQueue) Tasks() []*NotificationTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*NotificationTask(nil), q.tasks...)
}

func testWorkflowConfig() config.WorkflowConfig {
	return config.WorkflowConfig{
		StepTimeout:             2 * time.Second,
		BlobRetryAttempts:       3,
		BlobRetryInterval:       time.Millisecond,
		NotificationMaxAttempts: 3,
		StalePendingAfter:       15 * time.Minute,
	}
}

func testSettings() EventSettings {
	return EventSettings{
		Date:    "2026-03-14",
		Time:    "09:00 - 17:00",
		Venue:   "Main Hall",
		Address: "1 Campus Road",
		TZ:      time.UTC,
	}
}

type workflowFixture struct {
	db      *gorm.DB
	blobs   *fakeBlobStore
	mailer  *fakeMailer
	queue   *recordingQueue
	events  *EventHub
	service *VerificationService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	f := &workflowFixture{
		db:     newTestDB(t),
		blobs:  newFakeBlobStore(),
		mailer: &fakeMailer{},
		queue:  &recordingQueue{},
		events: NewEventHub(),
	}
	f.service = NewVerificationService(NewGormTeamStore(f.db), f.blobs, f.mailer, testWorkflowConfig(),
		WithTaskQueue(f.queue), WithEventHub(f.events))
	return f
}

func strPtr(s string) *string { return &s }
