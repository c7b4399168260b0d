package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/pkg/logger"
)

const (
	TaskTypeNotification = "notification:deliver"
)

// NotificationTask asks for the decision notification of a team to be
// delivered again.
type NotificationTask struct {
	TeamID string        `json:"team_id"`
	Delay  time.Duration `json:"delay,omitempty"`
}

// TaskQueue defines the interface for notification redelivery
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *NotificationTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to in-process mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] In-process queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func newNotificationTask(task *NotificationTask) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		// One queued delivery per team at a time.
		asynq.TaskID(TaskTypeNotification + ":" + task.TeamID),
	}
	if task.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(task.Delay))
	}
	return asynq.NewTask(TaskTypeNotification, payload), opts, nil
}

// Enqueue adds a notification task to the async queue
func (q *AsyncQueue) Enqueue(task *NotificationTask) error {
	t, opts, err := newNotificationTask(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(t, opts...)
	if err == asynq.ErrTaskIDConflict {
		logger.Infof("[AsyncQueue] Delivery for team %s already queued", task.TeamID)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, queue=%s", info.ID, info.Queue)
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs tasks in a goroutine of this process (no Redis)
type SyncQueue struct {
	mu        sync.RWMutex
	processor func(context.Context, *NotificationTask) error
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process tasks
func (q *SyncQueue) SetProcessor(processor func(context.Context, *NotificationTask) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = processor
}

// Enqueue schedules the task after its delay without blocking the caller
func (q *SyncQueue) Enqueue(task *NotificationTask) error {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	if processor == nil {
		logger.Warnf("[SyncQueue] No processor set, task for team %s dropped", task.TeamID)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if task.Delay > 0 {
			time.Sleep(task.Delay)
		}
		if err := processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] Task for team %s failed: %v", task.TeamID, err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Wait blocks until every scheduled task has finished.
func (q *SyncQueue) Wait() {
	q.wg.Wait()
}

func (q *SyncQueue) Close() error {
	return nil
}
