package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// TimerTaskQueue is the asynq queue name all timer jobs run in.
const TimerTaskQueue = "timers"

// AsynqQueue is the production delayed task queue, backed by asynq.
// Scheduled jobs live in Redis and survive a process restart.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewAsynqQueue creates an asynq-backed task queue.
func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector) *AsynqQueue {
	return &AsynqQueue{client: client, inspector: inspector}
}

// Schedule enqueues a delayed job under a caller-chosen id. An id
// collision means an identical job is already pending, which the
// timer service treats as already scheduled.
func (q *AsynqQueue) Schedule(ctx context.Context, id, typename string, payload []byte, delay time.Duration) error {
	task := asynq.NewTask(typename, payload)
	_, err := q.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.ProcessIn(delay),
		asynq.Queue(TimerTaskQueue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Cancel removes a pending job. Jobs that already fired or never
// existed are not an error.
func (q *AsynqQueue) Cancel(ctx context.Context, id string) error {
	err := q.inspector.DeleteTask(TimerTaskQueue, id)
	if err == nil ||
		errors.Is(err, asynq.ErrTaskNotFound) ||
		errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

// NewMux builds the asynq handler mux that routes timer jobs into the
// service.
func NewMux(s *Service) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExpire, func(ctx context.Context, t *asynq.Task) error {
		userID, kind, err := decodeTask(t)
		if err != nil {
			return err
		}
		return s.HandleExpire(ctx, userID, kind)
	})
	mux.HandleFunc(TypeWarn, func(ctx context.Context, t *asynq.Task) error {
		userID, kind, err := decodeTask(t)
		if err != nil {
			return err
		}
		return s.HandleWarn(ctx, userID, kind)
	})
	mux.HandleFunc(TypeTick, func(ctx context.Context, t *asynq.Task) error {
		userID, kind, err := decodeTask(t)
		if err != nil {
			return err
		}
		return s.HandleTick(ctx, userID, kind)
	})
	return mux
}

// NewServer builds the asynq worker server processing timer jobs.
// Job failures are logged through the error handler and never crash
// the process.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{TimerTaskQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("timer job %s failed: %v", task.Type(), err)
		}),
	})
}

func decodeTask(t *asynq.Task) (string, Kind, error) {
	var p taskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return "", "", fmt.Errorf("failed to decode task payload: %w", err)
	}
	return p.UserID, p.Kind, nil
}
