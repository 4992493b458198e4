package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskRefresh is the asynq task type that refetches a user's balance.
const TaskRefresh = "balance:refresh"

type refreshPayload struct {
	UserID string `json:"user_id"`
}

// NewRefreshTask builds the task for userID.
func NewRefreshTask(userID string) (*asynq.Task, error) {
	payload, err := json.Marshal(refreshPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefresh, payload), nil
}

// TaskClient is the subset of *asynq.Client used to enqueue work.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DefaultUniqueFor is how long a queued refresh blocks further refreshes for
// the same user when Enqueuer.Unique is unset.
const DefaultUniqueFor = time.Minute

// Enqueuer schedules balance refreshes. Refreshes for the same user collapse
// for the Unique window; the lock expires on its own, so a task archived after
// exhausting its retries does not block later ones.
type Enqueuer struct {
	Client   TaskClient
	MaxRetry int
	Delay    time.Duration
	Unique   time.Duration
}

func (e *Enqueuer) uniqueFor() time.Duration {
	if e.Unique <= 0 {
		return DefaultUniqueFor
	}
	return e.Unique
}

// EnqueueRefresh schedules a refresh for userID.
func (e *Enqueuer) EnqueueRefresh(ctx context.Context, userID string) error {
	if e == nil || e.Client == nil {
		return nil
	}
	task, err := NewRefreshTask(userID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Unique(e.uniqueFor())}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(e.Delay))
	}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// HandleRefreshTask is the asynq handler for TaskRefresh.
func (s *Service) HandleRefreshTask(ctx context.Context, t *asynq.Task) error {
	var p refreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", TaskRefresh, err, asynq.SkipRetry)
	}
	if p.UserID == "" {
		return fmt.Errorf("%s: empty user id: %w", TaskRefresh, asynq.SkipRetry)
	}
	_, err := s.Refresh(ctx, p.UserID, SourceWorker)
	return err
}
