package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/clipcast/internal/logging"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}

// EnqueueTick asks a worker to run one scheduler pass. Ticks are unique per
// window so a slow worker does not pile them up.
func EnqueueTick(ctx context.Context, client Enqueuer, window time.Duration) error {
	task := asynq.NewTask(TaskTypeTick, nil)
	_, err := client.EnqueueContext(ctx, task, asynq.Unique(window), asynq.MaxRetry(0))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func EnqueueForce(ctx context.Context, client Enqueuer, ids []string) (string, error) {
	task, err := newTask(TaskTypeForce, ForcePayload{JobIDs: ids})
	if err != nil {
		return "", err
	}
	info, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(0))
	if err != nil {
		return "", fmt.Errorf("enqueue force: %w", err)
	}
	return info.ID, nil
}

// AsynqRefiller hands refill requests to the queue; at most one refill per
// platform is queued at a time.
type AsynqRefiller struct {
	client Enqueuer
	ttl    time.Duration
	log    logging.Logger
}

func NewAsynqRefiller(client Enqueuer, ttl time.Duration, log logging.Logger) *AsynqRefiller {
	return &AsynqRefiller{client: client, ttl: ttl, log: log}
}

func (r *AsynqRefiller) TriggerRefill(ctx context.Context, platform string, want int) error {
	task, err := newTask(TaskTypeRefill, RefillPayload{Platform: platform, Want: want})
	if err != nil {
		return err
	}
	_, err = r.client.EnqueueContext(ctx, task, asynq.Unique(r.ttl), asynq.TaskID("refill:"+platform))
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		r.log.Debug().Str("platform", platform).Msg("refill already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue refill: %w", err)
	}
	r.log.Info().Str("platform", platform).Int("want", want).Msg("refill queued")
	return nil
}
