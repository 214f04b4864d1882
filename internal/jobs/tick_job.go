package job

import (
	"context"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
)

// TickJob fires a scheduler tick from cron. tick either runs the pass in
// process or hands it to the queue.
type TickJob struct {
	tick    func(ctx context.Context) error
	timeout time.Duration
	log     logging.Logger
}

func NewTickJob(tick func(ctx context.Context) error, timeout time.Duration, log logging.Logger) *TickJob {
	return &TickJob{tick: tick, timeout: timeout, log: log}
}

func (j *TickJob) Run() {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	if err := j.tick(ctx); err != nil {
		j.log.Error().Err(err).Msg("scheduled tick failed")
	}
}
