// Package queue carries scheduler ticks, forced publishes and refill requests
// over asynq so they run on whichever worker picks them up.
package queue

import (
	"context"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/scheduler"
	"github.com/maheshrc27/clipcast/internal/selector"
)

const (
	TaskTypeTick   = "scheduler:tick"
	TaskTypeForce  = "publish:force"
	TaskTypeRefill = "selector:refill"
)

type ForcePayload struct {
	JobIDs []string `json:"job_ids"`
}

type RefillPayload struct {
	Platform string `json:"platform"`
	Want     int    `json:"want"`
}

type Scheduler interface {
	RunTick(ctx context.Context) (*scheduler.TickReport, error)
	ForcePost(ctx context.Context, ids []string) ([]scheduler.ForceResult, error)
}

type Selector interface {
	Select(ctx context.Context, platform string, want int) (*selector.Report, error)
}

// Queue handles the tasks this package defines.
type Queue struct {
	sched Scheduler
	sel   Selector
	log   logging.Logger
}

func NewQueue(sched Scheduler, sel Selector, log logging.Logger) *Queue {
	return &Queue{
		sched: sched,
		sel:   sel,
		log:   log,
	}
}
