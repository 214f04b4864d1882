package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Register binds every task handler to mux.
func (q *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeTick, q.HandleTickTask)
	mux.HandleFunc(TaskTypeForce, q.HandleForceTask)
	mux.HandleFunc(TaskTypeRefill, q.HandleRefillTask)
}

func (q *Queue) HandleTickTask(ctx context.Context, _ *asynq.Task) error {
	report, err := q.sched.RunTick(ctx)
	if err != nil {
		return err
	}
	q.log.Debug().Int("items", len(report.Items)).Msg("tick task done")
	return nil
}

func (q *Queue) HandleForceTask(ctx context.Context, task *asynq.Task) error {
	var payload ForcePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode force payload: %v: %w", err, asynq.SkipRetry)
	}
	results, err := q.sched.ForcePost(ctx, payload.JobIDs)
	if err != nil {
		return err
	}
	for _, r := range results {
		q.log.Info().
			Str("job_id", r.ID).
			Bool("success", r.Success).
			Bool("deduped", r.Deduped).
			Str("note", r.Note).
			Msg("forced publish")
	}
	return nil
}

func (q *Queue) HandleRefillTask(ctx context.Context, task *asynq.Task) error {
	var payload RefillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode refill payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Want <= 0 {
		return nil
	}
	report, err := q.sel.Select(ctx, payload.Platform, payload.Want)
	if err != nil {
		return err
	}
	q.log.Info().
		Str("platform", payload.Platform).
		Int("fetched", report.Fetched).
		Int("enqueued", len(report.Enqueued)).
		Int("skipped", len(report.Skipped)).
		Msg("refill done")
	return nil
}
