package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/maheshrc27/clipcast/internal/scheduler"
	"github.com/maheshrc27/clipcast/internal/selector"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

type Scheduler interface {
	RunTick(ctx context.Context) (*scheduler.TickReport, error)
	ForcePost(ctx context.Context, ids []string) ([]scheduler.ForceResult, error)
}

type Selector interface {
	Select(ctx context.Context, platform string, want int) (*selector.Report, error)
}

// ControlHandler drives the pipeline by hand: ticks, forced posts and refills.
type ControlHandler struct {
	sched Scheduler
	sel   Selector
	queue queue.Enqueuer
	log   logging.Logger
}

// NewControlHandler accepts a nil enqueuer; async requests then run inline.
func NewControlHandler(sched Scheduler, sel Selector, q queue.Enqueuer, log logging.Logger) *ControlHandler {
	return &ControlHandler{sched: sched, sel: sel, queue: q, log: log}
}

func (h *ControlHandler) Tick(c *fiber.Ctx) error {
	if c.QueryBool("async") && h.queue != nil {
		if err := queue.EnqueueTick(c.Context(), h.queue, time.Minute); err != nil {
			h.log.Error().Err(err).Msg("enqueue tick")
			return errorJSON(c, fiber.StatusInternalServerError, "unable to queue tick")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
	}

	report, err := h.sched.RunTick(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("manual tick")
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(report)
}

func (h *ControlHandler) PostNow(c *fiber.Ctx) error {
	var req transfer.PostNowRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	if len(req.IDs) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "ids must not be empty")
	}

	if req.Async && h.queue != nil {
		taskID, err := queue.EnqueueForce(c.Context(), h.queue, req.IDs)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, "unable to queue forced post")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": taskID})
	}

	h.log.Info().Str("operator", GetOperator(c)).Strs("ids", req.IDs).Msg("forced post requested")
	results, err := h.sched.ForcePost(c.Context(), req.IDs)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"results": results})
}

func (h *ControlHandler) Refill(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	var req transfer.RefillRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	if req.Want <= 0 {
		return errorJSON(c, fiber.StatusBadRequest, "want must be positive")
	}
	report, err := h.sel.Select(c.Context(), platform, req.Want)
	if err != nil {
		h.log.Error().Err(err).Str("platform", platform).Msg("manual refill")
		return errorJSON(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(report)
}
