package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

type JobHandler struct {
	s service.JobService
}

func NewJobHandler(service service.JobService) *JobHandler {
	return &JobHandler{s: service}
}

func (h *JobHandler) Enqueue(c *fiber.Ctx) error {
	var jc transfer.JobCreation
	if err := c.BodyParser(&jc); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	job, err := h.s.Enqueue(c.Context(), &jc)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.s.List(c.Context(), c.Query("platform"), c.Query("status"), c.QueryInt("limit", 50))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to list jobs")
	}
	return c.JSON(jobs)
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.s.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(job)
}
