package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/service"
)

type DiagnosticsHandler struct {
	s *service.DiagnosticsService
}

func NewDiagnosticsHandler(service *service.DiagnosticsService) *DiagnosticsHandler {
	return &DiagnosticsHandler{s: service}
}

func (h *DiagnosticsHandler) Diagnose(c *fiber.Ctx) error {
	report, err := h.s.Diagnose(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(report)
}
