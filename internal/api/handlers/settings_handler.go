package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

type SettingsHandler struct {
	s *service.SettingsService
}

func NewSettingsHandler(service *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{s: service}
}

func (h *SettingsHandler) List(c *fiber.Ctx) error {
	out := make([]models.PlatformSettings, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		ps, err := h.s.Get(c.Context(), p)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, "Unable to load settings")
		}
		out = append(out, ps)
	}
	return c.JSON(out)
}

func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	ps, err := h.s.Get(c.Context(), platform)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(ps)
}

// Update applies a partial update; omitted fields keep their current value.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	var upd transfer.SettingsUpdate
	if err := c.BodyParser(&upd); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}

	ps, err := h.s.Get(c.Context(), platform)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	if upd.Enabled != nil {
		ps.Enabled = *upd.Enabled
	}
	if upd.DailyLimit != nil {
		ps.DailyLimit = *upd.DailyLimit
	}
	if upd.TargetQueueSize != nil {
		ps.TargetQueueSize = *upd.TargetQueueSize
	}
	if upd.PostInterval != "" {
		d, err := time.ParseDuration(upd.PostInterval)
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "post_interval: "+err.Error())
		}
		ps.PostInterval = d
	}

	if err := h.s.Update(c.Context(), ps); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(ps)
}
