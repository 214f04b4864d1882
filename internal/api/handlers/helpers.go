package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/service"
)

// GetOperator returns the identity the auth middleware stored for this request.
func GetOperator(c *fiber.Ctx) string {
	op, _ := c.Locals("operator").(string)
	return op
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// statusFor maps service and repository errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrUnknownPlatform), errors.Is(err, service.ErrInvalidJob):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotConfigured):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

func platformParam(c *fiber.Ctx) (string, error) {
	p := c.Params("platform")
	if !models.IsKnownPlatform(p) {
		return "", errorJSON(c, fiber.StatusBadRequest, "unknown platform "+p)
	}
	return p, nil
}
