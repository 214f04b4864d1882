package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/transfer"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

const maxTokenTTL = 30 * 24 * time.Hour

type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// IssueToken mints an operator bearer token. Callers must already be
// authenticated, normally with the operator API key.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	if h.cfg.SecretKey == "" {
		return errorJSON(c, fiber.StatusServiceUnavailable, "SECRET_KEY is not configured")
	}
	var req transfer.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	if req.Operator == "" {
		req.Operator = GetOperator(c)
	}
	ttl := 24 * time.Hour
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 || d > maxTokenTTL {
			return errorJSON(c, fiber.StatusBadRequest, "ttl must be a positive duration up to 720h")
		}
		ttl = d
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, req.Operator, ttl)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "something went wrong")
	}
	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": time.Now().Add(ttl),
	})
}
