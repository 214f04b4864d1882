package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

type AuthMiddleware struct {
	cfg *config.Config
	log logging.Logger
}

func NewAuthMiddleware(cfg *config.Config, log logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, log: log}
}

// AuthMiddleware accepts the operator API key (X-API-Key header or api_key
// query) or a bearer token signed with SECRET_KEY.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))

		if apiKey == "" && tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key or bearer token",
			})
		}

		if apiKey != "" {
			if m.cfg.OperatorAPIKey == "" || !utils.KeysEqual(apiKey, m.cfg.OperatorAPIKey) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid API key",
				})
			}
			c.Locals("operator", "api-key")
			return c.Next()
		}

		if m.cfg.SecretKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Bearer tokens are not enabled",
			})
		}
		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			m.log.Debug().Err(err).Msg("token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		c.Locals("operator", claims.Operator)
		return c.Next()
	}
}
