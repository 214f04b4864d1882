package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/internal/transfer"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

const stateTTL = 10 * time.Minute

type PlatformHandler struct {
	cfg       *config.Config
	settings  *service.SettingsService
	platforms *service.PlatformService
	log       logging.Logger
}

func NewPlatformHandler(cfg *config.Config, settings *service.SettingsService, platforms *service.PlatformService, log logging.Logger) *PlatformHandler {
	return &PlatformHandler{cfg: cfg, settings: settings, platforms: platforms, log: log}
}

// LinkAccount stores the tokens for a platform account. Tokens are never
// echoed back.
func (h *PlatformHandler) LinkAccount(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	var link transfer.AccountLink
	if err := c.BodyParser(&link); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse json")
	}
	if link.AccessToken == "" && link.RefreshToken == "" {
		return errorJSON(c, fiber.StatusBadRequest, "access_token or refresh_token is required")
	}

	err = h.settings.LinkAccount(c.Context(), platform, link.AccountName, models.Credentials{
		AccountID:    link.AccountID,
		AccessToken:  link.AccessToken,
		RefreshToken: link.RefreshToken,
		ExpiresAt:    link.ExpiresAt,
	})
	if err != nil {
		return errorJSON(c, statusFor(err), "Unable to link account")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"platform":     platform,
		"account_id":   link.AccountID,
		"account_name": link.AccountName,
	})
}

// Connect starts the OAuth flow and returns the consent page URL.
func (h *PlatformHandler) Connect(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	if h.cfg.SecretKey == "" {
		return errorJSON(c, fiber.StatusServiceUnavailable, "SECRET_KEY is not configured")
	}
	state, err := utils.GenerateState(h.cfg.SecretKey, platform, stateTTL)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "something went wrong")
	}
	authURL, err := h.platforms.GetAuthURL(platform, state)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	return c.JSON(fiber.Map{
		"platform": platform,
		"auth_url": authURL,
	})
}

// Callback is the OAuth redirect target. It is reachable without operator
// credentials; the signed state stands in for them.
func (h *PlatformHandler) Callback(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if platform == "" {
		return err
	}
	if reason := c.Query("error"); reason != "" {
		return errorJSON(c, fiber.StatusBadRequest, "authorization denied: "+reason)
	}
	if h.cfg.SecretKey == "" {
		return errorJSON(c, fiber.StatusServiceUnavailable, "SECRET_KEY is not configured")
	}
	if err := utils.ValidateState(h.cfg.SecretKey, platform, c.Query("state")); err != nil {
		h.log.Debug().Err(err).Str("platform", platform).Msg("oauth state rejected")
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired state")
	}

	creds, err := h.platforms.Connect(c.Context(), platform, c.Query("code"))
	if err != nil {
		h.log.Error().Err(err).Str("platform", platform).Msg("oauth connect failed")
		return errorJSON(c, fiber.StatusBadGateway, "Unable to connect account")
	}
	h.log.Info().Str("platform", platform).Str("account_id", creds.AccountID).Msg("account connected")
	return c.JSON(fiber.Map{
		"platform":   platform,
		"account_id": creds.AccountID,
		"connected":  true,
	})
}
