package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/app"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/rs/zerolog"
)

type commandContext struct {
	envFlag *string

	configOnce sync.Once
	config     *config.Config

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(envFlag *string) *commandContext {
	return &commandContext{envFlag: envFlag}
}

func (c *commandContext) ensureConfig() *config.Config {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.envFlag)
		if path != "" {
			_ = godotenv.Load(path)
		} else {
			_ = godotenv.Load()
		}
		c.config = config.LoadConfig()
	})
	return c.config
}

// ensureApp builds the App against the configured store. The CLI logs only
// warnings so command output stays readable.
func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		cfg := c.ensureConfig()
		log := logging.New(cfg.AppEnv).Level(zerolog.WarnLevel)
		buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		c.app, c.appErr = app.New(buildCtx, cfg, log)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
}
