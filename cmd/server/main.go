package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/api"
	"github.com/maheshrc27/clipcast/internal/app"
	job "github.com/maheshrc27/clipcast/internal/jobs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/robfig/cron"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := logging.New(cfg.AppEnv)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app")
	}

	// cron jobs
	c := cron.New()
	tickJob := job.NewTickJob(a.Tick, cfg.LockTTL, log)
	if err := c.AddJob(cfg.TickSpec, tickJob); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.TickSpec).Msg("invalid TICK_SPEC")
	}
	refreshTokenJob := job.NewTokenRefreshJob(a.Store.Accounts, a.Settings, a.TokenRefreshers(), log)
	if err := c.AddJob("@every 00h10m00s", refreshTokenJob); err != nil {
		log.Fatal().Err(err).Msg("schedule token refresh")
	}
	c.Start()

	// queue
	var worker *asynq.Server
	if a.Queue != nil {
		worker = asynq.NewServer(a.RedisOpt(), asynq.Config{
			Concurrency: 10,
			Logger:      queue.NewAsynqLogger(log),
		})
		mux := asynq.NewServeMux()
		queue.NewQueue(a.Scheduler, a.Selector, log).Register(mux)
		if err := worker.Start(mux); err != nil {
			log.Fatal().Err(err).Msg("could not start asynq server")
		}
		log.Info().Str("redis", cfg.RedisURI).Msg("asynq worker started")
	}

	server := api.New(a, cfg.AppEnv == "development")
	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server is running")

	gracefulShutdown(server, c, worker, a)
}

func gracefulShutdown(server *fiber.App, c *cron.Cron, worker *asynq.Server, a *app.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	a.Log.Info().Msg("shutting down server")

	c.Stop()
	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		a.Log.Error().Err(err).Msg("failed to shut down http server")
	}
	if worker != nil {
		worker.Shutdown()
	}
	if err := a.Close(); err != nil {
		a.Log.Error().Err(err).Msg("failed to close resources")
	}
	a.Log.Info().Msg("server shutdown complete")
}
