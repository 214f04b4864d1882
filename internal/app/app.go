// Package app builds the process-wide dependency graph once so every entry
// point (HTTP server, queue worker, CLI) shares the same wiring.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/dedup"
	"github.com/maheshrc27/clipcast/internal/idempotency"
	job "github.com/maheshrc27/clipcast/internal/jobs"
	"github.com/maheshrc27/clipcast/internal/lock"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/publisher"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/maheshrc27/clipcast/internal/ratelimit"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
	"github.com/maheshrc27/clipcast/internal/scheduler"
	"github.com/maheshrc27/clipcast/internal/selector"
	"github.com/maheshrc27/clipcast/internal/service"
)

type App struct {
	Config *config.Config
	Log    logging.Logger
	DB     *sql.DB
	Store  *repository.Store

	Settings    *service.SettingsService
	Jobs        service.JobService
	Diagnostics *service.DiagnosticsService
	Platforms   *service.PlatformService
	R2          *service.R2Service
	Youtube     *service.YoutubeService
	Tiktok      *service.TiktokService
	Instagram   *service.InstagramService

	Limiter   *ratelimit.Limiter
	Executor  *publisher.Executor
	Scheduler *scheduler.Scheduler
	Selector  *selector.Selector
	Refiller  scheduler.Refiller
	// Queue is nil when no Redis is configured; work then runs in process.
	Queue *asynq.Client

	localRefiller *selector.LocalRefiller
}

// New opens the configured store and builds the App on top of it.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; state is lost on restart")
		return Build(ctx, cfg, log, memory.New().Repositories(), nil)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return Build(ctx, cfg, log, repository.NewPostgresStore(db), db)
}

// Build wires every component over store. db may be nil.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger, store *repository.Store, db *sql.DB) (*App, error) {
	a := &App{Config: cfg, Log: log, DB: db, Store: store}
	loc := cfg.Location()

	a.Settings = service.NewSettingsService(store.Settings, store.Accounts, cfg)
	a.Jobs = service.NewJobService(store.Jobs)
	a.Limiter = ratelimit.New(store.Counters, loc)

	providers := map[string]publisher.Provider{}
	a.Instagram = service.NewInstagramService(log)
	providers[models.PlatformInstagram] = a.Instagram
	a.Tiktok = service.NewTiktokService(cfg, log)
	if cfg.TiktokClientKey != "" {
		providers[models.PlatformTiktok] = a.Tiktok
	}
	a.Youtube = service.NewYoutubeService(cfg, log)
	if cfg.GoogleClientID != "" {
		providers[models.PlatformYoutube] = a.Youtube
	}

	a.Platforms = service.NewPlatformService(cfg, a.Settings, a.Youtube, a.Tiktok, a.Instagram)

	var resolver publisher.Resolver = publisher.PassthroughResolver{}
	var mirror selector.Mirror
	if cfg.R2.Enabled() {
		r2, err := service.NewR2Service(ctx, cfg.R2)
		if err != nil {
			return nil, err
		}
		a.R2, resolver, mirror = r2, r2, r2
	}

	locks := lock.NewManager(store.Locks, cfg.LockTTL, log)
	a.Executor = publisher.NewExecutor(publisher.Config{
		Providers:       providers,
		Resolver:        resolver,
		Locks:           locks,
		Ledger:          idempotency.NewLedger(store.Ledger),
		Limiter:         a.Limiter,
		Location:        loc,
		ProviderTimeout: cfg.ProviderTimeout,
		Logger:          log,
	})
	a.Diagnostics = service.NewDiagnosticsService(a.Settings, store.Jobs, store.Ledger, a.Limiter, a.Executor.HasProvider)

	var source selector.Source = selector.StaticSource{}
	if cfg.SourceFeedURL != "" {
		source = selector.NewFeedSource(cfg.SourceFeedURL)
	}
	opts := dedup.DefaultOptions()
	opts.VisualThreshold = cfg.VisualThreshold
	a.Selector = selector.New(selector.Config{
		Source:     source,
		Thumbnails: selector.NewHTTPThumbnails(),
		Mirror:     mirror,
		Jobs:       store.Jobs,
		Signatures: store.Signatures,
		Settings:   a.Settings,
		Options:    opts,
		WindowSize: cfg.DedupWindow,
		Logger:     log,
	})

	if cfg.RedisURI != "" {
		a.Queue = asynq.NewClient(a.RedisOpt())
		a.Refiller = queue.NewAsynqRefiller(a.Queue, 10*time.Minute, log)
	} else {
		a.localRefiller = selector.NewLocalRefiller(a.Selector, log)
		a.Refiller = a.localRefiller
	}

	a.Scheduler = scheduler.New(scheduler.Config{
		LockTTL:          cfg.LockTTL,
		Slop:             cfg.TickSlop,
		Batch:            cfg.TickBatch,
		ExecutionGap:     cfg.ExecutionGap,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoffBase: cfg.RetryBackoffBase,
		RetryBackoffMax:  cfg.RetryBackoffMax,
		RefillLowWater:   cfg.RefillLowWater,
	}, store.Jobs, store.Signatures, a.Limiter, locks, a.Executor, a.Settings, a.Refiller, log)

	return a, nil
}

func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.Config.RedisURI}
}

// Tick hands a scheduler pass to the queue when one is configured, otherwise
// runs it here.
func (a *App) Tick(ctx context.Context) error {
	if a.Queue != nil {
		return queue.EnqueueTick(ctx, a.Queue, time.Minute)
	}
	_, err := a.Scheduler.Tick(ctx)
	return err
}

func (a *App) TokenRefreshers() map[string]job.TokenRefresher {
	return map[string]job.TokenRefresher{
		models.PlatformYoutube:   a.Youtube,
		models.PlatformTiktok:    a.Tiktok,
		models.PlatformInstagram: a.Instagram,
	}
}

// Close waits for in-process refills and releases connections.
func (a *App) Close() error {
	var errs []error
	if a.localRefiller != nil {
		a.localRefiller.Wait()
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
