// Package publisher runs a single publish intent at most once: it takes the
// fenced lock for the intent's key, records the attempt in the idempotency
// ledger, calls the platform provider and records the outcome.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/idempotency"
	"github.com/maheshrc27/clipcast/internal/lock"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/ratelimit"
)

// Payload is what a provider needs to publish one video.
type Payload struct {
	ContentID    string
	VideoRef     string
	VideoURL     string
	ThumbnailURL string
	Caption      string
	Title        string
	Description  string
}

type Provider interface {
	Publish(ctx context.Context, p Payload, creds models.Credentials) (string, error)
}

// Resolver turns a stored video reference into a URL a provider can fetch.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// PassthroughResolver returns references unchanged.
type PassthroughResolver struct{}

func (PassthroughResolver) Resolve(_ context.Context, ref string) (string, error) { return ref, nil }

type Kind string

const (
	KindNone              Kind = "none"
	KindDuplicate         Kind = "duplicate"
	KindLockContention    Kind = "lock_contention"
	KindProviderTransient Kind = "provider_transient"
	KindProviderPermanent Kind = "provider_permanent"
	KindRateLimited       Kind = "rate_limited"
	KindStorage           Kind = "storage"
)

const (
	ReasonLocked      = "locked"
	ReasonAlreadyDone = "already_posted"
	ReasonSuperseded  = "superseded"
	ReasonNoProvider  = "no_provider"
)

type Request struct {
	Platform    string
	ContentHash string
	ScheduledAt time.Time
	Payload     Payload
	Credentials models.Credentials
}

type Result struct {
	Success        bool   `json:"success"`
	Deduped        bool   `json:"deduped"`
	Reason         string `json:"reason,omitempty"`
	ExternalPostID string `json:"external_post_id,omitempty"`
	Note           string `json:"note,omitempty"`
	Kind           Kind   `json:"kind"`
	Retryable      bool   `json:"retryable"`
	Key            string `json:"key"`
}

type Executor struct {
	providers       map[string]Provider
	resolver        Resolver
	locks           *lock.Manager
	ledger          *idempotency.Ledger
	limiter         *ratelimit.Limiter
	loc             *time.Location
	providerTimeout time.Duration
	log             logging.Logger
}

type Config struct {
	Providers       map[string]Provider
	Resolver        Resolver
	Locks           *lock.Manager
	Ledger          *idempotency.Ledger
	Limiter         *ratelimit.Limiter
	Location        *time.Location
	ProviderTimeout time.Duration
	Logger          logging.Logger
}

func NewExecutor(cfg Config) *Executor {
	if cfg.Resolver == nil {
		cfg.Resolver = PassthroughResolver{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Executor{
		providers:       cfg.Providers,
		resolver:        cfg.Resolver,
		locks:           cfg.Locks,
		ledger:          cfg.Ledger,
		limiter:         cfg.Limiter,
		loc:             cfg.Location,
		providerTimeout: cfg.ProviderTimeout,
		log:             cfg.Logger,
	}
}

func (e *Executor) HasProvider(platform string) bool {
	_, ok := e.providers[platform]
	return ok
}

func (e *Executor) Location() *time.Location { return e.loc }

// Key returns the idempotency key the executor will use for req.
func (e *Executor) Key(req Request) string {
	return idempotency.BuildKey(req.Platform, req.ContentHash, req.ScheduledAt, e.loc)
}

// PostOnce never returns an error; every outcome is described by the Result.
func (e *Executor) PostOnce(ctx context.Context, req Request) Result {
	key := e.Key(req)
	log := e.log.With().Str("platform", req.Platform).Str("key", key).Logger()

	provider, ok := e.providers[req.Platform]
	if !ok {
		return Result{Kind: KindProviderPermanent, Reason: ReasonNoProvider, Note: "no provider for " + req.Platform, Key: key}
	}

	lease, ok, err := e.locks.Acquire(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("lock acquire failed")
		return storageResult(key, "acquire lock", err)
	}
	if !ok {
		log.Debug().Msg("lock held elsewhere")
		return Result{Deduped: true, Reason: ReasonLocked, Kind: KindLockContention, Retryable: true, Key: key}
	}
	defer e.locks.Release(ctx, lease)
	log = log.With().Int64("fence", lease.Token).Logger()

	rec, err := e.ledger.Get(ctx, key)
	if err != nil {
		return storageResult(key, "read ledger", err)
	}
	if rec != nil && rec.Status == models.LedgerStatusPosted {
		return alreadyPosted(key, rec.ExternalPostID)
	}

	rec, err = e.ledger.UpsertPosting(ctx, key, idempotency.Meta{
		Platform:    req.Platform,
		ContentHash: req.ContentHash,
		ScheduledAt: req.ScheduledAt,
	}, lease.Token)
	if err != nil {
		return storageResult(key, "claim ledger", err)
	}
	if rec.Status == models.LedgerStatusPosted {
		return alreadyPosted(key, rec.ExternalPostID)
	}
	if rec.FenceToken != lease.Token {
		log.Warn().Int64("stored_fence", rec.FenceToken).Msg("ledger claimed by newer holder")
		return Result{Deduped: true, Reason: ReasonSuperseded, Kind: KindLockContention, Retryable: true, Key: key}
	}

	externalID, pubErr := e.publish(ctx, provider, req)
	// Recording the outcome must survive cancellation of the caller.
	bg := context.WithoutCancel(ctx)
	if pubErr != nil {
		res := classify(pubErr)
		res.Key = key
		if err := e.ledger.MarkFailed(bg, key, lease.Token, pubErr.Error()); err != nil {
			log.Error().Err(err).Msg("ledger finalize failed")
		}
		log.Warn().Err(pubErr).Str("kind", string(res.Kind)).Bool("retryable", res.Retryable).Msg("publish failed")
		return res
	}

	res := Result{Success: true, ExternalPostID: externalID, Kind: KindNone, Key: key}
	if err := e.ledger.MarkPosted(bg, key, lease.Token, externalID); err != nil {
		log.Error().Err(err).Str("external_post_id", externalID).Msg("ledger finalize failed after publish")
		res.Note = "published; ledger finalize failed: " + err.Error()
	}
	if _, err := e.limiter.Increment(bg, req.Platform); err != nil {
		log.Error().Err(err).Msg("daily counter increment failed")
	}
	log.Info().Str("external_post_id", externalID).Msg("published")
	return res
}

// publish detaches from the caller: once a provider call starts only the
// provider timeout ends it.
func (e *Executor) publish(ctx context.Context, provider Provider, req Request) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if e.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.providerTimeout)
		defer cancel()
	}

	payload := req.Payload
	if payload.VideoURL == "" {
		url, err := e.resolver.Resolve(ctx, payload.VideoRef)
		if err != nil {
			return "", fmt.Errorf("resolve video %s: %w", payload.VideoRef, err)
		}
		payload.VideoURL = url
	}
	return provider.Publish(ctx, payload, req.Credentials)
}

func alreadyPosted(key, externalID string) Result {
	return Result{
		Deduped:        true,
		Reason:         ReasonAlreadyDone,
		ExternalPostID: externalID,
		Kind:           KindDuplicate,
		Key:            key,
	}
}

func storageResult(key, op string, err error) Result {
	return Result{Kind: KindStorage, Retryable: true, Note: op + ": " + err.Error(), Key: key}
}

// retryClassifier is implemented by provider errors that know their own retriability.
type retryClassifier interface {
	IsRetryable() bool
	IsRateLimited() bool
}

func classify(err error) Result {
	res := Result{Note: err.Error()}
	var rc retryClassifier
	switch {
	case errors.As(err, &rc) && rc.IsRateLimited():
		res.Kind, res.Retryable = KindRateLimited, true
	case errors.As(err, &rc):
		res.Retryable = rc.IsRetryable()
		res.Kind = KindProviderPermanent
		if res.Retryable {
			res.Kind = KindProviderTransient
		}
	default:
		// Timeouts and transport failures carry no status and are retried.
		res.Kind, res.Retryable = KindProviderTransient, true
	}
	return res
}
