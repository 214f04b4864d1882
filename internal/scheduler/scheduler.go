// Package scheduler moves due publish jobs through
// pending -> processing -> {posted | pending (retry) | failed}.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/maheshrc27/clipcast/internal/dedup"
	"github.com/maheshrc27/clipcast/internal/lock"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/publisher"
	"github.com/maheshrc27/clipcast/internal/ratelimit"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/service"
	"golang.org/x/time/rate"
)

type Executor interface {
	PostOnce(ctx context.Context, req publisher.Request) publisher.Result
	HasProvider(platform string) bool
}

type SettingsLoader interface {
	Load(ctx context.Context) (*service.Snapshot, error)
}

// Refiller asks the selector for more content without blocking the caller.
type Refiller interface {
	TriggerRefill(ctx context.Context, platform string, want int) error
}

type Outcome string

const (
	OutcomePosted        Outcome = "posted"
	OutcomeAlreadyPosted Outcome = "already_posted"
	OutcomeRequeued      Outcome = "requeued"
	OutcomeRetry         Outcome = "retry_scheduled"
	OutcomeFailed        Outcome = "failed"
	OutcomeDeferred      Outcome = "deferred"
	OutcomeSkipped       Outcome = "skipped"
)

type ItemResult struct {
	JobID    string           `json:"job_id"`
	Platform string           `json:"platform"`
	Outcome  Outcome          `json:"outcome"`
	Note     string           `json:"note,omitempty"`
	Publish  publisher.Result `json:"publish"`
}

type TickReport struct {
	At    time.Time    `json:"at"`
	Reset int64        `json:"reset"`
	Items []ItemResult `json:"items"`
	// Held lists platforms whose due jobs were left alone this tick, with the reason.
	Held map[string]string `json:"held,omitempty"`
}

type ForceResult struct {
	ID             string `json:"id"`
	Success        bool   `json:"success"`
	Deduped        bool   `json:"deduped"`
	Note           string `json:"note,omitempty"`
	ExternalPostID string `json:"external_post_id,omitempty"`
}

type Config struct {
	LockTTL          time.Duration
	Slop             time.Duration
	Batch            int
	ExecutionGap     time.Duration
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	RefillLowWater   float64
}

type Scheduler struct {
	jobs       repository.JobRepository
	signatures repository.SignatureRepository
	limiter    *ratelimit.Limiter
	quota      *lock.Manager
	executor   Executor
	settings   SettingsLoader
	refiller   Refiller
	cfg        Config
	pacer      *rate.Limiter
	log        logging.Logger
	now        func() time.Time
}

func New(
	cfg Config,
	jobs repository.JobRepository,
	signatures repository.SignatureRepository,
	limiter *ratelimit.Limiter,
	quota *lock.Manager,
	executor Executor,
	settings SettingsLoader,
	refiller Refiller,
	log logging.Logger) *Scheduler {
	limit := rate.Inf
	if cfg.ExecutionGap > 0 {
		limit = rate.Every(cfg.ExecutionGap)
	}
	return &Scheduler{
		jobs:       jobs,
		signatures: signatures,
		limiter:    limiter,
		quota:      quota,
		executor:   executor,
		settings:   settings,
		refiller:   refiller,
		cfg:        cfg,
		pacer:      rate.NewLimiter(limit, 1),
		log:        log,
		now:        time.Now,
	}
}

// WithClock replaces time.Now.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Tick runs one scheduling pass and returns the time it started.
func (s *Scheduler) Tick(ctx context.Context) (time.Time, error) {
	report, err := s.RunTick(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return report.At, nil
}

func (s *Scheduler) RunTick(ctx context.Context) (*TickReport, error) {
	now := s.now()
	report := &TickReport{At: now, Items: []ItemResult{}}

	reset, err := s.jobs.ResetStuck(ctx, now.Add(-s.cfg.LockTTL), now)
	if err != nil {
		return nil, fmt.Errorf("reset stuck jobs: %w", err)
	}
	if reset > 0 {
		s.log.Warn().Int64("count", reset).Msg("returned stuck processing jobs to pending")
	}
	report.Reset = reset

	snap, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	// Only eligible platforms are listed so held jobs never fill the batch.
	eligible, held := s.eligiblePlatforms(ctx, snap)
	report.Held = held
	if len(eligible) == 0 {
		s.log.Debug().Interface("held", held).Msg("no platform is eligible this tick")
		return report, nil
	}
	due, err := s.jobs.ListDue(ctx, eligible, now.Add(s.cfg.Slop), now, s.cfg.Batch)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		item := s.process(ctx, job, snap, false)
		report.Items = append(report.Items, item)
	}
	s.log.Info().Int("due", len(due)).Int("processed", len(report.Items)).Msg("tick finished")
	return report, nil
}

// eligiblePlatforms splits the known platforms into those that may publish now
// and those held back, keyed to the reason.
func (s *Scheduler) eligiblePlatforms(ctx context.Context, snap *service.Snapshot) ([]string, map[string]string) {
	var eligible []string
	held := map[string]string{}
	for _, platform := range models.Platforms {
		ps, creds := snap.For(platform)
		if reason := s.gate(platform, ps, creds, false); reason != "" {
			held[platform] = reason
			continue
		}
		remaining, err := s.limiter.RemainingSlots(ctx, platform, ps.DailyLimit)
		if err != nil {
			s.log.Error().Err(err).Str("platform", platform).Msg("rate check failed")
			held[platform] = err.Error()
			continue
		}
		if remaining == 0 {
			held[platform] = noteDailyLimit
			continue
		}
		eligible = append(eligible, platform)
	}
	return eligible, held
}

const (
	noteDailyLimit   = "daily limit reached"
	notePlatformBusy = "platform busy"
)

func (s *Scheduler) gate(platform string, ps models.PlatformSettings, creds models.Credentials, forced bool) string {
	switch {
	case !ps.Enabled && !forced:
		return "platform disabled"
	case !creds.Present():
		return "no credentials"
	case !s.executor.HasProvider(platform):
		return "no provider"
	}
	return ""
}

func quotaKey(platform string) string {
	return "quota:" + platform
}

// ForcePost executes the given pending jobs now, regardless of their slot.
func (s *Scheduler) ForcePost(ctx context.Context, ids []string) ([]ForceResult, error) {
	snap, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ForceResult, 0, len(ids))
	for _, id := range ids {
		job, err := s.jobs.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			out = append(out, ForceResult{ID: id, Note: "job not found"})
			continue
		}
		if err != nil {
			out = append(out, ForceResult{ID: id, Note: err.Error()})
			continue
		}
		if job.Status != models.JobStatusPending {
			out = append(out, ForceResult{
				ID:             id,
				Deduped:        job.Status == models.JobStatusPosted,
				ExternalPostID: job.ExternalPostID,
				Note:           "job is " + job.Status,
			})
			continue
		}

		item := s.process(ctx, job, snap, true)
		fr := ForceResult{
			ID:             id,
			Success:        item.Publish.Success,
			Deduped:        item.Publish.Deduped,
			ExternalPostID: item.Publish.ExternalPostID,
			Note:           item.Note,
		}
		if fr.Note == "" {
			fr.Note = string(item.Outcome)
		}
		out = append(out, fr)
	}
	return out, nil
}

// process applies the per-job gates, claims the job and executes it. Forced
// runs ignore the platform's enabled flag but not the daily limit.
func (s *Scheduler) process(ctx context.Context, job *models.PublishJob, snap *service.Snapshot, forced bool) ItemResult {
	item := ItemResult{JobID: job.ID, Platform: job.Platform}
	log := s.log.With().Str("job_id", job.ID).Str("platform", job.Platform).Logger()

	ps, creds := snap.For(job.Platform)
	if reason := s.gate(job.Platform, ps, creds, forced); reason != "" {
		return skip(item, OutcomeSkipped, reason)
	}

	// The quota lease makes the limit check, claim and counter increment one
	// step per platform across workers.
	if s.quota != nil {
		lease, ok, err := s.quota.Acquire(ctx, quotaKey(job.Platform))
		if err != nil {
			log.Error().Err(err).Msg("quota lock failed")
			return skip(item, OutcomeSkipped, err.Error())
		}
		if !ok {
			log.Debug().Msg("platform quota held by another worker")
			return skip(item, OutcomeSkipped, notePlatformBusy)
		}
		defer s.quota.Release(ctx, lease)
	}

	remaining, err := s.limiter.RemainingSlots(ctx, job.Platform, ps.DailyLimit)
	if err != nil {
		log.Error().Err(err).Msg("rate check failed")
		return skip(item, OutcomeSkipped, err.Error())
	}
	if remaining == 0 {
		log.Debug().Int("daily_limit", ps.DailyLimit).Msg("daily limit reached")
		item.Publish.Kind = publisher.KindRateLimited
		return skip(item, OutcomeDeferred, noteDailyLimit)
	}

	claimed, err := s.jobs.Claim(ctx, job.ID, s.now())
	if err != nil {
		log.Error().Err(err).Msg("claim failed")
		return skip(item, OutcomeSkipped, err.Error())
	}
	if !claimed {
		return skip(item, OutcomeSkipped, "claimed by another worker")
	}

	if err := s.pacer.Wait(ctx); err != nil {
		s.requeue(ctx, job, "")
		return skip(item, OutcomeRequeued, err.Error())
	}
	return s.ExecuteQueueItemOnce(ctx, job, creds, ps)
}

func skip(item ItemResult, outcome Outcome, note string) ItemResult {
	item.Outcome = outcome
	item.Note = note
	return item
}

// ExecuteQueueItemOnce publishes a claimed job and records the outcome on it.
func (s *Scheduler) ExecuteQueueItemOnce(ctx context.Context, job *models.PublishJob, creds models.Credentials, ps models.PlatformSettings) ItemResult {
	res := s.executor.PostOnce(ctx, publisher.Request{
		Platform:    job.Platform,
		ContentHash: job.ContentHash,
		ScheduledAt: job.ScheduledAt,
		Payload: publisher.Payload{
			ContentID:    job.ContentID,
			VideoRef:     job.VideoRef,
			ThumbnailURL: job.ThumbnailURL,
			Caption:      job.Caption,
			Title:        job.Title,
			Description:  job.Description,
		},
		Credentials: creds,
	})
	return s.applyResult(ctx, job, ps, res)
}

func (s *Scheduler) applyResult(ctx context.Context, job *models.PublishJob, ps models.PlatformSettings, res publisher.Result) ItemResult {
	item := ItemResult{JobID: job.ID, Platform: job.Platform, Publish: res, Note: res.Note}
	log := s.log.With().Str("job_id", job.ID).Str("platform", job.Platform).Str("key", res.Key).Logger()
	bg := context.WithoutCancel(ctx)
	now := s.now()

	switch {
	case res.Success:
		item.Outcome = OutcomePosted
		if err := s.jobs.MarkPosted(bg, job.ID, res.ExternalPostID, now); err != nil {
			log.Error().Err(err).Msg("mark posted failed")
		}
		s.recordSignature(bg, job, res.ExternalPostID, now)
		s.evaluateRefill(bg, job.Platform, ps)

	case res.Deduped && res.Reason == publisher.ReasonAlreadyDone:
		item.Outcome = OutcomeAlreadyPosted
		if err := s.jobs.MarkPosted(bg, job.ID, res.ExternalPostID, now); err != nil {
			log.Error().Err(err).Msg("mark posted failed")
		}

	case res.Kind == publisher.KindRateLimited:
		// Platform throttling defers the job; it never spends a retry.
		notBefore := now.Add(s.Backoff(job.RetryCount + 1))
		item.Outcome = OutcomeDeferred
		if err := s.jobs.MarkPending(bg, job.ID, job.RetryCount, res.Note, &notBefore, now); err != nil {
			log.Error().Err(err).Msg("defer after rate limit failed")
		}
		log.Warn().Time("not_before", notBefore).Str("error", res.Note).Msg("platform rate limited; job deferred")

	case res.Deduped || res.Kind == publisher.KindStorage:
		item.Outcome = OutcomeRequeued
		note := res.Reason
		if note == "" {
			note = res.Note
		}
		s.requeue(bg, job, note)

	default:
		retries := job.RetryCount + 1
		if res.Retryable && retries < s.cfg.MaxRetries {
			notBefore := now.Add(s.Backoff(retries))
			item.Outcome = OutcomeRetry
			if err := s.jobs.MarkPending(bg, job.ID, retries, res.Note, &notBefore, now); err != nil {
				log.Error().Err(err).Msg("schedule retry failed")
			}
			log.Warn().Int("retry", retries).Time("not_before", notBefore).Str("kind", string(res.Kind)).Msg("publish will be retried")
		} else {
			item.Outcome = OutcomeFailed
			if err := s.jobs.MarkFailed(bg, job.ID, retries, res.Note, now); err != nil {
				log.Error().Err(err).Msg("mark failed failed")
			}
			log.Error().Int("retry", retries).Str("kind", string(res.Kind)).Str("error", res.Note).Msg("publish failed permanently")
		}
	}
	return item
}

// requeue returns a claimed job to pending without counting an attempt.
func (s *Scheduler) requeue(ctx context.Context, job *models.PublishJob, note string) {
	if note == "" {
		note = job.LastError
	}
	if err := s.jobs.MarkPending(context.WithoutCancel(ctx), job.ID, job.RetryCount, note, job.NotBefore, s.now()); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("requeue failed")
	}
}

// Backoff is base * 2^(attempt-1), capped.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(s.cfg.RetryBackoffBase) * math.Pow(2, float64(attempt-1))
	if ceiling := float64(s.cfg.RetryBackoffMax); ceiling > 0 && d > ceiling {
		return s.cfg.RetryBackoffMax
	}
	return time.Duration(d)
}

func (s *Scheduler) recordSignature(ctx context.Context, job *models.PublishJob, externalID string, at time.Time) {
	err := s.signatures.Append(ctx, &models.RecentPostSignature{
		Platform:       job.Platform,
		ExternalPostID: externalID,
		ContentHash:    job.ContentHash,
		PostedAt:       at,
		VisualHash:     job.VisualHash,
		AudioKey:       job.AudioKey,
		CaptionNorm:    dedup.NormalizeCaption(job.Caption),
		DurationSec:    job.DurationSec,
	})
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("append signature failed")
	}
}

// evaluateRefill asks for more content once the pending queue falls below
// the low-water mark of the platform's target size.
func (s *Scheduler) evaluateRefill(ctx context.Context, platform string, ps models.PlatformSettings) {
	if s.refiller == nil || ps.TargetQueueSize <= 0 {
		return
	}
	counts, err := s.jobs.CountByStatus(ctx, platform)
	if err != nil {
		s.log.Error().Err(err).Str("platform", platform).Msg("count pending failed")
		return
	}
	pending := counts[models.JobStatusPending]
	lowWater := int(math.Ceil(s.cfg.RefillLowWater * float64(ps.TargetQueueSize)))
	if pending >= lowWater {
		return
	}
	remaining, err := s.limiter.RemainingSlots(ctx, platform, ps.DailyLimit)
	if err != nil {
		s.log.Error().Err(err).Str("platform", platform).Msg("rate check for refill failed")
		return
	}
	want := min(ps.TargetQueueSize-pending, remaining)
	if want <= 0 {
		return
	}
	if err := s.refiller.TriggerRefill(ctx, platform, want); err != nil {
		s.log.Error().Err(err).Str("platform", platform).Msg("refill trigger failed")
		return
	}
	s.log.Info().Str("platform", platform).Int("pending", pending).Int("want", want).Msg("refill triggered")
}
