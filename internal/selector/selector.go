// Package selector ranks fresh candidates, filters out content that is queued,
// recently posted or a near-duplicate, and enqueues the rest as publish jobs.
package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maheshrc27/clipcast/internal/dedup"
	"github.com/maheshrc27/clipcast/internal/idempotency"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// fetchFactor over-fetches so filtering still leaves enough candidates.
const fetchFactor = 4

type Mirror interface {
	Mirror(ctx context.Context, sourceURL, key string) (string, error)
}

type SettingsReader interface {
	Get(ctx context.Context, platform string) (models.PlatformSettings, error)
}

type Skip struct {
	ContentID string     `json:"content_id"`
	Reason    string     `json:"reason"`
	Rule      dedup.Rule `json:"rule,omitempty"`
	Ref       string     `json:"ref,omitempty"`
}

type Report struct {
	Platform string   `json:"platform"`
	Fetched  int      `json:"fetched"`
	Enqueued []string `json:"enqueued"`
	Skipped  []Skip   `json:"skipped,omitempty"`
}

type Selector struct {
	source     Source
	thumbs     Thumbnails
	mirror     Mirror
	jobs       repository.JobRepository
	signatures repository.SignatureRepository
	settings   SettingsReader
	opts       dedup.Options
	windowSize int
	log        logging.Logger
	now        func() time.Time
}

type Config struct {
	Source     Source
	Thumbnails Thumbnails
	Mirror     Mirror
	Jobs       repository.JobRepository
	Signatures repository.SignatureRepository
	Settings   SettingsReader
	Options    dedup.Options
	WindowSize int
	Logger     logging.Logger
	Now        func() time.Time
}

func New(cfg Config) *Selector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = dedup.DefaultWindowSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Selector{
		source:     cfg.Source,
		thumbs:     cfg.Thumbnails,
		mirror:     cfg.Mirror,
		jobs:       cfg.Jobs,
		signatures: cfg.Signatures,
		settings:   cfg.Settings,
		opts:       cfg.Options,
		windowSize: cfg.WindowSize,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
}

// Select enqueues up to want new jobs for platform.
func (s *Selector) Select(ctx context.Context, platform string, want int) (*Report, error) {
	report := &Report{Platform: platform, Enqueued: []string{}}
	if want <= 0 {
		return report, nil
	}
	log := s.log.With().Str("platform", platform).Logger()

	ps, err := s.settings.Get(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	candidates, err := s.source.Fetch(ctx, platform, want*fetchFactor)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	report.Fetched = len(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].EngagementScore != candidates[j].EngagementScore {
			return candidates[i].EngagementScore > candidates[j].EngagementScore
		}
		return candidates[i].ContentID < candidates[j].ContentID
	})

	blocked, err := s.jobs.ContentHashes(ctx, platform, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("queued hashes: %w", err)
	}
	sigs, err := s.signatures.ListRecent(ctx, platform, s.windowSize)
	if err != nil {
		return nil, fmt.Errorf("recent signatures: %w", err)
	}
	for _, sig := range sigs {
		if sig.ContentHash != "" {
			blocked[sig.ContentHash] = struct{}{}
		}
	}
	window := dedup.WindowFromSignatures(sigs)

	next, err := s.firstSlot(ctx, platform, ps.PostInterval)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if len(report.Enqueued) >= want {
			break
		}
		hash := idempotency.ContentHash(c.ContentID)
		if _, ok := blocked[hash]; ok {
			report.Skipped = append(report.Skipped, Skip{ContentID: c.ContentID, Reason: "already queued or recently posted"})
			continue
		}

		if c.VisualHash == "" && c.ThumbnailURL != "" && s.thumbs != nil {
			c.VisualHash = s.visualHash(ctx, c)
		}
		probe := dedup.ProbeFromCandidate(c)
		if m := dedup.IsDuplicate(probe, window, s.opts); m.Duplicate {
			log.Debug().Str("content_id", c.ContentID).Str("rule", string(m.Rule)).Str("ref", m.Ref).Msg("duplicate candidate")
			report.Skipped = append(report.Skipped, Skip{ContentID: c.ContentID, Reason: "duplicate", Rule: m.Rule, Ref: m.Ref})
			continue
		}

		job, err := s.enqueue(ctx, platform, hash, c, next)
		if err != nil {
			return report, err
		}
		blocked[hash] = struct{}{}
		window.Add(dedup.Entry{
			Ref:         "job:" + job.ID,
			VisualHash:  probe.VisualHash,
			AudioKey:    probe.AudioKey,
			CaptionNorm: probe.CaptionNorm,
			DurationSec: probe.DurationSec,
		})
		report.Enqueued = append(report.Enqueued, job.ID)
		next = next.Add(ps.PostInterval)
	}

	log.Info().Int("fetched", report.Fetched).Int("enqueued", len(report.Enqueued)).Int("skipped", len(report.Skipped)).Msg("selection finished")
	return report, nil
}

// firstSlot is one interval after the latest queued job, or now when the
// queue is empty or behind.
func (s *Selector) firstSlot(ctx context.Context, platform string, interval time.Duration) (time.Time, error) {
	now := s.now().Truncate(time.Minute)
	latest, ok, err := s.jobs.LatestScheduledAt(ctx, platform)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest slot: %w", err)
	}
	if !ok {
		return now, nil
	}
	if next := latest.Add(interval); next.After(now) {
		return next, nil
	}
	return now, nil
}

func (s *Selector) visualHash(ctx context.Context, c models.Candidate) string {
	data, err := s.thumbs.Fetch(ctx, c.ThumbnailURL)
	if err != nil {
		s.log.Debug().Err(err).Str("content_id", c.ContentID).Msg("thumbnail unavailable")
		return ""
	}
	hash, err := dedup.ComputeVisualHash(data, dedup.DefaultGrid)
	if err != nil {
		s.log.Debug().Err(err).Str("content_id", c.ContentID).Msg("thumbnail not decodable")
		return ""
	}
	return hash
}

func (s *Selector) enqueue(ctx context.Context, platform, hash string, c models.Candidate, at time.Time) (*models.PublishJob, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}

	videoRef := c.SourceURL
	if s.mirror != nil {
		ref, err := s.mirror.Mirror(ctx, c.SourceURL, platform+"/"+hash[:16])
		if err != nil {
			s.log.Warn().Err(err).Str("content_id", c.ContentID).Msg("mirror failed, using source url")
		} else {
			videoRef = ref
		}
	}

	job := &models.PublishJob{
		ID:           id,
		Platform:     platform,
		ContentID:    c.ContentID,
		ContentHash:  hash,
		VideoRef:     videoRef,
		ThumbnailURL: c.ThumbnailURL,
		Caption:      c.Caption,
		Title:        c.Title,
		AudioKey:     c.AudioKey,
		DurationSec:  c.DurationSec,
		VisualHash:   c.VisualHash,
		ScheduledAt:  at,
		Status:       models.JobStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", c.ContentID, err)
	}
	return job, nil
}
