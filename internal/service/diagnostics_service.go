package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/ratelimit"
	"github.com/maheshrc27/clipcast/internal/repository"
)

type LedgerFailure struct {
	Key       string    `json:"key"`
	Error     string    `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlatformDiagnosis answers why a platform did or did not publish today.
type PlatformDiagnosis struct {
	Platform           string          `json:"platform"`
	Enabled            bool            `json:"enabled"`
	CredentialsPresent bool            `json:"credentials_present"`
	ProviderConfigured bool            `json:"provider_configured"`
	Date               string          `json:"date"`
	PostedToday        int             `json:"posted_today"`
	DailyLimit         int             `json:"daily_limit"`
	RemainingSlots     int             `json:"remaining_slots"`
	Pending            int             `json:"pending"`
	Processing         int             `json:"processing"`
	Failed             int             `json:"failed"`
	Posted             int             `json:"posted"`
	RecentFailures     []LedgerFailure `json:"recent_failures,omitempty"`
	Blockers           []string        `json:"blockers,omitempty"`
}

type DiagnosticsService struct {
	settings  *SettingsService
	jobs      repository.JobRepository
	ledger    repository.IdempotencyRepository
	limiter   *ratelimit.Limiter
	providers func(platform string) bool
}

func NewDiagnosticsService(
	settings *SettingsService,
	jobs repository.JobRepository,
	ledger repository.IdempotencyRepository,
	limiter *ratelimit.Limiter,
	providers func(platform string) bool) *DiagnosticsService {
	return &DiagnosticsService{
		settings:  settings,
		jobs:      jobs,
		ledger:    ledger,
		limiter:   limiter,
		providers: providers,
	}
}

func (d *DiagnosticsService) Diagnose(ctx context.Context) ([]PlatformDiagnosis, error) {
	snap, err := d.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	failures, err := d.ledger.ListRecentFailures(ctx, time.Now().Add(-24*time.Hour), 50)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}

	out := make([]PlatformDiagnosis, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		ps, creds := snap.For(p)
		diag := PlatformDiagnosis{
			Platform:           p,
			Enabled:            ps.Enabled,
			CredentialsPresent: creds.Present(),
			ProviderConfigured: d.providers(p),
			Date:               d.limiter.Today(),
			DailyLimit:         ps.DailyLimit,
		}
		if diag.PostedToday, err = d.limiter.Count(ctx, p); err != nil {
			return nil, err
		}
		if diag.RemainingSlots, err = d.limiter.RemainingSlots(ctx, p, ps.DailyLimit); err != nil {
			return nil, err
		}
		counts, err := d.jobs.CountByStatus(ctx, p)
		if err != nil {
			return nil, err
		}
		diag.Pending = counts[models.JobStatusPending]
		diag.Processing = counts[models.JobStatusProcessing]
		diag.Failed = counts[models.JobStatusFailed]
		diag.Posted = counts[models.JobStatusPosted]

		for _, f := range failures {
			if f.Platform == p {
				diag.RecentFailures = append(diag.RecentFailures, LedgerFailure{Key: f.IdempotencyKey, Error: f.Error, UpdatedAt: f.UpdatedAt})
			}
		}

		if !diag.Enabled {
			diag.Blockers = append(diag.Blockers, "platform disabled")
		}
		if cerr := snap.Errors[p]; cerr != nil {
			diag.Blockers = append(diag.Blockers, "credentials unreadable: "+cerr.Error())
		} else if !diag.CredentialsPresent {
			diag.Blockers = append(diag.Blockers, "no credentials linked")
		}
		if !diag.ProviderConfigured {
			diag.Blockers = append(diag.Blockers, "no provider configured")
		}
		if diag.RemainingSlots == 0 {
			diag.Blockers = append(diag.Blockers, "daily limit reached")
		}
		if diag.Pending == 0 && diag.Processing == 0 {
			diag.Blockers = append(diag.Blockers, "queue empty")
		}
		out = append(out, diag)
	}
	return out, nil
}
