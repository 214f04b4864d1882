// Package ratelimit enforces per-platform daily publish quotas counted in the
// reference timezone.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/repository"
)

const dateLayout = "2006-01-02"

// DateKey formats t as YYYY-MM-DD in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}

type Limiter struct {
	repo repository.CounterRepository
	loc  *time.Location
	now  func() time.Time
}

func New(repo repository.CounterRepository, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.UTC
	}
	return &Limiter{repo: repo, loc: loc, now: time.Now}
}

// WithClock returns a copy of l that reads the time from now.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	c := *l
	c.now = now
	return &c
}

func (l *Limiter) Today() string {
	return DateKey(l.now(), l.loc)
}

func (l *Limiter) Count(ctx context.Context, platform string) (int, error) {
	n, err := l.repo.Get(ctx, platform, l.Today())
	if err != nil {
		return 0, fmt.Errorf("daily count %s: %w", platform, err)
	}
	return n, nil
}

// RemainingSlots is max(0, dailyLimit - today's count).
func (l *Limiter) RemainingSlots(ctx context.Context, platform string, dailyLimit int) (int, error) {
	n, err := l.Count(ctx, platform)
	if err != nil {
		return 0, err
	}
	if remaining := dailyLimit - n; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (l *Limiter) Increment(ctx context.Context, platform string) (int, error) {
	n, err := l.repo.Increment(ctx, platform, l.Today())
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", platform, err)
	}
	return n, nil
}
