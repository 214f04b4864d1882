package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

// ErrStaleFence is returned when a write presents a fence token older than the
// one currently recorded for the key.
var ErrStaleFence = errors.New("idempotency: stale fence token")

type Meta struct {
	Platform    string
	ContentHash string
	ScheduledAt time.Time
}

type Ledger struct {
	repo repository.IdempotencyRepository
	now  func() time.Time
}

func NewLedger(repo repository.IdempotencyRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Get returns the record for key, or nil when none exists.
func (l *Ledger) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	rec, err := l.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertPosting claims key for the holder of fence and returns the stored row.
// A posted row comes back untouched; callers compare the returned status and
// fence token to learn whether the claim applied.
func (l *Ledger) UpsertPosting(ctx context.Context, key string, meta Meta, fence int64) (*models.IdempotencyRecord, error) {
	rec, err := l.repo.UpsertPosting(ctx, &models.IdempotencyRecord{
		IdempotencyKey: key,
		Platform:       meta.Platform,
		ContentHash:    meta.ContentHash,
		ScheduledAt:    meta.ScheduledAt,
		FenceToken:     fence,
		UpdatedAt:      l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert posting %s: %w", key, err)
	}
	return rec, nil
}

func (l *Ledger) MarkPosted(ctx context.Context, key string, fence int64, externalPostID string) error {
	return l.finalize(ctx, key, fence, models.LedgerStatusPosted, externalPostID, "")
}

func (l *Ledger) MarkFailed(ctx context.Context, key string, fence int64, errMsg string) error {
	return l.finalize(ctx, key, fence, models.LedgerStatusFailed, "", errMsg)
}

func (l *Ledger) finalize(ctx context.Context, key string, fence int64, status, externalPostID, errMsg string) error {
	ok, err := l.repo.Finalize(ctx, key, fence, status, externalPostID, errMsg, l.now())
	if err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	if ok {
		return nil
	}

	cur, err := l.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	if cur == nil {
		return fmt.Errorf("finalize %s: %w", key, repository.ErrNotFound)
	}
	// A repeated posted finalize for the same external post is a no-op.
	if status == models.LedgerStatusPosted && cur.Status == models.LedgerStatusPosted &&
		cur.ExternalPostID == externalPostID {
		return nil
	}
	return ErrStaleFence
}
