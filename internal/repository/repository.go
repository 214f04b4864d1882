package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
)

var (
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a conditional write did not match the expected state.
	ErrConflict = errors.New("repository: conditional write did not apply")
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type JobRepository interface {
	Create(ctx context.Context, job *models.PublishJob) error
	GetByID(ctx context.Context, id string) (*models.PublishJob, error)
	// ListDue returns pending jobs on the given platforms scheduled at or before dueBy
	// whose backoff gate has passed, oldest first.
	ListDue(ctx context.Context, platforms []string, dueBy, now time.Time, limit int) ([]*models.PublishJob, error)
	ListByStatus(ctx context.Context, platform, status string, limit int) ([]*models.PublishJob, error)
	// Claim moves a job from pending to processing; false when another worker got there first.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkPosted(ctx context.Context, id, externalPostID string, now time.Time) error
	MarkPending(ctx context.Context, id string, retryCount int, lastError string, notBefore *time.Time, now time.Time) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error
	ResetStuck(ctx context.Context, olderThan, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, platform string) (map[string]int, error)
	ContentHashes(ctx context.Context, platform string, statuses ...string) (map[string]struct{}, error)
	LatestScheduledAt(ctx context.Context, platform string) (time.Time, bool, error)
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	// UpsertPosting inserts a posting row or re-claims a non-posted row whose stored
	// fence token is not newer than rec.FenceToken. It returns the row as stored afterwards.
	UpsertPosting(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error)
	// Finalize sets a terminal status when the row is posting under the given fence token.
	Finalize(ctx context.Context, key string, fence int64, status, externalPostID, errMsg string, now time.Time) (bool, error)
	ListRecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.IdempotencyRecord, error)
}

type LockRepository interface {
	// Acquire inserts the lock or takes over an expired one, returning a fresh fence token.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration, now time.Time) (int64, bool, error)
	Release(ctx context.Context, key string, token int64) error
	Get(ctx context.Context, key string) (*models.Lock, error)
}

type CounterRepository interface {
	Get(ctx context.Context, platform, dateKey string) (int, error)
	Increment(ctx context.Context, platform, dateKey string) (int, error)
}

type SignatureRepository interface {
	Append(ctx context.Context, sig *models.RecentPostSignature) error
	ListRecent(ctx context.Context, platform string, limit int) ([]*models.RecentPostSignature, error)
}

type SettingsRepository interface {
	List(ctx context.Context) ([]*models.PlatformSettings, error)
	Get(ctx context.Context, platform string) (*models.PlatformSettings, error)
	Upsert(ctx context.Context, s *models.PlatformSettings) error
}

type SocialAccountRepository interface {
	GetByPlatform(ctx context.Context, platform string) (*models.SocialAccount, error)
	Upsert(ctx context.Context, sa *models.SocialAccount) error
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, platform, accessToken, refreshToken string, expiresAt time.Time) error
}

// Store bundles every repository the pipeline needs.
type Store struct {
	Jobs       JobRepository
	Ledger     IdempotencyRepository
	Locks      LockRepository
	Counters   CounterRepository
	Signatures SignatureRepository
	Settings   SettingsRepository
	Accounts   SocialAccountRepository
}

func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Jobs:       NewJobRepository(db),
		Ledger:     NewIdempotencyRepository(db),
		Locks:      NewLockRepository(db),
		Counters:   NewCounterRepository(db),
		Signatures: NewSignatureRepository(db),
		Settings:   NewSettingsRepository(db),
		Accounts:   NewSocialAccountRepository(db),
	}
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
