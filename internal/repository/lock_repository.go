package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
)

type lockRepository struct {
	db *sql.DB
}

func NewLockRepository(db *sql.DB) LockRepository {
	return &lockRepository{db: db}
}

// Acquire relies on the primary key for insert-if-absent; the conflict branch
// only fires for an expired record, and both paths draw from the fence sequence.
func (r *lockRepository) Acquire(ctx context.Context, key, holder string, ttl time.Duration, now time.Time) (int64, bool, error) {
	query := `
		INSERT INTO publish_locks (key, token, holder, acquired_at, expires_at)
		VALUES ($1, nextval('publish_lock_fence_seq'), $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET token = nextval('publish_lock_fence_seq'),
			holder = EXCLUDED.holder,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE publish_locks.expires_at <= EXCLUDED.acquired_at
		RETURNING token
	`
	var token int64
	err := r.db.QueryRowContext(ctx, query, key, holder, now, now.Add(ttl)).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("acquire lock: %w", err)
	}
	return token, true, nil
}

func (r *lockRepository) Release(ctx context.Context, key string, token int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM publish_locks WHERE key = $1 AND token = $2`, key, token)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (r *lockRepository) Get(ctx context.Context, key string) (*models.Lock, error) {
	query := `SELECT key, token, holder, acquired_at, expires_at FROM publish_locks WHERE key = $1`
	var l models.Lock
	err := r.db.QueryRowContext(ctx, query, key).Scan(&l.Key, &l.Token, &l.Holder, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &l, nil
}
