package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
)

type idempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

const ledgerColumns = `idempotency_key, platform, content_hash, scheduled_at, status, external_post_id, error,
	fence_token, created_at, updated_at`

func scanRecord(row rowScanner) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := row.Scan(&rec.IdempotencyKey, &rec.Platform, &rec.ContentHash, &rec.ScheduledAt, &rec.Status,
		&rec.ExternalPostID, &rec.Error, &rec.FenceToken, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM idempotency_records WHERE idempotency_key = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ledger record: %w", err)
	}
	return rec, nil
}

// UpsertPosting never touches a posted row and never lets an older fence
// token overwrite a newer holder's claim.
func (r *idempotencyRepository) UpsertPosting(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	query := `
		INSERT INTO idempotency_records (idempotency_key, platform, content_hash, scheduled_at, status,
			fence_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = EXCLUDED.status,
			fence_token = EXCLUDED.fence_token,
			error = '',
			updated_at = EXCLUDED.updated_at
		WHERE idempotency_records.status <> $8
			AND idempotency_records.fence_token <= EXCLUDED.fence_token
	`
	now := rec.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query,
		rec.IdempotencyKey, rec.Platform, rec.ContentHash, rec.ScheduledAt, models.LedgerStatusPosting,
		rec.FenceToken, now, models.LedgerStatusPosted,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert ledger record: %w", err)
	}
	return r.Get(ctx, rec.IdempotencyKey)
}

func (r *idempotencyRepository) Finalize(ctx context.Context, key string, fence int64, status, externalPostID, errMsg string, now time.Time) (bool, error) {
	query := `
		UPDATE idempotency_records
		SET status = $1, external_post_id = $2, error = $3, updated_at = $4
		WHERE idempotency_key = $5 AND fence_token = $6 AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query, status, externalPostID, errMsg, now, key, fence, models.LedgerStatusPosting)
	if err != nil {
		return false, fmt.Errorf("finalize ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *idempotencyRepository) ListRecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.IdempotencyRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM idempotency_records
		WHERE status = $1 AND updated_at >= $2
		ORDER BY updated_at DESC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, models.LedgerStatusFailed, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger failures: %w", err)
	}
	defer rows.Close()

	var recs []*models.IdempotencyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
