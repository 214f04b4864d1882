package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/clipcast/internal/models"
)

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, platform, content_id, content_hash, video_ref, thumbnail_url, caption, title, description,
	audio_key, duration_sec, visual_hash, scheduled_at, not_before, status, retry_count, last_error,
	external_post_id, posted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.PublishJob, error) {
	var job models.PublishJob
	var notBefore, postedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.Platform, &job.ContentID, &job.ContentHash, &job.VideoRef, &job.ThumbnailURL,
		&job.Caption, &job.Title, &job.Description, &job.AudioKey, &job.DurationSec, &job.VisualHash,
		&job.ScheduledAt, &notBefore, &job.Status, &job.RetryCount, &job.LastError,
		&job.ExternalPostID, &postedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.NotBefore = timePtr(notBefore)
	job.PostedAt = timePtr(postedAt)
	return &job, nil
}

func (r *jobRepository) Create(ctx context.Context, job *models.PublishJob) error {
	query := `
		INSERT INTO publish_jobs (id, platform, content_id, content_hash, video_ref, thumbnail_url, caption, title,
			description, audio_key, duration_sec, visual_hash, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Platform, job.ContentID, job.ContentHash, job.VideoRef, job.ThumbnailURL, job.Caption,
		job.Title, job.Description, job.AudioKey, job.DurationSec, job.VisualHash, job.ScheduledAt,
		job.Status, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) ListDue(ctx context.Context, platforms []string, dueBy, now time.Time, limit int) ([]*models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs
		WHERE status = $1 AND platform = ANY($2) AND scheduled_at <= $3 AND (not_before IS NULL OR not_before <= $4)
		ORDER BY scheduled_at ASC, created_at ASC
		LIMIT $5`
	return r.list(ctx, query, models.JobStatusPending, pq.Array(platforms), dueBy, now, limit)
}

func (r *jobRepository) ListByStatus(ctx context.Context, platform, status string, limit int) ([]*models.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs
		WHERE status = $1 AND ($2 = '' OR platform = $2)
		ORDER BY updated_at DESC
		LIMIT $3`
	return r.list(ctx, query, status, platform, limit)
}

func (r *jobRepository) list(ctx context.Context, query string, args ...any) ([]*models.PublishJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE publish_jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, now, id, models.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepository) MarkPosted(ctx context.Context, id, externalPostID string, now time.Time) error {
	query := `
		UPDATE publish_jobs
		SET status = $1, external_post_id = $2, posted_at = $3, last_error = '', updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query, models.JobStatusPosted, externalPostID, now, id, models.JobStatusProcessing)
}

func (r *jobRepository) MarkPending(ctx context.Context, id string, retryCount int, lastError string, notBefore *time.Time, now time.Time) error {
	query := `
		UPDATE publish_jobs
		SET status = $1, retry_count = $2, last_error = $3, not_before = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	return r.transition(ctx, query, models.JobStatusPending, retryCount, lastError, nullTime(notBefore), now, id, models.JobStatusProcessing)
}

func (r *jobRepository) MarkFailed(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error {
	query := `
		UPDATE publish_jobs
		SET status = $1, retry_count = $2, last_error = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	return r.transition(ctx, query, models.JobStatusFailed, retryCount, lastError, now, id, models.JobStatusProcessing)
}

func (r *jobRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (r *jobRepository) ResetStuck(ctx context.Context, olderThan, now time.Time) (int64, error) {
	query := `UPDATE publish_jobs SET status = $1, updated_at = $2 WHERE status = $3 AND updated_at < $4`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusPending, now, models.JobStatusProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *jobRepository) CountByStatus(ctx context.Context, platform string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM publish_jobs WHERE ($1 = '' OR platform = $1) GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *jobRepository) ContentHashes(ctx context.Context, platform string, statuses ...string) (map[string]struct{}, error) {
	query := `SELECT DISTINCT content_hash FROM publish_jobs WHERE platform = $1 AND status = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, platform, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("list content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

func (r *jobRepository) LatestScheduledAt(ctx context.Context, platform string) (time.Time, bool, error) {
	query := `SELECT MAX(scheduled_at) FROM publish_jobs WHERE platform = $1 AND status IN ($2, $3)`
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, query, platform, models.JobStatusPending, models.JobStatusProcessing).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest scheduled: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}
