package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
)

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

const settingsColumns = `platform, enabled, daily_limit, target_queue_size, post_interval_seconds, updated_at`

func scanSettings(row rowScanner) (*models.PlatformSettings, error) {
	var s models.PlatformSettings
	var intervalSec int64
	if err := row.Scan(&s.Platform, &s.Enabled, &s.DailyLimit, &s.TargetQueueSize, &intervalSec, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.PostInterval = time.Duration(intervalSec) * time.Second
	return &s, nil
}

func (r *settingsRepository) List(ctx context.Context) ([]*models.PlatformSettings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+settingsColumns+` FROM platform_settings ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []*models.PlatformSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (r *settingsRepository) Get(ctx context.Context, platform string) (*models.PlatformSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM platform_settings WHERE platform = $1`
	s, err := scanSettings(r.db.QueryRowContext(ctx, query, platform))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, s *models.PlatformSettings) error {
	query := `
		INSERT INTO platform_settings (platform, enabled, daily_limit, target_queue_size, post_interval_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (platform) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			daily_limit = EXCLUDED.daily_limit,
			target_queue_size = EXCLUDED.target_queue_size,
			post_interval_seconds = EXCLUDED.post_interval_seconds,
			updated_at = EXCLUDED.updated_at
	`
	s.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query, s.Platform, s.Enabled, s.DailyLimit, s.TargetQueueSize,
		int64(s.PostInterval/time.Second), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
