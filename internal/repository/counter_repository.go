package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type counterRepository struct {
	db *sql.DB
}

func NewCounterRepository(db *sql.DB) CounterRepository {
	return &counterRepository{db: db}
}

func (r *counterRepository) Get(ctx context.Context, platform, dateKey string) (int, error) {
	query := `SELECT count FROM daily_counters WHERE platform = $1 AND date_key = $2`
	var n int
	err := r.db.QueryRowContext(ctx, query, platform, dateKey).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return n, nil
}

func (r *counterRepository) Increment(ctx context.Context, platform, dateKey string) (int, error) {
	query := `
		INSERT INTO daily_counters (platform, date_key, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (platform, date_key) DO UPDATE SET count = daily_counters.count + 1
		RETURNING count
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, platform, dateKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return n, nil
}
