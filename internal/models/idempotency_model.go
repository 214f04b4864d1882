package models

import "time"

// IdempotencyRecord is the durable outcome of one publish intent.
type IdempotencyRecord struct {
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Platform       string    `db:"platform" json:"platform"`
	ContentHash    string    `db:"content_hash" json:"content_hash"`
	ScheduledAt    time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status         string    `db:"status" json:"status"` // posting, posted, failed
	ExternalPostID string    `db:"external_post_id" json:"external_post_id,omitempty"`
	Error          string    `db:"error" json:"error,omitempty"`
	FenceToken     int64     `db:"fence_token" json:"fence_token"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

const (
	LedgerStatusPosting = "posting"
	LedgerStatusPosted  = "posted"
	LedgerStatusFailed  = "failed"
)

// Lock is a TTL-bound mutual exclusion record keyed by idempotency key.
type Lock struct {
	Key        string    `db:"key" json:"key"`
	Token      int64     `db:"token" json:"token"`
	Holder     string    `db:"holder" json:"holder"`
	AcquiredAt time.Time `db:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}

// DailyCounter counts successful publishes per platform per reference-timezone day.
type DailyCounter struct {
	Platform string `db:"platform" json:"platform"`
	DateKey  string `db:"date_key" json:"date_key"`
	Count    int    `db:"count" json:"count"`
}
