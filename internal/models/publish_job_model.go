package models

import "time"

// PublishJob is one queued publish of a piece of content to a single platform.
type PublishJob struct {
	ID             string     `db:"id" json:"id"`
	Platform       string     `db:"platform" json:"platform"`
	ContentID      string     `db:"content_id" json:"content_id"`
	ContentHash    string     `db:"content_hash" json:"content_hash"`
	VideoRef       string     `db:"video_ref" json:"video_ref"`
	ThumbnailURL   string     `db:"thumbnail_url" json:"thumbnail_url"`
	Caption        string     `db:"caption" json:"caption"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	AudioKey       string     `db:"audio_key" json:"audio_key"`
	DurationSec    float64    `db:"duration_sec" json:"duration_sec"`
	VisualHash     string     `db:"visual_hash" json:"visual_hash"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	NotBefore      *time.Time `db:"not_before" json:"not_before,omitempty"`
	Status         string     `db:"status" json:"status"` // pending, processing, posted, failed
	RetryCount     int        `db:"retry_count" json:"retry_count"`
	LastError      string     `db:"last_error" json:"last_error"`
	ExternalPostID string     `db:"external_post_id" json:"external_post_id"`
	PostedAt       *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusPosted     = "posted"
	JobStatusFailed     = "failed"
)

// Candidate is a freshly scraped piece of content before it becomes a job.
type Candidate struct {
	ContentID       string  `json:"content_id"`
	SourceURL       string  `json:"source_url"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Caption         string  `json:"caption"`
	Title           string  `json:"title"`
	EngagementScore float64 `json:"engagement_score"`
	AudioKey        string  `json:"audio_key"`
	DurationSec     float64 `json:"duration_sec"`
	VisualHash      string  `json:"-"`
}
