package models

import "time"

// RecentPostSignature is the fingerprint of something already published,
// kept so new candidates can be compared against recent history.
type RecentPostSignature struct {
	ID             int64     `db:"id" json:"id"`
	Platform       string    `db:"platform" json:"platform"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id"`
	ContentHash    string    `db:"content_hash" json:"content_hash"`
	PostedAt       time.Time `db:"posted_at" json:"posted_at"`
	VisualHash     string    `db:"visual_hash" json:"visual_hash"`
	AudioKey       string    `db:"audio_key" json:"audio_key"`
	CaptionNorm    string    `db:"caption_norm" json:"caption_norm"`
	DurationSec    float64   `db:"duration_sec" json:"duration_sec"`
}
