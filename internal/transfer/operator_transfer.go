package transfer

import "time"

// JobCreation is a manual enqueue request.
type JobCreation struct {
	Platform     string  `json:"platform"`
	ContentID    string  `json:"content_id"`
	VideoRef     string  `json:"video_ref"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Caption      string  `json:"caption"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	AudioKey     string  `json:"audio_key"`
	DurationSec  float64 `json:"duration_sec"`
	// ScheduledAt is RFC 3339; empty means the current minute.
	ScheduledAt string `json:"scheduled_at"`
}

type PostNowRequest struct {
	IDs   []string `json:"ids"`
	Async bool     `json:"async"`
}

type RefillRequest struct {
	Want int `json:"want"`
}

type SettingsUpdate struct {
	Enabled         *bool  `json:"enabled"`
	DailyLimit      *int   `json:"daily_limit"`
	TargetQueueSize *int   `json:"target_queue_size"`
	PostInterval    string `json:"post_interval"`
}

type AccountLink struct {
	AccountID    string    `json:"account_id"`
	AccountName  string    `json:"account_name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type TokenRequest struct {
	Operator string `json:"operator"`
	TTL      string `json:"ttl"`
}
