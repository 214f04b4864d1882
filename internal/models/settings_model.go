package models

import "time"

type PlatformSettings struct {
	Platform        string        `db:"platform" json:"platform"`
	Enabled         bool          `db:"enabled" json:"enabled"`
	DailyLimit      int           `db:"daily_limit" json:"daily_limit"`
	TargetQueueSize int           `db:"target_queue_size" json:"target_queue_size"`
	PostInterval    time.Duration `db:"post_interval" json:"post_interval"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

const (
	PlatformYoutube   = "youtube"
	PlatformTiktok    = "tiktok"
	PlatformInstagram = "instagram"
)

var Platforms = []string{PlatformYoutube, PlatformTiktok, PlatformInstagram}

func IsKnownPlatform(p string) bool {
	for _, known := range Platforms {
		if known == p {
			return true
		}
	}
	return false
}
