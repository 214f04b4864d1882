package transfer

// FeedResponse is the candidate feed served at SOURCE_FEED_URL.
type FeedResponse struct {
	Items []FeedItem `json:"items"`
}

type FeedItem struct {
	ID           string  `json:"id"`
	VideoURL     string  `json:"video_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Caption      string  `json:"caption"`
	Title        string  `json:"title"`
	Views        int64   `json:"views"`
	Likes        int64   `json:"likes"`
	Comments     int64   `json:"comments"`
	Shares       int64   `json:"shares"`
	Score        float64 `json:"score"`
	AudioID      string  `json:"audio_id"`
	DurationSec  float64 `json:"duration_sec"`
}
