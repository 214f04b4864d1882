package transfer

import "encoding/json"

type InstagramMediaRequest struct {
	MediaType   string `json:"media_type"`
	VideoURL    string `json:"video_url"`
	Caption     string `json:"caption,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	ShareToFeed bool   `json:"share_to_feed"`
	AccessToken string `json:"access_token"`
}

type InstagramPublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

type InstagramIDResponse struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

const (
	InstagramContainerFinished   = "FINISHED"
	InstagramContainerInProgress = "IN_PROGRESS"
	InstagramContainerError      = "ERROR"
	InstagramContainerExpired    = "EXPIRED"
)

// InstagramShortTokenResponse is the code exchange result; user_id arrives
// as a bare number too large for float64.
type InstagramShortTokenResponse struct {
	AccessToken string      `json:"access_token"`
	UserID      json.Number `json:"user_id"`
	Permissions []string    `json:"permissions"`
}

type InstagramRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type InstagramErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}
