package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/publisher"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const tiktokAPIBase = "https://open.tiktokapis.com"

// TiktokService publishes by letting TikTok pull the video from a URL and then
// polls the publish status until it settles.
type TiktokService struct {
	cfg          *config.Config
	client       *http.Client
	log          logging.Logger
	base         string
	pollInterval time.Duration
}

func NewTiktokService(cfg *config.Config, log logging.Logger) *TiktokService {
	return &TiktokService{
		cfg:          cfg,
		client:       &http.Client{Timeout: time.Minute},
		log:          log,
		base:         tiktokAPIBase,
		pollInterval: 5 * time.Second,
	}
}

// WithBaseURL points the service at another API host.
func (s *TiktokService) WithBaseURL(base string, pollInterval time.Duration) *TiktokService {
	c := *s
	c.base = strings.TrimRight(base, "/")
	c.pollInterval = pollInterval
	return &c
}

func (s *TiktokService) Publish(ctx context.Context, p publisher.Payload, creds models.Credentials) (string, error) {
	if creds.AccessToken == "" {
		return "", permanentError(models.PlatformTiktok, errors.New("missing access token"))
	}
	if p.VideoURL == "" {
		return "", permanentError(models.PlatformTiktok, errors.New("missing video url"))
	}

	var creator transfer.TiktokCreatorInfoResponse
	err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost,
		s.base+"/v2/post/publish/creator_info/query/", bearer(creds.AccessToken), struct{}{}, &creator)
	if err != nil {
		return "", err
	}
	if !creator.Error.OK() {
		return "", tiktokAPIError(creator.Error)
	}

	privacy := "PUBLIC_TO_EVERYONE"
	if opts := creator.Data.PrivacyLevelOptions; len(opts) > 0 && !contains(opts, privacy) {
		privacy = opts[0]
	}
	req := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 truncateRunes(p.Caption, 2200),
			PrivacyLevel:          privacy,
			DisableDuet:           creator.Data.DuetDisabled,
			DisableComment:        creator.Data.CommentDisabled,
			DisableStitch:         creator.Data.StitchDisabled,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{Source: "PULL_FROM_URL", VideoURL: p.VideoURL},
	}
	var upload transfer.TikTokUploadResponse
	err = doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost,
		s.base+"/v2/post/publish/video/init/", bearer(creds.AccessToken), req, &upload)
	if err != nil {
		return "", err
	}
	if !upload.Error.OK() {
		return "", tiktokAPIError(upload.Error)
	}
	if upload.Data.PublishID == "" {
		return "", permanentError(models.PlatformTiktok, errors.New("no publish_id returned"))
	}

	s.log.Debug().Str("platform", models.PlatformTiktok).Str("publish_id", upload.Data.PublishID).Msg("publish initiated")
	return s.awaitPublish(ctx, creds.AccessToken, upload.Data.PublishID)
}

func (s *TiktokService) awaitPublish(ctx context.Context, accessToken, publishID string) (string, error) {
	for {
		var status transfer.TiktokStatusResponse
		err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost,
			s.base+"/v2/post/publish/status/fetch/", bearer(accessToken),
			transfer.TiktokStatusRequest{PublishID: publishID}, &status)
		if err != nil {
			return "", err
		}
		if !status.Error.OK() {
			return "", tiktokAPIError(status.Error)
		}

		switch status.Data.Status {
		case transfer.TiktokStatusComplete:
			if len(status.Data.PostIDs) > 0 {
				return strconv.FormatInt(status.Data.PostIDs[0], 10), nil
			}
			return publishID, nil
		case transfer.TiktokStatusFailed:
			return "", permanentError(models.PlatformTiktok, fmt.Errorf("publish %s failed: %s", publishID, status.Data.FailReason))
		}

		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return "", transientError(models.PlatformTiktok, fmt.Errorf("publish %s still processing: %w", publishID, err))
		}
	}
}

func (s *TiktokService) RefreshToken(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	data := url.Values{}
	data.Set("client_key", s.cfg.TiktokClientKey)
	data.Set("client_secret", s.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", creds.RefreshToken)

	var token transfer.TiktokTokenResponse
	err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost, s.base+"/v2/oauth/token/", nil,
		formBody(data.Encode()), &token)
	if err != nil {
		return creds, err
	}
	if token.AccessToken == "" {
		return creds, permanentError(models.PlatformTiktok, errors.New("token endpoint returned no access token"))
	}

	creds.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}
	creds.ExpiresAt = GetExpiresAt(token.ExpiresIn)
	return creds, nil
}

// Exchange trades an authorization code for the account's tokens.
func (s *TiktokService) Exchange(ctx context.Context, code string) (models.Credentials, error) {
	data := url.Values{}
	data.Set("client_key", s.cfg.TiktokClientKey)
	data.Set("client_secret", s.cfg.TiktokClientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.TiktokRedirectURI)

	var token transfer.TiktokTokenResponse
	err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost, s.base+"/v2/oauth/token/", nil,
		formBody(data.Encode()), &token)
	if err != nil {
		return models.Credentials{}, err
	}
	if token.AccessToken == "" {
		return models.Credentials{}, permanentError(models.PlatformTiktok, errors.New("token endpoint returned no access token"))
	}
	return models.Credentials{
		AccountID:    token.OpenID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    GetExpiresAt(token.ExpiresIn),
	}, nil
}

func tiktokAPIError(e transfer.TiktokError) *ProviderError {
	retryable := e.Code == "rate_limit_exceeded" || e.Code == "internal_error"
	pe := &ProviderError{
		Platform:  models.PlatformTiktok,
		Retryable: retryable,
		Err:       fmt.Errorf("%s: %s (log_id %s)", e.Code, e.Message, e.LogID),
	}
	if e.Code == "rate_limit_exceeded" {
		pe.StatusCode = http.StatusTooManyRequests
	}
	return pe
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
