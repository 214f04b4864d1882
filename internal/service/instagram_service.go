package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/publisher"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const (
	instagramGraphBase  = "https://graph.instagram.com"
	instagramAuthBase   = "https://api.instagram.com"
	instagramAPIVersion = "v21.0"
	instagramMaxCaption = 2200
)

// InstagramService publishes Reels through a media container: create, wait for
// the container to finish processing, then publish it.
type InstagramService struct {
	client       *http.Client
	log          logging.Logger
	base         string
	authBase     string
	pollInterval time.Duration
}

// InstagramApp is the Instagram Login app used for the code exchange.
type InstagramApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func NewInstagramService(log logging.Logger) *InstagramService {
	return &InstagramService{
		client:       &http.Client{Timeout: time.Minute},
		log:          log,
		base:         instagramGraphBase,
		authBase:     instagramAuthBase,
		pollInterval: 5 * time.Second,
	}
}

func (s *InstagramService) WithBaseURL(base string, pollInterval time.Duration) *InstagramService {
	c := *s
	c.base = strings.TrimRight(base, "/")
	c.authBase = c.base
	c.pollInterval = pollInterval
	return &c
}

func (s *InstagramService) versioned(path string) string {
	return s.base + "/" + instagramAPIVersion + path
}

func (s *InstagramService) Publish(ctx context.Context, p publisher.Payload, creds models.Credentials) (string, error) {
	if creds.AccessToken == "" || creds.AccountID == "" {
		return "", permanentError(models.PlatformInstagram, errors.New("missing account id or access token"))
	}
	if p.VideoURL == "" {
		return "", permanentError(models.PlatformInstagram, errors.New("missing video url"))
	}

	var container transfer.InstagramIDResponse
	err := s.call(ctx, http.MethodPost, s.versioned("/"+creds.AccountID+"/media"), transfer.InstagramMediaRequest{
		MediaType:   "REELS",
		VideoURL:    p.VideoURL,
		Caption:     truncateRunes(p.Caption, instagramMaxCaption),
		CoverURL:    p.ThumbnailURL,
		ShareToFeed: true,
		AccessToken: creds.AccessToken,
	}, &container)
	if err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", permanentError(models.PlatformInstagram, errors.New("no container id returned"))
	}

	if err := s.awaitContainer(ctx, container.ID, creds.AccessToken); err != nil {
		return "", err
	}

	var published transfer.InstagramIDResponse
	err = s.call(ctx, http.MethodPost, s.versioned("/"+creds.AccountID+"/media_publish"), transfer.InstagramPublishRequest{
		CreationID:  container.ID,
		AccessToken: creds.AccessToken,
	}, &published)
	if err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", permanentError(models.PlatformInstagram, errors.New("no media id returned"))
	}
	return published.ID, nil
}

func (s *InstagramService) awaitContainer(ctx context.Context, containerID, accessToken string) error {
	q := url.Values{}
	q.Set("fields", "status_code,status")
	q.Set("access_token", accessToken)
	endpoint := s.versioned("/"+containerID) + "?" + q.Encode()

	for {
		var status transfer.InstagramContainerStatus
		if err := s.call(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
			return err
		}
		switch status.StatusCode {
		case transfer.InstagramContainerFinished:
			return nil
		case transfer.InstagramContainerError, transfer.InstagramContainerExpired:
			return permanentError(models.PlatformInstagram, fmt.Errorf("container %s: %s %s", containerID, status.StatusCode, status.Status))
		}
		s.log.Debug().Str("platform", models.PlatformInstagram).Str("container", containerID).Str("status", status.StatusCode).Msg("waiting for container")
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return transientError(models.PlatformInstagram, fmt.Errorf("container %s still processing: %w", containerID, err))
		}
	}
}

// call wraps doJSON and lets Graph API's is_transient flag override the
// status-based classification.
func (s *InstagramService) call(ctx context.Context, method, endpoint string, body, out any) error {
	err := doJSON(ctx, s.client, models.PlatformInstagram, method, endpoint, nil, body, out)
	var pe *ProviderError
	if err == nil || !errors.As(err, &pe) || pe.StatusCode == 0 {
		return err
	}
	var graphErr transfer.InstagramErrorResponse
	if json.Unmarshal([]byte(pe.Err.Error()), &graphErr) == nil && graphErr.Error.Message != "" {
		pe.Err = fmt.Errorf("%s (code %d, trace %s)", graphErr.Error.Message, graphErr.Error.Code, graphErr.Error.FbtraceID)
		if graphErr.Error.IsTransient {
			pe.Retryable = true
		}
	}
	return pe
}

func (s *InstagramService) RefreshToken(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	token := creds.RefreshToken
	if token == "" {
		token = creds.AccessToken
	}
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", token)

	var result transfer.InstagramRefreshResponse
	if err := s.call(ctx, http.MethodGet, s.base+"/refresh_access_token?"+q.Encode(), nil, &result); err != nil {
		return creds, err
	}
	if result.AccessToken == "" {
		return creds, permanentError(models.PlatformInstagram, errors.New("refresh returned no access token"))
	}
	// Long-lived Instagram tokens refresh themselves.
	creds.AccessToken = result.AccessToken
	creds.RefreshToken = result.AccessToken
	creds.ExpiresAt = GetExpiresAt(result.ExpiresIn)
	return creds, nil
}

// Exchange trades an authorization code for a short-lived token and then
// upgrades it to a long-lived one.
func (s *InstagramService) Exchange(ctx context.Context, app InstagramApp, code string) (models.Credentials, error) {
	form := url.Values{}
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", app.RedirectURI)
	form.Set("code", code)

	var short transfer.InstagramShortTokenResponse
	err := s.call(ctx, http.MethodPost, s.authBase+"/oauth/access_token", formBody(form.Encode()), &short)
	if err != nil {
		return models.Credentials{}, err
	}
	if short.AccessToken == "" {
		return models.Credentials{}, permanentError(models.PlatformInstagram, errors.New("code exchange returned no access token"))
	}

	q := url.Values{}
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", app.ClientSecret)
	q.Set("access_token", short.AccessToken)
	var long transfer.InstagramRefreshResponse
	if err := s.call(ctx, http.MethodGet, s.base+"/access_token?"+q.Encode(), nil, &long); err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{
		AccountID:    short.UserID.String(),
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
		ExpiresAt:    GetExpiresAt(long.ExpiresIn),
	}, nil
}
