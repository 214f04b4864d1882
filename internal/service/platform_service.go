package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/models"
)

const (
	tiktokAuthURL    = "https://www.tiktok.com/v2/auth/authorize/"
	instagramAuthURL = "https://www.instagram.com/oauth/authorize"
)

// ErrNotConfigured reports a platform whose OAuth client is not set up.
var ErrNotConfigured = errors.New("platform oauth client is not configured")

// PlatformService runs the OAuth connect flow for the publishing accounts.
type PlatformService struct {
	cfg       *config.Config
	settings  *SettingsService
	youtube   *YoutubeService
	tiktok    *TiktokService
	instagram *InstagramService
}

func NewPlatformService(cfg *config.Config, settings *SettingsService, yt *YoutubeService, tt *TiktokService, ig *InstagramService) *PlatformService {
	return &PlatformService{cfg: cfg, settings: settings, youtube: yt, tiktok: tt, instagram: ig}
}

// GetAuthURL returns the consent page the operator opens to link platform.
func (s *PlatformService) GetAuthURL(platform, state string) (string, error) {
	switch platform {
	case models.PlatformYoutube:
		if s.cfg.GoogleClientID == "" || s.youtube == nil {
			return "", fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		return s.youtube.AuthURL(state), nil

	case models.PlatformTiktok:
		if s.cfg.TiktokClientKey == "" {
			return "", fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		params := url.Values{}
		params.Add("client_key", s.cfg.TiktokClientKey)
		params.Add("scope", "user.info.basic,video.publish,video.upload")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.TiktokRedirectURI)
		params.Add("state", state)
		return tiktokAuthURL + "?" + params.Encode(), nil

	case models.PlatformInstagram:
		if s.cfg.InstagramClientID == "" {
			return "", fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		params := url.Values{}
		params.Add("client_id", s.cfg.InstagramClientID)
		params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.InstagramRedirectURI)
		params.Add("state", state)
		return instagramAuthURL + "?" + params.Encode(), nil
	}
	return "", ErrUnknownPlatform
}

// Connect exchanges an authorization code and links the resulting account.
func (s *PlatformService) Connect(ctx context.Context, platform, code string) (models.Credentials, error) {
	if code == "" {
		return models.Credentials{}, errors.New("missing authorization code")
	}

	var (
		creds models.Credentials
		err   error
	)
	switch platform {
	case models.PlatformYoutube:
		if s.youtube == nil {
			return creds, fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		creds, err = s.youtube.Exchange(ctx, code)
	case models.PlatformTiktok:
		if s.tiktok == nil {
			return creds, fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		creds, err = s.tiktok.Exchange(ctx, code)
	case models.PlatformInstagram:
		if s.instagram == nil {
			return creds, fmt.Errorf("%s: %w", platform, ErrNotConfigured)
		}
		creds, err = s.instagram.Exchange(ctx, InstagramApp{
			ClientID:     s.cfg.InstagramClientID,
			ClientSecret: s.cfg.InstagramClientSecret,
			RedirectURI:  s.cfg.InstagramRedirectURI,
		}, code)
	default:
		return creds, ErrUnknownPlatform
	}
	if err != nil {
		return creds, fmt.Errorf("exchange %s code: %w", platform, err)
	}

	if err := s.settings.LinkAccount(ctx, platform, "", creds); err != nil {
		return creds, err
	}
	return creds, nil
}
