package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/pkg/utils"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// Snapshot is the settings and decrypted credentials for every platform,
// read once per scheduler tick.
type Snapshot struct {
	Settings    map[string]models.PlatformSettings
	Credentials map[string]models.Credentials
	// Errors holds per-platform credential failures; those platforms are
	// treated as having no credentials.
	Errors map[string]error
}

func (s *Snapshot) For(platform string) (models.PlatformSettings, models.Credentials) {
	return s.Settings[platform], s.Credentials[platform]
}

type SettingsService struct {
	settings repository.SettingsRepository
	accounts repository.SocialAccountRepository
	cfg      *config.Config
}

func NewSettingsService(settings repository.SettingsRepository, accounts repository.SocialAccountRepository, cfg *config.Config) *SettingsService {
	return &SettingsService{settings: settings, accounts: accounts, cfg: cfg}
}

func (s *SettingsService) defaults(platform string) models.PlatformSettings {
	return models.PlatformSettings{
		Platform:        platform,
		Enabled:         true,
		DailyLimit:      s.cfg.DefaultDailyLimit,
		TargetQueueSize: s.cfg.DefaultTargetQueue,
		PostInterval:    s.cfg.DefaultPostInterval,
	}
}

func (s *SettingsService) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Settings:    make(map[string]models.PlatformSettings, len(models.Platforms)),
		Credentials: make(map[string]models.Credentials, len(models.Platforms)),
		Errors:      make(map[string]error),
	}
	stored, err := s.settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for _, p := range models.Platforms {
		snap.Settings[p] = s.defaults(p)
	}
	for _, ps := range stored {
		snap.Settings[ps.Platform] = *ps
	}

	for _, p := range models.Platforms {
		creds, err := s.Credentials(ctx, p)
		if err != nil {
			snap.Errors[p] = err
			continue
		}
		snap.Credentials[p] = creds
	}
	return snap, nil
}

func (s *SettingsService) Get(ctx context.Context, platform string) (models.PlatformSettings, error) {
	if !models.IsKnownPlatform(platform) {
		return models.PlatformSettings{}, ErrUnknownPlatform
	}
	ps, err := s.settings.Get(ctx, platform)
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaults(platform), nil
	}
	if err != nil {
		return models.PlatformSettings{}, err
	}
	return *ps, nil
}

func (s *SettingsService) Update(ctx context.Context, ps models.PlatformSettings) error {
	if !models.IsKnownPlatform(ps.Platform) {
		return ErrUnknownPlatform
	}
	if ps.DailyLimit < 0 || ps.TargetQueueSize < 0 {
		return errors.New("daily_limit and target_queue_size must not be negative")
	}
	if ps.PostInterval < time.Minute {
		return errors.New("post_interval must be at least one minute")
	}
	return s.settings.Upsert(ctx, &ps)
}

// Credentials returns the decrypted credentials for platform; the zero value
// when no account is linked.
func (s *SettingsService) Credentials(ctx context.Context, platform string) (models.Credentials, error) {
	acc, err := s.accounts.GetByPlatform(ctx, platform)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Credentials{}, nil
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("load %s account: %w", platform, err)
	}
	access, err := s.open(acc.AccessToken)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("decrypt %s access token: %w", platform, err)
	}
	refresh, err := s.open(acc.RefreshToken)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("decrypt %s refresh token: %w", platform, err)
	}
	return models.Credentials{
		AccountID:    acc.AccountID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    acc.TokenExpiresAt,
	}, nil
}

// LinkAccount stores an account's credentials, encrypting the tokens.
func (s *SettingsService) LinkAccount(ctx context.Context, platform, accountName string, creds models.Credentials) error {
	if !models.IsKnownPlatform(platform) {
		return ErrUnknownPlatform
	}
	access, err := s.seal(creds.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(creds.RefreshToken)
	if err != nil {
		return err
	}
	return s.accounts.Upsert(ctx, &models.SocialAccount{
		Platform:       platform,
		AccountID:      creds.AccountID,
		AccountName:    accountName,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: creds.ExpiresAt,
	})
}

func (s *SettingsService) StoreTokens(ctx context.Context, platform string, creds models.Credentials) error {
	access, err := s.seal(creds.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(creds.RefreshToken)
	if err != nil {
		return err
	}
	return s.accounts.SetToken(ctx, platform, access, refresh, creds.ExpiresAt)
}

// Tokens are stored in the clear when no SECRET_KEY is configured.
func (s *SettingsService) seal(plain string) (string, error) {
	if plain == "" || s.cfg.SecretKey == "" {
		return plain, nil
	}
	return utils.Encrypt([]byte(plain), []byte(s.cfg.SecretKey))
}

func (s *SettingsService) open(sealed string) (string, error) {
	if sealed == "" || s.cfg.SecretKey == "" {
		return sealed, nil
	}
	return utils.Decrypt(sealed, []byte(s.cfg.SecretKey))
}
