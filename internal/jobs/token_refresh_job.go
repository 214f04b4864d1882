package job

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

type TokenRefresher interface {
	RefreshToken(ctx context.Context, creds models.Credentials) (models.Credentials, error)
}

type CredentialStore interface {
	Credentials(ctx context.Context, platform string) (models.Credentials, error)
	StoreTokens(ctx context.Context, platform string, creds models.Credentials) error
}

// TokenRefreshJob renews platform tokens shortly before they expire.
type TokenRefreshJob struct {
	accounts   repository.SocialAccountRepository
	creds      CredentialStore
	refreshers map[string]TokenRefresher
	lead       time.Duration
	log        logging.Logger
	now        func() time.Time
}

func NewTokenRefreshJob(
	accounts repository.SocialAccountRepository,
	creds CredentialStore,
	refreshers map[string]TokenRefresher,
	log logging.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts:   accounts,
		creds:      creds,
		refreshers: refreshers,
		lead:       30 * time.Minute,
		log:        log,
		now:        time.Now,
	}
}

func (j *TokenRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	j.RefreshTokens(ctx)
}

// RefreshTokens returns the number of accounts refreshed.
func (j *TokenRefreshJob) RefreshTokens(ctx context.Context) int {
	accounts, err := j.accounts.ListExpiring(ctx, j.now().Add(j.lead))
	if err != nil {
		j.log.Error().Err(err).Msg("list expiring accounts")
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)
	semaphore := make(chan struct{}, 10)

	for _, acc := range accounts {
		refresher, ok := j.refreshers[acc.Platform]
		if !ok {
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(platform string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			log := j.log.With().Str("platform", platform).Logger()
			current, err := j.creds.Credentials(ctx, platform)
			if err != nil {
				log.Error().Err(err).Msg("load credentials for refresh")
				return
			}
			fresh, err := refresher.RefreshToken(ctx, current)
			if err != nil {
				log.Warn().Err(err).Msg("token refresh failed")
				return
			}
			if err := j.creds.StoreTokens(ctx, platform, fresh); err != nil {
				log.Error().Err(err).Msg("store refreshed token")
				return
			}
			log.Info().Time("expires_at", fresh.ExpiresAt).Msg("token refreshed")
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(acc.Platform)
	}
	wg.Wait()
	return refreshed
}
