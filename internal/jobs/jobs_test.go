package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
)

type fakeRefresher struct {
	err error
}

func (f fakeRefresher) RefreshToken(_ context.Context, creds models.Credentials) (models.Credentials, error) {
	if f.err != nil {
		return models.Credentials{}, f.err
	}
	creds.AccessToken = "renewed-" + creds.AccessToken
	creds.ExpiresAt = time.Now().Add(24 * time.Hour)
	return creds, nil
}

type memCreds struct {
	mu     sync.Mutex
	tokens map[string]models.Credentials
}

func (m *memCreds) Credentials(_ context.Context, platform string) (models.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[platform], nil
}

func (m *memCreds) StoreTokens(_ context.Context, platform string, creds models.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[platform] = creds
	return nil
}

func TestRefreshTokens(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()
	soon := time.Now().Add(10 * time.Minute)
	for _, sa := range []*models.SocialAccount{
		{Platform: models.PlatformYoutube, AccessToken: "yt", RefreshToken: "r", TokenExpiresAt: soon},
		{Platform: models.PlatformTiktok, AccessToken: "tt", RefreshToken: "r", TokenExpiresAt: soon},
		{Platform: models.PlatformInstagram, AccessToken: "ig", RefreshToken: "r", TokenExpiresAt: time.Now().Add(48 * time.Hour)},
	} {
		if err := repos.Accounts.Upsert(ctx, sa); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	creds := &memCreds{tokens: map[string]models.Credentials{
		models.PlatformYoutube:   {AccessToken: "yt"},
		models.PlatformTiktok:    {AccessToken: "tt"},
		models.PlatformInstagram: {AccessToken: "ig"},
	}}
	j := NewTokenRefreshJob(repos.Accounts, creds, map[string]TokenRefresher{
		models.PlatformYoutube:   fakeRefresher{},
		models.PlatformTiktok:    fakeRefresher{err: errors.New("invalid_grant")},
		models.PlatformInstagram: fakeRefresher{},
	}, logging.Nop())

	if n := j.RefreshTokens(ctx); n != 1 {
		t.Fatalf("refreshed = %d, want 1", n)
	}
	if got := creds.tokens[models.PlatformYoutube].AccessToken; got != "renewed-yt" {
		t.Fatalf("youtube token = %q", got)
	}
	if got := creds.tokens[models.PlatformTiktok].AccessToken; got != "tt" {
		t.Fatalf("tiktok token changed after a failed refresh: %q", got)
	}
	if got := creds.tokens[models.PlatformInstagram].AccessToken; got != "ig" {
		t.Fatalf("instagram token refreshed too early: %q", got)
	}
}

func TestTickJobRun(t *testing.T) {
	var got context.Context
	j := NewTickJob(func(ctx context.Context) error {
		got = ctx
		return errors.New("ignored")
	}, time.Second, logging.Nop())
	j.Run()
	if got == nil {
		t.Fatal("tick not called")
	}
	if _, ok := got.Deadline(); !ok {
		t.Fatal("tick context has no deadline")
	}
}
