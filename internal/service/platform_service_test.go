package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
)

func TestGetAuthURL(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.TiktokClientKey = "tk"
	cfg.TiktokRedirectURI = "https://ops/auth/tiktok/callback"
	cfg.GoogleClientID = "gid"
	cfg.GoogleRedirectURI = "https://ops/auth/youtube/callback"

	svc := NewPlatformService(cfg, nil, NewYoutubeService(cfg, logging.Nop()), NewTiktokService(cfg, logging.Nop()), nil)

	tests := []struct {
		platform string
		want     map[string]string
		err      error
	}{
		{models.PlatformTiktok, map[string]string{"client_key": "tk", "state": "s1", "redirect_uri": cfg.TiktokRedirectURI}, nil},
		{models.PlatformYoutube, map[string]string{"client_id": "gid", "state": "s1", "access_type": "offline"}, nil},
		{models.PlatformInstagram, nil, ErrNotConfigured},
		{"myspace", nil, ErrUnknownPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			raw, err := svc.GetAuthURL(tt.platform, "s1")
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("GetAuthURL err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetAuthURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse %q: %v", raw, err)
			}
			for k, v := range tt.want {
				if got := u.Query().Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestConnectTiktokLinksAccount(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "abc" {
			t.Errorf("form = %v", r.Form)
		}
		w.Write([]byte(`{"open_id":"open-1","access_token":"acc","refresh_token":"ref","expires_in":86400}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.TiktokClientKey = "tk"
	repos := memory.New().Repositories()
	settings := NewSettingsService(repos.Settings, repos.Accounts, cfg)
	tiktok := NewTiktokService(cfg, logging.Nop()).WithBaseURL(srv.URL, time.Millisecond)
	svc := NewPlatformService(cfg, settings, nil, tiktok, nil)

	creds, err := svc.Connect(context.Background(), models.PlatformTiktok, "abc")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if creds.AccountID != "open-1" {
		t.Fatalf("AccountID = %q", creds.AccountID)
	}
	stored, err := settings.Credentials(context.Background(), models.PlatformTiktok)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if stored.AccessToken != "acc" || stored.RefreshToken != "ref" {
		t.Fatalf("stored creds = %+v", stored)
	}
}

func TestInstagramExchangeUpgradesToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/oauth/access_token":
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm: %v", err)
			}
			if r.Form.Get("code") != "xyz" || r.Form.Get("client_id") != "igid" {
				t.Errorf("form = %v", r.Form)
			}
			w.Write([]byte(`{"access_token":"short","user_id":17841400000000001,"permissions":["instagram_business_basic"]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/access_token":
			if r.URL.Query().Get("grant_type") != "ig_exchange_token" || r.URL.Query().Get("access_token") != "short" {
				t.Errorf("query = %v", r.URL.Query())
			}
			w.Write([]byte(`{"access_token":"long","token_type":"bearer","expires_in":5184000}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	svc := NewInstagramService(logging.Nop()).WithBaseURL(srv.URL, time.Millisecond)
	creds, err := svc.Exchange(context.Background(), InstagramApp{ClientID: "igid", ClientSecret: "s"}, "xyz")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if creds.AccountID != "17841400000000001" || creds.AccessToken != "long" {
		t.Fatalf("creds = %+v", creds)
	}
	if time.Until(creds.ExpiresAt) < 59*24*time.Hour {
		t.Fatalf("ExpiresAt = %v", creds.ExpiresAt)
	}
}

func TestConnectRejectsEmptyCode(t *testing.T) {
	t.Parallel()
	svc := NewPlatformService(testConfig(), nil, nil, nil, nil)
	if _, err := svc.Connect(context.Background(), models.PlatformTiktok, ""); err == nil || !strings.Contains(err.Error(), "code") {
		t.Fatalf("Connect(empty) = %v", err)
	}
}
