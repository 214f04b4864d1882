package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/app"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
	"github.com/maheshrc27/clipcast/internal/scheduler"
	"github.com/maheshrc27/clipcast/internal/service"
)

const testKey = "operator-test-key"

func newServer(t *testing.T) *fiber.App {
	t.Helper()
	cfg := config.LoadConfig()
	cfg.StoreDriver = "memory"
	cfg.RedisURI = ""
	cfg.R2 = config.R2{}
	cfg.OperatorAPIKey = testKey
	cfg.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.TiktokClientKey = "client-key"
	cfg.InstagramClientID = ""
	cfg.GoogleClientID = ""
	cfg.ExecutionGap = 0

	a, err := app.Build(context.Background(), cfg, logging.Nop(), memory.New().Repositories(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return New(a, false)
}

func do(t *testing.T, server *fiber.App, method, path string, body any, auth map[string]string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range auth {
		req.Header.Set(k, v)
	}
	resp, err := server.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

var withKey = map[string]string{"X-API-Key": testKey}

func TestAuth(t *testing.T) {
	server := newServer(t)

	if code, _ := do(t, server, http.MethodGet, "/healthz", nil, nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no credentials = %d, want 401", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs", nil, map[string]string{"X-API-Key": "nope"}); code != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d, want 401", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs?api_key="+testKey, nil, nil); code != http.StatusOK {
		t.Fatalf("query key = %d, want 200", code)
	}

	code, body := do(t, server, http.MethodPost, "/api/auth/token", map[string]string{"operator": "alice"}, withKey)
	if code != http.StatusOK {
		t.Fatalf("issue token = %d: %s", code, body)
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.Token == "" {
		t.Fatalf("token body = %s, %v", body, err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + tok.Token}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs", nil, bearer); code != http.StatusOK {
		t.Fatalf("bearer = %d, want 200", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs", nil, map[string]string{"Authorization": "Bearer junk"}); code != http.StatusUnauthorized {
		t.Fatalf("bad bearer = %d, want 401", code)
	}
}

func TestEnqueueTickAndDiagnose(t *testing.T) {
	server := newServer(t)

	code, body := do(t, server, http.MethodPost, "/api/jobs", map[string]any{
		"platform":   "tiktok",
		"content_id": "clip-1",
		"video_ref":  "https://cdn.example/clip-1.mp4",
		"caption":    "hello",
	}, withKey)
	if code != http.StatusCreated {
		t.Fatalf("enqueue = %d: %s", code, body)
	}
	var job models.PublishJob
	if err := json.Unmarshal(body, &job); err != nil || job.ID == "" || job.ContentHash == "" {
		t.Fatalf("job = %+v, %v", job, err)
	}

	if code, _ := do(t, server, http.MethodPost, "/api/jobs", map[string]any{"platform": "myspace", "content_id": "x", "video_ref": "y"}, withKey); code != http.StatusBadRequest {
		t.Fatalf("unknown platform enqueue = %d, want 400", code)
	}

	code, body = do(t, server, http.MethodPost, "/api/tick", nil, withKey)
	if code != http.StatusOK {
		t.Fatalf("tick = %d: %s", code, body)
	}
	var report scheduler.TickReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("tick body: %v", err)
	}
	if len(report.Items) != 0 || report.Held[models.PlatformTiktok] != "no credentials" {
		t.Fatalf("tick = %+v, want tiktok held for missing credentials", report)
	}

	code, body = do(t, server, http.MethodGet, "/api/jobs/"+job.ID, nil, withKey)
	if code != http.StatusOK || !strings.Contains(string(body), `"status":"pending"`) {
		t.Fatalf("get job = %d: %s", code, body)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/jobs/missing", nil, withKey); code != http.StatusNotFound {
		t.Fatalf("missing job = %d, want 404", code)
	}

	code, body = do(t, server, http.MethodGet, "/api/diagnostics", nil, withKey)
	if code != http.StatusOK {
		t.Fatalf("diagnostics = %d: %s", code, body)
	}
	var diag []service.PlatformDiagnosis
	if err := json.Unmarshal(body, &diag); err != nil {
		t.Fatalf("diagnostics body: %v", err)
	}
	found := false
	for _, d := range diag {
		if d.Platform == models.PlatformTiktok {
			found = true
			if d.Pending != 1 || d.CredentialsPresent {
				t.Fatalf("tiktok diagnosis = %+v", d)
			}
		}
	}
	if !found {
		t.Fatal("no tiktok diagnosis")
	}
}

func TestSettingsAndAccounts(t *testing.T) {
	server := newServer(t)

	code, body := do(t, server, http.MethodPut, "/api/settings/youtube", map[string]any{
		"daily_limit":   2,
		"post_interval": "90m",
	}, withKey)
	if code != http.StatusOK {
		t.Fatalf("update = %d: %s", code, body)
	}
	var ps models.PlatformSettings
	if err := json.Unmarshal(body, &ps); err != nil || ps.DailyLimit != 2 || !ps.Enabled {
		t.Fatalf("settings = %+v, %v", ps, err)
	}
	if code, _ := do(t, server, http.MethodPut, "/api/settings/youtube", map[string]any{"post_interval": "10s"}, withKey); code != http.StatusBadRequest {
		t.Fatalf("short interval = %d, want 400", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/settings/friendster", nil, withKey); code != http.StatusBadRequest {
		t.Fatalf("unknown platform = %d, want 400", code)
	}

	code, body = do(t, server, http.MethodPost, "/api/accounts/instagram", map[string]any{
		"account_id":   "178",
		"account_name": "clips",
		"access_token": "secret-token",
	}, withKey)
	if code != http.StatusCreated || strings.Contains(string(body), "secret-token") {
		t.Fatalf("link = %d: %s", code, body)
	}
}

func TestControlValidation(t *testing.T) {
	server := newServer(t)

	if code, _ := do(t, server, http.MethodPost, "/api/jobs/post-now", map[string]any{"ids": []string{}}, withKey); code != http.StatusBadRequest {
		t.Fatalf("empty ids = %d, want 400", code)
	}
	code, body := do(t, server, http.MethodPost, "/api/jobs/post-now", map[string]any{"ids": []string{"nope"}}, withKey)
	if code != http.StatusOK || !strings.Contains(string(body), "job not found") {
		t.Fatalf("post-now = %d: %s", code, body)
	}
	if code, _ := do(t, server, http.MethodPost, "/api/refill/vine", map[string]int{"want": 2}, withKey); code != http.StatusBadRequest {
		t.Fatalf("unknown platform refill = %d, want 400", code)
	}
	code, body = do(t, server, http.MethodPost, "/api/refill/tiktok", map[string]int{"want": 2}, withKey)
	if code != http.StatusOK || !strings.Contains(string(body), `"fetched":0`) {
		t.Fatalf("refill = %d: %s", code, body)
	}
}

func TestOAuthConnect(t *testing.T) {
	server := newServer(t)

	code, body := do(t, server, http.MethodGet, "/api/accounts/tiktok/connect", nil, withKey)
	if code != http.StatusOK {
		t.Fatalf("connect = %d: %s", code, body)
	}
	var out struct {
		AuthURL string `json:"auth_url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, err := url.Parse(out.AuthURL)
	if err != nil || u.Query().Get("client_key") != "client-key" {
		t.Fatalf("auth_url = %q, %v", out.AuthURL, err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("auth_url carries no state")
	}

	if code, _ := do(t, server, http.MethodGet, "/api/accounts/instagram/connect", nil, withKey); code != http.StatusNotImplemented {
		t.Fatalf("unconfigured connect = %d, want 501", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/api/accounts/tiktok/connect", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous connect = %d, want 401", code)
	}

	// The callback is public but needs a state minted for the same platform.
	if code, _ := do(t, server, http.MethodGet, "/auth/youtube/callback?code=c&state="+url.QueryEscape(state), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("cross-platform state = %d, want 401", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/auth/tiktok/callback?code=c&state=garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad state = %d, want 401", code)
	}
	if code, _ := do(t, server, http.MethodGet, "/auth/tiktok/callback?error=access_denied", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("denied = %d, want 400", code)
	}
	// A state token never authenticates the operator API.
	if code, _ := do(t, server, http.MethodGet, "/api/settings", nil, map[string]string{"Authorization": "Bearer " + state}); code != http.StatusUnauthorized {
		t.Fatalf("state as bearer = %d, want 401", code)
	}
}
