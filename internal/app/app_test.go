package app

import (
	"context"
	"testing"
	"time"

	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

func memoryConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.StoreDriver = "memory"
	cfg.RedisURI = ""
	cfg.R2 = config.R2{}
	cfg.TiktokClientKey = "client-key"
	cfg.GoogleClientID = ""
	cfg.ExecutionGap = 0
	return cfg
}

func TestNewMemoryApp(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Queue != nil {
		t.Fatal("queue client built without REDIS_URI")
	}
	if !a.Executor.HasProvider(models.PlatformTiktok) || !a.Executor.HasProvider(models.PlatformInstagram) {
		t.Fatal("expected tiktok and instagram providers")
	}
	if a.Executor.HasProvider(models.PlatformYoutube) {
		t.Fatal("youtube provider registered without Google credentials")
	}
	if len(a.TokenRefreshers()) != len(models.Platforms) {
		t.Fatal("missing token refreshers")
	}

	// No credentials are linked, so the tick leaves the job pending.
	job, err := a.Jobs.Enqueue(ctx, &transfer.JobCreation{
		Platform:  models.PlatformTiktok,
		ContentID: "c1",
		VideoRef:  "https://cdn.example/c1.mp4",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := a.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got, err := a.Jobs.Get(ctx, job.ID)
	if err != nil || got.Status != models.JobStatusPending {
		t.Fatalf("job after tick = %+v, %v", got, err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.LockTTL = time.Minute
	cfg.ProviderTimeout = 2 * time.Minute
	if _, err := New(context.Background(), cfg, logging.Nop()); err == nil {
		t.Fatal("New accepted LOCK_TTL <= PROVIDER_TIMEOUT")
	}
}
