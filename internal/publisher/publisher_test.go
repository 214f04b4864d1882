package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/idempotency"
	"github.com/maheshrc27/clipcast/internal/lock"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/ratelimit"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
)

type fakeProvider struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	id    string
}

func (p *fakeProvider) Publish(ctx context.Context, _ Payload, _ models.Credentials) (string, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.id, nil
}

type classifiedErr struct {
	retryable, rateLimited bool
}

func (e classifiedErr) Error() string       { return "provider said no" }
func (e classifiedErr) IsRetryable() bool   { return e.retryable }
func (e classifiedErr) IsRateLimited() bool { return e.rateLimited }

func newExecutor(t *testing.T, p Provider, timeout time.Duration) (*Executor, *repository.Store) {
	t.Helper()
	repos := memory.New().Repositories()
	ex := NewExecutor(Config{
		Providers:       map[string]Provider{"tiktok": p},
		Locks:           lock.NewManager(repos.Locks, 5*time.Minute, logging.Nop()),
		Ledger:          idempotency.NewLedger(repos.Ledger),
		Limiter:         ratelimit.New(repos.Counters, time.UTC),
		ProviderTimeout: timeout,
		Logger:          logging.Nop(),
	})
	return ex, repos
}

func request() Request {
	return Request{
		Platform:    "tiktok",
		ContentHash: "content-1",
		ScheduledAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		Payload:     Payload{VideoRef: "https://cdn.example/v.mp4", Caption: "hi"},
	}
}

func TestPostOnceSuccess(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "ext-1"}
	ex, repos := newExecutor(t, p, time.Second)
	ctx := context.Background()

	res := ex.PostOnce(ctx, request())
	if !res.Success || res.ExternalPostID != "ext-1" || res.Kind != KindNone {
		t.Fatalf("PostOnce = %+v", res)
	}
	rec, err := repos.Ledger.Get(ctx, res.Key)
	if err != nil || rec.Status != models.LedgerStatusPosted || rec.ExternalPostID != "ext-1" {
		t.Fatalf("ledger = %+v, %v", rec, err)
	}
	if n, _ := repos.Counters.Get(ctx, "tiktok", ratelimit.DateKey(time.Now(), time.UTC)); n != 1 {
		t.Fatalf("daily count = %d, want 1", n)
	}
	if _, err := repos.Locks.Get(ctx, res.Key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("lock still present after PostOnce: %v", err)
	}
}

func TestPostOnceConcurrentSingleProviderCall(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "ext-1", delay: 50 * time.Millisecond}
	ex, _ := newExecutor(t, p, time.Second)

	const workers = 8
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ex.PostOnce(context.Background(), request())
		}(i)
	}
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	successes := 0
	for _, r := range results {
		switch {
		case r.Success:
			successes++
		case r.Deduped:
		default:
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
}

func TestPostOnceAlreadyPosted(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "ext-1"}
	ex, _ := newExecutor(t, p, time.Second)
	ctx := context.Background()

	first := ex.PostOnce(ctx, request())
	second := ex.PostOnce(ctx, request())
	if !first.Success {
		t.Fatalf("first = %+v", first)
	}
	if !second.Deduped || second.Reason != ReasonAlreadyDone || second.ExternalPostID != "ext-1" {
		t.Fatalf("second = %+v, want deduped with ext-1", second)
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestPostOnceLockedByOther(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "ext-1"}
	ex, repos := newExecutor(t, p, time.Second)
	ctx := context.Background()

	other := lock.NewManager(repos.Locks, 5*time.Minute, logging.Nop())
	if _, ok, err := other.Acquire(ctx, ex.Key(request())); err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	res := ex.PostOnce(ctx, request())
	if !res.Deduped || res.Reason != ReasonLocked || res.Kind != KindLockContention {
		t.Fatalf("PostOnce = %+v, want locked", res)
	}
	if p.calls.Load() != 0 {
		t.Fatal("provider called while lock held elsewhere")
	}
}

func TestPostOnceFailureClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"transient", classifiedErr{retryable: true}, KindProviderTransient, true},
		{"permanent", classifiedErr{}, KindProviderPermanent, false},
		{"rate limited", classifiedErr{retryable: true, rateLimited: true}, KindRateLimited, true},
		{"unclassified", errors.New("connection reset"), KindProviderTransient, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex, repos := newExecutor(t, &fakeProvider{err: tt.err}, time.Second)
			ctx := context.Background()

			res := ex.PostOnce(ctx, request())
			if res.Success || res.Deduped || res.Kind != tt.kind || res.Retryable != tt.retryable {
				t.Fatalf("PostOnce = %+v, want kind %s retryable %v", res, tt.kind, tt.retryable)
			}
			rec, err := repos.Ledger.Get(ctx, res.Key)
			if err != nil || rec.Status != models.LedgerStatusFailed || rec.Error == "" {
				t.Fatalf("ledger = %+v, %v; want failed with error", rec, err)
			}
			if _, err := repos.Locks.Get(ctx, res.Key); !errors.Is(err, repository.ErrNotFound) {
				t.Fatal("lock not released after failure")
			}
		})
	}
}

func TestPostOnceRetryAfterFailure(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{err: classifiedErr{retryable: true}}
	ex, _ := newExecutor(t, p, time.Second)
	ctx := context.Background()

	if res := ex.PostOnce(ctx, request()); res.Success {
		t.Fatalf("first = %+v, want failure", res)
	}
	p.err, p.id = nil, "ext-2"
	res := ex.PostOnce(ctx, request())
	if !res.Success || res.ExternalPostID != "ext-2" {
		t.Fatalf("retry = %+v, want success", res)
	}
}

func TestPostOnceProviderTimeout(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "late", delay: time.Second}
	ex, repos := newExecutor(t, p, 20*time.Millisecond)
	ctx := context.Background()

	res := ex.PostOnce(ctx, request())
	if res.Success || !res.Retryable || res.Kind != KindProviderTransient {
		t.Fatalf("PostOnce = %+v, want transient failure", res)
	}
	rec, _ := repos.Ledger.Get(ctx, res.Key)
	if rec == nil || rec.Status != models.LedgerStatusFailed {
		t.Fatalf("ledger = %+v, want failed", rec)
	}
}

func TestPostOnceUnknownPlatform(t *testing.T) {
	t.Parallel()
	ex, _ := newExecutor(t, &fakeProvider{}, time.Second)
	req := request()
	req.Platform = "myspace"
	res := ex.PostOnce(context.Background(), req)
	if res.Success || res.Retryable || res.Reason != ReasonNoProvider {
		t.Fatalf("PostOnce = %+v", res)
	}
}

func TestPostOnceOutlivesCallerDeadline(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{id: "ext-late", delay: 200 * time.Millisecond}
	ex, repos := newExecutor(t, p, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res := ex.PostOnce(ctx, request())
	if !res.Success || res.ExternalPostID != "ext-late" {
		t.Fatalf("PostOnce = %+v, want success after the caller's deadline", res)
	}
	if calls := p.calls.Load(); calls != 1 {
		t.Fatalf("provider calls = %d, want 1", calls)
	}
	rec, err := repos.Ledger.Get(context.Background(), res.Key)
	if err != nil || rec == nil || rec.Status != models.LedgerStatusPosted {
		t.Fatalf("ledger = %+v, %v; want posted", rec, err)
	}
}
