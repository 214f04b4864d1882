package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestAcquireRespectsTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New().Repositories().Locks
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}

	crashed := NewManager(repo, 5*time.Minute, logging.Nop(), WithClock(clock.Now), WithHolder("a"))
	other := NewManager(repo, 5*time.Minute, logging.Nop(), WithClock(clock.Now), WithHolder("b"))

	first, ok, err := crashed.Acquire(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}

	clock.Set(t0.Add(4*time.Minute + 59*time.Second))
	if _, ok, err := other.Acquire(ctx, "k"); err != nil || ok {
		t.Fatalf("Acquire at 4m59s = %v, %v; want false", ok, err)
	}

	clock.Set(t0.Add(5*time.Minute + time.Second))
	second, ok, err := other.Acquire(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Acquire at 5m01s = %v, %v; want true", ok, err)
	}
	if second.Token <= first.Token {
		t.Fatalf("token %d did not increase past %d", second.Token, first.Token)
	}

	// The expired holder releasing late must not free the new lease.
	crashed.Release(ctx, first)
	if _, ok, _ := crashed.Acquire(ctx, "k"); ok {
		t.Fatal("stale release freed the current lease")
	}
}

func TestTokensMonotonicAcrossKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(memory.New().Repositories().Locks, time.Minute, logging.Nop())

	var last int64
	for _, key := range []string{"a", "b", "c", "a"} {
		lease, ok, err := m.Acquire(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Acquire(%s) = %v, %v", key, ok, err)
		}
		if lease.Token <= last {
			t.Fatalf("Acquire(%s) token = %d, want > %d", key, lease.Token, last)
		}
		last = lease.Token
		m.Release(ctx, lease)
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(memory.New().Repositories().Locks, time.Minute, logging.Nop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := m.Acquire(ctx, "k"); err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}
}

func TestWithLockReleases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager(memory.New().Repositories().Locks, time.Minute, logging.Nop())

	boom := errors.New("boom")
	err := m.WithLock(ctx, "k", func(Lease) error {
		if err := m.WithLock(ctx, "k", func(Lease) error { return nil }); !errors.Is(err, ErrNotHeld) {
			t.Errorf("nested WithLock = %v, want ErrNotHeld", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithLock = %v, want boom", err)
	}
	if _, ok, _ := m.Acquire(ctx, "k"); !ok {
		t.Fatal("lock not released after WithLock")
	}
}
