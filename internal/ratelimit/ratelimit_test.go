package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/repository/memory"
)

func TestDateKey(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	at := time.Date(2026, 7, 2, 2, 30, 0, 0, time.UTC)
	tests := []struct {
		loc  *time.Location
		want string
	}{
		{time.UTC, "2026-07-02"},
		{ny, "2026-07-01"},
		{nil, "2026-07-02"},
	}
	for _, tt := range tests {
		if got := DateKey(at, tt.loc); got != tt.want {
			t.Errorf("DateKey(%v) = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestRemainingSlots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New(memory.New().Repositories().Counters, time.UTC)

	for i := 0; i < 4; i++ {
		if _, err := l.Increment(ctx, "tiktok"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	tests := []struct {
		limit int
		want  int
	}{
		{5, 1},
		{4, 0},
		{2, 0},
		{0, 0},
	}
	for _, tt := range tests {
		got, err := l.RemainingSlots(ctx, "tiktok", tt.limit)
		if err != nil {
			t.Fatalf("RemainingSlots: %v", err)
		}
		if got != tt.want {
			t.Errorf("RemainingSlots(limit=%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
	if got, _ := l.RemainingSlots(ctx, "youtube", 5); got != 5 {
		t.Errorf("RemainingSlots(youtube) = %d, want 5", got)
	}
}

func TestCounterResetsAtMidnight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	day := time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC)
	now := day
	l := New(memory.New().Repositories().Counters, time.UTC).WithClock(func() time.Time { return now })

	if _, err := l.Increment(ctx, "instagram"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	now = day.Add(2 * time.Minute)
	if got, _ := l.RemainingSlots(ctx, "instagram", 1); got != 1 {
		t.Fatalf("RemainingSlots after midnight = %d, want 1", got)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New(memory.New().Repositories().Counters, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Increment(ctx, "youtube")
		}()
	}
	wg.Wait()
	if n, _ := l.Count(ctx, "youtube"); n != 50 {
		t.Fatalf("Count = %d, want 50", n)
	}
}
