package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

func TestClaimIsSingleWinner(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	now := time.Now()

	job := &models.PublishJob{ID: "j1", Platform: "tiktok", ScheduledAt: now}
	if err := repos.Jobs.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := repos.Jobs.Claim(ctx, "j1", now)
	if err != nil || !first {
		t.Fatalf("first Claim = %v, %v; want true", first, err)
	}
	second, err := repos.Jobs.Claim(ctx, "j1", now)
	if err != nil || second {
		t.Fatalf("second Claim = %v, %v; want false", second, err)
	}
}

func TestTransitionsRequireProcessing(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	now := time.Now()

	if err := repos.Jobs.Create(ctx, &models.PublishJob{ID: "j1", Platform: "youtube", ScheduledAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repos.Jobs.MarkPosted(ctx, "j1", "ext", now); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("MarkPosted on pending = %v, want ErrConflict", err)
	}
}

func TestListDueHonoursBackoffAndOrder(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(10 * time.Minute)

	for _, j := range []*models.PublishJob{
		{ID: "b", Platform: "tiktok", ScheduledAt: now.Add(-time.Minute)},
		{ID: "a", Platform: "tiktok", ScheduledAt: now.Add(-time.Hour)},
		{ID: "gated", Platform: "tiktok", ScheduledAt: now.Add(-2 * time.Hour), NotBefore: &later},
		{ID: "future", Platform: "tiktok", ScheduledAt: now.Add(time.Hour)},
		{ID: "other", Platform: "youtube", ScheduledAt: now.Add(-3 * time.Hour)},
	} {
		if err := repos.Jobs.Create(ctx, j); err != nil {
			t.Fatalf("Create %s: %v", j.ID, err)
		}
	}
	// Create ignores NotBefore like the SQL insert does; set it through a transition.
	if _, err := repos.Jobs.Claim(ctx, "gated", now); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := repos.Jobs.MarkPending(ctx, "gated", 1, "boom", &later, now); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}

	due, err := repos.Jobs.ListDue(ctx, []string{"tiktok"}, now.Add(3*time.Minute), now, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 2 || due[0].ID != "a" || due[1].ID != "b" {
		ids := make([]string, 0, len(due))
		for _, j := range due {
			ids = append(ids, j.ID)
		}
		t.Fatalf("ListDue ids = %v, want [a b]", ids)
	}
}

func TestLedgerNeverOverwritesPosted(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	now := time.Now()

	rec, err := repos.Ledger.UpsertPosting(ctx, &models.IdempotencyRecord{IdempotencyKey: "k", FenceToken: 1, UpdatedAt: now})
	if err != nil || rec.Status != models.LedgerStatusPosting {
		t.Fatalf("UpsertPosting = %+v, %v", rec, err)
	}
	ok, err := repos.Ledger.Finalize(ctx, "k", 1, models.LedgerStatusPosted, "ext-1", "", now)
	if err != nil || !ok {
		t.Fatalf("Finalize = %v, %v", ok, err)
	}
	rec, err = repos.Ledger.UpsertPosting(ctx, &models.IdempotencyRecord{IdempotencyKey: "k", FenceToken: 5, UpdatedAt: now})
	if err != nil {
		t.Fatalf("UpsertPosting: %v", err)
	}
	if rec.Status != models.LedgerStatusPosted || rec.ExternalPostID != "ext-1" || rec.FenceToken != 1 {
		t.Fatalf("posted row was modified: %+v", rec)
	}
}

func TestLedgerRejectsStaleFence(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	now := time.Now()

	if _, err := repos.Ledger.UpsertPosting(ctx, &models.IdempotencyRecord{IdempotencyKey: "k", FenceToken: 7, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertPosting: %v", err)
	}
	rec, err := repos.Ledger.UpsertPosting(ctx, &models.IdempotencyRecord{IdempotencyKey: "k", FenceToken: 3, UpdatedAt: now})
	if err != nil {
		t.Fatalf("UpsertPosting: %v", err)
	}
	if rec.FenceToken != 7 {
		t.Fatalf("FenceToken = %d, want 7", rec.FenceToken)
	}
	ok, err := repos.Ledger.Finalize(ctx, "k", 3, models.LedgerStatusFailed, "", "late", now)
	if err != nil || ok {
		t.Fatalf("stale Finalize = %v, %v; want false", ok, err)
	}
}

func TestLockTakeoverAfterExpiry(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tok1, ok, err := repos.Locks.Acquire(ctx, "k", "a", 5*time.Minute, t0)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if _, ok, _ := repos.Locks.Acquire(ctx, "k", "b", 5*time.Minute, t0.Add(4*time.Minute)); ok {
		t.Fatal("acquired a live lock")
	}
	tok2, ok, err := repos.Locks.Acquire(ctx, "k", "b", 5*time.Minute, t0.Add(6*time.Minute))
	if err != nil || !ok {
		t.Fatalf("takeover Acquire = %v, %v", ok, err)
	}
	if tok2 <= tok1 {
		t.Fatalf("token %d not greater than %d", tok2, tok1)
	}
	// The crashed holder's release must not remove the new holder's lock.
	if err := repos.Locks.Release(ctx, "k", tok1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	cur, err := repos.Locks.Get(ctx, "k")
	if err != nil || cur.Token != tok2 {
		t.Fatalf("lock after stale release = %+v, %v", cur, err)
	}
}

func TestSignaturesNewestFirst(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		err := repos.Signatures.Append(ctx, &models.RecentPostSignature{
			Platform:       "instagram",
			ExternalPostID: string(rune('a' + i)),
			PostedAt:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	sigs, err := repos.Signatures.ListRecent(ctx, "instagram", 3)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(sigs) != 3 || sigs[0].ExternalPostID != "e" || sigs[2].ExternalPostID != "c" {
		t.Fatalf("unexpected order: %+v", sigs)
	}
}
