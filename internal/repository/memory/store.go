// Package memory provides mutex-guarded in-process repositories with the same
// conditional-write semantics as the Postgres ones. It backs STORE_DRIVER=memory
// and the pipeline tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

type Store struct {
	mu         sync.Mutex
	jobs       map[string]*models.PublishJob
	ledger     map[string]*models.IdempotencyRecord
	locks      map[string]*models.Lock
	fenceSeq   int64
	counters   map[string]int
	signatures []*models.RecentPostSignature
	sigSeq     int64
	settings   map[string]*models.PlatformSettings
	accounts   map[string]*models.SocialAccount
	accountSeq int64
}

func New() *Store {
	return &Store{
		jobs:     make(map[string]*models.PublishJob),
		ledger:   make(map[string]*models.IdempotencyRecord),
		locks:    make(map[string]*models.Lock),
		counters: make(map[string]int),
		settings: make(map[string]*models.PlatformSettings),
		accounts: make(map[string]*models.SocialAccount),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Jobs:       jobs{s},
		Ledger:     ledger{s},
		Locks:      locks{s},
		Counters:   counters{s},
		Signatures: signatures{s},
		Settings:   settings{s},
		Accounts:   accounts{s},
	}
}

type jobs struct{ s *Store }

func copyJob(j *models.PublishJob) *models.PublishJob {
	c := *j
	return &c
}

func (r jobs) Create(_ context.Context, job *models.PublishJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return repository.ErrConflict
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	stored := copyJob(job)
	stored.NotBefore = nil
	stored.PostedAt = nil
	r.s.jobs[job.ID] = stored
	return nil
}

func (r jobs) GetByID(_ context.Context, id string) (*models.PublishJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyJob(j), nil
}

func (r jobs) ListDue(_ context.Context, platforms []string, dueBy, now time.Time, limit int) ([]*models.PublishJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PublishJob
	for _, j := range r.s.jobs {
		if j.Status != models.JobStatusPending || j.ScheduledAt.After(dueBy) || !slices.Contains(platforms, j.Platform) {
			continue
		}
		if j.NotBefore != nil && j.NotBefore.After(now) {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].ScheduledAt.Equal(out[b].ScheduledAt) {
			return out[a].ScheduledAt.Before(out[b].ScheduledAt)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r jobs) ListByStatus(_ context.Context, platform, status string, limit int) ([]*models.PublishJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PublishJob
	for _, j := range r.s.jobs {
		if j.Status == status && (platform == "" || j.Platform == platform) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r jobs) Claim(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	j.UpdatedAt = now
	return true, nil
}

func (r jobs) transition(id string, fn func(j *models.PublishJob)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return repository.ErrConflict
	}
	fn(j)
	return nil
}

func (r jobs) MarkPosted(_ context.Context, id, externalPostID string, now time.Time) error {
	return r.transition(id, func(j *models.PublishJob) {
		j.Status = models.JobStatusPosted
		j.ExternalPostID = externalPostID
		j.LastError = ""
		posted := now
		j.PostedAt = &posted
		j.UpdatedAt = now
	})
}

func (r jobs) MarkPending(_ context.Context, id string, retryCount int, lastError string, notBefore *time.Time, now time.Time) error {
	return r.transition(id, func(j *models.PublishJob) {
		j.Status = models.JobStatusPending
		j.RetryCount = retryCount
		j.LastError = lastError
		j.NotBefore = nil
		if notBefore != nil {
			nb := *notBefore
			j.NotBefore = &nb
		}
		j.UpdatedAt = now
	})
}

func (r jobs) MarkFailed(_ context.Context, id string, retryCount int, lastError string, now time.Time) error {
	return r.transition(id, func(j *models.PublishJob) {
		j.Status = models.JobStatusFailed
		j.RetryCount = retryCount
		j.LastError = lastError
		j.UpdatedAt = now
	})
}

func (r jobs) ResetStuck(_ context.Context, olderThan, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, j := range r.s.jobs {
		if j.Status == models.JobStatusProcessing && j.UpdatedAt.Before(olderThan) {
			j.Status = models.JobStatusPending
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r jobs) CountByStatus(_ context.Context, platform string) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int)
	for _, j := range r.s.jobs {
		if platform == "" || j.Platform == platform {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r jobs) ContentHashes(_ context.Context, platform string, statuses ...string) (map[string]struct{}, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	hashes := make(map[string]struct{})
	for _, j := range r.s.jobs {
		if j.Platform == platform && want[j.Status] {
			hashes[j.ContentHash] = struct{}{}
		}
	}
	return hashes, nil
}

func (r jobs) LatestScheduledAt(_ context.Context, platform string) (time.Time, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest time.Time
	found := false
	for _, j := range r.s.jobs {
		if j.Platform != platform {
			continue
		}
		if j.Status != models.JobStatusPending && j.Status != models.JobStatusProcessing {
			continue
		}
		if !found || j.ScheduledAt.After(latest) {
			latest = j.ScheduledAt
			found = true
		}
	}
	return latest, found, nil
}

type ledger struct{ s *Store }

func copyRecord(r *models.IdempotencyRecord) *models.IdempotencyRecord {
	c := *r
	return &c
}

func (l ledger) Get(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	rec, ok := l.s.ledger[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (l ledger) UpsertPosting(_ context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	now := rec.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	existing, ok := l.s.ledger[rec.IdempotencyKey]
	if !ok {
		stored := copyRecord(rec)
		stored.Status = models.LedgerStatusPosting
		stored.ExternalPostID = ""
		stored.Error = ""
		stored.CreatedAt = now
		stored.UpdatedAt = now
		l.s.ledger[rec.IdempotencyKey] = stored
		return copyRecord(stored), nil
	}
	if existing.Status != models.LedgerStatusPosted && existing.FenceToken <= rec.FenceToken {
		existing.Status = models.LedgerStatusPosting
		existing.FenceToken = rec.FenceToken
		existing.Error = ""
		existing.UpdatedAt = now
	}
	return copyRecord(existing), nil
}

func (l ledger) Finalize(_ context.Context, key string, fence int64, status, externalPostID, errMsg string, now time.Time) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	rec, ok := l.s.ledger[key]
	if !ok || rec.FenceToken != fence || rec.Status != models.LedgerStatusPosting {
		return false, nil
	}
	rec.Status = status
	rec.ExternalPostID = externalPostID
	rec.Error = errMsg
	rec.UpdatedAt = now
	return true, nil
}

func (l ledger) ListRecentFailures(_ context.Context, since time.Time, limit int) ([]*models.IdempotencyRecord, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	var out []*models.IdempotencyRecord
	for _, rec := range l.s.ledger {
		if rec.Status == models.LedgerStatusFailed && !rec.UpdatedAt.Before(since) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type locks struct{ s *Store }

func (l locks) Acquire(_ context.Context, key, holder string, ttl time.Duration, now time.Time) (int64, bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if cur, ok := l.s.locks[key]; ok && cur.ExpiresAt.After(now) {
		return 0, false, nil
	}
	l.s.fenceSeq++
	l.s.locks[key] = &models.Lock{
		Key:        key,
		Token:      l.s.fenceSeq,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return l.s.fenceSeq, true, nil
}

func (l locks) Release(_ context.Context, key string, token int64) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if cur, ok := l.s.locks[key]; ok && cur.Token == token {
		delete(l.s.locks, key)
	}
	return nil
}

func (l locks) Get(_ context.Context, key string) (*models.Lock, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	cur, ok := l.s.locks[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *cur
	return &c, nil
}

type counters struct{ s *Store }

func counterKey(platform, dateKey string) string {
	return platform + "|" + dateKey
}

func (c counters) Get(_ context.Context, platform, dateKey string) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.counters[counterKey(platform, dateKey)], nil
}

func (c counters) Increment(_ context.Context, platform, dateKey string) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	k := counterKey(platform, dateKey)
	c.s.counters[k]++
	return c.s.counters[k], nil
}

type signatures struct{ s *Store }

func (r signatures) Append(_ context.Context, sig *models.RecentPostSignature) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sigSeq++
	sig.ID = r.s.sigSeq
	c := *sig
	r.s.signatures = append(r.s.signatures, &c)
	return nil
}

func (r signatures) ListRecent(_ context.Context, platform string, limit int) ([]*models.RecentPostSignature, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RecentPostSignature
	for _, sig := range r.s.signatures {
		if sig.Platform == platform {
			c := *sig
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].PostedAt.Equal(out[b].PostedAt) {
			return out[a].PostedAt.After(out[b].PostedAt)
		}
		return out[a].ID > out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type settings struct{ s *Store }

func (r settings) List(_ context.Context) ([]*models.PlatformSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.PlatformSettings, 0, len(r.s.settings))
	for _, ps := range r.s.settings {
		c := *ps
		out = append(out, &c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Platform < out[b].Platform })
	return out, nil
}

func (r settings) Get(_ context.Context, platform string) (*models.PlatformSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps, ok := r.s.settings[platform]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *ps
	return &c, nil
}

func (r settings) Upsert(_ context.Context, ps *models.PlatformSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps.UpdatedAt = time.Now()
	c := *ps
	r.s.settings[ps.Platform] = &c
	return nil
}

type accounts struct{ s *Store }

func (r accounts) GetByPlatform(_ context.Context, platform string) (*models.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sa, ok := r.s.accounts[platform]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *sa
	return &c, nil
}

func (r accounts) Upsert(_ context.Context, sa *models.SocialAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	if cur, ok := r.s.accounts[sa.Platform]; ok {
		sa.ID = cur.ID
		sa.CreatedAt = cur.CreatedAt
	} else {
		r.s.accountSeq++
		sa.ID = r.s.accountSeq
		sa.CreatedAt = now
	}
	sa.UpdatedAt = now
	c := *sa
	r.s.accounts[sa.Platform] = &c
	return nil
}

func (r accounts) ListExpiring(_ context.Context, before time.Time) ([]*models.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.SocialAccount
	for _, sa := range r.s.accounts {
		if sa.TokenExpiresAt.Before(before) && sa.RefreshToken != "" {
			c := *sa
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Platform < out[b].Platform })
	return out, nil
}

func (r accounts) SetToken(_ context.Context, platform, accessToken, refreshToken string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sa, ok := r.s.accounts[platform]
	if !ok {
		return repository.ErrNotFound
	}
	if accessToken != "" {
		sa.AccessToken = accessToken
	}
	if refreshToken != "" {
		sa.RefreshToken = refreshToken
	}
	sa.TokenExpiresAt = expiresAt
	sa.UpdatedAt = time.Now()
	return nil
}
