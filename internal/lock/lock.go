// Package lock provides TTL-bound mutual exclusion keyed by idempotency key.
// Every successful acquisition carries a fence token that strictly increases
// across holders, so writes made by a holder whose lease expired can be refused.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/clipcast/internal/logging"
	"github.com/maheshrc27/clipcast/internal/repository"
)

// ErrNotHeld is returned by WithLock when another holder owns the key.
var ErrNotHeld = errors.New("lock: held by another worker")

type Lease struct {
	Key       string
	Token     int64
	Holder    string
	ExpiresAt time.Time
}

type Manager struct {
	repo   repository.LockRepository
	ttl    time.Duration
	holder string
	log    logging.Logger
	now    func() time.Time
}

type Option func(*Manager)

// WithClock replaces time.Now; tests use it to step across the TTL.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithHolder(holder string) Option {
	return func(m *Manager) { m.holder = holder }
}

func NewManager(repo repository.LockRepository, ttl time.Duration, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		ttl:    ttl,
		holder: uuid.NewString(),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) Acquire(ctx context.Context, key string) (Lease, bool, error) {
	now := m.now()
	token, ok, err := m.repo.Acquire(ctx, key, m.holder, m.ttl, now)
	if err != nil {
		return Lease{}, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token, Holder: m.holder, ExpiresAt: now.Add(m.ttl)}, true, nil
}

// Release deletes the lock if it still carries the lease's token. Failures are
// logged; the TTL reclaims the key eventually.
func (m *Manager) Release(ctx context.Context, lease Lease) {
	if err := m.repo.Release(context.WithoutCancel(ctx), lease.Key, lease.Token); err != nil {
		m.log.Warn().Err(err).Str("key", lease.Key).Int64("fence", lease.Token).Msg("lock release failed")
	}
}

// WithLock runs fn while holding key and always releases afterwards.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(Lease) error) error {
	lease, ok, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	defer m.Release(ctx, lease)
	return fn(lease)
}
