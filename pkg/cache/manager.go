package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/todos-proxy/pkg/store"
)

// Redis keys.
const (
	CounterKey = "count"
	PayloadKey = "todos"
)

// DefaultTTL is the lifetime of a cached payload.
const DefaultTTL = 10 * time.Second

var (
	// ErrCacheMiss indicates no payload is cached
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidCounter indicates the counter key holds a non-integer value
	ErrInvalidCounter = errors.New("invalid cache counter")

	// ErrEmptyPayload is returned by Refresh for an empty payload
	ErrEmptyPayload = errors.New("empty payload")
)

// Manager handles the todos payload and hit counter.
type Manager struct {
	store store.Store
	ttl   time.Duration
}

// NewManager creates a cache manager. A non-positive ttl selects DefaultTTL.
func NewManager(s store.Store, ttl time.Duration) *Manager {
	if s == nil {
		panic("store cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: s,
		ttl:   ttl,
	}
}

// TTL returns the payload lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// EnsureCounter creates the counter as "0" when it is absent and reports
// whether it did so.
func (m *Manager) EnsureCounter(ctx context.Context) (bool, error) {
	_, err := m.store.Get(ctx, CounterKey)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		CacheErrors.WithLabelValues("ensure_counter").Inc()
		return false, fmt.Errorf("read counter: %w", err)
	}

	if err := m.store.Set(ctx, CounterKey, "0"); err != nil {
		CacheErrors.WithLabelValues("ensure_counter").Inc()
		return false, fmt.Errorf("init counter: %w", err)
	}
	return true, nil
}

// Lookup returns the cached payload.
// Returns ErrCacheMiss if nothing is cached.
func (m *Manager) Lookup(ctx context.Context) (*Entry, error) {
	data, err := m.store.Get(ctx, PayloadKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return NewEntry([]byte(data)), nil
}

// RecordHit increments the counter and returns its new value.
func (m *Manager) RecordHit(ctx context.Context) (int64, error) {
	n, err := m.store.Incr(ctx, CounterKey)
	if err != nil {
		CacheErrors.WithLabelValues("hit").Inc()
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	HitCount.Set(float64(n))
	return n, nil
}

// Refresh stores payload with the manager's TTL and resets the counter to
// zero. The two writes are independent: if the counter reset fails the new
// payload stays cached.
func (m *Manager) Refresh(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	if err := m.store.SetWithExpiry(ctx, PayloadKey, string(payload), m.ttl); err != nil {
		CacheErrors.WithLabelValues("refresh").Inc()
		return fmt.Errorf("store payload: %w", err)
	}
	CacheSize.Set(float64(len(payload)))

	if err := m.store.Set(ctx, CounterKey, "0"); err != nil {
		CacheErrors.WithLabelValues("refresh").Inc()
		return fmt.Errorf("reset counter: %w", err)
	}
	HitCount.Set(0)

	return nil
}

// Count returns the current counter value. An absent counter reads as 0.
func (m *Manager) Count(ctx context.Context) (int64, error) {
	raw, err := m.store.Get(ctx, CounterKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues("count").Inc()
		return 0, fmt.Errorf("read counter: %w", err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		CacheErrors.WithLabelValues("count").Inc()
		return 0, fmt.Errorf("%w: %q", ErrInvalidCounter, raw)
	}
	return n, nil
}
