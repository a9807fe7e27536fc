package testutil

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/todos-proxy/pkg/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

// NewRedis starts an in-process Redis and a ready Connector pointed at it.
// Both are torn down with the test.
func NewRedis(t *testing.T) (*store.Connector, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}

	conn := store.NewConnector(store.Options{
		Host:              mr.Host(),
		Port:              port,
		HealthInterval:    50 * time.Millisecond,
		PingTimeout:       200 * time.Millisecond,
		ReconnectStep:     5 * time.Millisecond,
		ReconnectMaxDelay: 20 * time.Millisecond,
	}, zerolog.Nop())
	conn.Start(context.Background())
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !conn.Available() {
		if time.Now().After(deadline) {
			t.Fatalf("connector not ready: state %s, err %v", conn.State(), conn.Err())
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, mr
}

var _ store.Store = (*FakeStore)(nil)

// FakeStore is an in-memory store.Store without expiry. Setting Err makes
// every operation fail with it; per-operation errors take precedence.
type FakeStore struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	Err    error
	OpErrs map[string]error
	Calls  []string
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		data:   make(map[string]string),
		ttls:   make(map[string]time.Duration),
		OpErrs: make(map[string]error),
	}
}

// FailOp makes operation op ("get", "set", "setex", "incr", "expire",
// "exists") fail with err.
func (f *FakeStore) FailOp(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpErrs[op] = err
}

// Value returns the raw value of key.
func (f *FakeStore) Value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

// TTL returns the last TTL written for key.
func (f *FakeStore) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

// Delete removes key, simulating expiry.
func (f *FakeStore) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.ttls, key)
}

// CallLog returns the operations performed so far, formatted "op key".
func (f *FakeStore) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeStore) begin(op, key string) error {
	f.Calls = append(f.Calls, op+" "+key)
	if err, ok := f.OpErrs[op]; ok && err != nil {
		return err
	}
	return f.Err
}

func (f *FakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("get", key); err != nil {
		return "", err
	}
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *FakeStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("set", key); err != nil {
		return err
	}
	f.data[key] = value
	delete(f.ttls, key)
	return nil
}

func (f *FakeStore) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("setex", key); err != nil {
		return err
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *FakeStore) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("incr", key); err != nil {
		return 0, err
	}
	n := int64(0)
	if v, ok := f.data[key]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *FakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("expire", key); err != nil {
		return err
	}
	if _, ok := f.data[key]; !ok {
		return store.ErrNotFound
	}
	f.ttls[key] = ttl
	return nil
}

func (f *FakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("exists", key); err != nil {
		return false, err
	}
	_, ok := f.data[key]
	return ok, nil
}

func (f *FakeStore) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err == nil
}
