// Package store owns the connection to the Redis key-value store.
//
// A Connector is created once per process and shared by every request. It
// never fails construction: if Redis is unreachable the connector keeps
// retrying in the background (see ReconnectBackOff) and every operation
// returns ErrUnavailable until the connection is ready again. A missing key
// is reported as ErrNotFound, which callers must treat as a valid result and
// not as a failure.
//
// # Basic Usage
//
//	conn := store.NewConnector(store.Options{Host: "localhost", Port: 6379}, logger)
//	conn.Start(ctx)
//	defer conn.Close()
//
//	value, err := conn.Get(ctx, "todos")
//	switch {
//	case errors.Is(err, store.ErrNotFound):
//		// absent
//	case err != nil:
//		// store failure
//	}
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable is returned by every operation while the connector is
	// not in StateReady.
	ErrUnavailable = errors.New("store unavailable")

	// ErrRetriesExhausted is recorded when the connector stops reconnecting.
	ErrRetriesExhausted = errors.New("store reconnect retries exhausted")
)

// Store is the key-value surface used by the cache layer.
type Store interface {
	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key without expiry.
	Set(ctx context.Context, key, value string) error

	// SetWithExpiry stores value under key with a time-to-live.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr increments the integer stored at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a time-to-live on an existing key. Returns ErrNotFound
	// when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Available reports whether operations are currently permitted.
	Available() bool
}
