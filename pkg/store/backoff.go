package store

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Reconnect policy defaults.
const (
	DefaultReconnectStep     = 100 * time.Millisecond
	DefaultReconnectMaxDelay = 3 * time.Second
	DefaultMaxReconnects     = 10
)

var _ backoff.BackOff = (*ReconnectBackOff)(nil)

// ReconnectBackOff grows the delay linearly with the retry number and caps
// it: delay(n) = min(n * Step, Max). It never returns backoff.Stop on its
// own; bound it with backoff.WithMaxRetries.
type ReconnectBackOff struct {
	Step time.Duration
	Max  time.Duration

	retries int
}

// NewReconnectBackOff returns a backoff with the default step and cap.
func NewReconnectBackOff() *ReconnectBackOff {
	return &ReconnectBackOff{Step: DefaultReconnectStep, Max: DefaultReconnectMaxDelay}
}

// NextBackOff implements backoff.BackOff.
func (b *ReconnectBackOff) NextBackOff() time.Duration {
	b.retries++
	return ReconnectDelay(b.retries, b.Step, b.Max)
}

// Reset implements backoff.BackOff.
func (b *ReconnectBackOff) Reset() {
	b.retries = 0
}

// ReconnectDelay is the wait before retry number retries (1-based).
func ReconnectDelay(retries int, step, max time.Duration) time.Duration {
	if retries <= 0 {
		return 0
	}
	d := time.Duration(retries) * step
	if d > max {
		return max
	}
	return d
}
