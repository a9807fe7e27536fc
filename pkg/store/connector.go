package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Compile-time interface check.
var _ Store = (*Connector)(nil)

// Connection defaults.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 6379
	DefaultDB             = 0
	DefaultHealthInterval = 5 * time.Second
	DefaultPingTimeout    = 2 * time.Second
)

// Options configures a Connector.
type Options struct {
	Host string
	Port int
	DB   int

	// HealthInterval is how often a ready connector pings Redis.
	HealthInterval time.Duration

	// PingTimeout bounds each connectivity probe.
	PingTimeout time.Duration

	// Reconnect policy, see ReconnectBackOff.
	ReconnectStep     time.Duration
	ReconnectMaxDelay time.Duration
	MaxReconnects     int

	// OnStateChange is called synchronously on every transition.
	OnStateChange func(from, to State)
}

// DefaultOptions returns options for a local Redis on the default port.
func DefaultOptions() Options {
	return Options{
		Host:              DefaultHost,
		Port:              DefaultPort,
		DB:                DefaultDB,
		HealthInterval:    DefaultHealthInterval,
		PingTimeout:       DefaultPingTimeout,
		ReconnectStep:     DefaultReconnectStep,
		ReconnectMaxDelay: DefaultReconnectMaxDelay,
		MaxReconnects:     DefaultMaxReconnects,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Host == "" {
		o.Host = d.Host
	}
	if o.Port <= 0 {
		o.Port = d.Port
	}
	if o.DB < 0 {
		o.DB = d.DB
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = d.HealthInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.ReconnectStep <= 0 {
		o.ReconnectStep = d.ReconnectStep
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = d.ReconnectMaxDelay
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = d.MaxReconnects
	}
	return o
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Connector is a Store backed by a single shared go-redis client. A
// supervisor goroutine started by Start tracks connectivity and reconnects
// with ReconnectBackOff; operations fail fast with ErrUnavailable whenever
// the state is not StateReady.
type Connector struct {
	client *redis.Client
	opts   Options
	logger zerolog.Logger

	state   atomic.Int32
	lastErr atomic.Error

	failures chan error
	started  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnector builds a connector. It does not touch the network and never
// fails; call Start to begin connecting.
func NewConnector(opts Options, logger zerolog.Logger) *Connector {
	opts = opts.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr(),
		DB:          opts.DB,
		DialTimeout: opts.PingTimeout,
	})

	c := &Connector{
		client:   client,
		opts:     opts,
		logger:   logger,
		failures: make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	recordState(StateConnecting)
	return c
}

// Start launches the connection supervisor and returns immediately. The
// supervisor stops when ctx is cancelled or Close is called. Calling Start
// more than once has no effect.
func (c *Connector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Close stops the supervisor and closes the Redis client.
func (c *Connector) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-c.done
	} else {
		c.transition(StateEnded, nil)
	}
	return c.client.Close()
}

// State returns the current connectivity state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Available implements Store.
func (c *Connector) Available() bool {
	return c.State().Usable()
}

// Err returns the last connectivity error, if any.
func (c *Connector) Err() error {
	return c.lastErr.Load()
}

// Options returns the effective options.
func (c *Connector) Options() Options {
	return c.opts
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.done)

	c.transition(StateConnecting, nil)
	c.logger.Info().Str("addr", c.opts.Addr()).Int("db", c.opts.DB).Msg("Redis client connecting")

	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				c.transition(StateEnded, nil)
				return
			}
			terminal := fmt.Errorf("%w after %d retries: %v", ErrRetriesExhausted, c.opts.MaxReconnects, err)
			c.logger.Error().Err(terminal).Msg("Redis connection failed, giving up")
			c.transition(StateEnded, terminal)
			return
		}

		c.drainFailures()
		c.transition(StateReady, nil)

		err := c.monitor(ctx)
		if err == nil {
			c.transition(StateEnded, nil)
			return
		}
		c.transition(StateError, err)
		c.transition(StateReconnecting, nil)
		StoreReconnects.Inc()
	}
}

// connect pings until Redis answers or the reconnect budget is spent.
func (c *Connector) connect(ctx context.Context) error {
	policy := &ReconnectBackOff{Step: c.opts.ReconnectStep, Max: c.opts.ReconnectMaxDelay}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxReconnects)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return c.ping(ctx)
	}, b, func(err error, delay time.Duration) {
		c.transition(StateError, err)
		c.transition(StateReconnecting, nil)
		StoreReconnects.Inc()
		c.logger.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Redis client reconnecting")
	})
}

// monitor blocks while the connection is healthy. It returns nil when ctx is
// done and the triggering error otherwise.
func (c *Connector) monitor(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.failures:
			return err
		case <-ticker.C:
			if err := c.ping(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Connector) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("Redis ping failed")
		return err
	}
	return nil
}

func (c *Connector) drainFailures() {
	select {
	case <-c.failures:
	default:
	}
}

func (c *Connector) transition(to State, err error) {
	from := State(c.state.Swap(int32(to)))
	if err != nil {
		c.lastErr.Store(err)
	}
	recordState(to)

	if from == to {
		return
	}

	switch to {
	case StateReady:
		c.logger.Info().Str("state", to.String()).Msg("Redis client ready")
	case StateError:
		c.logger.Warn().Err(err).Str("state", to.String()).Msg("Redis client error")
	case StateEnded:
		c.logger.Warn().Str("state", to.String()).Msg("Redis client connection ended")
	default:
		c.logger.Debug().Str("from", from.String()).Str("state", to.String()).Msg("Redis client state change")
	}

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(from, to)
	}
}

// checkReady gates every operation on the connection state.
func (c *Connector) checkReady(op, key string) error {
	if s := c.State(); !s.Usable() {
		StoreErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("store %s %q: %w (state %s)", op, key, ErrUnavailable, s)
	}
	return nil
}

// fail wraps an operation error and wakes the supervisor when the error
// indicates a broken connection. Failures after the caller's ctx expired
// leave the connection state alone.
func (c *Connector) fail(ctx context.Context, op, key string, err error) error {
	StoreErrors.WithLabelValues(op).Inc()
	if ctx.Err() == nil && isConnectionError(err) {
		select {
		case c.failures <- err:
		default:
		}
	}
	return fmt.Errorf("store %s %q: %w", op, key, err)
}

// Get implements Store.
func (c *Connector) Get(ctx context.Context, key string) (string, error) {
	if err := c.checkReady("get", key); err != nil {
		return "", err
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", c.fail(ctx, "get", key, err)
	}
	return val, nil
}

// Set implements Store.
func (c *Connector) Set(ctx context.Context, key, value string) error {
	if err := c.checkReady("set", key); err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, value, 0).Err(); err != nil {
		return c.fail(ctx, "set", key, err)
	}
	return nil
}

// SetWithExpiry implements Store. The value and its TTL are written by a
// single SET command.
func (c *Connector) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("store setex %q: ttl must be positive, got %v", key, ttl)
	}
	if err := c.checkReady("setex", key); err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return c.fail(ctx, "setex", key, err)
	}
	return nil
}

// Incr implements Store. Redis rejects increments past the int64 range, so
// the counter never wraps.
func (c *Connector) Incr(ctx context.Context, key string) (int64, error) {
	if err := c.checkReady("incr", key); err != nil {
		return 0, err
	}
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, c.fail(ctx, "incr", key, err)
	}
	return n, nil
}

// Expire implements Store.
func (c *Connector) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.checkReady("expire", key); err != nil {
		return err
	}
	ok, err := c.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return c.fail(ctx, "expire", key, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Exists implements Store.
func (c *Connector) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.checkReady("exists", key); err != nil {
		return false, err
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, c.fail(ctx, "exists", key, err)
	}
	return n > 0, nil
}

// isConnectionError reports whether err means the connection itself is
// broken. Deadlines and cancellations belong to the caller's context.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
