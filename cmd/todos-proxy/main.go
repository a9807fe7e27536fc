package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/todos-proxy/pkg/cache"
	"github.com/Sternrassler/todos-proxy/pkg/config"
	"github.com/Sternrassler/todos-proxy/pkg/handler"
	"github.com/Sternrassler/todos-proxy/pkg/logging"
	"github.com/Sternrassler/todos-proxy/pkg/metrics"
	"github.com/Sternrassler/todos-proxy/pkg/store"
	"github.com/Sternrassler/todos-proxy/pkg/upstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, invalid := config.Load()
	logger := setupLogging(cfg, invalid, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// setupLogging configures the global logger from cfg, then reports the
// environment values Load had to replace with defaults.
func setupLogging(cfg config.Config, invalid []config.InvalidValue, out io.Writer) zerolog.Logger {
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: out,
	})
	config.LogInvalid(logging.NewLogger("config"), invalid)
	return logging.NewLogger("server")
}

// run serves until ctx is cancelled, then shuts down gracefully. An
// unreachable Redis is not an error: requests are bypassed until it is back.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	conn := store.NewConnector(store.Options{
		Host: cfg.RedisHost,
		Port: cfg.RedisPort,
		DB:   cfg.RedisDB,
	}, logging.NewLogger("store"))
	conn.Start(ctx)
	defer conn.Close()

	client, err := upstream.New(upstream.Config{
		URL:       cfg.UpstreamURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.UpstreamTimeout,
		Retry:     upstream.DefaultRetryConfig(),
	})
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           newMux(conn, client, cfg.CacheTTL),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("redis", conn.Options().Addr()).
			Str("upstream", client.URL()).
			Dur("cache_ttl", cfg.CacheTTL).
			Msg("Starting todos proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newMux wires the todos route and the operational endpoints.
func newMux(st store.Store, fetcher handler.Fetcher, ttl time.Duration) http.Handler {
	todos := handler.New(cache.NewManager(st, ttl), fetcher, logging.NewLogger("handler"))

	mux := http.NewServeMux()
	mux.Handle("/", todos)
	mux.HandleFunc("/health", handler.Health)
	mux.Handle("/ready", handler.Ready(st))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer, promhttp.HandlerOpts{}))

	return handler.WithRequestID(mux, logging.NewLogger("http"))
}
