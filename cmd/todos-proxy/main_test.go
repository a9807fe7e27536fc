package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/todos-proxy/internal/testutil"
	"github.com/Sternrassler/todos-proxy/pkg/cache"
	"github.com/Sternrassler/todos-proxy/pkg/config"
	"github.com/Sternrassler/todos-proxy/pkg/handler"
	"github.com/Sternrassler/todos-proxy/pkg/store"
	"github.com/Sternrassler/todos-proxy/pkg/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}
	t.Cleanup(func() { redisC.Terminate(context.Background()) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host, port.Int()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestUpstream(t *testing.T, mock *testutil.MockUpstream) *upstream.Client {
	t.Helper()
	cfg := upstream.DefaultConfig(mock.URL(), "todos-proxy-test/1.0")
	cfg.Retry = upstream.NoRetry()
	cfg.Timeout = 5 * time.Second
	c, err := upstream.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create upstream client: %v", err)
	}
	return c
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux(testutil.NewFakeStore(), upstreamStub{}, cache.DefaultTTL))
	defer srv.Close()

	resp, body := getBody(t, srv.URL+"/health")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body != "OK" {
		t.Errorf("Expected body 'OK', got %s", body)
	}
	if resp.Header.Get(handler.HeaderRequestID) == "" {
		t.Error("Expected X-Request-ID on every response")
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := httptest.NewServer(newMux(testutil.NewFakeStore(), upstreamStub{}, cache.DefaultTTL))
		defer srv.Close()

		resp, body := getBody(t, srv.URL+"/ready")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if body != "OK" {
			t.Errorf("Expected body 'OK', got %s", body)
		}
	})

	t.Run("not_ready_store_down", func(t *testing.T) {
		s := testutil.NewFakeStore()
		s.Err = store.ErrUnavailable
		srv := httptest.NewServer(newMux(s, upstreamStub{}, cache.DefaultTTL))
		defer srv.Close()

		resp, _ := getBody(t, srv.URL+"/ready")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux(testutil.NewFakeStore(), upstreamStub{}, cache.DefaultTTL))
	defer srv.Close()

	// one request so the request counters have samples
	getBody(t, srv.URL+"/")

	resp, body := getBody(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{"todos_cache_requests_total", "todos_http_requests_total", "todos_store_reconnects_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestDegradedWhenRedisUnreachable(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	conn := store.NewConnector(store.Options{
		Host:              "127.0.0.1",
		Port:              freePort(t),
		PingTimeout:       50 * time.Millisecond,
		ReconnectStep:     time.Millisecond,
		ReconnectMaxDelay: 5 * time.Millisecond,
	}, zerolog.Nop())
	conn.Start(context.Background())
	defer conn.Close()

	srv := httptest.NewServer(newMux(conn, newTestUpstream(t, mock), cache.DefaultTTL))
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp, body := getBody(t, srv.URL+"/")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
		}
		if got := resp.Header.Get(handler.HeaderCache); got != handler.CacheBypass {
			t.Errorf("Expected X-Cache BYPASS, got %q", got)
		}
		if body != testutil.SampleTodosCompact {
			t.Errorf("Unexpected body %s", body)
		}
	}
	if mock.RequestCount() != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", mock.RequestCount())
	}

	resp, _ := getBody(t, srv.URL+"/ready")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected /ready 503, got %d", resp.StatusCode)
	}
}

func TestRun_StartsAndShutsDown(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	cfg := config.Default()
	cfg.Port = freePort(t)
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = freePort(t)
	cfg.UpstreamURL = mock.URL()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRun_InvalidUpstreamURL(t *testing.T) {
	cfg := config.Default()
	cfg.Port = freePort(t)
	cfg.UpstreamURL = "ftp://example.com/todos"

	if err := run(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for unsupported upstream scheme")
	}
}

func TestEndToEnd_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	host, port := setupTestRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	conn := store.NewConnector(store.Options{Host: host, Port: port}, zerolog.Nop())
	conn.Start(context.Background())
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	for !conn.Available() {
		if time.Now().After(deadline) {
			t.Fatalf("connector not ready: %v", conn.Err())
		}
		time.Sleep(20 * time.Millisecond)
	}

	rdb := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(host, strconv.Itoa(port))})
	defer rdb.Close()
	ctx := context.Background()

	ttl := time.Second
	srv := httptest.NewServer(newMux(conn, newTestUpstream(t, mock), ttl))
	defer srv.Close()

	expect := func(wantCache, wantCount string) string {
		t.Helper()
		resp, body := getBody(t, srv.URL+"/")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
		}
		if got := resp.Header.Get(handler.HeaderCache); got != wantCache {
			t.Errorf("X-Cache = %q, want %q", got, wantCache)
		}
		count, err := rdb.Get(ctx, cache.CounterKey).Result()
		if err != nil {
			t.Fatalf("read counter: %v", err)
		}
		if count != wantCount {
			t.Errorf("count = %s, want %s", count, wantCount)
		}
		return body
	}

	first := expect(handler.CacheMiss, "0")
	if first != testutil.SampleTodosCompact {
		t.Errorf("Unexpected payload %s", first)
	}
	if d := rdb.TTL(ctx, cache.PayloadKey).Val(); d <= 0 || d > ttl {
		t.Errorf("payload TTL = %v, want (0, %v]", d, ttl)
	}

	for i := 1; i <= 3; i++ {
		if body := expect(handler.CacheHit, strconv.Itoa(i)); body != first {
			t.Errorf("hit %d returned different bytes", i)
		}
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Expected 1 upstream request, got %d", mock.RequestCount())
	}

	time.Sleep(ttl + 200*time.Millisecond)
	expect(handler.CacheMiss, "0")
	if mock.RequestCount() != 2 {
		t.Errorf("Expected refetch after expiry, got %d upstream requests", mock.RequestCount())
	}

	mock.SetResponse(testutil.NewServerErrorResponse())
	time.Sleep(ttl + 200*time.Millisecond)
	require500(t, srv.URL+"/")
	if n, _ := rdb.Exists(ctx, cache.PayloadKey).Result(); n != 0 {
		t.Error("failed fetch must not write the payload")
	}
	if count := rdb.Get(ctx, cache.CounterKey).Val(); count != "0" {
		t.Errorf("failed fetch must not touch the counter, got %s", count)
	}
}

func require500(t *testing.T, url string) {
	t.Helper()
	resp, body := getBody(t, url)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
	if body != `{"error":"Failed to fetch data"}` {
		t.Errorf("Unexpected error body %s", body)
	}
}

// upstreamStub serves a fixed payload.
type upstreamStub struct{}

func (upstreamStub) Fetch(context.Context) ([]byte, error) {
	return []byte(`[{"id":1}]`), nil
}

func TestSetupLogging_ReportsInvalidValuesWithConfiguredLogger(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	invalid := []config.InvalidValue{{Variable: config.EnvRedisPort, Value: "abc", Default: config.DefaultRedisPort}}

	t.Run("level filters warnings", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := config.Default()
		cfg.LogLevel = "error"

		setupLogging(cfg, invalid, &buf)

		if buf.Len() != 0 {
			t.Errorf("Expected no output at error level, got %q", buf.String())
		}
	})

	t.Run("pretty output", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := config.Default()
		cfg.LogPretty = true

		setupLogging(cfg, invalid, &buf)

		out := buf.String()
		if !strings.Contains(out, config.EnvRedisPort) {
			t.Errorf("Expected warning naming %s, got %q", config.EnvRedisPort, out)
		}
		if strings.HasPrefix(out, "{") {
			t.Errorf("Expected console output, got JSON %q", out)
		}
	})
}
