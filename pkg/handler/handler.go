// Package handler serves the todos resource through the Redis cache.
//
// Every request first makes sure the hit counter exists, then serves the
// cached payload when one is present (bumping the counter) or fetches a
// fresh copy from upstream, caches it and resets the counter.
//
// When the store fails with anything other than a missing key the request
// is answered straight from upstream and the store is left alone. Such
// responses carry X-Cache: BYPASS.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/todos-proxy/pkg/cache"
	"github.com/Sternrassler/todos-proxy/pkg/logging"
	"github.com/Sternrassler/todos-proxy/pkg/upstream"
	"github.com/rs/zerolog"
)

// Response headers set on payload responses.
const (
	HeaderCache = "X-Cache"
	HeaderETag  = "ETag"

	CacheHit    = "HIT"
	CacheMiss   = "MISS"
	CacheBypass = "BYPASS"
)

// FetchErrorMessage is the error body returned when upstream cannot be read.
const FetchErrorMessage = "Failed to fetch data"

// Fetcher retrieves the upstream payload as JSON.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Handler answers GET / from the cache or upstream.
type Handler struct {
	cache    *cache.Manager
	upstream Fetcher
	logger   zerolog.Logger
}

// New creates a Handler.
func New(c *cache.Manager, f Fetcher, logger zerolog.Logger) *Handler {
	if c == nil {
		panic("cache manager cannot be nil")
	}
	if f == nil {
		panic("fetcher cannot be nil")
	}
	return &Handler{
		cache:    c,
		upstream: f,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx, h.logger)

	created, err := h.cache.EnsureCounter(ctx)
	if err != nil {
		h.bypass(w, r, logger, err)
		return
	}
	if created {
		logger.Debug().Str("key", cache.CounterKey).Msg("Initialized hit counter")
	}

	entry, err := h.cache.Lookup(ctx)
	switch {
	case err == nil:
		h.serveHit(w, r, logger, entry)
	case errors.Is(err, cache.ErrCacheMiss):
		h.serveMiss(w, r, logger)
	default:
		h.bypass(w, r, logger, err)
	}
}

func (h *Handler) serveHit(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, entry *cache.Entry) {
	cache.CacheRequests.WithLabelValues(cache.ResultHit).Inc()

	count, err := h.cache.RecordHit(r.Context())
	if err != nil {
		// the payload is still good
		logger.Warn().Err(err).Str("cache", cache.ResultHit).Msg("Failed to record cache hit")
	} else {
		logger.Info().
			Str("cache", cache.ResultHit).
			Int64("count", count).
			Msg("Served todos from cache")
	}

	writePayload(w, r, entry.Data, CacheHit)
}

func (h *Handler) serveMiss(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) {
	cache.CacheRequests.WithLabelValues(cache.ResultMiss).Inc()

	payload, err := h.upstream.Fetch(r.Context())
	if err != nil {
		h.fetchFailed(w, logger, cache.ResultMiss, err)
		return
	}

	if err := h.cache.Refresh(r.Context(), payload); err != nil {
		logger.Warn().Err(err).Str("cache", cache.ResultMiss).Msg("Failed to refresh cache")
	} else {
		logger.Info().
			Str("cache", cache.ResultMiss).
			Int("size", len(payload)).
			Dur("ttl", h.cache.TTL()).
			Msg("Refreshed todos cache")
	}

	writePayload(w, r, payload, CacheMiss)
}

// bypass serves straight from upstream without touching the store.
func (h *Handler) bypass(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, storeErr error) {
	cache.CacheRequests.WithLabelValues(cache.ResultBypass).Inc()
	logger.Warn().Err(storeErr).Str("cache", cache.ResultBypass).Msg("Store failed, bypassing cache")

	payload, err := h.upstream.Fetch(r.Context())
	if err != nil {
		h.fetchFailed(w, logger, cache.ResultBypass, err)
		return
	}

	writePayload(w, r, payload, CacheBypass)
}

func (h *Handler) fetchFailed(w http.ResponseWriter, logger zerolog.Logger, result string, err error) {
	logger.Error().
		Err(err).
		Str("cache", result).
		Str("error_class", string(upstream.ClassOf(err))).
		Msg("Failed to fetch todos from upstream")

	writeError(w, http.StatusInternalServerError, FetchErrorMessage)
}

func writePayload(w http.ResponseWriter, r *http.Request, payload []byte, cacheStatus string) {
	etag := cache.ETag(payload)

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set(HeaderCache, cacheStatus)
	header.Set(HeaderETag, etag)

	if etagMatches(r.Header.Values("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	w.Write(payload)
}

// etagMatches applies the weak comparison used for If-None-Match: "*"
// matches anything, a list matches if any member does, and W/ is ignored.
func etagMatches(headers []string, etag string) bool {
	for _, header := range headers {
		for _, candidate := range strings.Split(header, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" {
				return true
			}
			if strings.TrimPrefix(candidate, "W/") == etag {
				return true
			}
		}
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(errorBody{Error: message})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}
