package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/todos-proxy/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRequestID_Generates(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(HeaderRequestID)
	})

	w := httptest.NewRecorder()
	WithRequestID(next, zerolog.Nop()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated request id should be a UUID")
	assert.Equal(t, id, seen)
}

func TestWithRequestID_PropagatesInbound(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context(), zerolog.Nop())
		logger.Info().Msg("inside")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	WithRequestID(next, base).ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	var entry map[string]any
	line, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	require.NoError(t, json.Unmarshal(line, &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "inside", entry["message"])
}

func TestStatusRecorder(t *testing.T) {
	tests := []struct {
		name  string
		serve http.HandlerFunc
		want  int
	}{
		{
			name:  "explicit status",
			serve: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
			want:  http.StatusTeapot,
		},
		{
			name:  "implicit 200 on write",
			serve: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) },
			want:  http.StatusOK,
		},
		{
			name:  "no write",
			serve: func(w http.ResponseWriter, r *http.Request) {},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
			tt.serve(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, rec.status)
		})
	}
}

func TestPathLabel(t *testing.T) {
	assert.Equal(t, "/", pathLabel("/"))
	assert.Equal(t, "/ready", pathLabel("/ready"))
	assert.Equal(t, "other", pathLabel("/wp-admin"))
}

type availability bool

func (a availability) Available() bool { return bool(a) }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestReady(t *testing.T) {
	w := httptest.NewRecorder()
	Ready(availability(true)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	Ready(availability(false)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "store unavailable")
}
