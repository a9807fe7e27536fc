// Package testutil provides testing utilities for the todos proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// SampleTodos is a small payload shaped like the real upstream response.
const SampleTodos = `[
  {"userId": 1, "id": 1, "title": "delectus aut autem", "completed": false},
  {"userId": 1, "id": 2, "title": "quis ut nam facilis et officia qui", "completed": false},
  {"userId": 1, "id": 3, "title": "fugiat veniam minus", "completed": true}
]`

// SampleTodosCompact is SampleTodos after json.Compact.
const SampleTodosCompact = `[{"userId":1,"id":1,"title":"delectus aut autem","completed":false},` +
	`{"userId":1,"id":2,"title":"quis ut nam facilis et officia qui","completed":false},` +
	`{"userId":1,"id":3,"title":"fugiat veniam minus","completed":true}]`

// MockResponse defines the behavior of the mock upstream.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable stand-in for the todos API.
type MockUpstream struct {
	server *httptest.Server

	mu            sync.RWMutex
	responses     []MockResponse
	requestCount  int
	lastUserAgent string
}

// NewMockUpstream starts a mock upstream that answers 200 with SampleTodos.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetResponse replaces every queued response with resp, served repeatedly.
func (m *MockUpstream) SetResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = []MockResponse{resp}
}

// QueueResponses serves resps in order; the last one repeats.
func (m *MockUpstream) QueueResponses(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]MockResponse(nil), resps...)
}

// RequestCount returns the number of requests received.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockUpstream) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// Reset clears the request counter.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastUserAgent = ""
}

func (m *MockUpstream) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.lastUserAgent = r.UserAgent()
	resp := NewTodosResponse(SampleTodos)
	if len(m.responses) > 0 {
		resp = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewTodosResponse creates a 200 OK JSON response.
func NewTodosResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewHTMLResponse creates a 200 OK response whose body is not JSON.
func NewHTMLResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html><body>maintenance</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}
