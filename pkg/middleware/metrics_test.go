package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method string
	route  string
	status int
}

type captureObserver struct {
	calls []observation
}

func (c *captureObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	c.calls = append(c.calls, observation{method: method, route: route, status: status})
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	obs := &captureObserver{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/questionnaires/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := Metrics(obs)(mux)

	for _, path := range []string{"/api/questionnaires/a", "/api/questionnaires/b"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.calls, 2)
	for _, c := range obs.calls {
		assert.Equal(t, "GET /api/questionnaires/{id}", c.route)
		assert.Equal(t, http.StatusNotFound, c.status)
		assert.Equal(t, http.MethodGet, c.method)
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	obs := &captureObserver{}
	handler := Metrics(obs)(http.NewServeMux())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, "unmatched", obs.calls[0].route)
	assert.Equal(t, http.StatusNotFound, obs.calls[0].status)
}

func TestMetrics_NilObserverPassesThrough(t *testing.T) {
	called := false
	handler := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestMiddleware_Stacked_ShareWriter(t *testing.T) {
	obs := &captureObserver{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := RequestLogger(nil)(Metrics(obs)(Metrics(obs)(inner)))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/questionnaires", nil))

	require.Len(t, obs.calls, 2)
	assert.Equal(t, http.StatusCreated, obs.calls[0].status)
	assert.Equal(t, http.StatusCreated, obs.calls[1].status)
}
