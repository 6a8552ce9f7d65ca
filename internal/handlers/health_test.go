package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/storage"
)

type stubDispatcher struct {
	healthErr error
}

func (s *stubDispatcher) DispatchReview(ctx context.Context, job engine.ReviewJob) error   { return nil }
func (s *stubDispatcher) DispatchGenMove(ctx context.Context, job engine.GenMoveJob) error { return nil }
func (s *stubDispatcher) HealthCheck(ctx context.Context) error                            { return s.healthErr }
func (s *stubDispatcher) Shutdown()                                                        {}

// failingStore only needs Exists; Health never touches the rest.
type failingStore struct {
	storage.Store
}

func (f failingStore) Exists(ctx context.Context, path string) (bool, error) {
	return false, errors.New("bucket unreachable")
}

func getHealth(t *testing.T, cfg HealthConfig) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	Health(cfg)(rec, httptest.NewRequest("GET", "/health", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthReportsOKWhenDependenciesAnswer(t *testing.T) {
	code, body := getHealth(t, HealthConfig{
		Store:      storage.NewMemory("tengen-test"),
		Dispatcher: &stubDispatcher{},
		Breakers:   circuitbreaker.NewServiceBreakers(),
	})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["store"])
	assert.Equal(t, "ok", checks["dispatcher"])

	breakers := body["breakers"].(map[string]interface{})
	assert.Equal(t, "CLOSED", breakers["engine"])
	assert.Equal(t, "CLOSED", breakers["llm"])
	assert.Equal(t, "CLOSED", breakers["messaging"])
	assert.Equal(t, "HEALTHY", body["breaker_status"])
}

func TestHealthDegradesWhenDispatcherFails(t *testing.T) {
	code, body := getHealth(t, HealthConfig{
		Store:      storage.NewMemory("tengen-test"),
		Dispatcher: &stubDispatcher{healthErr: errors.New("queue full")},
	})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])

	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "queue full", checks["dispatcher"])
	assert.Equal(t, "ok", checks["store"])
}

func TestHealthDegradesWhenStoreFails(t *testing.T) {
	code, body := getHealth(t, HealthConfig{
		Store:      failingStore{},
		Dispatcher: &stubDispatcher{},
	})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])

	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "bucket unreachable", checks["store"])
}

func TestHealthSkipsAbsentProbes(t *testing.T) {
	code, body := getHealth(t, HealthConfig{})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, body["checks"])
	assert.NotContains(t, body, "breakers")
}
