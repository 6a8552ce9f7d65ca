package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/dispatch"
	"github.com/tengenlabs/tengen/internal/storage"
)

// healthProbeTimeout bounds the dependency probes so a hung store cannot
// hang the health endpoint with it.
const healthProbeTimeout = 5 * time.Second

// HealthConfig wires the health endpoint's dependency probes. Nil fields
// are skipped.
type HealthConfig struct {
	Store      storage.Store
	Dispatcher dispatch.Dispatcher
	Breakers   *circuitbreaker.ServiceBreakers
}

// Health reports whether the service can do useful work: the blob store
// answers and the dispatcher accepts jobs. Circuit breaker states ride
// along for visibility but do not fail the probe; an open LLM breaker
// still leaves the bot able to play.
func Health(cfg HealthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if cfg.Store != nil {
			if _, err := cfg.Store.Exists(ctx, "healthz"); err != nil {
				checks["store"] = err.Error()
				healthy = false
			} else {
				checks["store"] = "ok"
			}
		}

		if cfg.Dispatcher != nil {
			if err := cfg.Dispatcher.HealthCheck(ctx); err != nil {
				checks["dispatcher"] = err.Error()
				healthy = false
			} else {
				checks["dispatcher"] = "ok"
			}
		}

		body := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		if cfg.Breakers != nil {
			rollup, states := cfg.Breakers.HealthStatus()
			body["breakers"] = states
			body["breaker_status"] = rollup
		}

		code := http.StatusOK
		if !healthy {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}
