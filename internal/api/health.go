package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store"
	"github.com/jeremy-wang-lin/ansible-runner-service/pkg/health"
)

const readinessTimeout = 5 * time.Second

// HealthDeps backs the readiness check's trivial-roundtrip probes.
type HealthDeps struct {
	Store *store.JobStore
}

type healthHandler struct {
	deps HealthDeps
}

type healthOKResponse struct {
	Status string `json:"status"`
}

type healthErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// live always returns ok while the process is running (SPEC_FULL §4.J).
func (h *healthHandler) live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthOKResponse{Status: "ok"})
}

// ready checks that the ephemeral and durable products both accept a
// trivial roundtrip, adapted from pkg/health's parallel check runner but
// emitting the literal {status, reason} vocabulary SPEC_FULL §6 requires
// rather than pkg/health's own "healthy"/"unhealthy" strings.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	checks := health.Checks{
		"durable":   h.deps.Store.PingDurable,
		"ephemeral": h.deps.Store.PingEphemeral,
	}

	results := make(chan result, len(checks))
	for name, fn := range checks {
		go func(name string, fn health.CheckFunc) {
			results <- result{name: name, err: fn(ctx)}
		}(name, fn)
	}

	for i := 0; i < len(checks); i++ {
		res := <-results
		if res.err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthErrorResponse{
				Status: "error",
				Reason: res.name + ": " + res.err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthOKResponse{Status: "ok"})
}

