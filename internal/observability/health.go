package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks holds the dependency checkers for the readiness endpoint.
type ReadinessChecks struct {
	// DefinitionsLoaded must report true once the definition registry holds
	// at least one workflow.
	DefinitionsLoaded func() bool

	// Optional checks, only run when non-nil.
	DocumentStore    HealthChecker
	IdempotencyStore HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. All checks
// run concurrently with a shared timeout; any failure flips the overall
// status to degraded with a 503.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		results := make(map[string]CheckResult)
		var mu sync.Mutex
		var wg sync.WaitGroup

		record := func(name string, res CheckResult) {
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			if checks.DefinitionsLoaded != nil && checks.DefinitionsLoaded() {
				record("definitions", CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()})
			} else {
				record("definitions", CheckResult{Status: "failed", Error: "no definitions loaded"})
			}
		}()

		runCheck := func(name string, c HealthChecker) {
			if c == nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				start := time.Now()
				if err := c.HealthCheck(ctx); err != nil {
					record(name, CheckResult{Status: "failed", LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()})
					return
				}
				record(name, CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()})
			}()
		}
		runCheck("document_store", checks.DocumentStore)
		runCheck("idempotency_store", checks.IdempotencyStore)

		wg.Wait()

		status := "ready"
		code := http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				status = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(ReadinessResponse{Status: status, Checks: results})
	}
}
