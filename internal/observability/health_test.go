package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealth()(w, httptest.NewRequest("GET", "/v1/health", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var body HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestHandleReady_allChecksPass(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		DocumentStore:     &stubChecker{},
		IdempotencyStore:  &stubChecker{},
	}

	w := httptest.NewRecorder()
	HandleReady(checks)(w, httptest.NewRequest("GET", "/v1/ready", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body ReadinessResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ready" {
		t.Errorf("status = %q", body.Status)
	}
	if len(body.Checks) != 3 {
		t.Errorf("checks = %+v", body.Checks)
	}
}

func TestHandleReady_failedCheckDegrades(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		DocumentStore:     &stubChecker{err: fmt.Errorf("connection refused")},
	}

	w := httptest.NewRecorder()
	HandleReady(checks)(w, httptest.NewRequest("GET", "/v1/ready", nil))

	if w.Code != 503 {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body ReadinessResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "degraded" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Checks["document_store"].Error == "" {
		t.Error("failed check must carry the error")
	}
}

func TestHandleReady_noDefinitions(t *testing.T) {
	checks := ReadinessChecks{DefinitionsLoaded: func() bool { return false }}

	w := httptest.NewRecorder()
	HandleReady(checks)(w, httptest.NewRequest("GET", "/v1/ready", nil))

	if w.Code != 503 {
		t.Errorf("status = %d, want 503 before definitions load", w.Code)
	}
}
