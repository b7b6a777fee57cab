// Package integration provides a reusable test harness for end-to-end
// testing of the lifeline server. It starts a full HTTP server with the
// in-memory stores, a test JWT issuer, and recording side-effect handlers.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/audit"
	"github.com/opero/lifeline/internal/capability"
	"github.com/opero/lifeline/internal/config"
	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/internal/effect"
	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/internal/transport"
	"github.com/opero/lifeline/internal/workflow"
	"github.com/opero/lifeline/model"
)

// RecordingEffect counts applications and can be told to fail, so tests can
// assert both dispatch and rollback behavior.
type RecordingEffect struct {
	name string

	mu    sync.Mutex
	calls int
	err   error
}

// Name implements effect.Handler.
func (e *RecordingEffect) Name() string { return e.name }

// Apply implements effect.Handler.
func (e *RecordingEffect) Apply(context.Context, *model.RequestContext, model.Document, model.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

// Calls returns how many times the handler ran.
func (e *RecordingEffect) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Fail makes subsequent applications return the given error.
func (e *RecordingEffect) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// TestHarness encapsulates a fully wired lifeline instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry         *definition.Registry
	Store            *workflow.MemoryStore
	Engine           *workflow.Engine
	IdempotencyStore *workflow.MemoryIdempotencyStore
	Effects          map[string]*RecordingEffect

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	effectNames    []string
	directory      map[string]string
	handlerTimeout time.Duration
}

// WithDefinitions sets the definition directories to load.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithEffects names the recording side-effect handlers to register.
func WithEffects(names ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.effectNames = names
	}
}

// WithDirectory sets the principal display-name mapping used for history
// annotation.
func WithDirectory(names map[string]string) HarnessOption {
	return func(c *harnessConfig) {
		c.directory = names
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full lifeline test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(testdataDir(), "definitions")}
	}
	if len(hc.effectNames) == 0 {
		hc.effectNames = []string{"notify", "export"}
	}

	h := &TestHarness{
		t:       t,
		Effects: make(map[string]*RecordingEffect),
	}

	// Side-effect handlers, recording so tests can assert dispatch.
	effects := effect.NewRegistry()
	for _, name := range hc.effectNames {
		rec := &RecordingEffect{name: name}
		effects.Register(rec)
		h.Effects[name] = rec
	}

	// Load, validate, and compile definitions.
	customs := capability.NewRegistry()
	defs, err := definition.NewLoader().LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator(effects.Names(), customs.Names()).Validate(defs); len(verrs) > 0 {
		t.Fatalf("invalid definitions: %v", verrs)
	}
	h.Registry, err = definition.NewRegistry(defs, customs)
	if err != nil {
		t.Fatalf("compile definitions: %v", err)
	}

	// In-memory stores and engine.
	h.Store = workflow.NewMemoryStore()
	h.IdempotencyStore = workflow.NewMemoryIdempotencyStore()
	h.Engine = workflow.NewEngine(h.Registry, h.Store, effects, zap.NewNop(), nil)

	var annotator *audit.Annotator
	if hc.directory != nil {
		annotator = audit.NewAnnotator(audit.NewStaticDirectory(hc.directory), zap.NewNop(), nil)
	}

	// JWT issuer and config.
	h.issuer = newTokenIssuer(t)
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.Observability.Metrics.Enabled = false

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)
	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       zap.NewNop(),
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Registry:     h.Registry,
		Engine:       h.Engine,
		Idempotency:  h.IdempotencyStore,
		Annotator:    annotator,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Registry.Len() > 0 },
			DocumentStore:     h.Store,
			IdempotencyStore:  h.IdempotencyStore,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertErrorCode checks status and the error envelope code.
func (h *TestHarness) AssertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %s, want %s", body.Error.Code, code)
	}
}

// --- Default test claims ---

// ReviewerClaims returns TestClaims for a qa group member.
func ReviewerClaims() TestClaims {
	return TestClaims{
		PrincipalID: "user-reviewer",
		TenantID:    "acme-corp",
		Email:       "reviewer@acme.example.com",
		Groups:      []string{"qa"},
	}
}

// CustomerClaims returns TestClaims for a plain customer with no groups.
func CustomerClaims() TestClaims {
	return TestClaims{
		PrincipalID: "user-customer",
		TenantID:    "acme-corp",
		Email:       "customer@acme.example.com",
	}
}

// SupportClaims returns TestClaims for a support group member.
func SupportClaims() TestClaims {
	return TestClaims{
		PrincipalID: "user-support",
		TenantID:    "acme-corp",
		Email:       "support@acme.example.com",
		Groups:      []string{"support"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
