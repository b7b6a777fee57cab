package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/capability"
	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/internal/effect"
	"github.com/opero/lifeline/internal/workflow"
	"github.com/opero/lifeline/model"
)

// --- Test helpers ---

// contextMiddleware injects a RequestContext into the request.
func contextMiddleware(rctx *model.RequestContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(model.WithRequestContext(r.Context(), rctx)))
		})
	}
}

func testRequestContext() *model.RequestContext {
	return &model.RequestContext{
		PrincipalID: "user-1",
		TenantID:    "tenant-1",
		Email:       "user@example.com",
		Groups:      []string{"qa"},
	}
}

func testEntityDefinitions() []model.EntityDefinition {
	return []model.EntityDefinition{{
		Entity:       "order",
		Title:        "Order",
		InitialState: "created",
		Checksum:     "abc123",
		States: []model.StateSpec{
			{Name: "created"},
			{Name: "validation"},
			{Name: "accepted"},
		},
		Transitions: []model.TransitionSpec{
			{
				Name:           "submit",
				From:           []string{"created"},
				To:             "validation",
				Permission:     model.PermissionSpec{Groups: []string{"qa"}},
				RequiredFields: []string{"message"},
			},
			{Name: "accept", From: []string{"validation"}, To: "accepted",
				Permission: model.PermissionSpec{Groups: []string{"qa"}}},
		},
	}}
}

func newHandlerEngine(t *testing.T) (*workflow.Engine, *definition.Registry) {
	t.Helper()
	reg, err := definition.NewRegistry(testEntityDefinitions(), capability.NewRegistry())
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	engine := workflow.NewEngine(reg, workflow.NewMemoryStore(), effect.NewRegistry(), zap.NewNop(), nil)
	return engine, reg
}

// makeRouterRequest creates a chi-routed request with URL params and context injected.
func makeRouterRequest(method, pattern, path string, body []byte, handler http.HandlerFunc, rctx *model.RequestContext) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	if rctx != nil {
		r.Use(contextMiddleware(rctx))
	}
	switch method {
	case "GET":
		r.Get(pattern, handler)
	case "POST":
		r.Post(pattern, handler)
	case "DELETE":
		r.Delete(pattern, handler)
	}

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestDocument(t *testing.T, engine *workflow.Engine, attrs map[string]any) *model.Record {
	t.Helper()
	rec, err := engine.CreateDocument(httptest.NewRequest("GET", "/", nil).Context(), testRequestContext(), "order", attrs)
	if err != nil {
		t.Fatalf("CreateDocument error: %v", err)
	}
	return rec
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Document handler tests ---

func TestHandleDocumentCreate(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentCreate(engine)

	body := []byte(`{"attributes":{"customer_id":"usr-7"}}`)
	w := makeRouterRequest("POST", "/v1/{entity}", "/v1/order", body, handler, testRequestContext())
	if w.Code != 201 {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var rec model.Record
	decodeBody(t, w, &rec)
	if rec.State != "created" {
		t.Errorf("state = %q", rec.State)
	}
	if rec.Attributes["customer_id"] != "usr-7" {
		t.Errorf("attributes = %+v", rec.Attributes)
	}
}

func TestHandleDocumentCreate_emptyBody(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentCreate(engine)

	w := makeRouterRequest("POST", "/v1/{entity}", "/v1/order", nil, handler, testRequestContext())
	if w.Code != 201 {
		t.Errorf("status = %d, want 201 for empty body", w.Code)
	}
}

func TestHandleDocumentCreate_unknownEntity(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentCreate(engine)

	w := makeRouterRequest("POST", "/v1/{entity}", "/v1/spaceship", []byte(`{}`), handler, testRequestContext())
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleDocumentCreate_noRequestContext(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentCreate(engine)

	w := makeRouterRequest("POST", "/v1/{entity}", "/v1/order", []byte(`{}`), handler, nil)
	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleDocumentGet(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleDocumentGet(engine)

	w := makeRouterRequest("GET", "/v1/{entity}/{documentId}", "/v1/order/"+rec.DocumentID, nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var got model.Record
	decodeBody(t, w, &got)
	if got.DocumentID != rec.DocumentID {
		t.Errorf("id = %q", got.DocumentID)
	}
}

func TestHandleDocumentGet_missing(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentGet(engine)

	w := makeRouterRequest("GET", "/v1/{entity}/{documentId}", "/v1/order/nope", nil, handler, testRequestContext())
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleDocumentList(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	createTestDocument(t, engine, nil)
	createTestDocument(t, engine, nil)
	handler := handleDocumentList(engine)

	w := makeRouterRequest("GET", "/v1/{entity}", "/v1/order?limit=1", nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Data   []model.Record `json:"data"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}
	decodeBody(t, w, &body)
	if len(body.Data) != 1 {
		t.Errorf("data length = %d, want limit applied", len(body.Data))
	}
	if body.Limit != 1 {
		t.Errorf("limit = %d", body.Limit)
	}
}

func TestHandleDocumentList_emptyIsArray(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	handler := handleDocumentList(engine)

	w := makeRouterRequest("GET", "/v1/{entity}", "/v1/order", nil, handler, testRequestContext())
	if !bytes.Contains(w.Body.Bytes(), []byte(`"data":[]`)) {
		t.Errorf("empty list serialized as %s, want []", w.Body.String())
	}
}

func TestHandleDocumentDelete(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleDocumentDelete(engine)

	w := makeRouterRequest("DELETE", "/v1/{entity}/{documentId}", "/v1/order/"+rec.DocumentID, nil, handler, testRequestContext())
	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

// --- Transition handler tests ---

func TestHandleTransitionExecute(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleTransitionExecute(TransitionHandlerDeps{Engine: engine})

	body := []byte(`{"message":"please review"}`)
	path := "/v1/order/" + rec.DocumentID + "/transitions/submit"
	w := makeRouterRequest("POST", "/v1/{entity}/{documentId}/transitions/{transition}", path, body, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		Success  bool         `json:"success"`
		NewState string       `json:"new_state"`
		Message  string       `json:"message"`
		Document model.Record `json:"document"`
	}
	decodeBody(t, w, &got)
	if !got.Success || got.NewState != "validation" {
		t.Errorf("response = %+v", got)
	}
	if got.Message != "please review" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Document.State != "validation" {
		t.Errorf("document state = %q", got.Document.State)
	}
}

func TestHandleTransitionExecute_errorStatuses(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleTransitionExecute(TransitionHandlerDeps{Engine: engine})
	pattern := "/v1/{entity}/{documentId}/transitions/{transition}"

	tests := []struct {
		name string
		path string
		body string
		rctx *model.RequestContext
		want int
	}{
		{"unknown transition", "/v1/order/" + rec.DocumentID + "/transitions/teleport", `{}`, testRequestContext(), 404},
		{"invalid state", "/v1/order/" + rec.DocumentID + "/transitions/accept", `{}`, testRequestContext(), 422},
		{"permission denied", "/v1/order/" + rec.DocumentID + "/transitions/submit", `{"message":"x"}`,
			&model.RequestContext{PrincipalID: "user-2", TenantID: "tenant-1"}, 403},
		{"missing field", "/v1/order/" + rec.DocumentID + "/transitions/submit", `{}`, testRequestContext(), 422},
		{"bad json", "/v1/order/" + rec.DocumentID + "/transitions/submit", `{broken`, testRequestContext(), 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := makeRouterRequest("POST", pattern, tt.path, []byte(tt.body), handler, tt.rctx)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleTransitionExecute_idempotentReplay(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	idem := workflow.NewMemoryIdempotencyStore()
	handler := handleTransitionExecute(TransitionHandlerDeps{Engine: engine, Idempotency: idem})
	pattern := "/v1/{entity}/{documentId}/transitions/{transition}"
	path := "/v1/order/" + rec.DocumentID + "/transitions/submit"
	body := []byte(`{"message":"once"}`)

	do := func(payload []byte) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(contextMiddleware(testRequestContext()))
		r.Post(pattern, handler)
		req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
		req.Header.Set("X-Idempotency-Key", "retry-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(body); w.Code != 200 {
		t.Fatalf("first call status = %d: %s", w.Code, w.Body.String())
	}
	// The retry replays the cached result; the second execution would
	// otherwise fail with INVALID_STATE.
	w := do(body)
	if w.Code != 200 {
		t.Fatalf("replay status = %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		Success  bool   `json:"success"`
		NewState string `json:"new_state"`
	}
	decodeBody(t, w, &got)
	if !got.Success || got.NewState != "validation" {
		t.Errorf("replayed response = %+v", got)
	}

	// Same key, different payload: conflict.
	if w := do([]byte(`{"message":"different"}`)); w.Code != 409 {
		t.Errorf("mismatched replay status = %d, want 409", w.Code)
	}
}

func TestHandleTransitionList(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleTransitionList(engine)

	w := makeRouterRequest("GET", "/v1/{entity}/{documentId}/transitions",
		"/v1/order/"+rec.DocumentID+"/transitions", nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Transitions []workflow.TransitionOption `json:"transitions"`
	}
	decodeBody(t, w, &body)
	if len(body.Transitions) != 1 || body.Transitions[0].Name != "submit" {
		t.Errorf("transitions = %+v", body.Transitions)
	}
}

func TestHandleHistoryGet(t *testing.T) {
	engine, _ := newHandlerEngine(t)
	rec := createTestDocument(t, engine, nil)
	handler := handleHistoryGet(engine, nil)

	w := makeRouterRequest("GET", "/v1/{entity}/{documentId}/history",
		"/v1/order/"+rec.DocumentID+"/history", nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"history":[]`)) {
		t.Errorf("empty history serialized as %s, want []", w.Body.String())
	}
}

// --- Definition handler tests ---

func TestHandleEntityList(t *testing.T) {
	_, reg := newHandlerEngine(t)
	handler := handleEntityList(reg)

	w := makeRouterRequest("GET", "/v1/entities", "/v1/entities", nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Entities []string `json:"entities"`
		Checksum string   `json:"checksum"`
	}
	decodeBody(t, w, &body)
	if len(body.Entities) != 1 || body.Entities[0] != "order" {
		t.Errorf("entities = %v", body.Entities)
	}
	if body.Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestHandleEntityGet(t *testing.T) {
	_, reg := newHandlerEngine(t)
	handler := handleEntityGet(reg)

	w := makeRouterRequest("GET", "/v1/entities/{entity}", "/v1/entities/order", nil, handler, testRequestContext())
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var desc workflowDescriptor
	decodeBody(t, w, &desc)
	if desc.Entity != "order" || desc.InitialState != "created" {
		t.Errorf("descriptor = %+v", desc)
	}
	if len(desc.States) != 3 || len(desc.Transitions) != 2 {
		t.Errorf("states=%d transitions=%d", len(desc.States), len(desc.Transitions))
	}
	if desc.Transitions[0].Name != "submit" || desc.Transitions[0].To != "validation" {
		t.Errorf("transitions[0] = %+v", desc.Transitions[0])
	}
}

func TestHandleEntityGet_unknown(t *testing.T) {
	_, reg := newHandlerEngine(t)
	handler := handleEntityGet(reg)

	w := makeRouterRequest("GET", "/v1/entities/{entity}", "/v1/entities/spaceship", nil, handler, testRequestContext())
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
