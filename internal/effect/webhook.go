package effect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/opero/lifeline/model"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookHandler delivers the transition context to an external endpoint
// with a POST. Any transport error or non-2xx response fails the transition.
type WebhookHandler struct {
	name    string
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhookHandler creates a webhook handler with its own timeout. A zero
// timeout falls back to the default.
func NewWebhookHandler(name, url string, timeout time.Duration, headers map[string]string) *WebhookHandler {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookHandler{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// Name implements Handler.
func (h *WebhookHandler) Name() string { return h.name }

// webhookEnvelope is the body posted to the endpoint.
type webhookEnvelope struct {
	DocumentID  string        `json:"document_id"`
	State       string        `json:"state"`
	PrincipalID string        `json:"principal_id"`
	TenantID    string        `json:"tenant_id"`
	Payload     model.Payload `json:"payload,omitempty"`
}

// Apply implements Handler. It posts the envelope and treats anything
// outside 2xx as failure so the executor rolls the transition back.
func (h *WebhookHandler) Apply(ctx context.Context, rctx *model.RequestContext, doc model.Document, payload model.Payload) error {
	env := webhookEnvelope{
		DocumentID: doc.ID(),
		State:      doc.CurrentState(),
		Payload:    payload,
	}
	if rctx != nil {
		env.PrincipalID = rctx.PrincipalID
		env.TenantID = rctx.TenantID
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("webhook %q: marshal body: %w", h.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %q: build request: %w", h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %q: %w", h.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %q: endpoint returned status %d", h.name, resp.StatusCode)
	}
	return nil
}

// LogHandler records the transition in the service log and always succeeds.
// Useful for definitions that want an audit breadcrumb outside the document
// history without an external dependency.
type LogHandler struct {
	name   string
	logger *zap.Logger
}

// NewLogHandler creates a logging side-effect handler.
func NewLogHandler(name string, logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{name: name, logger: logger}
}

// Name implements Handler.
func (h *LogHandler) Name() string { return h.name }

// Apply implements Handler.
func (h *LogHandler) Apply(_ context.Context, rctx *model.RequestContext, doc model.Document, payload model.Payload) error {
	fields := []zap.Field{
		zap.String("handler", h.name),
		zap.String("document_id", doc.ID()),
		zap.String("state", doc.CurrentState()),
		zap.String("message", payload.Message()),
	}
	if rctx != nil {
		fields = append(fields,
			zap.String("principal_id", rctx.PrincipalID),
			zap.String("tenant_id", rctx.TenantID),
		)
	}
	h.logger.Info("side effect", fields...)
	return nil
}
