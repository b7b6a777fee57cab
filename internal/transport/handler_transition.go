package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opero/lifeline/internal/audit"
	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/internal/workflow"
	"github.com/opero/lifeline/model"
)

// TransitionHandlerDeps bundles what transition endpoints need beyond the
// engine itself.
type TransitionHandlerDeps struct {
	Engine      *workflow.Engine
	Idempotency workflow.IdempotencyStore
	IdemTTL     time.Duration
	Annotator   *audit.Annotator
	Metrics     *observability.Metrics
}

func handleTransitionList(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")
		documentID := chi.URLParam(r, "documentId")

		options, err := engine.AvailableTransitions(r.Context(), rctx, entity, documentID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"transitions": options})
	}
}

// transitionResponse is the success shape of the execute endpoint. The
// message echoes what was committed to the audit trail for this call.
type transitionResponse struct {
	Success  bool          `json:"success"`
	NewState string        `json:"new_state"`
	Message  string        `json:"message"`
	Document *model.Record `json:"document"`
}

func newTransitionResponse(rec *model.Record) transitionResponse {
	resp := transitionResponse{Success: true, NewState: rec.State, Document: rec}
	if n := len(rec.Trail); n > 0 {
		resp.Message = rec.Trail[n-1].Message
	}
	return resp
}

func handleTransitionExecute(deps TransitionHandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")
		documentID := chi.URLParam(r, "documentId")
		transition := chi.URLParam(r, "transition")

		var payload model.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		// Replay protection: a retried request with the same key and the
		// same payload gets the cached committed record.
		idemKey := r.Header.Get("X-Idempotency-Key")
		var storeKey, inputHash string
		if idemKey != "" && deps.Idempotency != nil {
			storeKey = workflow.FormatIdempotencyKey(rctx.TenantID, documentID, idemKey)
			inputHash = workflow.HashTransitionInput(transition, payload)

			cached, found, err := deps.Idempotency.Check(r.Context(), storeKey, inputHash)
			if err != nil {
				WriteError(w, err)
				return
			}
			if found {
				if deps.Metrics != nil {
					deps.Metrics.IdempotentReplaysTotal.Inc()
				}
				WriteJSON(w, http.StatusOK, newTransitionResponse(cached))
				return
			}
		}

		rec, err := deps.Engine.ExecuteTransition(r.Context(), rctx, entity, documentID, transition, payload)
		if err != nil {
			WriteError(w, err)
			return
		}

		if storeKey != "" {
			// Best effort; a failed cache write must not fail a committed
			// transition.
			_ = deps.Idempotency.Store(r.Context(), storeKey, inputHash, rec, deps.IdemTTL)
		}
		WriteJSON(w, http.StatusOK, newTransitionResponse(rec))
	}
}

func handleHistoryGet(engine *workflow.Engine, annotator *audit.Annotator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")
		documentID := chi.URLParam(r, "documentId")

		trail, err := engine.History(r.Context(), rctx, entity, documentID)
		if err != nil {
			WriteError(w, err)
			return
		}
		trail = annotator.Annotate(r.Context(), trail)
		if trail == nil {
			trail = []model.HistoryRecord{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"history": trail})
	}
}
