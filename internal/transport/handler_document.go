package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opero/lifeline/internal/workflow"
	"github.com/opero/lifeline/model"
)

func handleDocumentCreate(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")

		var body struct {
			Attributes map[string]any `json:"attributes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		rec, err := engine.CreateDocument(r.Context(), rctx, entity, body.Attributes)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, rec)
	}
}

func handleDocumentGet(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")
		documentID := chi.URLParam(r, "documentId")

		rec, err := engine.GetDocument(r.Context(), rctx, entity, documentID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func handleDocumentList(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")

		filters := workflow.Filters{
			State:  r.URL.Query().Get("state"),
			Limit:  queryInt(r, "limit", 50),
			Offset: queryInt(r, "offset", 0),
		}

		recs, err := engine.ListDocuments(r.Context(), rctx, entity, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		if recs == nil {
			recs = []*model.Record{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   recs,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func handleDocumentDelete(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "entity")
		documentID := chi.URLParam(r, "documentId")

		if err := engine.DeleteDocument(r.Context(), rctx, entity, documentID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
