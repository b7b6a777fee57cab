package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/model"
)

// workflowDescriptor is the read-only shape of one compiled workflow, served
// to clients that render lifecycle UIs.
type workflowDescriptor struct {
	Entity       string                 `json:"entity"`
	Title        string                 `json:"title"`
	InitialState string                 `json:"initial_state"`
	States       []model.StateSpec      `json:"states"`
	Transitions  []transitionDescriptor `json:"transitions"`
}

type transitionDescriptor struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	From           []string `json:"from"`
	To             string   `json:"to"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

func handleEntityList(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"entities": registry.Entities(),
			"checksum": registry.Checksum(),
		})
	}
}

func handleEntityGet(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := chi.URLParam(r, "entity")

		wf, ok := registry.Workflow(entity)
		if !ok {
			WriteNotFound(w, "unknown entity "+entity)
			return
		}

		desc := workflowDescriptor{
			Entity:       wf.Entity,
			Title:        wf.Title,
			InitialState: wf.InitialState,
			States:       wf.States(),
		}
		for _, t := range wf.Transitions() {
			desc.Transitions = append(desc.Transitions, transitionDescriptor{
				Name:           t.Name,
				Title:          t.Title,
				From:           t.Sources,
				To:             t.Destination,
				RequiredFields: t.RequiredFields,
			})
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}
