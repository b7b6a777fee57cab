// Package workflow executes declaratively configured state transitions on
// persisted documents. The engine validates a requested transition against
// the compiled definition, runs its side-effect, and commits the state change
// together with the audit record, all-or-nothing.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/internal/effect"
	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/model"
)

// TransitionOption is one transition currently available to a caller on a
// document, as returned by introspection.
type TransitionOption struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	To    string `json:"to"`
}

// Engine coordinates transition execution across the definition registry,
// the document store and the side-effect handlers.
type Engine struct {
	registry *definition.Registry
	store    DocumentStore
	effects  *effect.Registry
	logger   *zap.Logger
	metrics  *observability.Metrics

	// now is swappable so tests can control audit timestamps.
	now func() time.Time
}

// NewEngine creates a new workflow engine.
func NewEngine(
	registry *definition.Registry,
	store DocumentStore,
	effects *effect.Registry,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		effects:  effects,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocument creates a new document in the entity's initial state. The
// audit trail starts empty; history records exist only for transitions.
func (e *Engine) CreateDocument(
	ctx context.Context,
	rctx *model.RequestContext,
	entity string,
	attributes map[string]any,
) (*model.Record, error) {
	wf, ok := e.registry.Workflow(entity)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}

	now := e.now()
	rec := &model.Record{
		DocumentID: uuid.New().String(),
		Entity:     entity,
		TenantID:   rctx.TenantID,
		State:      wf.InitialState,
		Attributes: attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.DocumentsCreatedTotal.WithLabelValues(entity).Inc()
	}
	e.logger.Info("document created",
		zap.String("entity", entity),
		zap.String("document_id", rec.DocumentID),
		zap.String("state", rec.State),
	)
	return rec, nil
}

// GetDocument retrieves a document, scoped to the caller's tenant.
func (e *Engine) GetDocument(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID string,
) (*model.Record, error) {
	if _, ok := e.registry.Workflow(entity); !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}
	return e.store.Get(ctx, rctx.TenantID, entity, documentID)
}

// ListDocuments returns documents of one entity kind for the caller's tenant.
func (e *Engine) ListDocuments(
	ctx context.Context,
	rctx *model.RequestContext,
	entity string,
	filters Filters,
) ([]*model.Record, error) {
	if _, ok := e.registry.Workflow(entity); !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}
	return e.store.List(ctx, rctx.TenantID, entity, filters)
}

// DeleteDocument removes a document and its history.
func (e *Engine) DeleteDocument(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID string,
) error {
	if _, ok := e.registry.Workflow(entity); !ok {
		return model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}
	return e.store.Delete(ctx, rctx.TenantID, entity, documentID)
}

// AvailableTransitions returns the transitions the caller may execute on the
// document right now, in definition declaration order. The call is read-only:
// no side-effects run, no state changes, nothing is appended to history.
func (e *Engine) AvailableTransitions(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID string,
) ([]TransitionOption, error) {
	wf, ok := e.registry.Workflow(entity)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}

	rec, err := e.store.Get(ctx, rctx.TenantID, entity, documentID)
	if err != nil {
		return nil, err
	}

	options := make([]TransitionOption, 0)
	for _, t := range wf.Transitions() {
		if !t.Permitted(rctx, rec) {
			continue
		}
		options = append(options, TransitionOption{
			Name:  t.Name,
			Title: t.Title,
			To:    t.Destination,
		})
	}
	return options, nil
}

// ExecuteTransition runs one named transition on a document. Validation,
// side-effect and commit are strictly ordered; any failure leaves the
// document untouched and appends nothing to its history.
func (e *Engine) ExecuteTransition(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID, transitionName string,
	payload model.Payload,
) (*model.Record, error) {
	start := e.now()

	ctx, span := observability.Tracer().Start(ctx, "workflow.ExecuteTransition")
	defer span.End()
	span.SetAttributes(
		observability.AttrEntity.String(entity),
		observability.AttrDocumentID.String(documentID),
		observability.AttrTransition.String(transitionName),
		observability.AttrTenantID.String(rctx.TenantID),
	)

	rec, err := e.executeTransition(ctx, rctx, entity, documentID, transitionName, payload)
	if err != nil {
		observability.RecordError(span, err)
		e.observeFailure(entity, transitionName, err)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(entity, transitionName, "committed").Inc()
		e.metrics.TransitionDuration.WithLabelValues(entity, transitionName).
			Observe(e.now().Sub(start).Seconds())
	}
	return rec, nil
}

func (e *Engine) executeTransition(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID, transitionName string,
	payload model.Payload,
) (*model.Record, error) {
	// 1. Look up the compiled workflow for this entity kind.
	wf, ok := e.registry.Workflow(entity)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}

	// 2. Load the document, tenant-scoped.
	rec, err := e.store.Get(ctx, rctx.TenantID, entity, documentID)
	if err != nil {
		return nil, err
	}
	fromState := rec.State

	// 3. The transition must exist in the definition at all.
	t, ok := wf.Transition(transitionName)
	if !ok {
		return nil, model.NewUnknownTransitionError(transitionName)
	}

	// 4. The current state must be one of the transition's sources. This
	// check precedes the permission predicate: a caller probing from the
	// wrong state learns about the state, never about permissions.
	if !t.ValidFrom(fromState) {
		return nil, model.NewInvalidStateError(transitionName, fromState)
	}

	// 5. Permission predicate, evaluated against the current state.
	if !t.Permission.Allows(rctx, rec) {
		return nil, model.NewPermissionDeniedError()
	}

	// 6. Required payload fields, checked in declaration order so the
	// caller always learns the first missing one.
	for _, field := range t.RequiredFields {
		if !payload.Has(field) {
			return nil, model.NewMissingRequiredFieldError(field)
		}
	}

	// 7. Run the side-effect bound to this (source state, transition) pair,
	// if any. A failing side-effect aborts before any mutation.
	if name := t.EffectFor(fromState); name != "" {
		if err := e.runEffect(ctx, rctx, name, rec, payload); err != nil {
			e.logger.Warn("side-effect failed, transition rolled back",
				zap.String("entity", entity),
				zap.String("document_id", documentID),
				zap.String("transition", transitionName),
				zap.String("handler", name),
				zap.Error(err),
			)
			return nil, model.NewSideEffectFailureError(err)
		}
	}

	// 8. Commit: flip the state, append the audit record, persist both
	// atomically under optimistic locking.
	appended := []model.HistoryRecord{{
		FromState:  fromState,
		ToState:    t.Destination,
		Transition: t.Name,
		Timestamp:  e.now(),
		Actor:      rctx.PrincipalID,
		Message:    payload.Message(),
	}}
	rec.SetCurrentState(t.Destination)
	rec.UpdatedAt = e.now()
	for _, h := range appended {
		rec.AppendHistory(h)
	}

	if err := e.store.Update(ctx, rec, appended); err != nil {
		return nil, err
	}

	e.logger.Info("transition committed",
		zap.String("entity", entity),
		zap.String("document_id", documentID),
		zap.String("transition", transitionName),
		zap.String("from", fromState),
		zap.String("to", t.Destination),
		zap.String("actor", rctx.PrincipalID),
	)
	return rec, nil
}

// History returns the document's full audit trail in append order.
func (e *Engine) History(
	ctx context.Context,
	rctx *model.RequestContext,
	entity, documentID string,
) ([]model.HistoryRecord, error) {
	if _, ok := e.registry.Workflow(entity); !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown entity %q", entity))
	}
	return e.store.GetHistory(ctx, rctx.TenantID, entity, documentID)
}

// runEffect resolves and applies one side-effect handler with timing.
func (e *Engine) runEffect(
	ctx context.Context,
	rctx *model.RequestContext,
	name string,
	rec *model.Record,
	payload model.Payload,
) error {
	h, ok := e.effects.Get(name)
	if !ok {
		// Definitions are validated against registered handlers at load
		// time, so this indicates a wiring regression.
		return fmt.Errorf("side-effect handler %q not registered", name)
	}

	start := e.now()
	err := h.Apply(ctx, rctx, rec, payload)
	if e.metrics != nil {
		e.metrics.SideEffectDuration.WithLabelValues(name).
			Observe(e.now().Sub(start).Seconds())
	}
	return err
}

func (e *Engine) observeFailure(entity, transition string, err error) {
	if e.metrics == nil {
		return
	}
	code := model.ErrInternal
	if env, ok := err.(*model.ErrorEnvelope); ok {
		code = env.Code
	}
	e.metrics.TransitionsTotal.WithLabelValues(entity, transition, "rejected").Inc()
	e.metrics.TransitionFailures.WithLabelValues(entity, transition, code).Inc()
}
