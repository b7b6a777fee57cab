package workflow

import (
	"context"

	"github.com/opero/lifeline/model"
)

// DocumentStore persists documents and their append-only history.
//
// Concurrency contract: Update performs an optimistic-concurrency check on
// the record version and returns CONFLICT when the stored version has moved.
// The history rows passed to Update commit atomically with the state change,
// so the audit trail and the live state never diverge.
type DocumentStore interface {
	// Create persists a new document in its initial state.
	Create(ctx context.Context, rec *model.Record) error

	// Get retrieves a document by entity kind and ID, scoped to a tenant.
	// The history trail is not loaded; use GetHistory. Returns NOT_FOUND if
	// the document doesn't exist or belongs to a different tenant.
	Get(ctx context.Context, tenantID, entity, documentID string) (*model.Record, error)

	// Update persists the document's new state together with the freshly
	// appended history records. The record's version must match the stored
	// version; on success the stored version increments.
	Update(ctx context.Context, rec *model.Record, appended []model.HistoryRecord) error

	// GetHistory retrieves the full audit trail in append order. Append
	// order is authoritative; implementations must not reorder by
	// timestamp.
	GetHistory(ctx context.Context, tenantID, entity, documentID string) ([]model.HistoryRecord, error)

	// List returns documents of one entity kind for a tenant.
	List(ctx context.Context, tenantID, entity string, filters Filters) ([]*model.Record, error)

	// Delete removes a document and its history.
	Delete(ctx context.Context, tenantID, entity, documentID string) error
}

// Filters are optional filters for listing documents.
type Filters struct {
	State  string
	Limit  int
	Offset int
}
