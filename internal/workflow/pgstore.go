package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opero/lifeline/model"
)

// PgDocumentStore is a PostgreSQL-backed DocumentStore using pgx/v5.
//
// Schema:
//
//	CREATE TABLE documents (
//	    id          TEXT NOT NULL,
//	    entity      TEXT NOT NULL,
//	    tenant_id   TEXT NOT NULL,
//	    state       TEXT NOT NULL,
//	    attributes  JSONB,
//	    version     BIGINT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (tenant_id, entity, id)
//	);
//
//	CREATE TABLE document_history (
//	    seq          BIGSERIAL PRIMARY KEY,
//	    tenant_id    TEXT NOT NULL,
//	    entity       TEXT NOT NULL,
//	    document_id  TEXT NOT NULL,
//	    from_state   TEXT NOT NULL,
//	    to_state     TEXT NOT NULL,
//	    transition   TEXT NOT NULL,
//	    occurred_at  TIMESTAMPTZ NOT NULL,
//	    actor        TEXT NOT NULL,
//	    message      TEXT NOT NULL
//	);
//	CREATE INDEX document_history_doc_idx
//	    ON document_history (tenant_id, entity, document_id, seq);
//
// History reads order by seq: append order is the contract, not timestamps.
type PgDocumentStore struct {
	pool *pgxpool.Pool
}

// NewPgDocumentStore creates a new PostgreSQL document store.
func NewPgDocumentStore(pool *pgxpool.Pool) *PgDocumentStore {
	return &PgDocumentStore{pool: pool}
}

// Create inserts a new document in its initial state.
func (s *PgDocumentStore) Create(ctx context.Context, rec *model.Record) error {
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	rec.Version = 1
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (
			id, entity, tenant_id, state, attributes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.DocumentID, rec.Entity, rec.TenantID, rec.State, attrsJSON,
		rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get retrieves a document by entity kind and ID, scoped to tenant.
func (s *PgDocumentStore) Get(ctx context.Context, tenantID, entity, documentID string) (*model.Record, error) {
	var rec model.Record
	var attrsJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, entity, tenant_id, state, attributes, version, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND entity = $2 AND id = $3`,
		tenantID, entity, documentID,
	).Scan(
		&rec.DocumentID, &rec.Entity, &rec.TenantID, &rec.State, &attrsJSON,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(fmt.Sprintf("document %q not found", documentID))
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	if attrsJSON != nil {
		if err := json.Unmarshal(attrsJSON, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &rec, nil
}

// Update persists the new state plus appended history in one transaction
// with optimistic locking on the document version.
func (s *PgDocumentStore) Update(ctx context.Context, rec *model.Record, appended []model.HistoryRecord) error {
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET
			state = $1,
			attributes = $2,
			version = $3,
			updated_at = $4
		WHERE tenant_id = $5 AND entity = $6 AND id = $7 AND version = $8`,
		rec.State, attrsJSON, rec.Version+1, time.Now().UTC(),
		rec.TenantID, rec.Entity, rec.DocumentID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("document %q version conflict (expected %d)", rec.DocumentID, rec.Version),
		)
	}

	for _, h := range appended {
		_, err = tx.Exec(ctx, `
			INSERT INTO document_history (
				tenant_id, entity, document_id,
				from_state, to_state, transition, occurred_at, actor, message
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.TenantID, rec.Entity, rec.DocumentID,
			h.FromState, h.ToState, h.Transition, h.Timestamp, h.Actor, h.Message,
		)
		if err != nil {
			return fmt.Errorf("insert history record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	rec.Version++
	return nil
}

// GetHistory retrieves the full audit trail ordered by insertion sequence.
func (s *PgDocumentStore) GetHistory(ctx context.Context, tenantID, entity, documentID string) ([]model.HistoryRecord, error) {
	// Verify tenant access.
	if _, err := s.Get(ctx, tenantID, entity, documentID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT from_state, to_state, transition, occurred_at, actor, message
		FROM document_history
		WHERE tenant_id = $1 AND entity = $2 AND document_id = $3
		ORDER BY seq ASC`,
		tenantID, entity, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query document history: %w", err)
	}
	defer rows.Close()

	var trail []model.HistoryRecord
	for rows.Next() {
		var h model.HistoryRecord
		if err := rows.Scan(
			&h.FromState, &h.ToState, &h.Transition, &h.Timestamp, &h.Actor, &h.Message,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		trail = append(trail, h)
	}
	return trail, rows.Err()
}

// List returns documents of one entity kind for a tenant.
func (s *PgDocumentStore) List(ctx context.Context, tenantID, entity string, filters Filters) ([]*model.Record, error) {
	query := `SELECT id, entity, tenant_id, state, attributes, version, created_at, updated_at
	          FROM documents
	          WHERE tenant_id = $1 AND entity = $2`
	args := []any{tenantID, entity}
	argIdx := 3

	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filters.State)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*model.Record
	for rows.Next() {
		var rec model.Record
		var attrsJSON []byte
		if err := rows.Scan(
			&rec.DocumentID, &rec.Entity, &rec.TenantID, &rec.State, &attrsJSON,
			&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if attrsJSON != nil {
			_ = json.Unmarshal(attrsJSON, &rec.Attributes)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Delete removes a document and its history.
func (s *PgDocumentStore) Delete(ctx context.Context, tenantID, entity, documentID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM document_history
		WHERE tenant_id = $1 AND entity = $2 AND document_id = $3`,
		tenantID, entity, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document history: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE tenant_id = $1 AND entity = $2 AND id = $3`,
		tenantID, entity, documentID,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("document %q not found", documentID))
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgDocumentStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
