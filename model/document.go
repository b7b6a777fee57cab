package model

import "time"

// Document is the contract between the workflow engine and the entity whose
// lifecycle it governs. The engine only ever reads the current state,
// overwrites it on commit, and appends to the history; everything else about
// the entity belongs to its owner.
type Document interface {
	// ID returns the stable identifier of the document.
	ID() string

	// CurrentState returns the document's current lifecycle state.
	CurrentState() string

	// SetCurrentState overwrites the current lifecycle state.
	SetCurrentState(state string)

	// History returns the append-only audit trail in append order.
	History() []HistoryRecord

	// AppendHistory appends one record to the audit trail.
	AppendHistory(rec HistoryRecord)

	// Attr returns an entity-specific attribute by name, or nil. Permission
	// predicates use this for ownership checks.
	Attr(name string) any
}

// Record is the persisted form of a document: one business entity instance
// tracked by a workflow definition. It implements Document.
type Record struct {
	DocumentID string         `json:"id"`
	Entity     string         `json:"entity"`
	TenantID   string         `json:"tenant_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Trail      []HistoryRecord `json:"history,omitempty"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ID implements Document.
func (r *Record) ID() string { return r.DocumentID }

// CurrentState implements Document.
func (r *Record) CurrentState() string { return r.State }

// SetCurrentState implements Document.
func (r *Record) SetCurrentState(state string) { r.State = state }

// History implements Document.
func (r *Record) History() []HistoryRecord { return r.Trail }

// AppendHistory implements Document.
func (r *Record) AppendHistory(rec HistoryRecord) {
	r.Trail = append(r.Trail, rec)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	if r.Attributes != nil {
		out.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	if r.Trail != nil {
		out.Trail = make([]HistoryRecord, len(r.Trail))
		copy(out.Trail, r.Trail)
	}
	return &out
}

// Attr implements Document.
func (r *Record) Attr(name string) any {
	if r.Attributes == nil {
		return nil
	}
	return r.Attributes[name]
}
