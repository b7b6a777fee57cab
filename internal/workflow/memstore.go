package workflow

import (
	"context"
	"sync"

	"github.com/opero/lifeline/model"
)

// MemoryStore is an in-memory DocumentStore for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*model.Record
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*model.Record)}
}

func memKey(tenantID, entity, documentID string) string {
	return tenantID + "\x00" + entity + "\x00" + documentID
}

func (s *MemoryStore) Create(ctx context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(rec.TenantID, rec.Entity, rec.DocumentID)
	if _, exists := s.docs[key]; exists {
		return model.NewConflictError("document already exists")
	}
	stored := rec.Clone()
	stored.Version = 1
	s.docs[key] = stored
	rec.Version = stored.Version
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, entity, documentID string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.docs[memKey(tenantID, entity, documentID)]
	if !ok {
		return nil, model.NewNotFoundError("document not found")
	}
	rec := stored.Clone()
	rec.Trail = nil
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *model.Record, appended []model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(rec.TenantID, rec.Entity, rec.DocumentID)
	stored, ok := s.docs[key]
	if !ok {
		return model.NewNotFoundError("document not found")
	}
	if stored.Version != rec.Version {
		return model.NewConflictError("document was modified concurrently")
	}

	next := rec.Clone()
	next.Trail = append(append([]model.HistoryRecord{}, stored.Trail...), appended...)
	next.Version = stored.Version + 1
	s.docs[key] = next
	rec.Version = next.Version
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, tenantID, entity, documentID string) ([]model.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.docs[memKey(tenantID, entity, documentID)]
	if !ok {
		return nil, model.NewNotFoundError("document not found")
	}
	out := make([]model.HistoryRecord, len(stored.Trail))
	copy(out, stored.Trail)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID, entity string, filters Filters) ([]*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Record
	for _, stored := range s.docs {
		if stored.TenantID != tenantID || stored.Entity != entity {
			continue
		}
		if filters.State != "" && stored.State != filters.State {
			continue
		}
		rec := stored.Clone()
		rec.Trail = nil
		out = append(out, rec)
	}
	sortRecordsByCreation(out)

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, entity, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(tenantID, entity, documentID)
	if _, ok := s.docs[key]; !ok {
		return model.NewNotFoundError("document not found")
	}
	delete(s.docs, key)
	return nil
}

// HealthCheck reports the store as always ready.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func sortRecordsByCreation(recs []*model.Record) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].CreatedAt.Before(recs[j-1].CreatedAt); j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}
