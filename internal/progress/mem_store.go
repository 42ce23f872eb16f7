package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/questsync/internal/models"
)

// MemStore is an in-memory Store for handler tests.
type MemStore struct {
	mu        sync.Mutex
	completed map[string]map[string]bool
	catalog   map[string]models.CatalogRecord
	patches   map[string]map[string]any

	// Error injection
	PingErr    error
	ReplaceErr error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		completed: make(map[string]map[string]bool),
		catalog:   make(map[string]models.CatalogRecord),
		patches:   make(map[string]map[string]any),
	}
}

// ReplaceCompleted swaps the user's set under the store lock.
func (s *MemStore) ReplaceCompleted(ctx context.Context, userID string, itemIDs []string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ReplaceErr != nil {
		return 0, 0, s.ReplaceErr
	}

	previous := s.completed[userID]
	next := make(map[string]bool, len(itemIDs))
	added := 0
	for _, id := range itemIDs {
		next[id] = true
		if !previous[id] {
			added++
		}
	}
	removed := 0
	for id := range previous {
		if !next[id] {
			removed++
		}
	}

	s.completed[userID] = next
	return added, removed, nil
}

// GetCompleted returns the user's stored set, sorted.
func (s *MemStore) GetCompleted(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id := range s.completed[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// UpsertCatalog refreshes the stored records.
func (s *MemStore) UpsertCatalog(ctx context.Context, records []models.CatalogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		s.catalog[rec.ID] = rec
	}
	return nil
}

// ApplyCatalogPatch merges a patch for a stored record.
func (s *MemStore) ApplyCatalogPatch(ctx context.Context, recordID string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[recordID]; !ok {
		return fmt.Errorf("catalog record %s not stored", recordID)
	}
	merged := s.patches[recordID]
	if merged == nil {
		merged = make(map[string]any)
	}
	for k, v := range patch {
		merged[k] = v
	}
	s.patches[recordID] = merged
	return nil
}

// ListCatalog returns the stored records sorted by name.
func (s *MemStore) ListCatalog(ctx context.Context) ([]models.CatalogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []models.CatalogRecord
	for _, rec := range s.catalog {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Patch returns the merged patch applied to a record, for assertions.
func (s *MemStore) Patch(recordID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patches[recordID]
}

// Ping honors the injected error.
func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
