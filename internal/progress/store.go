// Package progress is the server-side persistent store: user completed
// sets and the patched catalog records.
package progress

import (
	"context"

	"github.com/example/questsync/internal/models"
)

// Store is the sole serialization point for save writes. Each
// ReplaceCompleted is atomic; two stale submissions can never interleave
// into a merged state.
type Store interface {
	// ReplaceCompleted swaps the user's entire completed set in one
	// transaction and reports the delta against what was stored before
	// (for logging only; the write itself is last-write-wins).
	ReplaceCompleted(ctx context.Context, userID string, itemIDs []string) (added, removed int, err error)

	// GetCompleted returns the user's stored completed set.
	GetCompleted(ctx context.Context, userID string) ([]string, error)

	// UpsertCatalog refreshes the stored catalog records.
	UpsertCatalog(ctx context.Context, records []models.CatalogRecord) error

	// ApplyCatalogPatch merges a fix patch into one catalog record.
	ApplyCatalogPatch(ctx context.Context, recordID string, patch map[string]any) error

	// ListCatalog returns the stored catalog records.
	ListCatalog(ctx context.Context) ([]models.CatalogRecord, error)

	// Ping verifies the store is reachable, without touching user data.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
