// Package queue implements the durable local save queue. Entries survive
// a process restart and are deleted only on confirmed server
// acknowledgment.
package queue

import (
	"fmt"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// Store persists queued saves. The pipeline is the only writer; one
// entry per user at a time (a newer intent supersedes, never appends).
type Store interface {
	// Put stores an entry, replacing any existing entry for the same user.
	Put(save *models.QueuedSave) error

	// Get retrieves the entry for a user, or ErrQueueEntryNotFound.
	Get(userID string) (*models.QueuedSave, error)

	// List returns all entries, oldest enqueue first.
	List() ([]*models.QueuedSave, error)

	// Delete removes the entry for a user. Deleting a missing entry is
	// not an error; queue drains are idempotent.
	Delete(userID string) error

	// Close releases resources.
	Close() error
}

// Open creates the store for the configured backend.
func Open(cfg *config.QueueConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Dir, logger)
	case "json":
		return NewJSONStore(cfg.Dir, logger)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
