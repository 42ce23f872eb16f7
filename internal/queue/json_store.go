package queue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// JSONStore keeps one JSON file per user under a queue directory.
// Writes go through a temp file and rename so a crash mid-write never
// corrupts an entry.
type JSONStore struct {
	dir    string
	logger *events.Logger

	mu sync.Mutex
}

// NewJSONStore creates a file-backed queue store.
func NewJSONStore(dir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	return &JSONStore{
		dir:    dir,
		logger: logger.WithField("component", "queue_json_store"),
	}, nil
}

// Put stores an entry, replacing any existing entry for the same user.
func (s *JSONStore) Put(save *models.QueuedSave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(save, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queued save: %w", err)
	}

	path := s.entryPath(save.UserID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename queue entry: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":        save.UserID,
		"correlation_id": save.CorrelationID,
		"attempt_count":  save.AttemptCount,
	}).Debug("Stored queued save")

	return nil
}

// Get retrieves the entry for a user.
func (s *JSONStore) Get(userID string) (*models.QueuedSave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(s.entryPath(userID))
}

// List returns all entries, oldest enqueue first.
func (s *JSONStore) List() ([]*models.QueuedSave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read queue directory: %w", err)
	}

	var saves []*models.QueuedSave
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		save, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			// A corrupt entry must not block the rest of the drain.
			s.logger.WithError(err).WithField("file", e.Name()).Warn("Skipping unreadable queue entry")
			continue
		}
		saves = append(saves, save)
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].EnqueuedAt.Before(saves[j].EnqueuedAt)
	})

	return saves, nil
}

// Delete removes the entry for a user.
func (s *JSONStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.entryPath(userID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove queue entry: %w", err)
	}
	return nil
}

// Close is a no-op for the file-backed store.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read(path string) (*models.QueuedSave, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, models.ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read queue entry: %w", err)
	}

	var save models.QueuedSave
	if err := json.Unmarshal(data, &save); err != nil {
		return nil, fmt.Errorf("parse queue entry: %w", err)
	}
	return &save, nil
}

// entryPath escapes the user ID so it is always a single safe file name.
func (s *JSONStore) entryPath(userID string) string {
	return filepath.Join(s.dir, url.QueryEscape(userID)+".json")
}
