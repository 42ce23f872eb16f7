package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// SQLiteStore keeps the queue in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite-backed queue store under dir.
func NewSQLiteStore(dir string, logger *events.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	dbPath := filepath.Join(dir, "queue.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "queue_sqlite_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS queued_saves (
        user_id TEXT PRIMARY KEY,
        correlation_id TEXT NOT NULL,
        item_ids TEXT NOT NULL,
        enqueued_at TIMESTAMP NOT NULL,
        attempt_count INTEGER NOT NULL DEFAULT 0
    );

    CREATE INDEX IF NOT EXISTS idx_queued_saves_enqueued ON queued_saves(enqueued_at);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Put stores an entry, replacing any existing entry for the same user.
func (s *SQLiteStore) Put(save *models.QueuedSave) error {
	itemIDs, err := json.Marshal(save.CompletedItemIDs)
	if err != nil {
		return fmt.Errorf("marshal item ids: %w", err)
	}

	_, err = s.db.Exec(`
        INSERT INTO queued_saves (user_id, correlation_id, item_ids, enqueued_at, attempt_count)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            correlation_id = excluded.correlation_id,
            item_ids = excluded.item_ids,
            enqueued_at = excluded.enqueued_at,
            attempt_count = excluded.attempt_count
    `, save.UserID, save.CorrelationID, string(itemIDs), save.EnqueuedAt.UTC(), save.AttemptCount)
	if err != nil {
		return fmt.Errorf("store queued save: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":        save.UserID,
		"correlation_id": save.CorrelationID,
		"attempt_count":  save.AttemptCount,
	}).Debug("Stored queued save")

	return nil
}

// Get retrieves the entry for a user.
func (s *SQLiteStore) Get(userID string) (*models.QueuedSave, error) {
	row := s.db.QueryRow(`
        SELECT user_id, correlation_id, item_ids, enqueued_at, attempt_count
        FROM queued_saves WHERE user_id = ?
    `, userID)

	save, err := scanSave(row.Scan)
	if err == sql.ErrNoRows {
		return nil, models.ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query queued save: %w", err)
	}
	return save, nil
}

// List returns all entries, oldest enqueue first.
func (s *SQLiteStore) List() ([]*models.QueuedSave, error) {
	rows, err := s.db.Query(`
        SELECT user_id, correlation_id, item_ids, enqueued_at, attempt_count
        FROM queued_saves ORDER BY enqueued_at ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query queued saves: %w", err)
	}
	defer rows.Close()

	var saves []*models.QueuedSave
	for rows.Next() {
		save, err := scanSave(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan queued save: %w", err)
		}
		saves = append(saves, save)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued saves: %w", err)
	}

	return saves, nil
}

// Delete removes the entry for a user.
func (s *SQLiteStore) Delete(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM queued_saves WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete queued save: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSave(scan func(dest ...any) error) (*models.QueuedSave, error) {
	var save models.QueuedSave
	var itemIDs string
	var enqueuedAt time.Time

	if err := scan(&save.UserID, &save.CorrelationID, &itemIDs, &enqueuedAt, &save.AttemptCount); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(itemIDs), &save.CompletedItemIDs); err != nil {
		return nil, fmt.Errorf("parse item ids: %w", err)
	}
	save.EnqueuedAt = enqueuedAt

	return &save, nil
}
