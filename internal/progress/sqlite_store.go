package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens (and if needed initializes) the progress database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "progress_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS completed_items (
        user_id TEXT NOT NULL,
        item_id TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (user_id, item_id)
    );

    CREATE INDEX IF NOT EXISTS idx_completed_items_user ON completed_items(user_id);

    CREATE TABLE IF NOT EXISTS catalog_records (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        data TEXT NOT NULL DEFAULT '{}'
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ReplaceCompleted swaps the user's whole set inside one transaction.
func (s *SQLiteStore) ReplaceCompleted(ctx context.Context, userID string, itemIDs []string) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	previous := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, `SELECT item_id FROM completed_items WHERE user_id = ?`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("query previous set: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan previous item: %w", err)
		}
		previous[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate previous set: %w", err)
	}

	// Symmetric difference, purely for logging.
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM completed_items WHERE user_id = ?`, userID); err != nil {
		return 0, 0, fmt.Errorf("clear previous set: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO completed_items (user_id, item_id) VALUES (?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id := range next {
		if _, err := stmt.ExecContext(ctx, userID, id); err != nil {
			return 0, 0, fmt.Errorf("insert item %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit replacement: %w", err)
	}

	return added, removed, nil
}

// GetCompleted returns the user's stored completed set.
func (s *SQLiteStore) GetCompleted(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT item_id FROM completed_items WHERE user_id = ? ORDER BY item_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query completed set: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed set: %w", err)
	}

	return ids, nil
}

// UpsertCatalog refreshes the stored catalog records, preserving any
// previously patched data.
func (s *SQLiteStore) UpsertCatalog(ctx context.Context, records []models.CatalogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO catalog_records (id, name) VALUES (?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name
    `)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Name); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// ApplyCatalogPatch merges patch keys into the record's data document.
func (s *SQLiteStore) ApplyCatalogPatch(ctx context.Context, recordID string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM catalog_records WHERE id = ?`, recordID).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("catalog record %s not stored", recordID)
	}
	if err != nil {
		return fmt.Errorf("query record: %w", err)
	}

	data := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("parse record data: %w", err)
	}
	for k, v := range patch {
		data[k] = v
	}

	merged, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal patched data: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE catalog_records SET data = ? WHERE id = ?`, string(merged), recordID); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	return tx.Commit()
}

// ListCatalog returns the stored catalog records.
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]models.CatalogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM catalog_records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var records []models.CatalogRecord
	for rows.Next() {
		var rec models.CatalogRecord
		if err := rows.Scan(&rec.ID, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping verifies reachability without touching user rows.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
