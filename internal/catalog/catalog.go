// Package catalog reads the quest catalog and the static fix
// specifications. The catalog itself is produced by an external scraper
// and only consumed here.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/questsync/internal/models"
)

// Source supplies the versioned list of quest records.
type Source interface {
	Load(ctx context.Context) ([]models.CatalogRecord, error)
}

// FileSource reads catalog records from a JSON file.
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed catalog source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads and parses the catalog file.
func (s *FileSource) Load(ctx context.Context) ([]models.CatalogRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var records []models.CatalogRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(records) == 0 {
		return nil, models.ErrNoCatalog
	}

	return records, nil
}

// StaticSource serves a fixed record list, for tests and tooling.
type StaticSource []models.CatalogRecord

// Load returns the fixed records.
func (s StaticSource) Load(ctx context.Context) ([]models.CatalogRecord, error) {
	return s, nil
}

// LoadFixSpecs reads the static QuestFixSpec list from a JSON file. A
// missing file means no fixes are configured.
func LoadFixSpecs(path string) ([]models.QuestFixSpec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fix specs: %w", err)
	}

	var specs []models.QuestFixSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse fix specs: %w", err)
	}

	return specs, nil
}
