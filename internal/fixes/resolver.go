// Package fixes patches known-stale catalog records at process start.
package fixes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/questsync/internal/catalog"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// Patcher applies one correction against the live catalog record.
type Patcher interface {
	ApplyCatalogPatch(ctx context.Context, recordID string, patch map[string]any) error
}

// matcher is one tier of the fallback chain.
type matcher struct {
	method string
	match  func(spec models.QuestFixSpec, rec models.CatalogRecord) bool
}

// matchers in priority order; resolution stops at the first tier that
// yields a hit.
var matchers = []matcher{
	{models.MatchKnownID, func(s models.QuestFixSpec, r models.CatalogRecord) bool {
		return s.KnownID != "" && r.ID == s.KnownID
	}},
	{models.MatchExactName, func(s models.QuestFixSpec, r models.CatalogRecord) bool {
		return r.Name == s.DisplayName
	}},
	{models.MatchCaseInsensitive, func(s models.QuestFixSpec, r models.CatalogRecord) bool {
		return strings.EqualFold(r.Name, s.DisplayName)
	}},
	{models.MatchNormalized, func(s models.QuestFixSpec, r models.CatalogRecord) bool {
		return catalog.Normalize(r.Name) == catalog.Normalize(s.DisplayName)
	}},
}

// Resolve runs the matcher chain for each spec against the live records.
// Pure: no patches are applied, making the tier logic testable alone.
func Resolve(specs []models.QuestFixSpec, records []models.CatalogRecord) []models.QuestFixResult {
	results := make([]models.QuestFixResult, 0, len(specs))
	for _, spec := range specs {
		results = append(results, resolveSpec(spec, records))
	}
	return results
}

func resolveSpec(spec models.QuestFixSpec, records []models.CatalogRecord) models.QuestFixResult {
	result := models.QuestFixResult{
		DisplayName: spec.DisplayName,
		KnownID:     spec.KnownID,
	}

	if rec, method, ok := resolveOne(spec, records); ok {
		result.ResolvedID = rec.ID
		result.MatchMethod = method
		result.IDDrifted = spec.KnownID != "" && rec.ID != spec.KnownID
	} else {
		result.FailureReason = "no catalog record matched by id or name"
	}

	return result
}

func resolveOne(spec models.QuestFixSpec, records []models.CatalogRecord) (models.CatalogRecord, string, bool) {
	for _, m := range matchers {
		for _, rec := range records {
			if m.match(spec, rec) {
				return rec, m.method, true
			}
		}
	}
	return models.CatalogRecord{}, "", false
}

// Resolver runs the whole fix pass once at start-up.
type Resolver struct {
	source  catalog.Source
	patcher Patcher
	logger  *events.Logger
}

// NewResolver creates a resolver.
func NewResolver(source catalog.Source, patcher Patcher, logger *events.Logger) *Resolver {
	return &Resolver{
		source:  source,
		patcher: patcher,
		logger:  logger.WithField("component", "fix_resolver"),
	}
}

// Run resolves and applies every spec, then returns the aggregate
// status. A single failed spec never aborts the batch, and any failure
// is non-fatal to start-up; Run only errors when the catalog itself is
// unreadable.
func (r *Resolver) Run(ctx context.Context, specs []models.QuestFixSpec) (*models.FixRunStatus, error) {
	records, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	status := &models.FixRunStatus{
		RanAt:    time.Now().UTC(),
		Total:    len(specs),
		Failures: []models.FixFailure{},
	}

	for _, spec := range specs {
		result := resolveSpec(spec, records)
		logger := r.logger.WithFields(map[string]interface{}{
			"display_name": result.DisplayName,
			"known_id":     result.KnownID,
		})

		if result.MatchMethod == "" {
			r.recordFailure(status, result)
			logger.Warn("No matching catalog record for fix")
			continue
		}

		if result.IDDrifted {
			status.IDChanges++
			logger.WithFields(map[string]interface{}{
				"resolved_id":  result.ResolvedID,
				"match_method": result.MatchMethod,
			}).Warn("Catalog identifier drifted, patching live id")
		}

		// Drift never blocks the fix; the patch targets the live id.
		if err := r.patcher.ApplyCatalogPatch(ctx, result.ResolvedID, spec.Patch); err != nil {
			result.FailureReason = fmt.Sprintf("apply patch: %v", err)
			r.recordFailure(status, result)
			logger.WithError(err).Error("Failed to apply catalog fix")
			continue
		}

		result.Applied = true
		status.Successful++
		logger.WithFields(map[string]interface{}{
			"resolved_id":  result.ResolvedID,
			"match_method": result.MatchMethod,
		}).Info("Catalog fix applied")
	}

	r.logger.WithFields(map[string]interface{}{
		"total":      status.Total,
		"successful": status.Successful,
		"failed":     status.Failed,
		"id_changes": status.IDChanges,
	}).Info("Catalog fix run complete")

	return status, nil
}

func (r *Resolver) recordFailure(status *models.FixRunStatus, result models.QuestFixResult) {
	status.Failed++
	status.Failures = append(status.Failures, models.FixFailure{
		DisplayName:   result.DisplayName,
		FailureReason: result.FailureReason,
	})
}
