package models

import "time"

// CatalogRecord is one trackable quest as supplied by the catalog source.
// The identifier is stable but not guaranteed permanent; the display name
// is the fallback key when it drifts.
type CatalogRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// QuestFixSpec is a static correction for a known-stale catalog record.
// Immutable for the process lifetime.
type QuestFixSpec struct {
	DisplayName string         `json:"display_name"`
	KnownID     string         `json:"known_id"`
	Patch       map[string]any `json:"patch"`
}

// Match methods, in fallback order.
const (
	MatchKnownID         = "known_id"
	MatchExactName       = "exact_name"
	MatchCaseInsensitive = "case_insensitive"
	MatchNormalized      = "normalized"
)

// QuestFixResult records the outcome of resolving one QuestFixSpec.
type QuestFixResult struct {
	DisplayName   string `json:"display_name"`
	KnownID       string `json:"known_id"`
	ResolvedID    string `json:"resolved_id,omitempty"`
	MatchMethod   string `json:"match_method,omitempty"`
	IDDrifted     bool   `json:"id_drifted"`
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// FixFailure is the per-record failure shape exposed by the fix report.
type FixFailure struct {
	DisplayName   string `json:"display_name"`
	FailureReason string `json:"failure_reason"`
}

// FixRunStatus aggregates one resolver run. Written exactly once at
// start-up; a restart re-runs resolution and replaces it wholesale.
type FixRunStatus struct {
	RanAt      time.Time    `json:"ran_at"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	IDChanges  int          `json:"id_changes"`
	Failures   []FixFailure `json:"failures"`
}
