package models

import (
	"time"
)

// SaveIntent is one save request produced by the presentation layer.
// The item set is a full replacement of the user's completed set, not a
// delta. Intents are ephemeral; they are only persisted when queued.
type SaveIntent struct {
	UserID           string    `json:"user_id"`
	CompletedItemIDs []string  `json:"completed_item_ids"`
	ClientTimestamp  time.Time `json:"client_timestamp"`
}

// QueuedSave wraps a SaveIntent for durable local storage. It survives a
// process restart and is deleted only on confirmed server acknowledgment.
type QueuedSave struct {
	CorrelationID    string    `json:"correlation_id"`
	UserID           string    `json:"user_id"`
	CompletedItemIDs []string  `json:"completed_item_ids"`
	EnqueuedAt       time.Time `json:"enqueued_at"`

	// AttemptCount is cumulative across restarts and supersessions. It is
	// diagnostic only; an entry never expires on attempt count.
	AttemptCount int `json:"attempt_count"`
}

// Intent reconstructs the SaveIntent carried by a queued entry.
func (q *QueuedSave) Intent() SaveIntent {
	return SaveIntent{
		UserID:           q.UserID,
		CompletedItemIDs: q.CompletedItemIDs,
		ClientTimestamp:  q.EnqueuedAt,
	}
}

// SaveOutcome is the result of one pass through the save pipeline. It is
// never persisted; it feeds logs and UI feedback only.
type SaveOutcome struct {
	Success             bool
	Queued              bool
	ServerCorrelationID string
	AppliedCount        int
	Attempts            int
	DurationMs          int64
	ErrorKind           string
}

// SaveRequest is the wire shape accepted by the save endpoint.
type SaveRequest struct {
	UserID           string    `json:"user_id"`
	CompletedItemIDs []string  `json:"completed_item_ids"`
	ClientTimestamp  time.Time `json:"client_timestamp,omitempty"`
}

// SaveResponse is the wire shape returned on an accepted save.
type SaveResponse struct {
	CorrelationID string `json:"correlation_id"`
	AppliedCount  int    `json:"applied_count"`
}

// PingResponse is the liveness side-channel wire shape.
type PingResponse struct {
	OK             bool      `json:"ok"`
	Timestamp      time.Time `json:"timestamp"`
	StoreReachable bool      `json:"store_reachable"`
}

const maxIDLength = 128

// ValidUserID reports whether a user reference is syntactically usable.
func ValidUserID(id string) bool {
	return validID(id)
}

// ValidItemID reports whether an item identifier is syntactically
// well-formed. A request containing any malformed identifier is rejected
// wholesale; partial application is never attempted.
func ValidItemID(id string) bool {
	return validID(id)
}

func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}
