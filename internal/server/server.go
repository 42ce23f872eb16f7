// Package server implements the save endpoint: save submission,
// liveness side channel, fix-status report, aggregate health, and the
// presentation event feed.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/fixes"
	"github.com/example/questsync/internal/models"
	"github.com/example/questsync/internal/progress"
)

// Server handles requests against the progress store. It may be invoked
// concurrently; the store's transactional write is the sole
// serialization point.
type Server struct {
	store     progress.Store
	fixStatus *fixes.StatusHolder
	hub       *Hub
	logger    *events.Logger
}

// New creates a server.
func New(store progress.Store, fixStatus *fixes.StatusHolder, logger *events.Logger) *Server {
	return &Server{
		store:     store,
		fixStatus: fixStatus,
		hub:       NewHub(logger),
		logger:    logger.WithField("component", "save_endpoint"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/saves", s.handleSave)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/fixes", s.handleFixes)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/events", s.hub.handleWS)
	return s.withLogging(mux)
}

// HealthReport is the aggregate surface consumed by status banners.
type HealthReport struct {
	Level    string               `json:"level"` // ok, degraded, error
	Liveness models.PingResponse  `json:"liveness"`
	Fixes    *models.FixRunStatus `json:"fixes,omitempty"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, models.ErrKindValidation, "method not allowed")
		return
	}

	// The correlation identifier is generated here, independent of any
	// client-side identifier, so the two log streams can still be
	// cross-referenced.
	correlationID := uuid.NewString()
	logger := s.logger.WithField("correlation_id", correlationID)
	start := time.Now()

	var req models.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Warn("Rejected unparseable save request")
		s.writeError(w, http.StatusBadRequest, models.ErrKindValidation, "malformed request body")
		return
	}

	logger = logger.WithField("user_id", req.UserID)
	logger.WithField("items", len(req.CompletedItemIDs)).Info("Save request received")

	if !models.ValidUserID(req.UserID) {
		logger.Warn("Rejected save with invalid user reference")
		s.writeError(w, http.StatusBadRequest, models.ErrKindValidation, "invalid user reference")
		return
	}
	for _, id := range req.CompletedItemIDs {
		if !models.ValidItemID(id) {
			// Wholesale rejection; partial application is never attempted.
			logger.WithField("item_id", id).Warn("Rejected save with malformed item identifier")
			s.writeError(w, http.StatusBadRequest, models.ErrKindValidation, "malformed item identifier")
			return
		}
	}

	added, removed, err := s.store.ReplaceCompleted(r.Context(), req.UserID, req.CompletedItemIDs)
	if err != nil {
		logger.WithError(err).Error("Store rejected completed-set replacement")
		s.writeError(w, http.StatusInternalServerError, models.ErrKindPersistence, "failed to persist completed set")
		return
	}

	appliedCount := countUnique(req.CompletedItemIDs)
	logger.WithFields(map[string]interface{}{
		"applied_count": appliedCount,
		"added":         added,
		"removed":       removed,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Save applied")

	s.hub.Broadcast(FeedEvent{
		Type:          "save_applied",
		UserID:        req.UserID,
		CorrelationID: correlationID,
		AppliedCount:  appliedCount,
		Timestamp:     time.Now().UTC(),
	})

	w.Header().Set("X-Correlation-ID", correlationID)
	s.writeJSON(w, http.StatusOK, models.SaveResponse{
		CorrelationID: correlationID,
		AppliedCount:  appliedCount,
	})
}

// handleStatus is the liveness side channel. It answers cheaply and
// never touches per-user data.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.liveness(r))
}

func (s *Server) liveness(r *http.Request) models.PingResponse {
	return models.PingResponse{
		OK:             true,
		Timestamp:      time.Now().UTC(),
		StoreReachable: s.store.Ping(r.Context()) == nil,
	}
}

func (s *Server) handleFixes(w http.ResponseWriter, r *http.Request) {
	status := s.fixStatus.Get()
	if status == nil {
		s.writeError(w, http.StatusServiceUnavailable, models.ErrKindTransient, "fix resolver has not completed")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{
		Level:    "ok",
		Liveness: s.liveness(r),
		Fixes:    s.fixStatus.Get(),
	}

	switch {
	case !report.Liveness.StoreReachable:
		report.Level = "error"
	case report.Fixes != nil && (report.Fixes.Failed > 0 || report.Fixes.IDChanges > 0):
		report.Level = "degraded"
	}

	s.writeJSON(w, http.StatusOK, report)
}

// withLogging logs every request with its duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Request handled")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, models.APIError{ErrorKind: kind, Message: message})
}

func countUnique(ids []string) int {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}
