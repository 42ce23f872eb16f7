package fixes

import (
	"sync/atomic"

	"github.com/example/questsync/internal/models"
)

// StatusHolder exposes the fix run status to the health-reporting
// surfaces. The resolver publishes exactly once per process start; every
// other component reads only.
type StatusHolder struct {
	v atomic.Value
}

// NewStatusHolder creates an empty holder.
func NewStatusHolder() *StatusHolder {
	return &StatusHolder{}
}

// Publish stores the status of the completed run.
func (h *StatusHolder) Publish(status *models.FixRunStatus) {
	h.v.Store(status)
}

// Get returns the published status, or nil when the resolver has not
// completed yet.
func (h *StatusHolder) Get() *models.FixRunStatus {
	if s, ok := h.v.Load().(*models.FixRunStatus); ok {
		return s
	}
	return nil
}
