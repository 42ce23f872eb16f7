// Package transport implements the client side of the save endpoint
// protocol. It performs single delivery attempts only; retry budget and
// queuing belong to the pipeline.
package transport

import (
	"context"

	"github.com/example/questsync/internal/models"
)

// Transport abstracts the save endpoint for the pipeline and the health
// monitor.
type Transport interface {
	// SubmitSave performs one delivery attempt for a full-replacement
	// save. Failures are classified: *models.SaveError with a transient
	// kind consumes retry budget, validation and persistence kinds do not.
	SubmitSave(ctx context.Context, req models.SaveRequest) (*models.SaveResponse, error)

	// Ping calls the liveness side channel.
	Ping(ctx context.Context) (*models.PingResponse, error)

	// Close releases resources.
	Close() error
}
