// Package pipeline implements the client-resident save orchestrator:
// health-gated submission, bounded retry with backoff, durable queue
// fallback, and automatic replay on recovery.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
	"github.com/example/questsync/internal/queue"
	"github.com/example/questsync/internal/transport"
)

// HealthSource is the read side of the availability signal.
type HealthSource interface {
	State() models.HealthState
}

// Pipeline serializes save submissions and guarantees eventual delivery
// through the durable queue. One instance per client session.
type Pipeline struct {
	transport transport.Transport
	queue     queue.Store
	health    HealthSource
	logger    *events.Logger

	maxRetries int           // retries after the first attempt
	retryDelay time.Duration // wait before the first retry, doubling after

	mu     sync.Mutex
	saving bool
}

// New creates a pipeline.
func New(
	t transport.Transport,
	q queue.Store,
	h HealthSource,
	cfg *config.APIConfig,
	logger *events.Logger,
) *Pipeline {
	return &Pipeline{
		transport:  t,
		queue:      q,
		health:     h,
		logger:     logger.WithField("component", "save_pipeline"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Submit runs one save intent through the pipeline.
//
// A second submit while one is in flight fails fast with
// models.ErrSaveInFlight; the caller sees `busy`, nothing is dropped or
// merged. When the endpoint is unavailable the intent is persisted to
// the durable queue without a network attempt and the outcome reports
// Queued. Transient delivery failures are retried up to the budget, then
// queued. Validation and persistence failures surface immediately.
func (p *Pipeline) Submit(ctx context.Context, intent models.SaveIntent) (*models.SaveOutcome, error) {
	p.mu.Lock()
	if p.saving {
		p.mu.Unlock()
		return nil, models.ErrSaveInFlight
	}
	p.saving = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.saving = false
		p.mu.Unlock()
	}()

	correlationID := uuid.NewString()
	return p.deliver(ctx, intent, correlationID, p.priorAttempts(intent.UserID))
}

// Run consumes health transitions and drains the queue on every
// recovery edge. It returns when ctx is done or the channel closes.
func (p *Pipeline) Run(ctx context.Context, transitions <-chan models.HealthTransition) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			if !t.Recovered() {
				continue
			}
			if err := p.Flush(ctx); err != nil {
				p.logger.WithError(err).Warn("Queue drain after recovery failed")
			}
		}
	}
}

// Flush replays queued saves oldest-first through the normal delivery
// path. It is the manual retry trigger and the recovery drain; flushing
// an empty queue is a no-op.
func (p *Pipeline) Flush(ctx context.Context) error {
	entries, err := p.queue.List()
	if err != nil {
		return fmt.Errorf("list queued saves: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	p.logger.WithField("entries", len(entries)).Info("Draining save queue")

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.health.State() == models.HealthUnavailable {
			p.logger.Info("Endpoint unavailable again, stopping drain")
			return nil
		}

		p.mu.Lock()
		if p.saving {
			// A foreground save owns the pipeline; its own outcome will
			// supersede or clear this entry.
			p.mu.Unlock()
			continue
		}
		p.saving = true
		p.mu.Unlock()

		outcome, err := p.deliver(ctx, entry.Intent(), entry.CorrelationID, entry.AttemptCount)

		p.mu.Lock()
		p.saving = false
		p.mu.Unlock()

		if err != nil {
			p.logger.WithError(err).WithField("user_id", entry.UserID).Error("Replay failed hard, entry dropped from retry")
			continue
		}
		if !outcome.Success {
			// Still failing; the entry was re-queued with its bumped
			// attempt count. Keep going, other users are independent.
			continue
		}
	}

	return nil
}

// deliver performs the attempt loop for one intent. priorAttempts is the
// cumulative count carried over from the durable queue.
func (p *Pipeline) deliver(ctx context.Context, intent models.SaveIntent, correlationID string, priorAttempts int) (*models.SaveOutcome, error) {
	logger := p.logger.WithFields(map[string]interface{}{
		"user_id":        intent.UserID,
		"correlation_id": correlationID,
	})

	if p.health.State() == models.HealthUnavailable {
		logger.Info("Endpoint unavailable, queueing save locally")
		if err := p.enqueue(intent, correlationID, priorAttempts); err != nil {
			return nil, err
		}
		return &models.SaveOutcome{Queued: true, ErrorKind: models.ErrKindOffline}, nil
	}

	req := models.SaveRequest{
		UserID:           intent.UserID,
		CompletedItemIDs: intent.CompletedItemIDs,
		ClientTimestamp:  intent.ClientTimestamp,
	}

	start := time.Now()
	delay := p.retryDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			logger.WithFields(map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			}).Debug("Retrying save")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := p.transport.SubmitSave(ctx, req)
		if err == nil {
			if delErr := p.queue.Delete(intent.UserID); delErr != nil {
				logger.WithError(delErr).Warn("Failed to clear queued save after success")
			}

			outcome := &models.SaveOutcome{
				Success:             true,
				ServerCorrelationID: resp.CorrelationID,
				AppliedCount:        resp.AppliedCount,
				Attempts:            attempt + 1,
				DurationMs:          time.Since(start).Milliseconds(),
			}
			logger.WithFields(map[string]interface{}{
				"server_correlation_id": resp.CorrelationID,
				"applied_count":         resp.AppliedCount,
				"attempts":              outcome.Attempts,
				"duration_ms":           outcome.DurationMs,
			}).Info("Save applied")
			return outcome, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !models.Retryable(err) {
			// Retrying a malformed or rejected write cannot change the
			// outcome; surface it and leave the queue alone.
			outcome := &models.SaveOutcome{
				Attempts:   attempt + 1,
				DurationMs: time.Since(start).Milliseconds(),
				ErrorKind:  models.ErrorKindOf(err),
			}
			logger.WithError(err).Error("Save rejected")
			return outcome, err
		}

		logger.WithError(err).WithField("attempt", attempt+1).Warn("Delivery attempt failed")
	}

	attempts := p.maxRetries + 1
	if err := p.enqueue(intent, correlationID, priorAttempts+attempts); err != nil {
		return nil, err
	}

	outcome := &models.SaveOutcome{
		Queued:     true,
		Attempts:   attempts,
		DurationMs: time.Since(start).Milliseconds(),
		ErrorKind:  models.ErrorKindOf(lastErr),
	}
	logger.WithError(lastErr).WithFields(map[string]interface{}{
		"attempts":         attempts,
		"cumulative_count": priorAttempts + attempts,
	}).Warn("Retry budget exhausted, save queued locally")

	return outcome, nil
}

// enqueue persists the intent, superseding any entry for the same user.
func (p *Pipeline) enqueue(intent models.SaveIntent, correlationID string, attemptCount int) error {
	enqueuedAt := intent.ClientTimestamp
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	save := &models.QueuedSave{
		CorrelationID:    correlationID,
		UserID:           intent.UserID,
		CompletedItemIDs: intent.CompletedItemIDs,
		EnqueuedAt:       enqueuedAt,
		AttemptCount:     attemptCount,
	}
	if err := p.queue.Put(save); err != nil {
		return fmt.Errorf("persist queued save: %w", err)
	}
	return nil
}

// priorAttempts reads the cumulative attempt count a superseding intent
// inherits from the entry it replaces.
func (p *Pipeline) priorAttempts(userID string) int {
	prior, err := p.queue.Get(userID)
	if err != nil {
		return 0
	}
	return prior.AttemptCount
}
