// Package health polls the save endpoint's liveness side channel and
// owns the process-wide availability signal.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
)

// Prober is the liveness call the monitor repeats.
type Prober interface {
	Ping(ctx context.Context) (*models.PingResponse, error)
}

// Monitor flips the availability signal on every probe result: a single
// failed probe means Unavailable (blocking saves is cheaper than losing
// them), a single success means Available (spurious queue drains are
// idempotent no-ops). Save outcomes never touch the state.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *events.Logger

	state       atomic.Int32
	transitions chan models.HealthTransition
}

// New creates a monitor in the Unknown state.
func New(prober Prober, cfg *config.HealthConfig, logger *events.Logger) *Monitor {
	m := &Monitor{
		prober:      prober,
		interval:    cfg.ProbeInterval,
		timeout:     cfg.ProbeTimeout,
		logger:      logger.WithField("component", "health_monitor"),
		transitions: make(chan models.HealthTransition, 16),
	}
	m.state.Store(int32(models.HealthUnknown))
	return m
}

// State returns the current availability signal.
func (m *Monitor) State() models.HealthState {
	return models.HealthState(m.state.Load())
}

// Events returns the transition channel. A message is sent only on an
// actual state change.
func (m *Monitor) Events() <-chan models.HealthTransition {
	return m.transitions
}

// Run probes once eagerly, then on the fixed interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	next := models.HealthAvailable
	ping, err := m.prober.Ping(probeCtx)
	switch {
	case err != nil:
		m.logger.WithError(err).Debug("Probe failed")
		next = models.HealthUnavailable
	case !ping.OK || !ping.StoreReachable:
		m.logger.WithFields(map[string]interface{}{
			"ok":              ping.OK,
			"store_reachable": ping.StoreReachable,
		}).Debug("Probe reports degraded endpoint")
		next = models.HealthUnavailable
	}

	m.setState(next)
}

// setState swaps the signal and emits a transition on an actual edge.
func (m *Monitor) setState(next models.HealthState) {
	prev := models.HealthState(m.state.Swap(int32(next)))
	if prev == next {
		return
	}

	t := models.HealthTransition{From: prev, To: next, At: time.Now().UTC()}
	m.logger.WithFields(map[string]interface{}{
		"from": prev.String(),
		"to":   next.String(),
	}).Info("Health state changed")

	select {
	case m.transitions <- t:
	default:
		// A full channel means the consumer is gone or wedged; the
		// current state remains readable via State.
		m.logger.Warn("Dropping health transition, channel full")
	}
}
