package pipeline_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
	"github.com/example/questsync/internal/pipeline"
	"github.com/example/questsync/internal/queue"
	"github.com/example/questsync/internal/transport"
)

type stubHealth struct {
	state atomic.Int32
}

func newStubHealth(s models.HealthState) *stubHealth {
	h := &stubHealth{}
	h.state.Store(int32(s))
	return h
}

func (h *stubHealth) State() models.HealthState {
	return models.HealthState(h.state.Load())
}

func (h *stubHealth) set(s models.HealthState) {
	h.state.Store(int32(s))
}

func transientErr(user string) error {
	return &models.SaveError{Kind: models.ErrKindTransient, UserID: user, Err: assert.AnError}
}

type fixture struct {
	pipeline *pipeline.Pipeline
	mock     *transport.MockTransport
	store    queue.Store
	health   *stubHealth
}

func newFixture(t *testing.T, retryDelay time.Duration) *fixture {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := queue.NewJSONStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mock := transport.NewMockTransport()
	health := newStubHealth(models.HealthAvailable)

	p := pipeline.New(mock, store, health, &config.APIConfig{
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: retryDelay,
	}, logger)

	return &fixture{pipeline: p, mock: mock, store: store, health: health}
}

func intent(user string, items ...string) models.SaveIntent {
	return models.SaveIntent{
		UserID:           user,
		CompletedItemIDs: items,
		ClientTimestamp:  time.Now().UTC(),
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)

	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "a", "b"))
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.False(t, outcome.Queued)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 2, outcome.AppliedCount)
	assert.Equal(t, "mock-corr", outcome.ServerCorrelationID)
	assert.Len(t, f.mock.Requests(), 1)
}

func TestSubmitBusyRejection(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.mock.SaveDelay = 200 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.pipeline.Submit(context.Background(), intent("u1", "a"))
	}()

	// Give the first submit time to take the busy flag.
	time.Sleep(50 * time.Millisecond)

	_, err := f.pipeline.Submit(context.Background(), intent("u1", "b"))
	assert.ErrorIs(t, err, models.ErrSaveInFlight)

	wg.Wait()

	// The rejected intent was neither delivered nor queued.
	assert.Len(t, f.mock.Requests(), 1)
	_, err = f.store.Get("u1")
	assert.ErrorIs(t, err, models.ErrQueueEntryNotFound)
}

func TestRetryBackoffThenSuccess(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)
	f.mock.SaveErrors = []error{transientErr("u1"), transientErr("u1")}

	start := time.Now()
	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "a"))
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.True(t, outcome.Success)
	assert.Equal(t, 3, outcome.Attempts)
	// Waits before attempts are {0, d, 2d} = 120ms total for d=40ms.
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestRetryBudgetExhaustedQueues(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	f.mock.SaveErr = transientErr("u1")

	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "a", "b"))
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.True(t, outcome.Queued)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, models.ErrKindTransient, outcome.ErrorKind)
	assert.Len(t, f.mock.Requests(), 3)

	entry, err := f.store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entry.CompletedItemIDs)
	assert.Equal(t, 3, entry.AttemptCount)
}

func TestAttemptCountAccumulatesAcrossSubmissions(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	f.mock.SaveErr = transientErr("u1")

	_, err := f.pipeline.Submit(context.Background(), intent("u1", "a"))
	require.NoError(t, err)

	// A newer intent supersedes the queued one but inherits its count.
	_, err = f.pipeline.Submit(context.Background(), intent("u1", "a", "b"))
	require.NoError(t, err)

	entry, err := f.store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 6, entry.AttemptCount)
	assert.Equal(t, []string{"a", "b"}, entry.CompletedItemIDs)
}

func TestUnavailableQueuesWithoutNetworkCall(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	f.health.set(models.HealthUnavailable)

	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "a"))
	require.NoError(t, err)

	assert.True(t, outcome.Queued)
	assert.Equal(t, models.ErrKindOffline, outcome.ErrorKind)
	assert.Empty(t, f.mock.Requests())

	entry, err := f.store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.AttemptCount)
}

func TestValidationErrorSurfacesWithoutRetryOrQueue(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	f.mock.SaveErr = &models.SaveError{
		Kind:   models.ErrKindValidation,
		UserID: "u1",
		Err:    assert.AnError,
	}

	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "bad id"))
	require.Error(t, err)

	assert.Equal(t, models.ErrKindValidation, models.ErrorKindOf(err))
	assert.Equal(t, 1, outcome.Attempts)
	assert.Len(t, f.mock.Requests(), 1)

	_, getErr := f.store.Get("u1")
	assert.ErrorIs(t, getErr, models.ErrQueueEntryNotFound)
}

func TestSuccessClearsQueuedEntry(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	require.NoError(t, f.store.Put(&models.QueuedSave{
		CorrelationID:    "old-corr",
		UserID:           "u1",
		CompletedItemIDs: []string{"stale"},
		EnqueuedAt:       time.Now().UTC(),
		AttemptCount:     4,
	}))

	outcome, err := f.pipeline.Submit(context.Background(), intent("u1", "fresh"))
	require.NoError(t, err)
	require.True(t, outcome.Success)

	_, getErr := f.store.Get("u1")
	assert.ErrorIs(t, getErr, models.ErrQueueEntryNotFound)
}

func TestFlushReplaysOldestFirst(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	now := time.Now().UTC()

	require.NoError(t, f.store.Put(&models.QueuedSave{
		CorrelationID: "corr-young", UserID: "u2",
		CompletedItemIDs: []string{"y"}, EnqueuedAt: now,
	}))
	require.NoError(t, f.store.Put(&models.QueuedSave{
		CorrelationID: "corr-old", UserID: "u1",
		CompletedItemIDs: []string{"x"}, EnqueuedAt: now.Add(-time.Hour),
	}))

	require.NoError(t, f.pipeline.Flush(context.Background()))

	reqs := f.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "u1", reqs[0].UserID)
	assert.Equal(t, "u2", reqs[1].UserID)

	entries, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFlushEmptyQueueIsNoOp(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	require.NoError(t, f.pipeline.Flush(context.Background()))
	assert.Empty(t, f.mock.Requests())
}

func TestFlushRequeuesOnContinuedFailure(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	f.mock.SaveErr = transientErr("u1")

	require.NoError(t, f.store.Put(&models.QueuedSave{
		CorrelationID:    "corr-1",
		UserID:           "u1",
		CompletedItemIDs: []string{"a"},
		EnqueuedAt:       time.Now().UTC(),
		AttemptCount:     3,
	}))

	require.NoError(t, f.pipeline.Flush(context.Background()))

	entry, err := f.store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 6, entry.AttemptCount)
	assert.Equal(t, "corr-1", entry.CorrelationID)
}

func TestRecoveryEdgeTriggersReplayExactlyOnce(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	require.NoError(t, f.store.Put(&models.QueuedSave{
		CorrelationID:    "corr-1",
		UserID:           "u1",
		CompletedItemIDs: []string{"a"},
		EnqueuedAt:       time.Now().UTC(),
	}))

	transitions := make(chan models.HealthTransition, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.pipeline.Run(ctx, transitions)
		close(done)
	}()

	// A non-recovery edge must not trigger a drain.
	transitions <- models.HealthTransition{From: models.HealthAvailable, To: models.HealthUnavailable}
	// The recovery edge drains the queue.
	transitions <- models.HealthTransition{From: models.HealthUnavailable, To: models.HealthAvailable}

	require.Eventually(t, func() bool {
		return len(f.mock.Requests()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	close(transitions)
	<-done
	assert.Len(t, f.mock.Requests(), 1)
}
