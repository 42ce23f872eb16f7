package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/questsync/internal/catalog"
	"github.com/example/questsync/internal/config"
	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/fixes"
	"github.com/example/questsync/internal/models"
	"github.com/example/questsync/internal/pipeline"
	"github.com/example/questsync/internal/progress"
	"github.com/example/questsync/internal/queue"
	"github.com/example/questsync/internal/server"
	"github.com/example/questsync/internal/transport"
)

type harness struct {
	t        *testing.T
	logger   *events.Logger
	store    *progress.SQLiteStore
	srv      *httptest.Server
	queueDir string
	queue    queue.Store
	client   *transport.HTTPClient
	pipeline *pipeline.Pipeline
	health   *stubHealth
}

type stubHealth struct {
	state models.HealthState
}

func (h *stubHealth) State() models.HealthState { return h.state }

func newHarness(t *testing.T) *harness {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := progress.NewSQLiteStore(filepath.Join(t.TempDir(), "progress.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	holder := fixes.NewStatusHolder()
	srv := httptest.NewServer(server.New(store, holder, logger).Handler())
	t.Cleanup(srv.Close)

	h := &harness{
		t:        t,
		logger:   logger,
		store:    store,
		srv:      srv,
		queueDir: t.TempDir(),
		health:   &stubHealth{state: models.HealthAvailable},
	}
	h.buildClient()
	return h
}

// buildClient (re)creates the client-side stack; calling it again with
// the same queue dir simulates a restart.
func (h *harness) buildClient() {
	apiCfg := &config.APIConfig{
		BaseURL:    h.srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
		UserAgent:  "questsync-test",
	}

	store, err := queue.NewJSONStore(h.queueDir, h.logger)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = store.Close() })

	h.queue = store
	h.client = transport.NewHTTPClient(apiCfg, h.logger)
	h.pipeline = pipeline.New(h.client, store, h.health, apiCfg, h.logger)
}

func TestSaveRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.pipeline.Submit(ctx, models.SaveIntent{
		UserID:           "u1",
		CompletedItemIDs: []string{"a", "b"},
		ClientTimestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.AppliedCount)
	assert.NotEmpty(t, outcome.ServerCorrelationID)

	ids, err := h.store.GetCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	// Removing "b" is a full replacement, never a merge.
	outcome, err = h.pipeline.Submit(ctx, models.SaveIntent{
		UserID:           "u1",
		CompletedItemIDs: []string{"a"},
		ClientTimestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.AppliedCount)

	ids, err = h.store.GetCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestOutageQueuesAndRestartReplays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Take the endpoint down mid-session.
	h.srv.Close()
	h.health.state = models.HealthUnknown // gate open, delivery will fail

	outcome, err := h.pipeline.Submit(ctx, models.SaveIntent{
		UserID:           "u1",
		CompletedItemIDs: []string{"a", "b"},
		ClientTimestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.Queued)
	assert.Equal(t, 3, outcome.Attempts)

	// Simulated restart: a fresh client stack over the same queue dir.
	restarted := newHarness(t)
	restarted.queueDir = h.queueDir
	restarted.buildClient()

	entries, err := restarted.queue.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].AttemptCount)

	// Recovery drain delivers the queued save exactly once.
	require.NoError(t, restarted.pipeline.Flush(ctx))

	entries, err = restarted.queue.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	ids, err := restarted.store.GetCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestResolverFeedsHealthSurface(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	ctx := context.Background()

	store, err := progress.NewSQLiteStore(filepath.Join(t.TempDir(), "progress.db"), logger)
	require.NoError(t, err)
	defer store.Close()

	records := []models.CatalogRecord{
		{ID: "q-new", Name: "Lend Lease Part 1"},
	}
	require.NoError(t, store.UpsertCatalog(ctx, records))

	specs := []models.QuestFixSpec{
		{DisplayName: "Lend-Lease — Part 1", KnownID: "q-old", Patch: map[string]any{"wiki_url": "https://w/ll1"}},
		{DisplayName: "Removed Quest", KnownID: "q-gone", Patch: map[string]any{"x": 1}},
	}

	resolver := fixes.NewResolver(catalog.StaticSource(records), store, logger)
	status, err := resolver.Run(ctx, specs)
	require.NoError(t, err)

	holder := fixes.NewStatusHolder()
	holder.Publish(status)

	srv := httptest.NewServer(server.New(store, holder, logger).Handler())
	defer srv.Close()

	var report server.HealthReport
	require.NoError(t, getJSON(t, srv.URL+"/api/v1/health", &report))

	// Drift plus one resolution miss: reachable store, degraded level.
	assert.Equal(t, "degraded", report.Level)
	require.NotNil(t, report.Fixes)
	assert.Equal(t, 1, report.Fixes.Successful)
	assert.Equal(t, 1, report.Fixes.Failed)
	assert.Equal(t, 1, report.Fixes.IDChanges)
}

func getJSON(t *testing.T, url string, out any) error {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return json.NewDecoder(resp.Body).Decode(out)
}
