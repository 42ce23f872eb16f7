package queue_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/questsync/internal/events"
	"github.com/example/questsync/internal/models"
	"github.com/example/questsync/internal/queue"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func TestJSONStore(t *testing.T) {
	dir := t.TempDir()
	store, err := queue.NewJSONStore(dir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	store, err := queue.NewSQLiteStore(dir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func testStoreOperations(t *testing.T, store queue.Store) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get("nobody")
		assert.ErrorIs(t, err, models.ErrQueueEntryNotFound)
	})

	t.Run("delete missing is a no-op", func(t *testing.T) {
		assert.NoError(t, store.Delete("nobody"))
	})

	t.Run("put and get", func(t *testing.T) {
		save := &models.QueuedSave{
			CorrelationID:    "corr-1",
			UserID:           "user-1",
			CompletedItemIDs: []string{"q1", "q2"},
			EnqueuedAt:       now,
			AttemptCount:     3,
		}
		require.NoError(t, store.Put(save))

		got, err := store.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, "corr-1", got.CorrelationID)
		assert.Equal(t, []string{"q1", "q2"}, got.CompletedItemIDs)
		assert.Equal(t, 3, got.AttemptCount)
		assert.True(t, got.EnqueuedAt.Equal(now))
	})

	t.Run("newer intent supersedes", func(t *testing.T) {
		require.NoError(t, store.Put(&models.QueuedSave{
			CorrelationID:    "corr-2",
			UserID:           "user-1",
			CompletedItemIDs: []string{"q1"},
			EnqueuedAt:       now.Add(time.Minute),
			AttemptCount:     4,
		}))

		got, err := store.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, "corr-2", got.CorrelationID)
		assert.Equal(t, []string{"q1"}, got.CompletedItemIDs)

		entries, err := store.List()
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("list oldest first", func(t *testing.T) {
		require.NoError(t, store.Put(&models.QueuedSave{
			CorrelationID: "corr-3",
			UserID:        "user-2",
			EnqueuedAt:    now.Add(-time.Hour),
		}))
		require.NoError(t, store.Put(&models.QueuedSave{
			CorrelationID: "corr-4",
			UserID:        "user-3",
			EnqueuedAt:    now.Add(time.Hour),
		}))

		entries, err := store.List()
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "user-2", entries[0].UserID)
		assert.Equal(t, "user-1", entries[1].UserID)
		assert.Equal(t, "user-3", entries[2].UserID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete("user-1"))
		_, err := store.Get("user-1")
		assert.ErrorIs(t, err, models.ErrQueueEntryNotFound)
	})

	t.Run("awkward user ids", func(t *testing.T) {
		id := "user/../with%odd:chars"
		require.NoError(t, store.Put(&models.QueuedSave{
			CorrelationID: "corr-5",
			UserID:        id,
			EnqueuedAt:    now,
		}))

		got, err := store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, got.UserID)
		require.NoError(t, store.Delete(id))
	})
}

func TestJSONStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := queue.NewJSONStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(&models.QueuedSave{
		CorrelationID:    "corr-1",
		UserID:           "user-1",
		CompletedItemIDs: []string{"a"},
		EnqueuedAt:       time.Now().UTC(),
		AttemptCount:     2,
	}))
	require.NoError(t, store.Close())

	reopened, err := queue.NewJSONStore(dir, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := queue.NewSQLiteStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put(&models.QueuedSave{
		CorrelationID:    "corr-1",
		UserID:           "user-1",
		CompletedItemIDs: []string{"a", "b"},
		EnqueuedAt:       time.Now().UTC(),
		AttemptCount:     5,
	}))
	require.NoError(t, store.Close())

	reopened, err := queue.NewSQLiteStore(dir, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].AttemptCount)
	assert.Equal(t, []string{"a", "b"}, entries[0].CompletedItemIDs)
}
