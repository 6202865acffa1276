package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgeo/wikiqa/internal/queue"
	"github.com/osgeo/wikiqa/internal/store"
	"github.com/osgeo/wikiqa/internal/store/storetest"
	"github.com/osgeo/wikiqa/internal/types"
)

func seedPage(t *testing.T, ctx context.Context, st *store.Store, sourceID, url string) (pageID, sourcePageID int64) {
	t.Helper()
	sourcePageID, pageID, _, err := st.Upsert(ctx, store.UpsertInput{
		SourceType: types.SourceWiki,
		SourceID:   sourceID,
		Title:      "Page " + sourceID,
		URL:        url,
		Text:       "content for " + sourceID,
	})
	require.NoError(t, err)
	return pageID, sourcePageID
}

func TestEnqueue_DuplicateIsAbsorbedSilently(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "1", "https://wiki.osgeo.org/wiki/A")

	_, created, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 5)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 5)
	require.NoError(t, err)
	assert.False(t, created, "a second pending row for the same (page, task_type) should be a no-op")
}

func TestClaim_ReturnsNilWhenQueueEmpty(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	q := queue.New(pool, 0, 0, 0)

	claimed, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaim_ThenCompleteSuccessMarksSucceeded(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "2", "https://wiki.osgeo.org/wiki/B")
	_, _, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 5)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, pageID, claimed.PageID)
	assert.Equal(t, 1, claimed.Attempts)

	require.NoError(t, q.Complete(ctx, claimed.QueueID, true, ""))

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM task_queue WHERE id = $1`, claimed.QueueID).Scan(&status))
	assert.Equal(t, "succeeded", status)
}

func TestClaim_ClaimedRowIsNotHandedOutAgain(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "3", "https://wiki.osgeo.org/wiki/C")
	_, _, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 5)
	require.NoError(t, err)

	first, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	assert.Nil(t, second, "the row is already claimed and should not be handed out again")
}

func TestComplete_FailureBelowMaxAttemptsRequeuesToPending(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "4", "https://wiki.osgeo.org/wiki/D")
	_, _, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 3)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.QueueID, false, "boom"))

	var status, lastError string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status, last_error FROM task_queue WHERE id = $1`, claimed.QueueID).Scan(&status, &lastError))
	assert.Equal(t, "pending", status)
	assert.Equal(t, "boom", lastError)
}

func TestComplete_FailureAtMaxAttemptsMarksDead(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "5", "https://wiki.osgeo.org/wiki/E")
	_, _, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 1)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.QueueID, false, "fatal"))

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM task_queue WHERE id = $1`, claimed.QueueID).Scan(&status))
	assert.Equal(t, "dead", status)
}

func TestReapExpired_ReturnsExpiredClaimsToPending(t *testing.T) {
	ctx := context.Background()
	pool := storetest.NewPool(t)
	st := store.New(pool)
	q := queue.New(pool, 0, 0, 0)

	pageID, sourcePageID := seedPage(t, ctx, st, "6", "https://wiki.osgeo.org/wiki/F")
	_, _, err := q.Enqueue(ctx, pageID, sourcePageID, types.TaskChunks, 0, 5)
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, types.TaskChunks)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE task_queue SET claim_expires_at = now() - interval '1 minute' WHERE id = $1`, claimed.QueueID)
	require.NoError(t, err)

	reaped, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM task_queue WHERE id = $1`, claimed.QueueID).Scan(&status))
	assert.Equal(t, "pending", status)
}
