package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-transfer/internal/core/domain"
)

func newRedisAdapter(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisAdapter(client, time.Hour), mr
}

func TestDraft_SaveLoadDelete(t *testing.T) {
	adapter, mr := newRedisAdapter(t)
	ctx := context.Background()

	draft := domain.Draft{
		SessionID:           "s-1",
		DestinationClinicID: "3",
		Notes:               "n",
		Lines: []domain.DraftLine{
			{ItemID: 7, Quantity: 2},
			{ItemID: 9, Serials: []string{"SN1"}},
		},
		Revision: 4,
	}
	require.NoError(t, adapter.SaveDraft(ctx, draft))
	assert.True(t, mr.Exists("draft:s-1"))
	assert.Equal(t, time.Hour, mr.TTL("draft:s-1"))

	loaded, err := adapter.LoadDraft(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, draft.Lines, loaded.Lines)
	assert.Equal(t, int64(4), loaded.Revision)

	require.NoError(t, adapter.DeleteDraft(ctx, "s-1"))
	loaded, err = adapter.LoadDraft(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDraft_StaleRevisionIsIgnored(t *testing.T) {
	adapter, _ := newRedisAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SaveDraft(ctx, domain.Draft{SessionID: "s-1", Notes: "new", Revision: 5}))
	require.NoError(t, adapter.SaveDraft(ctx, domain.Draft{SessionID: "s-1", Notes: "old", Revision: 3}))

	loaded, err := adapter.LoadDraft(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Notes)
}

func TestDraft_Expires(t *testing.T) {
	adapter, mr := newRedisAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SaveDraft(ctx, domain.Draft{SessionID: "s-1", Revision: 1}))
	mr.FastForward(2 * time.Hour)

	loaded, err := adapter.LoadDraft(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSetIdempotency_Success(t *testing.T) {
	adapter, _ := newRedisAdapter(t)
	ctx := context.Background()

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, "transfer:s-1:1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second call should fail (key exists)
	ok, err = adapter.SetIdempotency(ctx, "transfer:s-1:1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Released keys can be taken again
	require.NoError(t, adapter.ReleaseIdempotency(ctx, "transfer:s-1:1"))
	ok, err = adapter.SetIdempotency(ctx, "transfer:s-1:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	adapter, _ := newRedisAdapter(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 50

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	assert.Equal(t, int32(1), successCount.Load())
}
