package sqlitekv_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusguard/internal/platform/kv"
	"focusguard/internal/platform/kv/sqlitekv"
)

func openStore(t *testing.T) *sqlitekv.Store {
	t.Helper()
	store, err := sqlitekv.Open(filepath.Join(t.TempDir(), "state", "focusguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteBatchIsAtomicAndOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	batch := kv.NewBatch()
	require.NoError(t, batch.Put("activeSessions", map[string]int{"7": 1}))
	require.NoError(t, batch.Put("intention", map[string]string{"YouTube": "learn"}))
	require.NoError(t, store.Set(ctx, batch))

	require.NoError(t, kv.SetJSON(ctx, store, "activeSessions", map[string]int{}))

	sessions := map[string]int{}
	found, err := kv.GetJSON(ctx, store, "activeSessions", &sessions)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, sessions)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kv.Key("activeSessions"), kv.Key("intention")}, keys)
}

func TestSQLiteWatchSeesWritesAndDeletes(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []kv.Change
	go func() {
		_ = store.Watch(ctx, func(c kv.Change) {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		_ = kv.SetJSON(context.Background(), store, "sessions", []int{1})
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, store.Delete(context.Background(), kv.Key("sessions")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got[len(got)-1].Deleted
	}, 2*time.Second, 20*time.Millisecond)
}
