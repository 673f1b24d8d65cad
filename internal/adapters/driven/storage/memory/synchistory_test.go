package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

func TestSyncHistoryStore(t *testing.T) {
	store := NewSyncHistoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordRun(ctx, domain.SyncRun{
			SourceID:  "s1",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Success:   true,
			Added:     i,
		}))
	}
	require.NoError(t, store.RecordRun(ctx, domain.SyncRun{SourceID: "s2", StartedAt: base}))

	runs, err := store.ListRuns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].Added)
	assert.Equal(t, time.Second, runs[0].Duration())

	require.NoError(t, store.PruneRuns(ctx, 1))
	runs, err = store.ListRuns(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Added)

	require.NoError(t, store.DeleteRuns(ctx, "s2"))
	runs, err = store.ListRuns(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
