package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	store, err := NewRecordStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordStore(t *testing.T) {
	storagetest.Run(t, newTestStore(t))
}

func TestRecordStoreRetriesFailedBatch(t *testing.T) {
	store := newTestStore(t)

	storagetest.RetryAfterFailedWrite(t, store,
		func(t *testing.T) {
			_, err := store.db.Exec(`CREATE TRIGGER reject_models BEFORE INSERT ON model_records
				BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
			require.NoError(t, err)
		},
		func(t *testing.T) {
			_, err := store.db.Exec(`DROP TRIGGER reject_models`)
			require.NoError(t, err)
		},
	)
}

func TestListRunsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older, _ := storagetest.Fixture(t, "older", 2, 2)
	newer, _ := storagetest.Fixture(t, "newer", 2, 2)
	newer.StartedAt = older.StartedAt.Add(time.Hour)

	require.NoError(t, store.CreateRun(ctx, older))
	require.NoError(t, store.CreateRun(ctx, newer))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "newer", runs[0].ID)
	require.Equal(t, "older", runs[1].ID)
}
