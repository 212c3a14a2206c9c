package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = model.ReportIdentity{InputName: "pipeline", ReportID: "00O1"}

func openTestStore(t *testing.T) *StatusStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStatusStore_UpsertAndRead(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetStatus(ctx, testIdentity.CheckpointKey())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	first := model.NewStatusSnapshot("run-1", testIdentity, model.StatusSuccess, "pipeline",
		"2026-10-16T08:00:00Z", model.Counters{Stored: 5, Indexed: 5}, "report collection completed")
	require.NoError(t, store.RecordStatus(ctx, testIdentity, first))

	got, err := store.GetStatus(ctx, "pipeline-00O1")
	require.NoError(t, err)
	assert.Equal(t, first, *got)

	second := model.NewStatusSnapshot("run-2", testIdentity, model.StatusFailure, "",
		"2026-10-16T09:00:00Z", model.Counters{}, "report source connection error: see logs for more detail")
	require.NoError(t, store.RecordStatus(ctx, testIdentity, second))

	got, err = store.GetStatus(ctx, "pipeline-00O1")
	require.NoError(t, err)
	assert.Equal(t, second, *got)

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM run_status`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordStatus(context.Background(), testIdentity, model.StatusSnapshot{
		ReportName: "pipeline", ReportID: "00O1", Status: model.StatusSuccess,
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetStatus(context.Background(), "pipeline-00O1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
}
