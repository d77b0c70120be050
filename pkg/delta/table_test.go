package delta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/deltalake-sub000/pkg/checkpoint"
	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/query"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/vacuum"
	"github.com/dot-do/deltalake-sub000/pkg/write"
)

func TestOpenTableOnEmptyBackendReturnsNotFound(t *testing.T) {
	backend := storage.NewInMemory()
	_, err := OpenTable(context.Background(), backend, "t")
	assert.Error(t, err)
}

func TestCreateTableThenOpenTable(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	records := []write.Record{{"id": int64(1)}}

	created, err := CreateTable(ctx, backend, "t", "people", nil, records)
	require.NoError(t, err)
	assert.Equal(t, "t", created.Root)

	opened, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)
	snap, err := opened.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "people", snap.MetaData.Name)
}

func TestAppendUsesExistingTableMetadata(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", []string{"region"}, []write.Record{
		{"id": int64(1), "region": "east"},
	})
	require.NoError(t, err)

	table, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)

	result, err := table.Append(ctx, []write.Record{{"id": int64(2), "region": "west"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Version)

	snap, err := table.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Files, 2)
}

func TestDeleteAndUpdateThroughTableFacade(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", nil, []write.Record{
		{"id": int64(1), "status": "open"},
		{"id": int64(2), "status": "closed"},
	})
	require.NoError(t, err)
	table, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)

	_, err = table.Update(ctx, filter.Eq("status", "open"), write.Patch{"status": "archived"})
	require.NoError(t, err)

	result, err := table.Delete(ctx, filter.Eq("status", "closed"))
	require.NoError(t, err)
	assert.Greater(t, result.Version, int64(0))
}

func TestQueryThroughTableFacade(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", nil, []write.Record{
		{"id": int64(1)}, {"id": int64(2)},
	})
	require.NoError(t, err)
	table, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)

	rows, stats, err := table.Query(ctx, query.Options{Version: -1})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(2), stats.RowsReturned)
}

func TestHistoryReturnsCommitInfoOldestFirst(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", nil, []write.Record{{"id": int64(1)}})
	require.NoError(t, err)
	table, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)

	_, err = table.Append(ctx, []write.Record{{"id": int64(2)}})
	require.NoError(t, err)

	history, err := table.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "CREATE TABLE", history[0].Operation)
	assert.Equal(t, "WRITE", history[1].Operation)
}

func TestVacuumThroughTableFacade(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", nil, []write.Record{{"id": int64(1)}})
	require.NoError(t, err)
	table, err := OpenTable(ctx, backend, "t")
	require.NoError(t, err)

	metrics, err := table.Vacuum(ctx, vacuum.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.FilesDeleted)
}

func TestCheckpointFiresAtConfiguredInterval(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	_, err := CreateTable(ctx, backend, "t", "people", nil, []write.Record{{"id": int64(1)}})
	require.NoError(t, err)
	table, err := OpenTable(ctx, backend, "t", WithCheckpointInterval(2))
	require.NoError(t, err)

	_, err = table.Append(ctx, []write.Record{{"id": int64(2)}})
	require.NoError(t, err)

	version, ok, err := checkpoint.FindApplicable(ctx, backend, "t", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), version)
}
