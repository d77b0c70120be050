package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/checkpoint"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/txlog"
)

func mustCommit(t *testing.T, backend storage.Backend, root string, version int64, actions ...action.Action) {
	t.Helper()
	require.NoError(t, txlog.WriteCommit(context.Background(), backend, root, version, actions))
}

func createTable(t *testing.T, backend storage.Backend, root string) {
	t.Helper()
	mustCommit(t, backend, root, 0,
		action.FromProtocol(action.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}),
		action.FromMetaData(action.MetaData{ID: "t1", Format: action.Format{Provider: "parquet"}, SchemaString: `{"type":"struct","fields":[]}`}),
		action.FromCommitInfo(action.CommitInfo{Operation: "CREATE TABLE"}),
	)
}

func TestLoadEmptyTableReturnsNotFound(t *testing.T) {
	backend := storage.NewInMemory()
	_, err := Load(context.Background(), backend, "t", -1, Options{})
	var nf *errs.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLoadLatestReplaysAllCommits(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")
	mustCommit(t, backend, "t", 1, action.FromAdd(action.Add{Path: "part-1.parquet", Size: 10}))
	mustCommit(t, backend, "t", 2, action.FromAdd(action.Add{Path: "part-2.parquet", Size: 20}))

	snap, err := Load(ctx, backend, "t", -1, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Len(t, snap.Files, 2)
	assert.True(t, snap.ActivePaths()["part-1.parquet"])
	assert.True(t, snap.ActivePaths()["part-2.parquet"])
}

func TestLoadSpecificVersionIgnoresLaterCommits(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")
	mustCommit(t, backend, "t", 1, action.FromAdd(action.Add{Path: "part-1.parquet", Size: 10}))
	mustCommit(t, backend, "t", 2, action.FromAdd(action.Add{Path: "part-2.parquet", Size: 20}))

	snap, err := Load(ctx, backend, "t", 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Files, 1)
	assert.True(t, snap.ActivePaths()["part-1.parquet"])
}

func TestLoadVersionBeyondLatestReturnsInvalidInput(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")

	_, err := Load(ctx, backend, "t", 50, Options{})
	var ii *errs.InvalidInputError
	assert.ErrorAs(t, err, &ii)
}

func TestLoadRemoveRetiresFile(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")
	mustCommit(t, backend, "t", 1, action.FromAdd(action.Add{Path: "part-1.parquet", Size: 10}))
	mustCommit(t, backend, "t", 2, action.FromRemove(action.Remove{Path: "part-1.parquet", DataChange: true}))

	snap, err := Load(ctx, backend, "t", -1, Options{})
	require.NoError(t, err)
	assert.Empty(t, snap.Files)
}

func TestLoadReplaysFromCheckpointBase(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")
	mustCommit(t, backend, "t", 1, action.FromAdd(action.Add{Path: "part-1.parquet", Size: 10}))

	snap, err := Load(ctx, backend, "t", 1, Options{})
	require.NoError(t, err)
	require.NoError(t, checkpoint.Write(ctx, backend, "t", checkpoint.Checkpoint{
		Version:  1,
		MetaData: snap.MetaData,
		Protocol: snap.Protocol,
		Files:    snap.Files,
	}, checkpoint.WriteOptions{}))

	mustCommit(t, backend, "t", 2, action.FromAdd(action.Add{Path: "part-2.parquet", Size: 20}))

	loaded, err := Load(ctx, backend, "t", -1, Options{})
	require.NoError(t, err)
	assert.Len(t, loaded.Files, 2)
}

func TestLoadToleratesGapInCommitSequence(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	createTable(t, backend, "t")
	mustCommit(t, backend, "t", 2, action.FromAdd(action.Add{Path: "part-2.parquet", Size: 20}))

	snap, err := Load(ctx, backend, "t", -1, Options{})
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)
}

func TestActivePathsEmptySnapshot(t *testing.T) {
	snap := &Snapshot{}
	assert.Empty(t, snap.ActivePaths())
}
