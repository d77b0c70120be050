package write

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
)

func seedTable(t *testing.T, backend storage.Backend) {
	t.Helper()
	records := []Record{
		{"id": int64(1), "status": "open"},
		{"id": int64(2), "status": "closed"},
		{"id": int64(3), "status": "open"},
	}
	_, err := Append(context.Background(), backend, "t", Config{TableName: "t", RetryConfig: testWriteConfig()}, records)
	require.NoError(t, err)
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	seedTable(t, backend)

	result, err := Delete(ctx, backend, "t", testWriteConfig(), filter.Eq("status", "closed"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Version)

	snap, err := snapshot.Load(ctx, backend, "t", -1, snapshot.Options{})
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)
}

func TestDeleteOnNonexistentTableReturnsNotFound(t *testing.T) {
	backend := storage.NewInMemory()
	_, err := Delete(context.Background(), backend, "t", testWriteConfig(), filter.Eq("status", "open"))
	assert.Error(t, err)
}

func TestDeleteNoMatchingRowsIsError(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	seedTable(t, backend)

	_, err := Delete(ctx, backend, "t", testWriteConfig(), filter.Eq("status", "archived"))
	assert.Error(t, err)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	seedTable(t, backend)

	_, err := Update(ctx, backend, "t", testWriteConfig(), filter.Eq("status", "open"), Patch{})
	assert.Error(t, err)
}

func TestUpdateAppliesPatchToMatchingRows(t *testing.T) {
	backend := storage.NewInMemory()
	ctx := context.Background()
	seedTable(t, backend)

	result, err := Update(ctx, backend, "t", testWriteConfig(), filter.Eq("status", "open"), Patch{"status": "archived"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Version)
}
