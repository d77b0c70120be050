package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
)

func TestInMemoryReadMissing(t *testing.T) {
	backend := NewInMemory()
	_, err := backend.Read(context.Background(), "missing.json")
	assert.True(t, errs.IsNotFound(err))
}

func TestInMemoryWriteConditionalMustNotExist(t *testing.T) {
	backend := NewInMemory()
	ctx := context.Background()

	_, err := backend.WriteConditional(ctx, "a.json", []byte("v1"), nil)
	require.NoError(t, err)

	_, err = backend.WriteConditional(ctx, "a.json", []byte("v2"), nil)
	assert.True(t, errs.IsVersionMismatch(err))
}

func TestInMemoryWriteConditionalVersionMatch(t *testing.T) {
	backend := NewInMemory()
	ctx := context.Background()

	v1, err := backend.WriteConditional(ctx, "a.json", []byte("v1"), nil)
	require.NoError(t, err)

	v2, err := backend.WriteConditional(ctx, "a.json", []byte("v2"), &v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	data, err := backend.Read(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestInMemoryWriteConditionalStaleVersion(t *testing.T) {
	backend := NewInMemory()
	ctx := context.Background()

	v1, err := backend.WriteConditional(ctx, "a.json", []byte("v1"), nil)
	require.NoError(t, err)
	_, err = backend.WriteConditional(ctx, "a.json", []byte("v2"), &v1)
	require.NoError(t, err)

	_, err = backend.WriteConditional(ctx, "a.json", []byte("v3"), &v1)
	assert.True(t, errs.IsVersionMismatch(err))
}

func TestInMemoryListAndDelete(t *testing.T) {
	backend := NewInMemory()
	ctx := context.Background()

	require.NoError(t, backend.Write(ctx, "_delta_log/00000000000000000000.json", []byte("{}")))
	require.NoError(t, backend.Write(ctx, "_delta_log/00000000000000000001.json", []byte("{}")))
	require.NoError(t, backend.Write(ctx, "data/part-1.parquet", []byte("x")))

	keys, err := backend.List(ctx, "_delta_log/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	exists, err := backend.Exists(ctx, "data/part-1.parquet")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, backend.Delete(ctx, "data/part-1.parquet"))
	exists, err = backend.Exists(ctx, "data/part-1.parquet")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Delete(ctx, "data/part-1.parquet"))
}

func TestInMemoryReadRange(t *testing.T) {
	backend := NewInMemory()
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, "f", []byte("0123456789")))

	chunk, err := backend.ReadRange(ctx, "f", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), chunk)
}
