package write

import (
	"context"
	"fmt"
	"path"

	"github.com/dot-do/deltalake-sub000/internal/parquetio"
	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/concurrency"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/retry"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
)

func newPartFileName() string {
	return fmt.Sprintf("part-%s.parquet", newFileID())
}

// Patch is applied to every row a Update call's filter matches; keys not
// present are left untouched, keys mapped to nil clear the column.
type Patch map[string]any

// Delete removes every row matching f: each touched file is fully rewritten
// without the matching rows (copy-on-write, the only mode this engine
// supports; no deletion vectors) and the old file is tombstoned with a
// Remove action in the same commit that adds the rewritten one.
func Delete(ctx context.Context, backend storage.Backend, tableRoot string, rc retry.Config, f filter.Filter) (Result, error) {
	return rewriteMatching(ctx, backend, tableRoot, rc, f, nil)
}

// Update applies patch to every row matching f, via the same rewrite
// strategy as Delete.
func Update(ctx context.Context, backend storage.Backend, tableRoot string, rc retry.Config, f filter.Filter, patch Patch) (Result, error) {
	if len(patch) == 0 {
		return Result{}, errs.NewInvalidInput("update patch must not be empty")
	}
	return rewriteMatching(ctx, backend, tableRoot, rc, f, patch)
}

func rewriteMatching(ctx context.Context, backend storage.Backend, tableRoot string, rc retry.Config, f filter.Filter, patch Patch) (Result, error) {
	if err := filter.Validate(f); err != nil {
		return Result{}, errs.NewInvalidInput(err.Error())
	}

	res, err := concurrency.Commit(ctx, backend, tableRoot, rc, func(ctx context.Context, readVersion int64) ([]action.Action, error) {
		if readVersion < 0 {
			return nil, errs.NewNotFound(tableRoot)
		}

		snap, err := snapshotAt(ctx, backend, tableRoot, readVersion)
		if err != nil {
			return nil, err
		}
		schema, err := action.ParseSchemaString(snap.MetaData.SchemaString)
		if err != nil {
			return nil, fmt.Errorf("parse table schema: %w", err)
		}
		cols, err := fromStructSchema(schema)
		if err != nil {
			return nil, err
		}
		pqSchema, err := parquetSchema(cols)
		if err != nil {
			return nil, err
		}

		var actions []action.Action
		now := Now()
		touchedAny := false

		for _, add := range snap.Files {
			fullPath := path.Join(tableRoot, add.Path)
			data, err := backend.Read(ctx, fullPath)
			if err != nil {
				return nil, err
			}
			rows, err := parquetio.ReadRows(pqSchema, data)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", add.Path, err)
			}

			kept := make([]parquetio.Row, 0, len(rows))
			fileChanged := false
			for _, row := range rows {
				plain := rowWithPartitionValues(row, add.PartitionValues)
				if !filter.Matches(f, plain) {
					kept = append(kept, row)
					continue
				}
				fileChanged = true
				if patch == nil {
					continue // deleted
				}
				applyPatch(row, patch)
				kept = append(kept, row)
			}
			if !fileChanged {
				continue
			}
			touchedAny = true

			actions = append(actions, action.FromRemove(action.Remove{
				Path:              add.Path,
				DeletionTimestamp: now,
				DataChange:        true,
				PartitionValues:   add.PartitionValues,
			}))

			if len(kept) == 0 {
				continue // file fully emptied: tombstone only, no replacement
			}

			result, err := parquetio.WriteRows(pqSchema, kept)
			if err != nil {
				return nil, fmt.Errorf("re-encode %s: %w", add.Path, err)
			}
			relPath := path.Join(path.Dir(add.Path), newPartFileName())
			if err := backend.Write(ctx, path.Join(tableRoot, relPath), result.Data); err != nil {
				return nil, err
			}
			stats := action.FileStats{
				NumRecords: result.NumRows,
				MinValues:  result.MinValues,
				MaxValues:  result.MaxValues,
				NullCount:  result.NullCounts,
			}
			statsStr, err := action.MarshalStats(stats)
			if err != nil {
				return nil, err
			}
			actions = append(actions, action.FromAdd(action.Add{
				Path:             relPath,
				Size:             int64(len(result.Data)),
				ModificationTime: now,
				DataChange:       true,
				PartitionValues:  add.PartitionValues,
				Stats:            statsStr,
			}))
		}

		if !touchedAny {
			return nil, errs.NewInvalidInput("filter matched no rows")
		}

		op := "DELETE"
		if patch != nil {
			op = "UPDATE"
		}
		rv := readVersion
		actions = append(actions, action.FromCommitInfo(action.CommitInfo{
			Timestamp:   now,
			Operation:   op,
			ReadVersion: &rv,
		}))
		return actions, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Version: res.Version}, nil
}

func applyPatch(row parquetio.Row, patch Patch) {
	for k, v := range patch {
		row[k] = v
	}
}

func rowWithPartitionValues(row parquetio.Row, partitionValues map[string]string) map[string]any {
	out := make(map[string]any, len(row)+len(partitionValues))
	for k, v := range row {
		out[k] = v
	}
	for k, v := range partitionValues {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func fromStructSchema(schema action.StructSchema) ([]InferredColumn, error) {
	cols := make([]InferredColumn, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		var typeName string
		if err := unmarshalTypeNameLocal(f.Type, &typeName); err != nil {
			return nil, err
		}
		t, err := columnTypeFromName(typeName)
		if err != nil {
			return nil, err
		}
		cols = append(cols, InferredColumn{Name: f.Name, Type: t, Nullable: f.Nullable})
	}
	return cols, nil
}

func columnTypeFromName(name string) (columnType, error) {
	switch name {
	case "integer":
		return colInt32, nil
	case "long":
		return colInt64, nil
	case "double":
		return colDouble, nil
	case "string":
		return colString, nil
	case "boolean":
		return colBoolean, nil
	case "binary":
		return colBinary, nil
	case "timestamp":
		return colTimestamp, nil
	case "variant":
		return colVariant, nil
	default:
		return colUnknown, fmt.Errorf("unknown schema type %q", name)
	}
}

func unmarshalTypeNameLocal(raw []byte, out *string) error {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("expected a quoted primitive type name, got %s", raw)
	}
	*out = string(raw[1 : len(raw)-1])
	return nil
}

func snapshotAt(ctx context.Context, backend storage.Backend, tableRoot string, version int64) (*snapshot.Snapshot, error) {
	return snapshot.Load(ctx, backend, tableRoot, version, snapshot.Options{})
}
