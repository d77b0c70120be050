package write

import (
	"context"
	"fmt"
	"path"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dot-do/deltalake-sub000/internal/parquetio"
	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/concurrency"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/partition"
	"github.com/dot-do/deltalake-sub000/pkg/retry"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
)

// Now returns the current time in epoch milliseconds; a package variable so
// tests can pin it without reaching for a wall-clock mock everywhere.
var Now = defaultNow

func defaultNow() int64 { return timeNowMillis() }

// Config controls one Append call.
type Config struct {
	TableName        string
	PartitionColumns []string
	RetryConfig      retry.Config
	Operation        string // recorded on the commit's CommitInfo, default "WRITE"
}

// Result summarizes a completed write.
type Result struct {
	Version      int64
	FilesWritten []string
	RowsWritten  int64
}

// Append infers a schema from records, partitions them per cfg, writes one
// Parquet file per partition group, and commits Add actions (plus
// Protocol/MetaData on table creation) through the optimistic-concurrency
// loop in pkg/concurrency.
func Append(ctx context.Context, backend storage.Backend, tableRoot string, cfg Config, records []Record) (Result, error) {
	if len(records) == 0 {
		return Result{}, errs.NewInvalidInput("cannot write an empty record batch")
	}

	cols, err := InferSchema(records)
	if err != nil {
		return Result{}, err
	}
	for _, pc := range cfg.PartitionColumns {
		found := false
		for _, c := range cols {
			if c.Name == pc {
				found = true
				break
			}
		}
		if !found {
			return Result{}, errs.NewInvalidInput(fmt.Sprintf("partition column %q not present in inferred schema", pc))
		}
	}

	groups, err := partitionRecords(records, cfg.PartitionColumns)
	if err != nil {
		return Result{}, err
	}

	pqSchema, err := parquetSchema(cols)
	if err != nil {
		return Result{}, err
	}

	type stagedFile struct {
		add  action.Add
		data []byte
		path string
	}

	staged := make([]stagedFile, 0, len(groups))
	for _, g := range groups {
		rows, err := toParquetRows(cols, g.records)
		if err != nil {
			return Result{}, err
		}
		result, err := parquetio.WriteRows(pqSchema, rows)
		if err != nil {
			return Result{}, fmt.Errorf("encode partition %v: %w", g.values, err)
		}

		fileName := fmt.Sprintf("part-%s.parquet", newFileID())
		relPath := path.Join(partition.EncodePath(cfg.PartitionColumns, g.values), fileName)

		stats := action.FileStats{
			NumRecords: result.NumRows,
			MinValues:  result.MinValues,
			MaxValues:  result.MaxValues,
			NullCount:  result.NullCounts,
		}
		statsStr, err := action.MarshalStats(stats)
		if err != nil {
			return Result{}, err
		}

		staged = append(staged, stagedFile{
			add: action.Add{
				Path:             relPath,
				Size:             int64(len(result.Data)),
				ModificationTime: Now(),
				DataChange:       true,
				PartitionValues:  g.values,
				Stats:            statsStr,
			},
			data: result.Data,
			path: path.Join(tableRoot, relPath),
		})
	}

	for _, f := range staged {
		if err := backend.Write(ctx, f.path, f.data); err != nil {
			return Result{}, err
		}
	}

	schemaString, err := ToSchemaString(cols)
	if err != nil {
		return Result{}, err
	}

	operation := cfg.Operation
	if operation == "" {
		operation = "WRITE"
	}

	res, err := concurrency.Commit(ctx, backend, tableRoot, cfg.RetryConfig, func(ctx context.Context, readVersion int64) ([]action.Action, error) {
		var actions []action.Action
		isNewTable := readVersion < 0
		if isNewTable {
			actions = append(actions,
				action.FromProtocol(action.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}),
				action.FromMetaData(action.MetaData{
					ID:               uuid.NewString(),
					Name:             cfg.TableName,
					Format:           action.Format{Provider: "parquet"},
					SchemaString:     schemaString,
					PartitionColumns: cfg.PartitionColumns,
				}),
			)
		} else {
			evolveAction, err := evolveMetaData(ctx, backend, tableRoot, readVersion, cols)
			if err != nil {
				return nil, err
			}
			if evolveAction != nil {
				actions = append(actions, *evolveAction)
			}
		}
		for _, f := range staged {
			actions = append(actions, action.FromAdd(f.add))
		}
		rv := readVersion
		actions = append(actions, action.FromCommitInfo(action.CommitInfo{
			Timestamp:   Now(),
			Operation:   operation,
			ReadVersion: &rv,
		}))
		return actions, nil
	})
	if err != nil {
		return Result{}, err
	}

	paths := make([]string, len(staged))
	var rows int64
	for i, f := range staged {
		paths[i] = f.add.Path
		stats, _ := action.ParseStats(f.add.Stats)
		rows += stats.NumRecords
	}
	return Result{Version: res.Version, FilesWritten: paths, RowsWritten: rows}, nil
}

type recordGroup struct {
	values  map[string]string
	records []Record
}

func partitionRecords(records []Record, columns []string) ([]recordGroup, error) {
	if len(columns) == 0 {
		return []recordGroup{{values: map[string]string{}, records: records}}, nil
	}
	index := map[string]int{}
	var groups []recordGroup
	for _, rec := range records {
		values := make(map[string]string, len(columns))
		for _, col := range columns {
			values[col] = stringifyPartitionValue(rec[col])
		}
		key := partition.EncodePath(columns, values)
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, recordGroup{values: values})
		}
		groups[idx].records = append(groups[idx].records, rec)
	}
	return groups, nil
}

// evolveMetaData compares this batch's inferred columns against the
// table's existing schema as of readVersion and, when the batch introduces
// columns the table doesn't yet have, returns a MetaData action carrying
// the merged schema. A column present in both but with a different type is
// a SchemaError: this engine only evolves schemas by addition. Returns a
// nil action when the batch's columns are already covered by the existing
// schema.
func evolveMetaData(ctx context.Context, backend storage.Backend, tableRoot string, readVersion int64, cols []InferredColumn) (*action.Action, error) {
	snap, err := snapshot.Load(ctx, backend, tableRoot, readVersion, snapshot.Options{})
	if err != nil {
		return nil, err
	}
	existing, err := action.ParseSchemaString(snap.MetaData.SchemaString)
	if err != nil {
		return nil, fmt.Errorf("parse existing table schema: %w", err)
	}
	merged, changed, err := reconcileSchema(existing.Fields, cols)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	mergedSchemaString, err := ToSchemaString(merged)
	if err != nil {
		return nil, err
	}
	md := snap.MetaData
	md.SchemaString = mergedSchemaString
	a := action.FromMetaData(md)
	return &a, nil
}

// reconcileSchema merges batch's inferred columns into existing, widening
// nullability for columns missing on either side. It reports changed=true
// when batch introduces a column existing doesn't have. A column common to
// both with a conflicting type is a SchemaError; this engine never changes
// a column's type once committed.
func reconcileSchema(existing []action.SchemaField, batch []InferredColumn) (merged []InferredColumn, changed bool, err error) {
	batchByName := make(map[string]InferredColumn, len(batch))
	for _, c := range batch {
		batchByName[c.Name] = c
	}
	seen := make(map[string]bool, len(existing))

	for _, f := range existing {
		existingType, terr := schemaFieldTypeName(f)
		if terr != nil {
			return nil, false, terr
		}
		seen[f.Name] = true
		bc, ok := batchByName[f.Name]
		if !ok {
			merged = append(merged, InferredColumn{Name: f.Name, Type: columnTypeFromSchemaName(existingType), Nullable: true})
			continue
		}
		if bc.Type.schemaTypeName() != existingType {
			return nil, false, errs.NewSchemaError(f.Name, fmt.Sprintf(
				"cannot evolve column from %s to %s", existingType, bc.Type.schemaTypeName(),
			))
		}
		merged = append(merged, InferredColumn{Name: f.Name, Type: bc.Type, Nullable: f.Nullable || bc.Nullable})
	}

	for _, c := range batch {
		if seen[c.Name] {
			continue
		}
		merged = append(merged, InferredColumn{Name: c.Name, Type: c.Type, Nullable: true})
		changed = true
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, changed, nil
}

func schemaFieldTypeName(f action.SchemaField) (string, error) {
	var name string
	if err := json.Unmarshal(f.Type, &name); err != nil {
		return "", fmt.Errorf("column %q: parse existing type: %w", f.Name, err)
	}
	return name, nil
}

func stringifyPartitionValue(v any) string {
	if v == nil {
		return partition.NullPartitionValue
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
