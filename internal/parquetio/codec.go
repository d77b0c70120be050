package parquetio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Row is a flat record keyed by column name. Values must match the
// corresponding Field's type: int32, int64, float64, string, bool, []byte,
// or time.Time for TypeTimestamp. A nil entry means SQL NULL for a nullable
// field.
type Row map[string]any

// ColumnStat summarizes one column across a write, the same shape the
// write pipeline folds into action.FileStats: min, max and a null count,
// computed from the Go-side row values rather than pulled back out of the
// encoded file, since parquet-go's row-group statistics are an internal
// implementation detail this package does not depend on.
type ColumnStat struct {
	Min       any
	Max       any
	NullCount int64
}

// RowGroupStats is the per-row-group slice of ColumnStat, keyed by column
// name, plus the row count of that group.
type RowGroupStats struct {
	NumRows     int64
	ColumnStats map[string]ColumnStat
}

// WriteResult is what WriteRows hands back: the encoded file bytes plus
// enough statistics for the caller to build an action.FileStats without
// re-reading the file.
type WriteResult struct {
	Data       []byte
	NumRows    int64
	RowGroups  []RowGroupStats
	NullCounts map[string]int64
	MinValues  map[string]any
	MaxValues  map[string]any
}

// WriteRows encodes rows against schema into a single-row-group Parquet
// file, matching the write pipeline's one-file-per-partition-group output:
// each write emits exactly one physical file, so there is no benefit to
// multiple row groups here. Built the way an Iceberg/Parquet integration
// layer builds a parquet.Schema up front and uses buffered
// parquet.NewGenericWriter-style writes.
func WriteRows(schema *Schema, rows []Row) (*WriteResult, error) {
	var buf bytes.Buffer
	writer := parquet.NewWriter(&buf, schema.Compiled())

	stats := make(map[string]*ColumnStat, len(schema.Fields))
	for _, f := range schema.Fields {
		stats[f.Name] = &ColumnStat{}
	}

	for i, row := range rows {
		parquetRow, err := toParquetRow(schema, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := writer.Write(parquetRow); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
		for _, f := range schema.Fields {
			updateStat(stats[f.Name], row[f.Name])
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}

	nullCounts := make(map[string]int64, len(stats))
	minValues := make(map[string]any, len(stats))
	maxValues := make(map[string]any, len(stats))
	colStats := make(map[string]ColumnStat, len(stats))
	for name, s := range stats {
		nullCounts[name] = s.NullCount
		minValues[name] = s.Min
		maxValues[name] = s.Max
		colStats[name] = *s
	}

	return &WriteResult{
		Data:       buf.Bytes(),
		NumRows:    int64(len(rows)),
		NullCounts: nullCounts,
		MinValues:  minValues,
		MaxValues:  maxValues,
		RowGroups: []RowGroupStats{{
			NumRows:     int64(len(rows)),
			ColumnStats: colStats,
		}},
	}, nil
}

func toParquetRow(schema *Schema, row Row) (any, error) {
	out := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := row[f.Name]
		if !ok || v == nil {
			if !f.Nullable {
				return nil, fmt.Errorf("column %q: missing value for non-nullable field", f.Name)
			}
			out[f.Name] = nil
			continue
		}
		switch f.Type {
		case TypeTimestamp:
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("column %q: expected time.Time, got %T", f.Name, v)
			}
			out[f.Name] = t.UnixMilli()
		default:
			out[f.Name] = v
		}
	}
	return out, nil
}

func updateStat(s *ColumnStat, v any) {
	if v == nil {
		s.NullCount++
		return
	}
	if s.Min == nil || less(v, s.Min) {
		s.Min = v
	}
	if s.Max == nil || less(s.Max, v) {
		s.Max = v
	}
}

// less compares two values of the same underlying scalar type. Values of
// differing dynamic type (e.g. comparing a stat seed of nil) never reach
// here because updateStat only compares against a previously-set Min/Max
// of the same field.
func less(a, b any) bool {
	switch av := a.(type) {
	case int32:
		return av < b.(int32)
	case int64:
		return av < b.(int64)
	case float64:
		return av < b.(float64)
	case string:
		return av < b.(string)
	case bool:
		return !av && b.(bool)
	case []byte:
		return bytes.Compare(av, b.([]byte)) < 0
	case time.Time:
		return av.Before(b.(time.Time))
	default:
		return false
	}
}

// ReadRows decodes every row of a Parquet file produced by WriteRows. It is
// a full-file scan; partition pruning and zone-map skipping happen above
// this package, in pkg/query, using the FileStats recorded at write time
// rather than re-deriving them here.
func ReadRows(schema *Schema, data []byte) ([]Row, error) {
	reader := parquet.NewGenericReader[map[string]any](bytes.NewReader(data), schema.Compiled())
	defer reader.Close()

	rows := make([]Row, 0, reader.NumRows())
	buf := make([]map[string]any, 128)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			rows = append(rows, fromParquetRow(schema, buf[i]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}

func fromParquetRow(schema *Schema, raw map[string]any) Row {
	out := make(Row, len(schema.Fields))
	for _, f := range schema.Fields {
		v := raw[f.Name]
		if v == nil {
			out[f.Name] = nil
			continue
		}
		if f.Type == TypeTimestamp {
			if ms, ok := v.(int64); ok {
				out[f.Name] = time.UnixMilli(ms).UTC()
				continue
			}
		}
		out[f.Name] = v
	}
	return out
}
