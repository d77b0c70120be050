// Package query implements the read pipeline: snapshot resolution,
// partition pruning, zone-map predicate pushdown, streaming file decode,
// in-memory filter evaluation, variant decoding and projection. Modeled
// on an Iceberg-style manifest scan, which narrows a full file list down
// to the ones worth opening before doing any real I/O.
package query

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/dot-do/deltalake-sub000/internal/parquetio"
	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/partition"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/variant"
)

// Options controls one Run call.
type Options struct {
	Version   int64 // -1 means latest
	Filter    *filter.Filter
	Columns   []string // projection; nil/empty means all columns
	Strict    bool     // corrupted-commit handling passed through to snapshot.Load
}

// Stats reports what a Run call actually did: how many files were
// considered vs. skipped by pruning, and how many rows were scanned vs.
// returned after filtering and projection.
type Stats struct {
	FilesConsidered int
	FilesSkipped    int
	RowsScanned     int64
	RowsReturned    int64
}

// Row is one decoded, filtered, projected output row.
type Row map[string]any

// Run resolves the snapshot, prunes files by partition values and zone-map
// ranges, streams the survivors, applies the in-memory filter, and
// projects columns. It materializes the full result set; QueryIterator and
// QueryBatch give a caller more control over how much of the table it
// actually reads.
func Run(ctx context.Context, backend storage.Backend, tableRoot string, opts Options) ([]Row, Stats, error) {
	pq, err := prepareQuery(ctx, backend, tableRoot, opts)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{FilesConsidered: len(pq.snap.Files)}
	var rows []Row

	for _, f := range pq.snap.Files {
		fileRows, skipped, err := pq.readFile(ctx, backend, tableRoot, f, opts, &stats)
		if skipped {
			continue
		}
		if err != nil {
			return nil, stats, err
		}
		rows = append(rows, fileRows...)
	}

	return rows, stats, nil
}

// preparedQuery holds the state shared by Run and the lazy RowIterator: the
// resolved snapshot, the Parquet schema derived from it, which of its
// columns are variant-encoded, and the zone-map ranges compiled from the
// filter.
type preparedQuery struct {
	snap        *snapshot.Snapshot
	pqSchema    *parquetio.Schema
	variantCols map[string]bool
	ranges      map[string]*filter.Range
}

func prepareQuery(ctx context.Context, backend storage.Backend, tableRoot string, opts Options) (*preparedQuery, error) {
	snap, err := snapshot.Load(ctx, backend, tableRoot, opts.Version, snapshot.Options{Strict: opts.Strict})
	if err != nil {
		return nil, err
	}

	schema, err := action.ParseSchemaString(snap.MetaData.SchemaString)
	if err != nil {
		return nil, fmt.Errorf("parse table schema: %w", err)
	}
	pqSchema, variantCols, err := toParquetioSchema(schema)
	if err != nil {
		return nil, err
	}

	var ranges map[string]*filter.Range
	if opts.Filter != nil {
		ranges = filter.CompileRanges(*opts.Filter)
	}

	return &preparedQuery{snap: snap, pqSchema: pqSchema, variantCols: variantCols, ranges: ranges}, nil
}

// readFile decodes and filters the rows of one file, pruning it first by
// partition value and zone-map range. skipped is true when the file was
// pruned without ever being opened.
func (pq *preparedQuery) readFile(ctx context.Context, backend storage.Backend, tableRoot string, f action.Add, opts Options, stats *Stats) (rows []Row, skipped bool, err error) {
	if !partitionSurvives(f, pq.snap.MetaData.PartitionColumns, pq.ranges) {
		stats.FilesSkipped++
		return nil, true, nil
	}
	if opts.Filter != nil {
		fileStats, statErr := action.ParseStats(f.Stats)
		if statErr == nil && !statsSurvive(fileStats, pq.ranges) {
			stats.FilesSkipped++
			return nil, true, nil
		}
	}

	data, err := backend.Read(ctx, path.Join(tableRoot, f.Path))
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	decoded, err := parquetio.ReadRows(pq.pqSchema, data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", f.Path, err)
	}

	out := make([]Row, 0, len(decoded))
	for _, dr := range decoded {
		stats.RowsScanned++
		row := mergeRow(dr, f.PartitionValues, pq.variantCols)
		if opts.Filter != nil && !filter.Matches(*opts.Filter, row) {
			continue
		}
		stats.RowsReturned++
		out = append(out, project(row, opts.Columns))
	}
	return out, false, nil
}

// RowIterator is a lazy, pull-based cursor over a query's result rows. It
// opens and decodes files one at a time, only as Next is called, so a
// caller that stops iterating early never reads the remaining files.
type RowIterator struct {
	ctx       context.Context
	backend   storage.Backend
	tableRoot string
	opts      Options
	pq        *preparedQuery

	fileIdx int
	pending []Row
	idx     int
	done    bool
	stats   Stats
}

// QueryIterator resolves the snapshot and returns a RowIterator over its
// surviving files. No file is read until the first call to Next.
func QueryIterator(ctx context.Context, backend storage.Backend, tableRoot string, opts Options) (*RowIterator, error) {
	pq, err := prepareQuery(ctx, backend, tableRoot, opts)
	if err != nil {
		return nil, err
	}
	return &RowIterator{
		ctx:       ctx,
		backend:   backend,
		tableRoot: tableRoot,
		opts:      opts,
		pq:        pq,
		stats:     Stats{FilesConsidered: len(pq.snap.Files)},
	}, nil
}

// Next returns the next row, or ok=false once every surviving file has been
// exhausted. It opens and decodes a new file only when the previously
// buffered rows run out.
func (it *RowIterator) Next() (Row, bool, error) {
	for {
		if it.idx < len(it.pending) {
			row := it.pending[it.idx]
			it.idx++
			return row, true, nil
		}
		if it.done || it.fileIdx >= len(it.pq.snap.Files) {
			return nil, false, nil
		}
		f := it.pq.snap.Files[it.fileIdx]
		it.fileIdx++
		rows, _, err := it.pq.readFile(it.ctx, it.backend, it.tableRoot, f, it.opts, &it.stats)
		if err != nil {
			it.done = true
			return nil, false, err
		}
		it.pending, it.idx = rows, 0
	}
}

// Close stops the iterator from opening any further files. Calling it is
// optional; simply abandoning the iterator has the same effect, since no
// file is read ahead of a Next call.
func (it *RowIterator) Close() { it.done = true }

// Stats reports the running totals as of the most recent Next call.
func (it *RowIterator) Stats() Stats { return it.stats }

// BatchFunc is called once per batch of up to batchSize rows. Returning
// false, or a non-nil error, stops QueryBatch from reading further files.
type BatchFunc func(batch []Row) (bool, error)

// QueryBatch streams query results to fn in fixed-size batches of up to
// batchSize rows, via the same lazy RowIterator QueryIterator uses, so fn
// returning false (early termination) stops further file reads
// immediately rather than after the whole result set has been decoded.
func QueryBatch(ctx context.Context, backend storage.Backend, tableRoot string, opts Options, batchSize int, fn BatchFunc) (Stats, error) {
	if batchSize <= 0 {
		return Stats{}, errs.NewInvalidInput("batchSize must be positive")
	}

	it, err := QueryIterator(ctx, backend, tableRoot, opts)
	if err != nil {
		return Stats{}, err
	}

	batch := make([]Row, 0, batchSize)
	for {
		row, ok, err := it.Next()
		if err != nil {
			return it.Stats(), err
		}
		if !ok {
			if len(batch) > 0 {
				if _, err := fn(batch); err != nil {
					return it.Stats(), err
				}
			}
			return it.Stats(), nil
		}
		batch = append(batch, row)
		if len(batch) < batchSize {
			continue
		}
		cont, err := fn(batch)
		if err != nil {
			return it.Stats(), err
		}
		if !cont {
			it.Close()
			return it.Stats(), nil
		}
		batch = make([]Row, 0, batchSize)
	}
}

func toParquetioSchema(schema action.StructSchema) (*parquetio.Schema, map[string]bool, error) {
	fields := make([]parquetio.Field, 0, len(schema.Fields))
	variantCols := map[string]bool{}
	for _, f := range schema.Fields {
		var typeName string
		if err := unmarshalTypeName(f.Type, &typeName); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		pt, isVariant, err := fieldType(typeName)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if isVariant {
			variantCols[f.Name] = true
		}
		fields = append(fields, parquetio.Field{Name: f.Name, Type: pt, Nullable: f.Nullable})
	}
	s, err := parquetio.NewSchema("data", fields)
	return s, variantCols, err
}

func fieldType(name string) (parquetio.FieldType, bool, error) {
	switch name {
	case "integer":
		return parquetio.TypeInt32, false, nil
	case "long":
		return parquetio.TypeInt64, false, nil
	case "double":
		return parquetio.TypeDouble, false, nil
	case "string":
		return parquetio.TypeString, false, nil
	case "boolean":
		return parquetio.TypeBoolean, false, nil
	case "binary":
		return parquetio.TypeBinary, false, nil
	case "timestamp":
		return parquetio.TypeTimestamp, false, nil
	case "variant":
		return parquetio.TypeBinary, true, nil
	default:
		return 0, false, fmt.Errorf("unknown schema type %q", name)
	}
}

func unmarshalTypeName(raw []byte, out *string) error {
	// raw is a JSON-encoded string, e.g. `"integer"`.
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("expected a quoted primitive type name, got %s", raw)
	}
	*out = string(raw[1 : len(raw)-1])
	return nil
}

func mergeRow(decoded parquetio.Row, partitionValues map[string]string, variantCols map[string]bool) Row {
	row := make(Row, len(decoded)+len(partitionValues))
	for k, v := range decoded {
		if v == nil {
			row[k] = nil
			continue
		}
		if variantCols[k] {
			raw, ok := v.([]byte)
			if !ok {
				row[k] = nil
				continue
			}
			vv, err := decodeVariantEnvelope(raw)
			if err != nil {
				row[k] = nil
				continue
			}
			row[k] = variant.ToJSON(vv)
			continue
		}
		row[k] = v
	}
	for k, v := range partitionValues {
		if _, ok := row[k]; !ok {
			row[k] = v
		}
	}
	return row
}

// decodeVariantEnvelope splits the metadata/value pair back apart. The
// write pipeline concatenates them with a uvarint length prefix on
// metadata so a reader never needs external framing.
func decodeVariantEnvelope(raw []byte) (variant.Value, error) {
	return variant.DecodeEnvelope(raw)
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		return row
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func partitionSurvives(f action.Add, columns []string, ranges map[string]*filter.Range) bool {
	if ranges == nil {
		return true
	}
	for _, col := range columns {
		r, ok := ranges[col]
		if !ok {
			continue
		}
		val, ok := f.PartitionValues[col]
		if !ok {
			val = partition.NullPartitionValue
		}
		if val == partition.NullPartitionValue {
			continue // a NULL partition value is never provably excluded by a range
		}
		if !r.Overlaps(val, val) {
			return false
		}
	}
	return true
}

func statsSurvive(stats action.FileStats, ranges map[string]*filter.Range) bool {
	for col, r := range ranges {
		min, hasMin := stats.MinValues[col]
		max, hasMax := stats.MaxValues[col]
		if !hasMin || !hasMax {
			continue // no recorded stats for this column: cannot safely skip
		}
		if !r.Overlaps(min, max) {
			return false
		}
	}
	return true
}

// SortByPath is a small helper (used by this package's tests) to get deterministic
// output ordering across a result set assembled from multiple files.
func SortByPath(files []action.Add) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
