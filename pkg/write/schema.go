// Package write implements the write pipeline: schema inference over an
// input record batch, Hive-style partition grouping, Parquet emission,
// column statistics synthesis, and a commit through pkg/concurrency.
// Schema inference is a row-of-any-typed-values scanner, generalized from
// the column-by-column scan a CSV schema inferrer performs.
package write

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dot-do/deltalake-sub000/internal/parquetio"
	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/variant"
)

// Record is one input row, keyed by column name. Values must be one of:
// int32, int64, float64, string, bool, []byte, time.Time, or a nested
// map[string]any/[]any pair that gets encoded as a variant column.
type Record map[string]any

// columnType is this package's internal scalar type universe, a superset
// of parquetio.FieldType that adds Variant (stored physically as Binary).
type columnType int

const (
	colUnknown columnType = iota
	colInt32
	colInt64
	colDouble
	colString
	colBoolean
	colBinary
	colTimestamp
	colVariant
)

func (t columnType) schemaTypeName() string {
	switch t {
	case colInt32:
		return "integer"
	case colInt64:
		return "long"
	case colDouble:
		return "double"
	case colString:
		return "string"
	case colBoolean:
		return "boolean"
	case colBinary:
		return "binary"
	case colTimestamp:
		return "timestamp"
	case colVariant:
		return "variant"
	default:
		return "string"
	}
}

// columnTypeFromSchemaName inverts schemaTypeName, for reconstructing an
// InferredColumn from a committed MetaData.SchemaString.
func columnTypeFromSchemaName(name string) columnType {
	switch name {
	case "integer":
		return colInt32
	case "long":
		return colInt64
	case "double":
		return colDouble
	case "boolean":
		return colBoolean
	case "binary":
		return colBinary
	case "timestamp":
		return colTimestamp
	case "variant":
		return colVariant
	default:
		return colString
	}
}

func (t columnType) parquetType() parquetio.FieldType {
	switch t {
	case colInt32:
		return parquetio.TypeInt32
	case colInt64:
		return parquetio.TypeInt64
	case colDouble:
		return parquetio.TypeDouble
	case colBoolean:
		return parquetio.TypeBoolean
	case colTimestamp:
		return parquetio.TypeTimestamp
	case colBinary, colVariant:
		return parquetio.TypeBinary
	default:
		return parquetio.TypeString
	}
}

// InferredColumn is one column of an inferred schema.
type InferredColumn struct {
	Name     string
	Type     columnType
	Nullable bool
}

// InferSchema scans every record and determines a single consistent type
// per column. A column whose values disagree in type across records (other
// than nil) is a SchemaError: widening would hide a caller mistake, and the
// variant type is reached by putting a map/slice value in a column, not by
// mixing scalar types. A column absent from some records is marked
// Nullable.
func InferSchema(records []Record) ([]InferredColumn, error) {
	seen := map[string]columnType{}
	nullable := map[string]bool{}
	order := []string{}
	count := len(records)

	for _, rec := range records {
		for name, v := range rec {
			if _, ok := seen[name]; !ok {
				order = append(order, name)
				seen[name] = colUnknown
			}
			if v == nil {
				nullable[name] = true
				continue
			}
			t := classify(v)
			if t == colUnknown {
				return nil, errs.NewInvalidInput(fmt.Sprintf("column %q: unsupported value type %T", name, v))
			}
			switch seen[name] {
			case colUnknown:
				seen[name] = t
			case t:
				// consistent
			default:
				return nil, errs.NewSchemaError(name, fmt.Sprintf(
					"conflicting types %s and %s across records", seen[name].schemaTypeName(), t.schemaTypeName(),
				))
			}
		}
	}

	for _, name := range order {
		presentCount := 0
		for _, rec := range records {
			if _, ok := rec[name]; ok {
				presentCount++
			}
		}
		if presentCount < count {
			nullable[name] = true
		}
	}

	sort.Strings(order)
	cols := make([]InferredColumn, 0, len(order))
	for _, name := range order {
		cols = append(cols, InferredColumn{Name: name, Type: seen[name], Nullable: nullable[name]})
	}
	return cols, nil
}

func classify(v any) columnType {
	switch v.(type) {
	case int32:
		return colInt32
	case int, int64:
		return colInt64
	case float32, float64:
		return colDouble
	case string:
		return colString
	case bool:
		return colBoolean
	case []byte:
		return colBinary
	case time.Time:
		return colTimestamp
	case map[string]any, []any:
		return colVariant
	default:
		return colUnknown
	}
}

// ToSchemaString renders cols as the table's schemaString (struct schema
// JSON), the same shape action.ParseSchemaString consumes.
func ToSchemaString(cols []InferredColumn) (string, error) {
	fields := make([]action.SchemaField, 0, len(cols))
	for _, c := range cols {
		typeJSON, err := json.Marshal(c.Type.schemaTypeName())
		if err != nil {
			return "", err
		}
		fields = append(fields, action.SchemaField{
			Name:     c.Name,
			Type:     typeJSON,
			Nullable: c.Nullable,
		})
	}
	schema := action.StructSchema{Type: "struct", Fields: fields}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema string: %w", err)
	}
	return string(data), nil
}

// parquetSchema builds the flat Parquet schema backing cols, encoding
// variant columns as binary envelopes.
func parquetSchema(cols []InferredColumn) (*parquetio.Schema, error) {
	fields := make([]parquetio.Field, 0, len(cols))
	for _, c := range cols {
		fields = append(fields, parquetio.Field{
			Name:     c.Name,
			Type:     c.Type.parquetType(),
			Nullable: c.Nullable,
		})
	}
	return parquetio.NewSchema("data", fields)
}

// toParquetRows converts Records into parquetio.Rows against cols,
// encoding any variant-typed value via pkg/variant before handing it to
// the codec, since the physical column is Binary.
func toParquetRows(cols []InferredColumn, records []Record) ([]parquetio.Row, error) {
	rows := make([]parquetio.Row, 0, len(records))
	for i, rec := range records {
		row := make(parquetio.Row, len(cols))
		for _, c := range cols {
			v, ok := rec[c.Name]
			if !ok || v == nil {
				row[c.Name] = nil
				continue
			}
			if c.Type == colVariant {
				envelope, err := variant.EncodeEnvelope(variant.FromJSON(v))
				if err != nil {
					return nil, fmt.Errorf("row %d column %q: %w", i, c.Name, err)
				}
				row[c.Name] = envelope
				continue
			}
			row[c.Name] = normalizeScalar(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

