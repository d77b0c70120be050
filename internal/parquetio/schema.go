// Package parquetio is the narrow adapter between the table engine and its
// one genuine external dependency, the Parquet codec. It is built against
// github.com/parquet-go/parquet-go, mapping field types to parquet nodes
// and reading/writing files the way an Iceberg/Parquet integration layer
// wraps that library's file-opening and schema APIs.
package parquetio

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// FieldType enumerates the scalar/binary leaf types the write pipeline's
// schema inference (pkg/write) can produce. Variant-typed columns are
// stored as Binary: the caller pre-encodes them with pkg/variant before
// handing rows to this package.
type FieldType int

const (
	TypeInt32 FieldType = iota
	TypeInt64
	TypeDouble
	TypeString
	TypeBoolean
	TypeBinary
	TypeTimestamp
)

func (t FieldType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeBinary:
		return "binary"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Field describes one column of a flat Parquet schema this package can
// build and write. Nested/variant types are flattened to Binary by the
// caller before reaching this package.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is an ordered list of Fields, plus the lazily built parquet-go
// schema it compiles to.
type Schema struct {
	Fields []Field

	compiled *parquet.Schema
}

// NewSchema builds a Schema from fields, compiling the corresponding
// parquet-go schema eagerly so construction errors surface immediately.
func NewSchema(name string, fields []Field) (*Schema, error) {
	group := parquet.Group{}
	for _, f := range fields {
		node, err := fieldNode(f)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		group[f.Name] = node
	}
	return &Schema{Fields: fields, compiled: parquet.NewSchema(name, group)}, nil
}

func fieldNode(f Field) (parquet.Node, error) {
	var node parquet.Node
	switch f.Type {
	case TypeInt32:
		node = parquet.Int(32)
	case TypeInt64:
		node = parquet.Int(64)
	case TypeDouble:
		node = parquet.Leaf(parquet.DoubleType)
	case TypeString:
		node = parquet.String()
	case TypeBoolean:
		node = parquet.Leaf(parquet.BooleanType)
	case TypeBinary:
		node = parquet.Leaf(parquet.ByteArrayType)
	case TypeTimestamp:
		node = parquet.Timestamp(parquet.Millisecond)
	default:
		return nil, fmt.Errorf("unsupported field type %v", f.Type)
	}
	if f.Nullable {
		node = parquet.Optional(node)
	}
	return node, nil
}

// Compiled returns the underlying *parquet.Schema.
func (s *Schema) Compiled() *parquet.Schema { return s.compiled }

// ColumnNames returns the ordered list of top-level column names.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
