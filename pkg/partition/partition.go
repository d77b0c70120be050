// Package partition encodes and decodes Hive-style partition path segments
// shared by the write pipeline (pkg/write), the read pipeline's pruning
// step (pkg/query), and Add-action validation (pkg/action).
package partition

import (
	"fmt"
	"net/url"
	"strings"
)

// NullPartitionValue is how a NULL partition value is represented inside an
// Add action's partitionValues map.
const NullPartitionValue = ""

// HiveDefaultPartition is the literal directory-path segment used in place
// of NullPartitionValue when a partition column is NULL.
const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// EncodeSegment renders one "col=value" path segment for the given column
// and value, URL-encoding special characters and substituting
// HiveDefaultPartition for a NULL (empty-string) value.
func EncodeSegment(col, value string) string {
	v := value
	if v == NullPartitionValue {
		v = HiveDefaultPartition
	} else {
		v = url.QueryEscape(v)
	}
	return col + "=" + v
}

// EncodePath renders the full partition-directory prefix (with trailing
// slash) for an ordered list of partition columns and a value map, in
// partitionColumns order.
func EncodePath(columns []string, values map[string]string) string {
	if len(columns) == 0 {
		return ""
	}
	segments := make([]string, 0, len(columns))
	for _, col := range columns {
		segments = append(segments, EncodeSegment(col, values[col]))
	}
	return strings.Join(segments, "/") + "/"
}

// DecodePath parses the leading "col=value/..." segments of path according
// to the expected column order, returning the decoded partitionValues map.
// It returns an error if a segment's column name does not match the
// expected column at that position.
func DecodePath(path string, columns []string) (map[string]string, error) {
	values := make(map[string]string, len(columns))
	if len(columns) == 0 {
		return values, nil
	}

	remaining := path
	for _, col := range columns {
		idx := strings.IndexByte(remaining, '/')
		if idx < 0 {
			return nil, fmt.Errorf("path %q is missing a segment for partition column %q", path, col)
		}
		segment := remaining[:idx]
		remaining = remaining[idx+1:]

		eq := strings.IndexByte(segment, '=')
		if eq < 0 {
			return nil, fmt.Errorf("path segment %q is not in col=value form", segment)
		}
		segCol, rawVal := segment[:eq], segment[eq+1:]
		if segCol != col {
			return nil, fmt.Errorf("path segment %q does not match expected partition column %q", segment, col)
		}

		if rawVal == HiveDefaultPartition {
			values[col] = NullPartitionValue
			continue
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, fmt.Errorf("decoding partition value %q: %w", rawVal, err)
		}
		values[col] = val
	}
	return values, nil
}

// Consistent reports whether partitionValues agrees with the leading
// segments of path for the given column order, per the spec's
// Add-action invariant that the two must never diverge.
func Consistent(path string, columns []string, partitionValues map[string]string) bool {
	if len(columns) == 0 {
		return true
	}
	decoded, err := DecodePath(path, columns)
	if err != nil {
		return false
	}
	for _, col := range columns {
		want, ok := partitionValues[col]
		if !ok {
			want = NullPartitionValue
		}
		if decoded[col] != want {
			return false
		}
	}
	return true
}
