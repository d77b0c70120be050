package action

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// FileStats is the decoded form of an Add action's Stats field. Column
// paths use dot notation for nesting.
type FileStats struct {
	NumRecords int64                  `json:"numRecords"`
	MinValues  map[string]interface{} `json:"minValues,omitempty"`
	MaxValues  map[string]interface{} `json:"maxValues,omitempty"`
	NullCount  map[string]int64       `json:"nullCount,omitempty"`
}

// MarshalStats serializes stats to the JSON string form stored in
// Add.Stats, per the spec's requirement that stats are always embedded as
// a string, not a nested object.
func MarshalStats(stats FileStats) (string, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("marshal file stats: %w", err)
	}
	return string(data), nil
}

// ParseStats decodes an Add action's Stats string into a FileStats value.
func ParseStats(raw string) (FileStats, error) {
	var stats FileStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return FileStats{}, fmt.Errorf("parse file stats: %w", err)
	}
	return stats, nil
}

// ValidateStats checks FileStats invariants: numRecords non-negative, and
// nullCount[col] between 0 and numRecords inclusive for every column.
func ValidateStats(stats FileStats) []string {
	var issues []string
	if stats.NumRecords < 0 {
		issues = append(issues, "stats.numRecords must be non-negative")
	}
	for col, n := range stats.NullCount {
		if n < 0 {
			issues = append(issues, fmt.Sprintf("stats.nullCount[%s] must be non-negative", col))
		}
		if n > stats.NumRecords {
			issues = append(issues, fmt.Sprintf("stats.nullCount[%s] (%d) exceeds numRecords (%d)", col, n, stats.NumRecords))
		}
	}
	return issues
}
