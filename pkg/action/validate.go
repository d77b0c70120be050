package action

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/partition"
)

// Validate checks a's populated variant against its field invariants and
// returns a *errs.ValidationError listing every issue found, or nil.
// Partition-path/partitionValues agreement is checked only when the
// caller's context includes the table's partition columns; use
// ValidateAddWithColumns directly when that context is available.
func Validate(a Action) error {
	var issues []string
	switch {
	case IsAdd(&a):
		issues = validateAdd(*a.Add, nil)
	case IsRemove(&a):
		issues = validateRemove(*a.Remove)
	case IsMetaData(&a):
		issues = validateMetaData(*a.MetaData)
	case IsProtocol(&a):
		issues = validateProtocol(*a.Protocol)
	case IsCommitInfo(&a):
		issues = validateCommitInfo(*a.CommitInfo)
	case len(a.Txn) > 0:
		// opaque passthrough, nothing to validate
	default:
		issues = []string{"action has no populated variant"}
	}
	return errs.NewValidation(issues...)
}

func validatePath(path string) []string {
	var issues []string
	if path == "" {
		issues = append(issues, "path must not be empty")
		return issues
	}
	if strings.HasPrefix(path, "/") {
		issues = append(issues, "path must not be absolute")
	}
	if strings.HasPrefix(path, "./") {
		issues = append(issues, "path must not start with \"./\"")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			issues = append(issues, "path must not contain \"..\" traversal")
			break
		}
	}
	return issues
}

// ValidateAddWithColumns validates an Add action, additionally checking
// partitionValues/path consistency against the table's partition column
// order when columns is non-empty.
func ValidateAddWithColumns(a Add, columns []string) error {
	return errs.NewValidation(validateAdd(a, columns)...)
}

func validateAdd(a Add, columns []string) []string {
	issues := validatePath(a.Path)
	if a.Size < 0 {
		issues = append(issues, "add.size must be non-negative")
	}
	if a.Size > MaxSafeInt {
		issues = append(issues, "add.size exceeds the maximum safe integer")
	}
	if a.ModificationTime < 0 {
		issues = append(issues, "add.modificationTime must be non-negative")
	}
	if a.Stats != "" {
		stats, err := ParseStats(a.Stats)
		if err != nil {
			issues = append(issues, fmt.Sprintf("add.stats is not valid FileStats JSON: %v", err))
		} else {
			issues = append(issues, ValidateStats(stats)...)
		}
	}
	if len(columns) > 0 && a.PartitionValues != nil {
		if !partition.Consistent(a.Path, columns, a.PartitionValues) {
			issues = append(issues, "add.partitionValues is not consistent with add.path")
		}
	}
	return issues
}

func validateRemove(r Remove) []string {
	issues := validatePath(r.Path)
	if r.DeletionTimestamp < 0 {
		issues = append(issues, "remove.deletionTimestamp must be non-negative")
	}
	return issues
}

func validateMetaData(m MetaData) []string {
	var issues []string
	if m.ID == "" {
		issues = append(issues, "metaData.id must not be empty")
	}
	if m.Format.Provider == "" {
		issues = append(issues, "metaData.format.provider must not be empty")
	}
	if err := ValidateSchemaString(m.SchemaString); err != nil {
		issues = append(issues, fmt.Sprintf("metaData.schemaString is invalid: %v", err))
	}
	return issues
}

func validateProtocol(p Protocol) []string {
	var issues []string
	if p.MinReaderVersion < 1 {
		issues = append(issues, "protocol.minReaderVersion must be >= 1")
	}
	if p.MinWriterVersion < 1 {
		issues = append(issues, "protocol.minWriterVersion must be >= 1")
	}
	return issues
}

func validateCommitInfo(c CommitInfo) []string {
	var issues []string
	if c.Operation == "" {
		issues = append(issues, "commitInfo.operation must not be empty")
	}
	if c.Timestamp < 0 {
		issues = append(issues, "commitInfo.timestamp must be non-negative")
	}
	if c.ReadVersion != nil && *c.ReadVersion < 0 {
		issues = append(issues, "commitInfo.readVersion must be non-negative")
	}
	return issues
}

// SchemaField is one field of a struct schema's fields[] array.
type SchemaField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// StructSchema is the parsed form of MetaData.SchemaString.
type StructSchema struct {
	Type   string        `json:"type"`
	Fields []SchemaField `json:"fields"`
}

// ValidateSchemaString parses raw as a struct schema ({"type":"struct",
// "fields":[...]}) and checks every field has a name and a type.
func ValidateSchemaString(raw string) error {
	_, err := ParseSchemaString(raw)
	return err
}

// ParseSchemaString parses and validates a struct schema string, returning
// the decoded StructSchema on success.
func ParseSchemaString(raw string) (StructSchema, error) {
	var schema StructSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return StructSchema{}, fmt.Errorf("not valid JSON: %w", err)
	}
	if schema.Type != "struct" {
		return StructSchema{}, fmt.Errorf("schema type must be \"struct\", got %q", schema.Type)
	}
	for i, f := range schema.Fields {
		if f.Name == "" {
			return StructSchema{}, fmt.Errorf("field %d is missing a name", i)
		}
		if len(f.Type) == 0 {
			return StructSchema{}, fmt.Errorf("field %q is missing a type", f.Name)
		}
	}
	return schema, nil
}
