// Package action implements the transaction-log action model: the tagged
// variants {Add, Remove, MetaData, Protocol, CommitInfo}, their JSON wire
// form, and composable validation that reports every invariant violation
// at once rather than failing on the first one, using typed error structs
// with enough fields to explain themselves rather than bare strings.
package action

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// MaxSafeInt mirrors JavaScript's Number.MAX_SAFE_INTEGER, the ceiling the
// spec places on Add.size: on-wire integers are JSON numbers and values
// beyond this range cannot round-trip exactly through every conformant
// reader.
const MaxSafeInt = int64(1)<<53 - 1

// Format describes the data file format backing a table, always "parquet"
// for tables this engine writes but parsed opaquely for interoperability.
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

// Add makes a data file active at the version that commits it.
type Add struct {
	Path             string            `json:"path"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
	PartitionValues  map[string]string `json:"partitionValues,omitempty"`
	Stats            string            `json:"stats,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// Remove retires a data file from the active set (a tombstone).
type Remove struct {
	Path                 string            `json:"path"`
	DeletionTimestamp    int64             `json:"deletionTimestamp"`
	DataChange           bool              `json:"dataChange"`
	PartitionValues      map[string]string `json:"partitionValues,omitempty"`
	ExtendedFileMetadata *bool             `json:"extendedFileMetadata,omitempty"`
	Size                 *int64            `json:"size,omitempty"`
}

// MetaData carries schema, partition columns, and configuration.
type MetaData struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

// Protocol carries the minimum reader/writer versions the current log
// requires.
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

// CommitInfo describes the operation that produced a commit. It never
// participates in snapshot state, only in audit/history.
type CommitInfo struct {
	Timestamp           int64             `json:"timestamp"`
	Operation           string            `json:"operation"`
	OperationParameters map[string]string `json:"operationParameters,omitempty"`
	ReadVersion         *int64            `json:"readVersion,omitempty"`
	IsolationLevel      string            `json:"isolationLevel,omitempty"`
	IsBlindAppend       *bool             `json:"isBlindAppend,omitempty"`
}

// Action is a tagged variant with exactly one populated field per instance.
// Txn holds any app-level idempotency action a foreign writer produced;
// this engine never emits one but must not choke on it while replaying a
// log written by another implementation.
type Action struct {
	Add        *Add            `json:"add,omitempty"`
	Remove     *Remove         `json:"remove,omitempty"`
	MetaData   *MetaData       `json:"metaData,omitempty"`
	Protocol   *Protocol       `json:"protocol,omitempty"`
	CommitInfo *CommitInfo     `json:"commitInfo,omitempty"`
	Txn        json.RawMessage `json:"txn,omitempty"`
}

func FromAdd(a Add) Action               { return Action{Add: &a} }
func FromRemove(r Remove) Action         { return Action{Remove: &r} }
func FromMetaData(m MetaData) Action     { return Action{MetaData: &m} }
func FromProtocol(p Protocol) Action     { return Action{Protocol: &p} }
func FromCommitInfo(c CommitInfo) Action { return Action{CommitInfo: &c} }

// IsAdd reports whether a holds an Add variant without panicking on a zero
// value.
func IsAdd(a *Action) bool { return a != nil && a.Add != nil }

// IsRemove reports whether a holds a Remove variant.
func IsRemove(a *Action) bool { return a != nil && a.Remove != nil }

// IsMetaData reports whether a holds a MetaData variant.
func IsMetaData(a *Action) bool { return a != nil && a.MetaData != nil }

// IsProtocol reports whether a holds a Protocol variant.
func IsProtocol(a *Action) bool { return a != nil && a.Protocol != nil }

// IsCommitInfo reports whether a holds a CommitInfo variant.
func IsCommitInfo(a *Action) bool { return a != nil && a.CommitInfo != nil }

// populatedKeys returns the wire keys set on a, in no particular order; it
// is used to enforce "exactly one known top-level key" on parse.
func (a Action) populatedKeys() []string {
	var keys []string
	if a.Add != nil {
		keys = append(keys, "add")
	}
	if a.Remove != nil {
		keys = append(keys, "remove")
	}
	if a.MetaData != nil {
		keys = append(keys, "metaData")
	}
	if a.Protocol != nil {
		keys = append(keys, "protocol")
	}
	if a.CommitInfo != nil {
		keys = append(keys, "commitInfo")
	}
	if len(a.Txn) > 0 {
		keys = append(keys, "txn")
	}
	return keys
}

// MarshalLine serializes a into a single-line JSON object suitable for one
// line of a commit file. It fails if a does not hold exactly one variant.
func MarshalLine(a Action) ([]byte, error) {
	keys := a.populatedKeys()
	if len(keys) != 1 {
		return nil, fmt.Errorf("action must have exactly one populated variant, got %d (%v)", len(keys), keys)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	return data, nil
}

// ParseLine deserializes one NDJSON line into an Action, rejecting arrays,
// primitives, null, and objects that do not have exactly one known
// top-level key.
func ParseLine(line []byte) (Action, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Action{}, fmt.Errorf("parse action: not a JSON object: %w", err)
	}

	known := map[string]bool{"add": true, "remove": true, "metaData": true, "protocol": true, "commitInfo": true, "txn": true}
	var foundKey string
	foundCount := 0
	for k := range raw {
		if known[k] {
			foundKey = k
			foundCount++
		}
	}
	if foundCount != 1 {
		return Action{}, fmt.Errorf("parse action: expected exactly one known top-level key, found %d", foundCount)
	}

	var a Action
	switch foundKey {
	case "add":
		var add Add
		if err := json.Unmarshal(raw["add"], &add); err != nil {
			return Action{}, fmt.Errorf("parse add action: %w", err)
		}
		a.Add = &add
	case "remove":
		var rm Remove
		if err := json.Unmarshal(raw["remove"], &rm); err != nil {
			return Action{}, fmt.Errorf("parse remove action: %w", err)
		}
		a.Remove = &rm
	case "metaData":
		var md MetaData
		if err := json.Unmarshal(raw["metaData"], &md); err != nil {
			return Action{}, fmt.Errorf("parse metaData action: %w", err)
		}
		a.MetaData = &md
	case "protocol":
		var p Protocol
		if err := json.Unmarshal(raw["protocol"], &p); err != nil {
			return Action{}, fmt.Errorf("parse protocol action: %w", err)
		}
		a.Protocol = &p
	case "commitInfo":
		var ci CommitInfo
		if err := json.Unmarshal(raw["commitInfo"], &ci); err != nil {
			return Action{}, fmt.Errorf("parse commitInfo action: %w", err)
		}
		a.CommitInfo = &ci
	case "txn":
		a.Txn = append(json.RawMessage(nil), raw["txn"]...)
	}
	return a, nil
}
