// Package checkpoint implements periodic Parquet rollups of the commit
// log: a full replay of active Add actions plus the governing
// MetaData/Protocol, serialized so that later reads can skip straight past
// the commits it summarizes. Follows txlog's own zero-padded naming
// convention and an Iceberg-style habit of writing one self-contained
// manifest file per maintenance pass, split into several part files when
// the configured action-count or byte-size limit is exceeded.
package checkpoint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"context"

	"github.com/dot-do/deltalake-sub000/internal/parquetio"
	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/txlog"
)

// Interval is the default number of commits between checkpoints: a
// checkpoint is due once (version+1) % Interval == 0, matching the
// reference cadence of one checkpoint per ten commits.
const Interval = 10

// pointerFile is the name of the pointer JSON published alongside the log
// directory, recording which checkpoint a reader should probe for first.
const pointerFile = "_last_checkpoint"

// Pointer is the decoded form of _last_checkpoint.
type Pointer struct {
	Version int64 `json:"version"`
	Size    int64 `json:"size,omitempty"`
	Parts   int   `json:"parts,omitempty"`
}

// Checkpoint is the rolled-up state captured at Version: every active Add,
// plus the MetaData/Protocol in force.
type Checkpoint struct {
	Version  int64
	MetaData action.MetaData
	Protocol action.Protocol
	Files    []action.Add
}

var checkpointSchema = mustSchema()

func mustSchema() *parquetio.Schema {
	s, err := parquetio.NewSchema("checkpoint", []parquetio.Field{
		{Name: "kind", Type: parquetio.TypeString},
		{Name: "payload", Type: parquetio.TypeBinary},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Due reports whether committing nextVersion should trigger a checkpoint,
// per the (version+1) % interval == 0 rule.
func Due(nextVersion int64, interval int) bool {
	if interval <= 0 {
		interval = Interval
	}
	return (nextVersion+1)%int64(interval) == 0
}

// WriteOptions controls how many generations Write retains and how it
// splits a checkpoint into parts once it grows past either threshold.
// MaxActionsPerCheckpoint and MaxCheckpointSizeBytes of 0 mean "no limit":
// the checkpoint is written as a single part, matching prior behavior.
type WriteOptions struct {
	Keep                    int
	MaxActionsPerCheckpoint int
	MaxCheckpointSizeBytes  int64
}

// Write serializes snap as one or more checkpoint parts, splitting once
// opts.MaxActionsPerCheckpoint or opts.MaxCheckpointSizeBytes is exceeded,
// and publishes the _last_checkpoint pointer. It is a no-op (returns nil) if
// a checkpoint for this version already exists, and it deletes checkpoints
// older than the newest keep-1 generations once the new one lands.
func Write(ctx context.Context, backend storage.Backend, tableRoot string, snap Checkpoint, opts WriteOptions) error {
	if versions, err := listCheckpointVersions(ctx, backend, tableRoot); err == nil {
		for _, v := range versions {
			if v == snap.Version {
				return nil
			}
		}
	}

	rows, err := encodeRows(snap)
	if err != nil {
		return err
	}

	groups := chunkRows(rows, opts.MaxActionsPerCheckpoint)
	var partsData [][]byte
	for _, g := range groups {
		data, err := splitEncode(g, opts.MaxCheckpointSizeBytes)
		if err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
		partsData = append(partsData, data...)
	}

	totalParts := len(partsData)
	var totalSize int64
	for i, data := range partsData {
		p, err := checkpointPath(tableRoot, snap.Version, i, totalParts)
		if err != nil {
			return err
		}
		if err := backend.Write(ctx, p, data); err != nil {
			return err
		}
		totalSize += int64(len(data))
	}

	ptr, err := json.Marshal(Pointer{Version: snap.Version, Size: totalSize, Parts: totalParts})
	if err != nil {
		return fmt.Errorf("marshal checkpoint pointer: %w", err)
	}
	pp, err := joinLogPath(tableRoot, pointerFile)
	if err != nil {
		return err
	}
	if err := backend.Write(ctx, pp, ptr); err != nil {
		return err
	}

	if opts.Keep > 0 {
		prune(ctx, backend, tableRoot, snap.Version, opts.Keep)
	}
	return nil
}

// chunkRows groups rows into chunks of at most size rows each; size <= 0
// means "one chunk holding every row".
func chunkRows(rows []parquetio.Row, size int) [][]parquetio.Row {
	if size <= 0 || size >= len(rows) {
		return [][]parquetio.Row{rows}
	}
	groups := make([][]parquetio.Row, 0, len(rows)/size+1)
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		groups = append(groups, rows[i:end])
	}
	return groups
}

// splitEncode encodes rows as a single Parquet part, halving and recursing
// whenever the encoded size exceeds maxBytes and the group can still be
// split further. A single row that alone exceeds maxBytes is written as its
// own oversized part rather than looping forever.
func splitEncode(rows []parquetio.Row, maxBytes int64) ([][]byte, error) {
	result, err := parquetio.WriteRows(checkpointSchema, rows)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 || int64(len(result.Data)) <= maxBytes || len(rows) <= 1 {
		return [][]byte{result.Data}, nil
	}
	mid := len(rows) / 2
	left, err := splitEncode(rows[:mid], maxBytes)
	if err != nil {
		return nil, err
	}
	right, err := splitEncode(rows[mid:], maxBytes)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func prune(ctx context.Context, backend storage.Backend, tableRoot string, newest int64, keep int) {
	versions, err := listCheckpointVersions(ctx, backend, tableRoot)
	if err != nil {
		return
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) <= keep {
		return
	}
	for _, v := range versions[keep:] {
		paths, err := checkpointPartPaths(ctx, backend, tableRoot, v)
		if err != nil {
			continue
		}
		for _, p := range paths {
			_ = backend.Delete(ctx, p)
		}
	}
}

// FindApplicable returns the newest checkpoint version at or below
// asOfVersion, preferring the _last_checkpoint pointer and falling back to
// a directory listing if the pointer is absent or stale.
func FindApplicable(ctx context.Context, backend storage.Backend, tableRoot string, asOfVersion int64) (int64, bool, error) {
	pp, err := joinLogPath(tableRoot, pointerFile)
	if err != nil {
		return 0, false, err
	}
	if data, err := backend.Read(ctx, pp); err == nil {
		var ptr Pointer
		if jerr := json.Unmarshal(data, &ptr); jerr == nil && ptr.Version <= asOfVersion {
			return ptr.Version, true, nil
		}
	}

	versions, err := listCheckpointVersions(ctx, backend, tableRoot)
	if err != nil {
		return 0, false, err
	}
	best := int64(-1)
	for _, v := range versions {
		if v <= asOfVersion && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, false, nil
	}
	return best, true, nil
}

// Load fetches and decodes the checkpoint at version, reassembling every
// part if it was written in multiple pieces.
func Load(ctx context.Context, backend storage.Backend, tableRoot string, version int64) (*Checkpoint, error) {
	paths, err := checkpointPartPaths(ctx, backend, tableRoot, version)
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{Version: version}
	for _, p := range paths {
		data, err := backend.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		rows, err := parquetio.ReadRows(checkpointSchema, data)
		if err != nil {
			return nil, errs.NewCorruption(p, err)
		}
		if err := mergeRows(cp, rows); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// checkpointPartPaths resolves every object that makes up the checkpoint at
// version: the single conventional path if it exists, otherwise every
// version.checkpoint.<part>.<totalParts>.parquet object, ordered by part.
func checkpointPartPaths(ctx context.Context, backend storage.Backend, tableRoot string, version int64) ([]string, error) {
	single, err := checkpointPath(tableRoot, version, 0, 0)
	if err != nil {
		return nil, err
	}
	if exists, err := backend.Exists(ctx, single); err != nil {
		return nil, err
	} else if exists {
		return []string{single}, nil
	}

	prefix, err := joinLogPath(tableRoot, "")
	if err != nil {
		return nil, err
	}
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return nil, errs.NewStorage("list", prefix, err)
	}
	v, err := txlog.FormatVersion(version)
	if err != nil {
		return nil, err
	}
	multiPrefix := v + ".checkpoint."

	type indexedPath struct {
		part int
		path string
	}
	var found []indexedPath
	for _, key := range keys {
		base := key[strings.LastIndexByte(key, '/')+1:]
		if !strings.HasPrefix(base, multiPrefix) {
			continue
		}
		fields := strings.Split(strings.TrimSuffix(base, ".parquet"), ".")
		if len(fields) != 4 {
			continue
		}
		part, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		found = append(found, indexedPath{part: part, path: key})
	}
	if len(found) == 0 {
		return nil, errs.NewNotFound(single)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].part < found[j].part })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

func encodeRows(snap Checkpoint) ([]parquetio.Row, error) {
	rows := make([]parquetio.Row, 0, len(snap.Files)+2)
	md, err := json.Marshal(snap.MetaData)
	if err != nil {
		return nil, err
	}
	rows = append(rows, parquetio.Row{"kind": "metaData", "payload": md})
	pr, err := json.Marshal(snap.Protocol)
	if err != nil {
		return nil, err
	}
	rows = append(rows, parquetio.Row{"kind": "protocol", "payload": pr})
	for _, f := range snap.Files {
		fd, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		rows = append(rows, parquetio.Row{"kind": "add", "payload": fd})
	}
	return rows, nil
}

// mergeRows decodes rows from one checkpoint part into cp, accumulating
// Files across calls so a multi-part checkpoint's parts can be folded
// together in order.
func mergeRows(cp *Checkpoint, rows []parquetio.Row) error {
	for _, row := range rows {
		kind, _ := row["kind"].(string)
		payload, _ := row["payload"].([]byte)
		switch kind {
		case "metaData":
			if err := json.Unmarshal(payload, &cp.MetaData); err != nil {
				return fmt.Errorf("decode checkpoint metaData: %w", err)
			}
		case "protocol":
			if err := json.Unmarshal(payload, &cp.Protocol); err != nil {
				return fmt.Errorf("decode checkpoint protocol: %w", err)
			}
		case "add":
			var a action.Add
			if err := json.Unmarshal(payload, &a); err != nil {
				return fmt.Errorf("decode checkpoint add: %w", err)
			}
			cp.Files = append(cp.Files, a)
		default:
			return fmt.Errorf("decode checkpoint: unknown row kind %q", kind)
		}
	}
	return nil
}

func checkpointPath(tableRoot string, version int64, part, totalParts int) (string, error) {
	v, err := txlog.FormatVersion(version)
	if err != nil {
		return "", err
	}
	name := v + ".checkpoint.parquet"
	if totalParts > 1 {
		name = fmt.Sprintf("%s.checkpoint.%010d.%010d.parquet", v, part, totalParts)
	}
	return joinLogPath(tableRoot, name)
}

func joinLogPath(tableRoot, name string) (string, error) {
	parts := []string{strings.Trim(tableRoot, "/"), txlog.LogDir, name}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/"), nil
}

func listCheckpointVersions(ctx context.Context, backend storage.Backend, tableRoot string) ([]int64, error) {
	prefix, err := joinLogPath(tableRoot, "")
	if err != nil {
		return nil, err
	}
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return nil, errs.NewStorage("list", prefix, err)
	}
	seen := make(map[int64]bool)
	var versions []int64
	for _, key := range keys {
		base := key[strings.LastIndexByte(key, '/')+1:]
		if !strings.Contains(base, ".checkpoint") {
			continue
		}
		digits := base[:strings.Index(base, ".")]
		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || len(digits) != txlog.VersionDigits {
			continue
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}
	return versions, nil
}
