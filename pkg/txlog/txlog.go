// Package txlog implements the per-version commit log under a table's
// _delta_log/ directory: 20-digit zero-padded file naming (a
// lexically-sortable scheme, the same shape as `fmt.Sprintf("%020d.fdbs",
// tx)` elsewhere in the log-structured-storage world), NDJSON
// (de)serialization, and version discovery.
package txlog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
)

// LogDir is the conventional log subdirectory name under a table root.
const LogDir = "_delta_log"

// VersionDigits is the fixed width of a zero-padded version in a commit or
// checkpoint file name.
const VersionDigits = 20

var commitFileRe = regexp.MustCompile(`^(\d{20})\.json$`)

// CommitPath returns the path of the commit file for version, relative to
// the table root.
func CommitPath(tableRoot string, version int64) (string, error) {
	name, err := FormatVersion(version)
	if err != nil {
		return "", err
	}
	return joinPath(tableRoot, LogDir, name+".json"), nil
}

// FormatVersion zero-pads version to VersionDigits, rejecting negative
// versions or versions that would need more digits than that.
func FormatVersion(version int64) (string, error) {
	if version < 0 {
		return "", fmt.Errorf("version must be non-negative, got %d", version)
	}
	s := strconv.FormatInt(version, 10)
	if len(s) > VersionDigits {
		return "", fmt.Errorf("version %d requires more than %d digits", version, VersionDigits)
	}
	return strings.Repeat("0", VersionDigits-len(s)) + s, nil
}

func joinPath(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.Trim(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}

// LatestVersion lists the log directory and returns the highest version
// whose commit file is present, or -1 if the table has no commits. Files
// that do not match the commit-file naming pattern (checkpoints,
// _last_checkpoint, foreign files) are ignored. Missing versions in the
// middle of the sequence do not affect this: the maximum parsed version
// always wins.
func LatestVersion(ctx context.Context, backend storage.Backend, tableRoot string) (int64, error) {
	prefix := joinPath(tableRoot, LogDir) + "/"
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return 0, errs.NewStorage("list", prefix, err)
	}

	latest := int64(-1)
	for _, key := range keys {
		base := key[strings.LastIndexByte(key, '/')+1:]
		m := commitFileRe.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

// WriteCommit serializes actions as NDJSON (LF-separated, protocol then
// metaData then add/remove then commitInfo — see Order) and publishes them
// via a must-not-exist conditional write at version's commit path. A
// commit with no actions is rejected. On a precondition conflict this
// returns a *errs.VersionMismatchError for the caller (pkg/concurrency) to
// translate into a ConcurrencyError.
func WriteCommit(ctx context.Context, backend storage.Backend, tableRoot string, version int64, actions []action.Action) error {
	if len(actions) == 0 {
		return errs.NewInvalidInput("cannot commit an empty action list")
	}
	path, err := CommitPath(tableRoot, version)
	if err != nil {
		return errs.NewInvalidInput(err.Error())
	}

	data, err := EncodeCommit(actions)
	if err != nil {
		return err
	}

	_, err = backend.WriteConditional(ctx, path, data, nil)
	return err
}

// EncodeCommit renders actions as the NDJSON bytes of one commit file,
// reordering them into the wire-mandated sequence: protocol, metaData,
// add/remove (original relative order preserved), commitInfo last.
func EncodeCommit(actions []action.Action) ([]byte, error) {
	ordered := OrderActions(actions)
	var buf bytes.Buffer
	for _, a := range ordered {
		line, err := action.MarshalLine(a)
		if err != nil {
			return nil, fmt.Errorf("encode commit: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// OrderActions returns actions reordered per the wire contract: Protocol,
// then MetaData, then everything else in its given relative order, then
// CommitInfo last.
func OrderActions(actions []action.Action) []action.Action {
	var protocol, metadata, rest, commitInfo []action.Action
	for _, a := range actions {
		switch {
		case action.IsProtocol(&a):
			protocol = append(protocol, a)
		case action.IsMetaData(&a):
			metadata = append(metadata, a)
		case action.IsCommitInfo(&a):
			commitInfo = append(commitInfo, a)
		default:
			rest = append(rest, a)
		}
	}
	ordered := make([]action.Action, 0, len(actions))
	ordered = append(ordered, protocol...)
	ordered = append(ordered, metadata...)
	ordered = append(ordered, rest...)
	ordered = append(ordered, commitInfo...)
	return ordered
}

// ReadCommit fetches and parses the commit file for version. LF and CRLF
// line endings are both accepted; blank lines are skipped.
func ReadCommit(ctx context.Context, backend storage.Backend, tableRoot string, version int64) ([]action.Action, error) {
	path, err := CommitPath(tableRoot, version)
	if err != nil {
		return nil, errs.NewInvalidInput(err.Error())
	}
	data, err := backend.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	actions, err := DecodeCommit(data)
	if err != nil {
		return nil, errs.NewCorruption(path, err)
	}
	return actions, nil
}

// DecodeCommit parses NDJSON commit bytes into an ordered slice of actions.
func DecodeCommit(data []byte) ([]action.Action, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var actions []action.Action
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := action.ParseLine([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		actions = append(actions, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan commit: %w", err)
	}
	return actions, nil
}

// ListCommitVersions returns every commit version present under the log
// directory, in ascending order. Used by the snapshot builder to discover
// the range it needs to replay.
func ListCommitVersions(ctx context.Context, backend storage.Backend, tableRoot string) ([]int64, error) {
	prefix := joinPath(tableRoot, LogDir) + "/"
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return nil, errs.NewStorage("list", prefix, err)
	}
	var versions []int64
	for _, key := range keys {
		base := key[strings.LastIndexByte(key, '/')+1:]
		m := commitFileRe.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}
