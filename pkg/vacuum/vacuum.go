// Package vacuum implements garbage collection of orphaned data files:
// any .parquet file under the table root but outside _delta_log/ that is no longer
// referenced by the current snapshot and is older than the retention
// window. Modeled on an Iceberg-style orphan-file age scan, generalized
// from a manifest-tracked file set to this engine's Add/Remove-tracked
// one.
package vacuum

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/txlog"
)

// DefaultRetention is the retention window Run uses when Options.Retention
// is zero. Run accepts windows down to one hour; anything shorter than this
// default risks deleting a file a concurrent reader still has open against
// an older snapshot.
const DefaultRetention = 7 * 24 * time.Hour

// Options controls one Run call.
type Options struct {
	Retention time.Duration // 0 means DefaultRetention
	DryRun    bool
	Now       time.Time // zero means time.Now(); set in tests for determinism

	// OnFile is called once per orphan older than the retention cutoff
	// (each path added to FilesToDelete), before its deletion attempt, for
	// progress reporting.
	OnFile func(path string, willDelete bool)
}

// Metrics summarizes one Run call.
type Metrics struct {
	FilesScanned   int
	FilesRetained  int // orphaned but younger than the retention cutoff
	FilesDeleted   int
	FilesToDelete  []string // paths identified for deletion, populated whether or not DryRun is set
	BytesFreed     int64
	DurationMs     int64
	Errors         []FileError
}

// FileError pairs a path with the error encountered deleting it; a single
// file's failure never aborts the rest of the run.
type FileError struct {
	Path string
	Err  error
}

// Run enumerates every .parquet object under tableRoot (excluding _delta_log/),
// deletes any that are absent from the current snapshot's active-file set
// and older than the retention cutoff, and reports what it did.
func Run(ctx context.Context, backend storage.Backend, tableRoot string, opts Options) (Metrics, error) {
	start := time.Now()
	if opts.Retention != 0 && opts.Retention < time.Hour {
		return Metrics{}, errs.NewInvalidInput("retention must be at least 1 hour")
	}
	retention := opts.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-retention).UnixMilli()

	snap, err := snapshot.Load(ctx, backend, tableRoot, -1, snapshot.Options{})
	if err != nil {
		return Metrics{}, err
	}
	active := snap.ActivePaths()

	keys, err := backend.List(ctx, strings.TrimRight(tableRoot, "/")+"/")
	if err != nil {
		return Metrics{}, err
	}

	var metrics Metrics
	logPrefix := path.Join(tableRoot, txlog.LogDir) + "/"
	for _, key := range keys {
		if strings.HasPrefix(key, logPrefix) {
			continue
		}
		if !strings.HasSuffix(key, ".parquet") {
			continue
		}
		rel := strings.TrimPrefix(key, strings.TrimRight(tableRoot, "/")+"/")
		if active[rel] {
			continue
		}
		metrics.FilesScanned++

		stat, err := backend.Stat(ctx, key)
		if err != nil {
			metrics.Errors = append(metrics.Errors, FileError{Path: key, Err: err})
			continue
		}
		if stat == nil || stat.LastModified > cutoff {
			metrics.FilesRetained++
			continue
		}

		metrics.FilesToDelete = append(metrics.FilesToDelete, key)
		willDelete := !opts.DryRun
		if opts.OnFile != nil {
			opts.OnFile(key, willDelete)
		}
		if !willDelete {
			metrics.FilesDeleted++
			metrics.BytesFreed += stat.Size
			continue
		}
		if err := backend.Delete(ctx, key); err != nil {
			metrics.Errors = append(metrics.Errors, FileError{Path: key, Err: err})
			continue
		}
		metrics.FilesDeleted++
		metrics.BytesFreed += stat.Size
	}
	metrics.DurationMs = time.Since(start).Milliseconds()
	return metrics, nil
}
