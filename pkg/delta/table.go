// Package delta is the table engine's facade: a single Table handle that
// wires the transaction log, snapshot cache, concurrency controller,
// checkpoint engine, write/read pipelines and vacuum together behind one
// object, configured through the same functional-options shape used
// elsewhere in this module.
package delta

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/checkpoint"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/query"
	"github.com/dot-do/deltalake-sub000/pkg/retry"
	"github.com/dot-do/deltalake-sub000/pkg/snapshot"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/txlog"
	"github.com/dot-do/deltalake-sub000/pkg/vacuum"
	"github.com/dot-do/deltalake-sub000/pkg/write"
)

// Table is a handle onto one table rooted at Root within Backend. It caches
// the most recently loaded snapshot but never serves it without checking
// the log's latest version first, so concurrent writers (including from
// other processes) are always visible.
type Table struct {
	Backend storage.Backend
	Root    string

	RetryConfig              retry.Config
	CheckpointInterval       int
	CheckpointKeep           int
	CheckpointMaxActions     int
	CheckpointMaxSizeBytes   int64

	logger log.Logger

	mu       sync.Mutex
	cached   *snapshot.Snapshot
}

// Option configures a Table at construction.
type Option func(*Table)

// WithLogger overrides the default no-op logger.
func WithLogger(l log.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(t *Table) { t.RetryConfig = cfg }
}

// WithCheckpointInterval overrides the default checkpoint cadence.
func WithCheckpointInterval(interval int) Option {
	return func(t *Table) { t.CheckpointInterval = interval }
}

// WithCheckpointSplit overrides the thresholds at which a checkpoint is
// split into multiple parts; 0 for either means "no limit" on that axis.
func WithCheckpointSplit(maxActions int, maxSizeBytes int64) Option {
	return func(t *Table) {
		t.CheckpointMaxActions = maxActions
		t.CheckpointMaxSizeBytes = maxSizeBytes
	}
}

func newTable(backend storage.Backend, root string, opts ...Option) *Table {
	t := &Table{
		Backend:            backend,
		Root:               root,
		RetryConfig:        retry.NewConfig(),
		CheckpointInterval: checkpoint.Interval,
		CheckpointKeep:     2,
		logger:             log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpenTable attaches to an existing table, failing with *errs.NotFoundError
// if it has no commits yet.
func OpenTable(ctx context.Context, backend storage.Backend, root string, opts ...Option) (*Table, error) {
	t := newTable(backend, root, opts...)
	if _, err := t.Snapshot(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTable initializes a new table by writing its first batch of
// records; it is Append with a NotFoundError short-circuit removed, since
// "does not exist yet" is the expected starting state.
func CreateTable(ctx context.Context, backend storage.Backend, root, name string, partitionColumns []string, records []write.Record, opts ...Option) (*Table, error) {
	t := newTable(backend, root, opts...)
	_, err := write.Append(ctx, backend, root, write.Config{
		TableName:        name,
		PartitionColumns: partitionColumns,
		RetryConfig:      t.RetryConfig,
		Operation:        "CREATE TABLE",
	}, records)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Snapshot returns the current snapshot, reloading if a newer version has
// been committed since the last call.
func (t *Table) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := snapshot.Load(ctx, t.Backend, t.Root, -1, snapshot.Options{})
	if err != nil {
		return nil, err
	}
	if t.cached == nil || snap.Version != t.cached.Version {
		level.Debug(t.logger).Log("msg", "snapshot refreshed", "version", snap.Version)
	}
	t.cached = snap
	return snap, nil
}

// Append writes records, taking the table name and partition columns from
// the current MetaData (none when the table does not exist yet) and the
// retry policy from the Table's RetryConfig.
func (t *Table) Append(ctx context.Context, records []write.Record) (write.Result, error) {
	snap, err := t.currentMetaDataOrEmpty(ctx)
	if err != nil {
		return write.Result{}, err
	}
	res, err := write.Append(ctx, t.Backend, t.Root, write.Config{
		TableName:        snap.Name,
		PartitionColumns: snap.PartitionColumns,
		RetryConfig:      t.RetryConfig,
	}, records)
	if err != nil {
		level.Error(t.logger).Log("msg", "append failed", "err", err)
		return write.Result{}, err
	}
	t.maybeCheckpoint(ctx, res.Version)
	return res, nil
}

// Delete removes every row matching f.
func (t *Table) Delete(ctx context.Context, f filter.Filter) (write.Result, error) {
	res, err := write.Delete(ctx, t.Backend, t.Root, t.RetryConfig, f)
	if err != nil {
		return write.Result{}, err
	}
	t.maybeCheckpoint(ctx, res.Version)
	return res, nil
}

// Update patches every row matching f.
func (t *Table) Update(ctx context.Context, f filter.Filter, patch write.Patch) (write.Result, error) {
	res, err := write.Update(ctx, t.Backend, t.Root, t.RetryConfig, f, patch)
	if err != nil {
		return write.Result{}, err
	}
	t.maybeCheckpoint(ctx, res.Version)
	return res, nil
}

// Query runs the read pipeline against this table.
func (t *Table) Query(ctx context.Context, opts query.Options) ([]query.Row, query.Stats, error) {
	return query.Run(ctx, t.Backend, t.Root, opts)
}

// Vacuum garbage-collects orphaned data files.
func (t *Table) Vacuum(ctx context.Context, opts vacuum.Options) (vacuum.Metrics, error) {
	return vacuum.Run(ctx, t.Backend, t.Root, opts)
}

// History returns the CommitInfo of every commit from version 0 to the
// current latest, oldest first; commit files that are missing are skipped.
func (t *Table) History(ctx context.Context) ([]action.CommitInfo, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var infos []action.CommitInfo
	for v := int64(0); v <= snap.Version; v++ {
		actions, err := txlog.ReadCommit(ctx, t.Backend, t.Root, v)
		if err != nil {
			if errs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, a := range actions {
			if action.IsCommitInfo(&a) {
				infos = append(infos, *a.CommitInfo)
			}
		}
	}
	return infos, nil
}

func (t *Table) maybeCheckpoint(ctx context.Context, version int64) {
	if !checkpoint.Due(version, t.CheckpointInterval) {
		return
	}
	snap, err := snapshot.Load(ctx, t.Backend, t.Root, version, snapshot.Options{})
	if err != nil {
		level.Warn(t.logger).Log("msg", "checkpoint skipped: snapshot reload failed", "err", err)
		return
	}
	cp := checkpoint.Checkpoint{Version: version, MetaData: snap.MetaData, Protocol: snap.Protocol, Files: snap.Files}
	opts := checkpoint.WriteOptions{
		Keep:                    t.CheckpointKeep,
		MaxActionsPerCheckpoint: t.CheckpointMaxActions,
		MaxCheckpointSizeBytes:  t.CheckpointMaxSizeBytes,
	}
	if err := checkpoint.Write(ctx, t.Backend, t.Root, cp, opts); err != nil {
		level.Warn(t.logger).Log("msg", "checkpoint write failed", "err", err)
	}
}

func (t *Table) currentMetaDataOrEmpty(ctx context.Context) (action.MetaData, error) {
	snap, err := snapshot.Load(ctx, t.Backend, t.Root, -1, snapshot.Options{})
	if err != nil {
		if errs.IsNotFound(err) {
			return action.MetaData{}, nil
		}
		return action.MetaData{}, err
	}
	return snap.MetaData, nil
}
