// Package concurrency drives the optimistic-concurrency commit loop: read
// the current version, let the caller prepare actions against it, attempt
// a conditional commit, and on conflict refresh and retry through
// pkg/retry. Modeled on a BigQuery-style writer retry loop that wraps a
// single fallible operation in the same read-prepare-attempt shape.
package concurrency

import (
	"context"

	"github.com/dot-do/deltalake-sub000/pkg/action"
	"github.com/dot-do/deltalake-sub000/pkg/errs"
	"github.com/dot-do/deltalake-sub000/pkg/retry"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/txlog"
)

// Prepare builds the actions to commit given the version the caller last
// observed. It may be invoked more than once if an earlier attempt lost
// the race; implementations that depend on the current state (e.g. to
// compute a delete's Remove set) must recompute from readVersion each time
// rather than closing over stale state.
type Prepare func(ctx context.Context, readVersion int64) ([]action.Action, error)

// Result describes a successful commit.
type Result struct {
	Version int64
	Actions []action.Action
}

// Commit runs the optimistic-concurrency loop: read the latest version,
// call prepare, attempt to publish at version+1, and on a version conflict
// refresh and retry per cfg. Retries are bounded by cfg.MaxRetries; beyond
// that, the last *errs.ConcurrencyError is returned.
func Commit(ctx context.Context, backend storage.Backend, tableRoot string, cfg retry.Config, prepare Prepare) (Result, error) {
	return retry.WithRetry(ctx, cfg, func(ctx context.Context) (Result, error) {
		readVersion, err := refreshVersion(ctx, backend, tableRoot)
		if err != nil {
			return Result{}, err
		}
		nextVersion := readVersion + 1

		actions, err := prepare(ctx, readVersion)
		if err != nil {
			return Result{}, err
		}
		if len(actions) == 0 {
			return Result{}, errs.NewInvalidInput("prepare returned no actions to commit")
		}

		if err := txlog.WriteCommit(ctx, backend, tableRoot, nextVersion, actions); err != nil {
			if errs.IsVersionMismatch(err) {
				latest, verr := refreshVersion(ctx, backend, tableRoot)
				if verr != nil {
					return Result{}, verr
				}
				return Result{}, errs.NewConcurrency(readVersion, latest)
			}
			return Result{}, err
		}
		return Result{Version: nextVersion, Actions: actions}, nil
	})
}

// refreshVersion reads the table's current latest committed version,
// returning -1 for a table with no commits yet (so the first commit lands
// at version 0).
func refreshVersion(ctx context.Context, backend storage.Backend, tableRoot string) (int64, error) {
	return txlog.LatestVersion(ctx, backend, tableRoot)
}
