// Package cli implements the deltacli command surface: write, query,
// vacuum and history subcommands over a table rooted in the storage
// backend the caller passes to Run, driven by a single multi-verb docopt
// usage string the way docopt's own "command pattern" example does it.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docopt/docopt-go"
	json "github.com/goccy/go-json"

	"github.com/dot-do/deltalake-sub000/pkg/delta"
	"github.com/dot-do/deltalake-sub000/pkg/filter"
	"github.com/dot-do/deltalake-sub000/pkg/query"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
	"github.com/dot-do/deltalake-sub000/pkg/vacuum"
	"github.com/dot-do/deltalake-sub000/pkg/write"
)

const usage = `deltacli manages a transactional Parquet table.

Usage:
  deltacli write --root=<root> --name=<name> --records=<file> [--partition=<cols>]
  deltacli query --root=<root> [--filter=<json>] [--columns=<cols>] [--version=<n>]
  deltacli vacuum --root=<root> [--retention-hours=<n>] [--dry-run]
  deltacli history --root=<root>
  deltacli -h | --help

Options:
  -h --help                  Show this screen.
  --root=<root>               Table root path within the storage backend.
  --name=<name>                Table name, used on first write.
  --records=<file>            Path to a JSON array of records to write.
  --partition=<cols>          Comma-separated partition column names.
  --filter=<json>             A filter expression, as JSON (see pkg/filter).
  --columns=<cols>            Comma-separated projection columns.
  --version=<n>               Query as of this version [default: -1].
  --retention-hours=<n>       Vacuum retention window in hours [default: 168].
  --dry-run                   Report what vacuum would delete without deleting.
`

// Run parses argv and executes the requested subcommand against backend,
// writing human-readable output to stdout.
func Run(ctx context.Context, backend storage.Backend, argv []string) error {
	opts, err := docopt.ParseArgs(usage, argv, "deltacli")
	if err != nil {
		return err
	}

	root, _ := opts.String("--root")

	switch {
	case boolOpt(opts, "write"):
		return runWrite(ctx, backend, root, opts)
	case boolOpt(opts, "query"):
		return runQuery(ctx, backend, root, opts)
	case boolOpt(opts, "vacuum"):
		return runVacuum(ctx, backend, root, opts)
	case boolOpt(opts, "history"):
		return runHistory(ctx, backend, root)
	default:
		return fmt.Errorf("no subcommand matched")
	}
}

func boolOpt(opts docopt.Opts, key string) bool {
	v, err := opts.Bool(key)
	return err == nil && v
}

func runWrite(ctx context.Context, backend storage.Backend, root string, opts docopt.Opts) error {
	name, _ := opts.String("--name")
	recordsPath, _ := opts.String("--records")

	data, err := os.ReadFile(recordsPath)
	if err != nil {
		return fmt.Errorf("read records file: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse records file: %w", err)
	}
	records := make([]write.Record, len(raw))
	for i, r := range raw {
		records[i] = write.Record(r)
	}

	var partitionCols []string
	if pc, _ := opts.String("--partition"); pc != "" {
		partitionCols = splitCSV(pc)
	}

	res, err := write.Append(ctx, backend, root, write.Config{
		TableName:        name,
		PartitionColumns: partitionCols,
	}, records)
	if err != nil {
		return err
	}
	fmt.Printf("committed version %d, wrote %d rows across %d files\n", res.Version, res.RowsWritten, len(res.FilesWritten))
	return nil
}

func runQuery(ctx context.Context, backend storage.Backend, root string, opts docopt.Opts) error {
	var f *filter.Filter
	if raw, _ := opts.String("--filter"); raw != "" {
		var parsed filter.Filter
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return fmt.Errorf("parse --filter: %w", err)
		}
		f = &parsed
	}
	var columns []string
	if cs, _ := opts.String("--columns"); cs != "" {
		columns = splitCSV(cs)
	}
	v, _ := opts.Int("--version")
	version := int64(v)

	rows, stats, err := query.Run(ctx, backend, root, query.Options{Version: version, Filter: f, Columns: columns})
	if err != nil {
		return err
	}
	for _, row := range rows {
		line, _ := json.Marshal(row)
		fmt.Println(string(line))
	}
	fmt.Fprintf(os.Stderr, "scanned %d rows across %d files (%d skipped)\n", stats.RowsScanned, stats.FilesConsidered, stats.FilesSkipped)
	return nil
}

func runVacuum(ctx context.Context, backend storage.Backend, root string, opts docopt.Opts) error {
	hours, _ := opts.Int("--retention-hours")
	dryRun := boolOpt(opts, "--dry-run")

	metrics, err := vacuum.Run(ctx, backend, root, vacuum.Options{
		Retention: time.Duration(hours) * time.Hour,
		DryRun:    dryRun,
		OnFile: func(path string, willDelete bool) {
			verb := "deleted"
			if !willDelete {
				verb = "would delete"
			}
			fmt.Printf("%s %s\n", verb, path)
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d candidate files, removed %d, freed %d bytes\n", metrics.FilesScanned, metrics.FilesDeleted, metrics.BytesFreed)
	return nil
}

func runHistory(ctx context.Context, backend storage.Backend, root string) error {
	table, err := delta.OpenTable(ctx, backend, root)
	if err != nil {
		return err
	}
	infos, err := table.History(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		line, _ := json.Marshal(info)
		fmt.Println(string(line))
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
