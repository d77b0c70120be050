// Command deltacli is the CLI surface for the table engine: write, query,
// vacuum and history subcommands backed by a filesystem object store,
// structured as a single multi-verb docopt tool.
package main

import (
	"context"
	"log"
	"os"

	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/dot-do/deltalake-sub000/internal/cli"
	"github.com/dot-do/deltalake-sub000/pkg/storage"
)

func main() {
	dataDir := os.Getenv("DELTACLI_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}

	bucket, err := filesystem.NewBucket(dataDir)
	if err != nil {
		log.Fatalf("open filesystem bucket at %s: %v", dataDir, err)
	}
	backend := storage.NewObjstore(bucket)

	if err := cli.Run(context.Background(), backend, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
