// Package storage defines the Backend contract the table engine runs on:
// an opaque, linearizable key/value object store with an atomic
// conditional write. Everything above this package — the transaction log,
// checkpoints, the write and read pipelines — is written only against this
// interface, the same way a narrow Source/Sink pair keeps data-movement
// logic independent of any one concrete system.
package storage

import (
	"context"
	"io"
)

// Stat describes an object's metadata without fetching its body.
type Stat struct {
	Size         int64
	LastModified int64 // epoch milliseconds
	ETag         string
}

// Backend is the narrow contract the engine requires of an object store.
// Implementations must present linearizable single-key reads and writes and
// must make WriteConditional atomic; no cross-key consistency is required.
type Backend interface {
	// Read returns the full contents of path, or a *errs.NotFoundError if
	// it does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write idempotently overwrites path with data.
	Write(ctx context.Context, path string, data []byte) error

	// WriteConditional atomically writes data to path only if the
	// object's current version token equals expectedVersion. A nil
	// expectedVersion means "must not exist". On success it returns the
	// new version token. On a precondition failure it returns a
	// *errs.VersionMismatchError.
	WriteConditional(ctx context.Context, path string, data []byte, expectedVersion *string) (string, error)

	// List returns every key under prefix, fully enumerated (pagination,
	// if any, is handled internally).
	List(ctx context.Context, prefix string) ([]string, error)

	// Stat returns metadata for path, or (nil, nil) if it does not
	// exist.
	Stat(ctx context.Context, path string) (*Stat, error)

	// ReadRange returns length bytes starting at offset, for random
	// access into Parquet footers.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)

	// Delete idempotently removes path; deleting a missing object is not
	// an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// Reader is satisfied by the value ReadRange/Read need to expose to a
// Parquet footer reader; kept separate from Backend so adapters (e.g.
// internal/parquetio) can depend on the narrower shape.
type Reader interface {
	io.ReaderAt
	Size() int64
}
