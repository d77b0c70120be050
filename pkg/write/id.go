package write

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid"
)

// newFileID returns a lexically-sortable file identifier: data files
// written close together in time sort adjacently when listed, the same
// property the transaction log's own zero-padded version numbers give
// commits (pkg/txlog).
func newFileID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
