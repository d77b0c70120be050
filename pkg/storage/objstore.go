package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/thanos-io/objstore"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
)

// Objstore adapts a thanos-io/objstore.Bucket, the same storage
// abstraction an Iceberg-style integration layer wraps, into a Backend.
// Generic object stores (S3, GCS, filesystem) rarely expose a
// uniform compare-and-swap primitive through that interface, so
// WriteConditional here is implemented as an existence check followed by an
// upload; it is therefore NOT linearizable against a concurrent writer
// racing through a different Objstore instance on a backend that lacks
// native preconditioned PUT. Backends that do support it should supply one
// of the condition-aware variants instead (see ConditionalBucket).
type Objstore struct {
	bucket objstore.Bucket
}

// NewObjstore wraps bucket as a Backend.
func NewObjstore(bucket objstore.Bucket) *Objstore {
	return &Objstore{bucket: bucket}
}

func (o *Objstore) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := o.bucket.Get(ctx, path)
	if err != nil {
		if o.bucket.IsObjNotFoundErr(err) {
			return nil, errs.NewNotFound(path)
		}
		return nil, errs.NewStorage("read", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.NewStorage("read", path, err)
	}
	return data, nil
}

func (o *Objstore) Write(ctx context.Context, path string, data []byte) error {
	if err := o.bucket.Upload(ctx, path, bytes.NewReader(data)); err != nil {
		return errs.NewStorage("write", path, err)
	}
	return nil
}

// ConditionalBucket is implemented by objstore.Bucket adapters that can
// perform a true compare-and-swap (e.g. S3 with If-None-Match, or a custom
// bucket backed by a database). When the wrapped bucket satisfies it,
// WriteConditional delegates to it instead of the existence-check fallback.
type ConditionalBucket interface {
	UploadIfAbsent(ctx context.Context, name string, r io.Reader) error
}

func (o *Objstore) WriteConditional(ctx context.Context, path string, data []byte, expectedVersion *string) (string, error) {
	if expectedVersion != nil {
		return "", errs.NewStorage("writeConditional", path, errors.New("objstore backend only supports must-not-exist conditional writes"))
	}

	if cb, ok := o.bucket.(ConditionalBucket); ok {
		if err := cb.UploadIfAbsent(ctx, path, bytes.NewReader(data)); err != nil {
			return "", err
		}
		return "0", nil
	}

	exists, err := o.bucket.Exists(ctx, path)
	if err != nil {
		return "", errs.NewStorage("writeConditional", path, err)
	}
	if exists {
		return "", &errs.VersionMismatchError{Path: path, Expected: "<absent>"}
	}
	if err := o.bucket.Upload(ctx, path, bytes.NewReader(data)); err != nil {
		return "", errs.NewStorage("writeConditional", path, err)
	}
	return "0", nil
}

func (o *Objstore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := o.bucket.Iter(ctx, prefix, func(name string) error {
		keys = append(keys, name)
		return nil
	}, objstore.WithRecursiveIter())
	if err != nil {
		return nil, errs.NewStorage("list", prefix, err)
	}
	return keys, nil
}

func (o *Objstore) Stat(ctx context.Context, path string) (*Stat, error) {
	attrs, err := o.bucket.Attributes(ctx, path)
	if err != nil {
		if o.bucket.IsObjNotFoundErr(err) {
			return nil, nil
		}
		return nil, errs.NewStorage("stat", path, err)
	}
	return &Stat{
		Size:         attrs.Size,
		LastModified: attrs.LastModified.UnixMilli(),
		ETag:         strconv.FormatInt(attrs.LastModified.UnixNano(), 10),
	}, nil
}

func (o *Objstore) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	r, err := o.bucket.GetRange(ctx, path, offset, length)
	if err != nil {
		if o.bucket.IsObjNotFoundErr(err) {
			return nil, errs.NewNotFound(path)
		}
		return nil, errs.NewStorage("readRange", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.NewStorage("readRange", path, err)
	}
	return data, nil
}

func (o *Objstore) Delete(ctx context.Context, path string) error {
	if err := o.bucket.Delete(ctx, path); err != nil {
		if o.bucket.IsObjNotFoundErr(err) {
			return nil
		}
		return errs.NewStorage("delete", path, err)
	}
	return nil
}

func (o *Objstore) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := o.bucket.Exists(ctx, path)
	if err != nil {
		return false, errs.NewStorage("exists", path, err)
	}
	return ok, nil
}
