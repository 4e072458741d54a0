// Package storage uploads finalized recordings to an object store.
//
// An ObjectStore is the raw backend (S3-compatible bucket or a local
// directory). A Sink drives a single upload against it: it reports byte
// progress on a channel, then exactly one outcome, the locator of the stored
// object or an *UploadError.
package storage

import (
	"context"
	"fmt"
	"io"
)

// ObjectStore is a minimal interface for write-once object storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Put stores size bytes read from body under path with the given
	// content type. An existing object is replaced.
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error

	// Resolve returns a locator (URL) from which the stored object can be
	// fetched.
	Resolve(ctx context.Context, path string) (string, error)

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the named object.
	// If the object does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error
}

// UploadError reports a failed upload. Op is "exists" when the destination
// could not be checked or is taken, "put" when the bytes could not be stored
// and "resolve" when the locator could not be obtained.
type UploadError struct {
	Path string
	Op   string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("storage: upload %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
