// Package transport abstracts byte-level object storage for the
// archive: local filesystem or an S3-like object store. It carries no
// knowledge of archive semantics (blocks, bands, hunks); it only
// knows paths and bytes. Implementations live in transport/local and
// transport/s3, mirroring the teacher's storage/backends split, with
// the narrower Transport contract the spec's core actually needs
// (list/read/read_range/write-atomic/create_dir/remove/exists/sub)
// in place of the teacher's snapshot-and-packfile-shaped Store API.
package transport

import "context"

// Transport is the object-I/O contract the core depends on. All
// operations are synchronous from the caller's perspective; an
// implementation backed by a network store may suspend internally on
// round-trips but must present a blocking facade.
type Transport interface {
	// ListDir performs a non-recursive listing of path, returning the
	// file and subdirectory names found directly under it.
	ListDir(ctx context.Context, path string) (files, dirs []string, err error)

	// Read returns the entire object at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadRange returns length bytes starting at offset within the
	// object at path.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)

	// Write atomically creates or replaces the object at path so that
	// a partial write is never observable to a concurrent reader.
	Write(ctx context.Context, path string, data []byte) error

	// CreateDir ensures path exists as a directory. It is idempotent
	// and a no-op on object-store-backed implementations.
	CreateDir(ctx context.Context, path string) error

	// RemoveFile deletes the single object at path.
	RemoveFile(ctx context.Context, path string) error

	// RemoveDirAll recursively deletes everything under path.
	RemoveDirAll(ctx context.Context, path string) error

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// SubTransport returns a Transport rooted at path beneath this
	// one, so callers can hand scoped handles (e.g. one per band) to
	// components that should not see the rest of the archive.
	SubTransport(path string) Transport
}
