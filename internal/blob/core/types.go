// Package core defines core abstractions for blob storage backends
// used internally by higher-level services.
package core

import (
	"context"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // one file per key under a root folder
	// DriverSQL represents the relational implementation (sqlite or postgres).
	DriverSQL Driver = "sql" // embedded sqlite (default) or postgres
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
)

// Blob is a named, byte-valued storage unit.
//
// A nil Contents means the blob carries no contents; a non-nil empty slice is
// present but empty. Length is derived from Contents and is nil iff Contents is nil.
type Blob struct {
	Location string
	Contents []byte
	Length   *int
}

// NewBlob returns a blob at location whose Length is derived from contents.
// The contents slice is copied.
func NewBlob(location string, contents []byte) Blob {
	b := Blob{Location: location}
	if contents != nil {
		b.Contents = append(make([]byte, 0, len(contents)), contents...)
		n := len(contents)
		b.Length = &n
	}
	return b
}

// HasContents reports whether contents are present.
func (b Blob) HasContents() bool { return b.Contents != nil }

// Store is the storage contract every backend satisfies.
//
// Existence guards (create only when absent, update/delete only when present) are
// the caller's responsibility; see ExclusiveCreator for the atomic variant.
type Store interface {
	// List returns every stored blob. An empty store yields an empty slice.
	List(ctx context.Context) ([]Blob, error)
	// Get returns the blob at path or an error of KindNotFound.
	Get(ctx context.Context, path Path) (Blob, error)
	// Create writes blob at path, replacing the stored bytes wholesale.
	Create(ctx context.Context, blob Blob, path Path) (Blob, error)
	// Update replaces the blob at path. The entry must already exist.
	Update(ctx context.Context, blob Blob, path Path) (Blob, error)
	// Delete removes the blob at path. Deleting an absent key is a no-op.
	Delete(ctx context.Context, path Path) error
	// Driver returns the configured backend driver string.
	Driver() Driver
	// Close releases the backend's resource. Further calls fail with KindUnavailable.
	Close() error
}

// ExclusiveCreator is implemented by stores that can create a blob only if the
// key is absent, as one atomic step. An existing key yields KindConflict.
type ExclusiveCreator interface {
	CreateIfAbsent(ctx context.Context, blob Blob, path Path) (Blob, error)
}
