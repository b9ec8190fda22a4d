// Package blob re-exports core blob abstractions and wraps the infra-backed
// implementations, so callers depend on the Store interface only.
package blob

import (
	"blobstore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// Blob is a stored value addressed by location.
	Blob = core.Blob
	// Path is an ordered sequence of key segments.
	Path = core.Path
	// Store is the interface for blob storage backends.
	Store = core.Store
	// ExclusiveCreator is implemented by stores with an atomic create-if-absent.
	ExclusiveCreator = core.ExclusiveCreator
	// Error is the typed failure returned by every backend.
	Error = core.Error
	// Kind classifies an Error.
	Kind = core.Kind
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
	DriverSQL        = core.DriverSQL

	KindInvalidArgument = core.KindInvalidArgument
	KindNotFound        = core.KindNotFound
	KindConflict        = core.KindConflict
	KindUnavailable     = core.KindUnavailable
	KindIO              = core.KindIO
	KindInit            = core.KindInit
)

var (
	NewBlob   = core.NewBlob
	P         = core.P
	ParsePath = core.ParsePath
	E         = core.E
	KindOf    = core.KindOf

	ErrInvalidArgument = core.ErrInvalidArgument
	ErrNotFound        = core.ErrNotFound
	ErrConflict        = core.ErrConflict
	ErrUnavailable     = core.ErrUnavailable
	ErrIO              = core.ErrIO
	ErrInit            = core.ErrInit
)
