package blob

import (
	"log/slog"

	"blobstore/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store managing <root>/blobstore.
// Returns blob.Store to encourage call sites to depend on the interface instead of
// concrete implementations.
func NewFilesystem(root string, log *slog.Logger) (Store, error) {
	s, err := fs.New(root, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
