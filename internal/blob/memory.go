package blob

import (
	"log/slog"

	memorystore "blobstore/internal/infra/blob/memory"
)

// NewMemory returns a volatile in-memory blob.Store.
func NewMemory(log *slog.Logger) Store { return memorystore.New(log) }
