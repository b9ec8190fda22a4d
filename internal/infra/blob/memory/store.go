// Package memory implements a volatile, map-backed blob Store.
package memory

import (
	"blobstore/internal/blob/core"
	"context"
	"log/slog"
	"sync"
)

// Store implements core.Store backed by process memory.
// Keys are the joined path; any arity is accepted except for Delete.
type Store struct {
	mu     sync.RWMutex
	objs   map[string][]byte // nil value = blob without contents
	closed bool
	log    *slog.Logger
}

// New returns an in-memory blob store. A nil logger discards output.
func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{objs: make(map[string][]byte), log: log}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// List returns every stored blob in unspecified order.
func (s *Store) List(_ context.Context) ([]core.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed("list")
	}
	out := make([]core.Blob, 0, len(s.objs))
	for k, v := range s.objs {
		out = append(out, core.NewBlob(k, v))
	}
	s.log.Debug("listed blobs", slog.Int("count", len(out)))
	return out, nil
}

// Get returns the blob at path.
func (s *Store) Get(_ context.Context, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, withOp(err, "get")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.Blob{}, errClosed("get")
	}
	data, ok := s.objs[key]
	if !ok {
		return core.Blob{}, core.NotFound("get", key)
	}
	return core.NewBlob(key, data), nil
}

// Create inserts or overwrites the blob at path.
func (s *Store) Create(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, withOp(err, "create")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Blob{}, errClosed("create")
	}
	return s.put(key, blob.Contents), nil
}

// CreateIfAbsent inserts the blob only when path is unused.
func (s *Store) CreateIfAbsent(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, withOp(err, "create")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Blob{}, errClosed("create")
	}
	if _, exists := s.objs[key]; exists {
		return core.Blob{}, core.E(core.KindConflict, "create", "blob "+key+" already exists", nil)
	}
	return s.put(key, blob.Contents), nil
}

// Update replaces an existing blob.
func (s *Store) Update(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, withOp(err, "update")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Blob{}, errClosed("update")
	}
	if _, ok := s.objs[key]; !ok {
		return core.Blob{}, core.NotFound("update", key)
	}
	return s.put(key, blob.Contents), nil
}

// Delete removes the blob at a single-segment path; absent keys are ignored.
func (s *Store) Delete(_ context.Context, path core.Path) error {
	key, err := path.Single()
	if err != nil {
		return withOp(err, "delete")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed("delete")
	}
	delete(s.objs, key)
	return nil
}

// Close drops all state; the store is unusable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objs = nil
	return nil
}

// put stores a private copy of contents. Caller holds the write lock.
func (s *Store) put(key string, contents []byte) core.Blob {
	stored := core.NewBlob(key, contents)
	s.objs[key] = stored.Contents
	s.log.Debug("stored blob", slog.String("key", key), slog.Int("size", len(contents)))
	return core.NewBlob(key, stored.Contents)
}

func errClosed(op string) error {
	return core.E(core.KindUnavailable, op, "memory store is closed", nil)
}

func withOp(err error, op string) error {
	if e, ok := err.(*core.Error); ok && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}
