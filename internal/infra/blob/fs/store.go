// Package fs implements a blob Store keeping one regular file per key.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"blobstore/internal/blob/core"
)

// Folder is created under the configured root so pre-existing content is never touched.
const Folder = "blobstore"

const tmpPrefix = ".tmp-"

// Store implements core.Store on a flat directory. Keys must be single-segment
// paths; the segment is the file name and the file bytes are the blob contents.
//
// Mutations are serialized by a writer mutex. Create opens the file with O_EXCL
// before writing, so a crash mid-write can leave an empty file behind.
type Store struct {
	root string

	mu     sync.Mutex // single writer; also guards ready and closed
	ready  bool
	closed bool

	log *slog.Logger
}

// New returns a filesystem-backed blob store managing <root>/blobstore.
// The directory is created lazily on first use. An empty root selects os.TempDir().
func New(root string, log *slog.Logger) (*Store, error) {
	if root == "" {
		root = os.TempDir()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Store{root: filepath.Join(root, Folder), log: log}
	if err := s.checkRoot(); err != nil {
		return nil, err
	}
	log.Info("filesystem store configured", slog.String("root", s.root))
	return s, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the managed directory.
func (s *Store) Root() string { return s.root }

// checkRoot fails if the managed path exists but is not a directory.
func (s *Store) checkRoot() error {
	fi, err := os.Stat(s.root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return core.E(core.KindInit, "init", "stat root "+s.root, err)
	case !fi.IsDir():
		return core.E(core.KindInit, "init", "root "+s.root+" is not a directory", nil)
	}
	return nil
}

// prepare creates the managed directory on first use. Caller holds s.mu.
func (s *Store) prepare(op string) error {
	if s.closed {
		return core.E(core.KindUnavailable, op, "filesystem store is closed", nil)
	}
	if s.ready {
		return nil
	}
	if err := s.checkRoot(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return core.E(core.KindInit, op, "create root "+s.root, err)
	}
	s.log.Info("created storage folder", slog.String("root", s.root))
	s.ready = true
	return nil
}

func (s *Store) pathFor(path core.Path) (string, string, error) {
	name, err := path.FileName()
	if err != nil {
		return "", "", err
	}
	if strings.HasPrefix(name, tmpPrefix) {
		return "", "", core.E(core.KindInvalidArgument, "", "invalid key uses reserved prefix "+tmpPrefix, nil)
	}
	return name, filepath.Join(s.root, name), nil
}

// List returns one metadata-only blob per directory entry.
func (s *Store) List(_ context.Context) ([]core.Blob, error) {
	s.mu.Lock()
	err := s.prepare("list")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, core.E(core.KindIO, "list", "read directory", err)
	}
	out := make([]core.Blob, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		out = append(out, core.Blob{Location: e.Name()})
	}
	return out, nil
}

// Get reads the whole file for path.
func (s *Store) Get(_ context.Context, path core.Path) (core.Blob, error) {
	name, full, err := s.pathFor(path)
	if err != nil {
		return core.Blob{}, opErr(err, "get")
	}
	s.mu.Lock()
	err = s.prepare("get")
	s.mu.Unlock()
	if err != nil {
		return core.Blob{}, err
	}
	return s.read("get", name, full)
}

func (s *Store) read(op, name, full string) (core.Blob, error) {
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Blob{}, core.NotFound(op, name)
	}
	if err != nil {
		return core.Blob{}, core.E(core.KindIO, op, "read "+name, err)
	}
	if data == nil {
		data = []byte{}
	}
	s.log.Debug("read blob file", slog.String("path", full), slog.Int("size", len(data)))
	return core.NewBlob(name, data), nil
}

// Create writes a new file; an existing file yields KindNotFound.
func (s *Store) Create(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	return s.create("create", blob, path, core.KindNotFound)
}

// CreateIfAbsent writes a new file; an existing file yields KindConflict.
func (s *Store) CreateIfAbsent(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	return s.create("create", blob, path, core.KindConflict)
}

func (s *Store) create(op string, blob core.Blob, path core.Path, existsKind core.Kind) (core.Blob, error) {
	name, full, err := s.pathFor(path)
	if err != nil {
		return core.Blob{}, opErr(err, op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepare(op); err != nil {
		return core.Blob{}, err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return core.Blob{}, core.E(existsKind, op, "blob "+name+" already exists", nil)
	}
	if err != nil {
		return core.Blob{}, core.E(core.KindIO, op, "create "+name, err)
	}
	_, werr := f.Write(blob.Contents)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(full)
		return core.Blob{}, core.E(core.KindIO, op, "write "+name, werr)
	}
	return s.read(op, name, full)
}

// Update rewrites an existing file wholesale.
func (s *Store) Update(_ context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	name, full, err := s.pathFor(path)
	if err != nil {
		return core.Blob{}, opErr(err, "update")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepare("update"); err != nil {
		return core.Blob{}, err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return core.Blob{}, core.NotFound("update", name)
	} else if err != nil {
		return core.Blob{}, core.E(core.KindIO, "update", "stat "+name, err)
	}
	if err := s.replace(full, blob.Contents); err != nil {
		return core.Blob{}, core.E(core.KindIO, "update", "write "+name, err)
	}
	return s.read("update", name, full)
}

// replace stages contents in a temp file and renames it over full.
func (s *Store) replace(full string, contents []byte) error {
	tmp, err := os.CreateTemp(s.root, tmpPrefix+"*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(contents); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// Delete removes the file for path; a missing file is a no-op.
func (s *Store) Delete(_ context.Context, path core.Path) error {
	name, full, err := s.pathFor(path)
	if err != nil {
		return opErr(err, "delete")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepare("delete"); err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.E(core.KindIO, "delete", fmt.Sprintf("remove %s", name), err)
	}
	return nil
}

// Close marks the store unusable. Files on disk are left in place.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func opErr(err error, op string) error {
	var e *core.Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}
