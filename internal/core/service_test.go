package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"blobstore/internal/blob"
)

// plainStore hides CreateIfAbsent so the service falls back to check-then-create.
type plainStore struct{ blob.Store }

func newServices(t *testing.T) map[string]*Service {
	t.Helper()
	fsStore, err := blob.NewFilesystem(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return map[string]*Service{
		"exclusive": NewService(blob.NewMemory(nil)),
		"guarded":   NewService(plainStore{blob.NewMemory(nil)}),
		"fs":        NewService(fsStore),
	}
}

func TestService_ControllerFlow(t *testing.T) {
	ctx := context.Background()
	for name, svc := range newServices(t) {
		t.Run(name, func(t *testing.T) {
			path := blob.P("createblob")
			created, err := svc.Create(ctx, blob.NewBlob("", []byte("hello createblob")), path)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.Location != "createblob" || *created.Length != 16 {
				t.Fatalf("unexpected created blob %+v", created)
			}
			if _, err := svc.Create(ctx, blob.NewBlob("", []byte("again")), path); !errors.Is(err, blob.ErrConflict) {
				t.Fatalf("expected conflict on duplicate create, got %v", err)
			}
			got, err := svc.Get(ctx, path)
			if err != nil || string(got.Contents) != "hello createblob" {
				t.Fatalf("duplicate create must not overwrite: %q %v", got.Contents, err)
			}
			if err := svc.Delete(ctx, path); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := svc.Delete(ctx, path); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected not found deleting twice, got %v", err)
			}
			if _, err := svc.Create(ctx, blob.NewBlob("", []byte("recreated")), path); err != nil {
				t.Fatalf("recreate: %v", err)
			}
		})
	}
}

func TestService_UpdateGuards(t *testing.T) {
	ctx := context.Background()
	for name, svc := range newServices(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Update(ctx, blob.NewBlob("", []byte("x")), blob.P("absent")); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if _, err := svc.Create(ctx, blob.NewBlob("", []byte("v1")), blob.P("u")); err != nil {
				t.Fatalf("create: %v", err)
			}
			updated, err := svc.Update(ctx, blob.NewBlob("", []byte("v2")), blob.P("u"))
			if err != nil || string(updated.Contents) != "v2" {
				t.Fatalf("update: %+v %v", updated, err)
			}
			list, err := svc.List(ctx)
			if err != nil || len(list) != 1 {
				t.Fatalf("list: %v %d", err, len(list))
			}
		})
	}
}

func TestService_ConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	for name, svc := range newServices(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Create(ctx, blob.NewBlob("", []byte("x")), blob.P("race"))
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					} else if !errors.Is(err, blob.ErrConflict) {
						t.Errorf("unexpected error %v", err)
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("expected one winner, got %d", wins)
			}
		})
	}
}

func TestService_PropagatesBackendKinds(t *testing.T) {
	ctx := context.Background()
	svc := NewService(blob.NewMemory(nil))
	if err := svc.Delete(ctx, blob.P("a", "b")); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("multi-segment delete of absent blob reports not found first, got %v", err)
	}
	if _, err := svc.Create(ctx, blob.NewBlob("", nil), blob.P("a", "b")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, blob.P("a", "b")); !errors.Is(err, blob.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Get(ctx, blob.P("k")); !errors.Is(err, blob.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
