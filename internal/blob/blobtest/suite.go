// Package blobtest holds a conformance suite every core.Store implementation runs.
package blobtest

import (
	"blobstore/internal/blob/core"
	"context"
	"errors"
	"testing"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) core.Store

// Options tweaks expectations for backends with narrower semantics.
type Options struct {
	// MetadataOnlyList is set when List leaves Contents unset (filesystem, s3).
	MetadataOnlyList bool
	// CreateExistingFails is set when Create on an existing key reports NotFound (filesystem).
	CreateExistingFails bool
}

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetNeverCreated", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, core.P("doesnotexist")); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("CreateThenGet", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, core.NewBlob("", []byte("hello createblob")), core.P("createblob"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.Location != "createblob" {
			t.Fatalf("unexpected location %q", created.Location)
		}
		got, err := s.Get(ctx, core.P("createblob"))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got.Contents) != "hello createblob" || got.Length == nil || *got.Length != len("hello createblob") {
			t.Fatalf("unexpected blob %+v", got)
		}
	})

	t.Run("UpdateReplaces", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Create(ctx, core.NewBlob("", []byte("first")), core.P("u")); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := s.Update(ctx, core.NewBlob("", []byte("second")), core.P("u")); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := s.Get(ctx, core.P("u"))
		if err != nil || string(got.Contents) != "second" {
			t.Fatalf("get after update: %q %v", got.Contents, err)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Update(ctx, core.NewBlob("", []byte("x")), core.P("missing")); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.Get(ctx, core.P("missing")); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("update must not create: %v", err)
		}
	})

	t.Run("DeleteThenGet", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Create(ctx, core.NewBlob("", []byte("bye")), core.P("d")); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.Delete(ctx, core.P("d")); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, core.P("d")); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	})

	t.Run("DeleteNeverCreated", func(t *testing.T) {
		s := newStore(t)
		if err := s.Delete(ctx, core.P("ghost")); err != nil {
			t.Fatalf("delete of absent key must be a no-op: %v", err)
		}
	})

	t.Run("DeleteRejectsMultiSegment", func(t *testing.T) {
		s := newStore(t)
		if err := s.Delete(ctx, core.P("a", "b")); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("EmptyPathRejected", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, core.P()); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
		if _, err := s.Create(ctx, core.NewBlob("", []byte("x")), nil); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("ByteRoundTrip", func(t *testing.T) {
		s := newStore(t)
		cases := map[string][]byte{
			"empty":   {},
			"binary":  {0x00, 0xff, 0x10, '\n', '\r', 0x7f},
			"unicode": []byte("héllo\nwörld\n"),
		}
		for name, want := range cases {
			if _, err := s.Create(ctx, core.NewBlob("", want), core.P(name)); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
			got, err := s.Get(ctx, core.P(name))
			if err != nil {
				t.Fatalf("get %s: %v", name, err)
			}
			if !got.HasContents() || string(got.Contents) != string(want) {
				t.Fatalf("%s: round trip mismatch %q != %q", name, got.Contents, want)
			}
			if *got.Length != len(want) {
				t.Fatalf("%s: length %d != %d", name, *got.Length, len(want))
			}
		}
	})

	t.Run("ListPairs", func(t *testing.T) {
		s := newStore(t)
		if list, err := s.List(ctx); err != nil || len(list) != 0 {
			t.Fatalf("empty list: %v %d", err, len(list))
		}
		want := map[string]string{"a": "x", "b": "y"}
		for k, v := range want {
			if _, err := s.Create(ctx, core.NewBlob("", []byte(v)), core.P(k)); err != nil {
				t.Fatalf("create %s: %v", k, err)
			}
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected two entries, got %d", len(list))
		}
		for _, b := range list {
			v, ok := want[b.Location]
			if !ok {
				t.Fatalf("unexpected location %q", b.Location)
			}
			if opts.MetadataOnlyList {
				if b.HasContents() {
					t.Fatalf("expected metadata-only listing for %q", b.Location)
				}
				continue
			}
			if string(b.Contents) != v {
				t.Fatalf("location %q paired with %q", b.Location, b.Contents)
			}
		}
	})

	t.Run("RecreateAfterDelete", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 2; i++ {
			if _, err := s.Create(ctx, core.NewBlob("", []byte("again")), core.P("re")); err != nil {
				t.Fatalf("create %d: %v", i, err)
			}
			if err := s.Delete(ctx, core.P("re")); err != nil {
				t.Fatalf("delete %d: %v", i, err)
			}
		}
	})

	t.Run("CreateExisting", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Create(ctx, core.NewBlob("", []byte("one")), core.P("c")); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := s.Create(ctx, core.NewBlob("", []byte("two")), core.P("c"))
		if opts.CreateExistingFails {
			if !errors.Is(err, core.ErrNotFound) {
				t.Fatalf("expected not found on existing create, got %v", err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unconditional create: %v", err)
		}
	})

	t.Run("CreateIfAbsent", func(t *testing.T) {
		s := newStore(t)
		ex, ok := s.(core.ExclusiveCreator)
		if !ok {
			t.Skip("store has no exclusive create")
		}
		if _, err := ex.CreateIfAbsent(ctx, core.NewBlob("", []byte("one")), core.P("x")); err != nil {
			t.Fatalf("first exclusive create: %v", err)
		}
		if _, err := ex.CreateIfAbsent(ctx, core.NewBlob("", []byte("two")), core.P("x")); !errors.Is(err, core.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		got, err := s.Get(ctx, core.P("x"))
		if err != nil || string(got.Contents) != "one" {
			t.Fatalf("conflicting create must not mutate: %q %v", got.Contents, err)
		}
	})

	t.Run("ClosedUnavailable", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if _, err := s.List(ctx); !errors.Is(err, core.ErrUnavailable) {
			t.Fatalf("expected unavailable after close, got %v", err)
		}
		if _, err := s.Get(ctx, core.P("k")); !errors.Is(err, core.ErrUnavailable) {
			t.Fatalf("expected unavailable after close, got %v", err)
		}
	})
}
