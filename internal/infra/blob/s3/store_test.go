package s3

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"blobstore/internal/blob/blobtest"
	"blobstore/internal/blob/core"
)

func TestStore_Conformance(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return NewMockForTests(nil) }, blobtest.Options{
		MetadataOnlyList: true,
	})
}

func TestStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests(nil)
	want := []string{"a", "b", "c", "d", "e"}
	for _, k := range want {
		if _, err := store.Create(ctx, core.NewBlob("", []byte(k)), core.P(k)); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != len(want) {
		t.Fatalf("expected %d entries across pages, got %d", len(want), len(list))
	}
	for i, b := range list {
		if b.Location != want[i] {
			t.Fatalf("entry %d: %q != %q", i, b.Location, want[i])
		}
	}
}

func TestStore_PrefixIsStrippedFromLocations(t *testing.T) {
	ctx := context.Background()
	store, rt := NewMockWithTransport(nil)
	store.prefix = "blobs/"
	if _, err := store.Create(ctx, core.NewBlob("", []byte("v")), core.P("dir", "leaf")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if keys := rt.Keys(); len(keys) != 1 || keys[0] != "blobs/dir/leaf" {
		t.Fatalf("unexpected object keys %v", keys)
	}
	got, err := store.Get(ctx, core.P("dir", "leaf"))
	if err != nil || got.Location != "dir/leaf" {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, err := store.List(ctx)
	if err != nil || len(list) != 1 || list[0].Location != "dir/leaf" {
		t.Fatalf("list: %+v %v", list, err)
	}
}

func TestStore_UpdateDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	store, rt := NewMockWithTransport(nil)
	if _, err := store.Update(ctx, core.NewBlob("", []byte("v")), core.P("nope")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if keys := rt.Keys(); len(keys) != 0 {
		t.Fatalf("update created objects %v", keys)
	}
}

func TestStore_BackendFailuresClassified(t *testing.T) {
	ctx := context.Background()
	store, rt := NewMockWithTransport(nil)
	rt.FailStatus = http.StatusServiceUnavailable
	if _, err := store.Get(ctx, core.P("k")); !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	rt.FailStatus = http.StatusForbidden
	if _, err := store.Create(ctx, core.NewBlob("", []byte("v")), core.P("k")); !errors.Is(err, core.ErrIO) {
		t.Fatalf("expected io failure, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); !errors.Is(err, core.ErrInit) {
		t.Fatalf("expected init failure, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BLOBSTORE_BLOB_S3_BUCKET", "")
	if _, err := ConfigFromEnv(); !errors.Is(err, core.ErrInit) {
		t.Fatalf("expected init failure without bucket, got %v", err)
	}
	t.Setenv("BLOBSTORE_BLOB_S3_BUCKET", "b")
	t.Setenv("BLOBSTORE_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("BLOBSTORE_BLOB_S3_PREFIX", "p/")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Bucket != "b" || !cfg.PathStyle || cfg.Prefix != "p/" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	store, err := New(context.Background(), Config{Bucket: "b", Endpoint: "http://localhost:9000", PathStyle: true, AccessKeyID: "k", SecretAccessKey: "s"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Bucket() != "b" || store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected store identity")
	}
}

func TestDecodeChunked(t *testing.T) {
	got, err := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n1\r\n!\r\n0\r\nx-amz-checksum-crc32:AAAAAA==\r\n\r\n"))
	if err != nil || string(got) != "hello!" {
		t.Fatalf("decode: %q %v", got, err)
	}
	empty, err := decodeChunked([]byte("0\r\nx-amz-checksum-crc32:AAAAAA==\r\n\r\n"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("decode empty: %q %v", empty, err)
	}
	if _, err := decodeChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected malformed chunk error")
	}
}
