package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blobstore/internal/blob"
	"blobstore/internal/core"
)

func newTestServer(t *testing.T, store blob.Store) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := core.NewService(store, core.WithLogger(logger))
	srv, err := New(&HTTPServerConfig{Log: logger}, NewHandler(svc, logger))
	require.NoError(t, err)
	return newTestServerFrom(t, srv)
}

func newTestServerFrom(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestInvalidURL(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	resp, _ := do(t, ts, http.MethodGet, "/nothing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIndexEmptyContainer(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	resp, body := do(t, ts, http.MethodGet, "/store", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = do(t, ts, http.MethodGet, "/store/doesnotexist", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateNewBlobBadBodies(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	resp, _ := do(t, ts, http.MethodPost, "/store/createblob", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/store/createblob", "invalidjson")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodGet, "/store/createblob", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "rejected bodies must not create blobs")
}

func TestCreateNewBlobWithBody(t *testing.T) {
	backends := map[string]func(t *testing.T) blob.Store{
		"memory": func(t *testing.T) blob.Store { return blob.NewMemory(nil) },
		"fs": func(t *testing.T) blob.Store {
			s, err := blob.NewFilesystem(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		"sql": func(t *testing.T) blob.Store {
			s, err := blob.NewSQL(context.Background(), blob.SQLConfig{}, nil)
			require.NoError(t, err)
			return s
		},
		"s3": func(t *testing.T) blob.Store { return blob.NewMockS3ForTests(nil) },
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t, newStore(t))
			body := `{"contents":"hello createblob"}`

			resp, _ := do(t, ts, http.MethodGet, "/store/createblob", "")
			require.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp, out := do(t, ts, http.MethodPost, "/store/createblob", body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"uri":"/store/createblob","location":"createblob","contents":"hello createblob","length":16}`, string(out))

			resp, out = do(t, ts, http.MethodGet, "/store/createblob", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, `{"uri":"/store/createblob","location":"createblob","contents":"hello createblob","length":16}`, string(out))

			resp, _ = do(t, ts, http.MethodPost, "/store/createblob", body)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)

			resp, _ = do(t, ts, http.MethodDelete, "/store/createblob", "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			resp, _ = do(t, ts, http.MethodDelete, "/store/createblob", "")
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp, _ = do(t, ts, http.MethodPost, "/store/createblob", body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestUpdateBlob(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	resp, _ := do(t, ts, http.MethodPut, "/store/u", `{"contents":"v"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/store/u", `{"contents":"v1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := do(t, ts, http.MethodPut, "/store/u", `{"location":"elsewhere","contents":"version two","length":999}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got wireBlob
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "u", got.Location)
	require.NotNil(t, got.Length)
	assert.Equal(t, len("version two"), *got.Length, "length is recomputed, never taken from the body")

	resp, _ = do(t, ts, http.MethodGet, "/store/elsewhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = do(t, ts, http.MethodPut, "/store/u", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"uri":"/store/u","location":"u"}`, string(out), "absent contents are omitted")
}

func TestListReturnsWireBlobs(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	for _, loc := range []string{"a", "b"} {
		resp, _ := do(t, ts, http.MethodPost, "/store/"+loc, `{"contents":"`+loc+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, out := do(t, ts, http.MethodGet, "/store", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []wireBlob
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list, 2)
	for _, b := range list {
		require.NotNil(t, b.Contents)
		assert.Equal(t, b.Location, *b.Contents)
		assert.Equal(t, "/store/"+b.Location, b.URI)
	}
}

func TestMultiSegmentPaths(t *testing.T) {
	ts := newTestServer(t, blob.NewMemory(nil))
	resp, out := do(t, ts, http.MethodPost, "/store/dir/leaf", `{"contents":"nested"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(out), `"location":"dir/leaf"`)

	resp, _ = do(t, ts, http.MethodGet, "/store/dir/leaf", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodDelete, "/store/dir/leaf", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "delete accepts single-segment paths only")
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir(), nil)
	require.NoError(t, err)
	ts := newTestServer(t, store)
	resp, _ := do(t, ts, http.MethodPost, "/store/..%2Fescape", `{"contents":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	store := blob.NewMemory(nil)
	ts := newTestServer(t, store)
	require.NoError(t, store.Close())
	resp, _ := do(t, ts, http.MethodGet, "/store", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := map[blob.Kind]int{
		blob.KindNotFound:        http.StatusNotFound,
		blob.KindInvalidArgument: http.StatusBadRequest,
		blob.KindConflict:        http.StatusConflict,
		blob.KindUnavailable:     http.StatusServiceUnavailable,
		blob.KindIO:              http.StatusInternalServerError,
		blob.KindInit:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(blob.E(kind, "op", "", nil)), kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
