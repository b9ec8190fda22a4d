package blob

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"blobstore/internal/blob/blobtest"
)

func TestInstrument_Conformance(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) Store {
		return Instrument(NewMemory(nil), nil, nil)
	}, blobtest.Options{})
}

func TestInstrument_PreservesExclusiveCreate(t *testing.T) {
	if _, ok := Instrument(NewMemory(nil), nil, nil).(ExclusiveCreator); !ok {
		t.Fatalf("memory store lost CreateIfAbsent")
	}
	if _, ok := Instrument(plainStore{NewMemory(nil)}, nil, nil).(ExclusiveCreator); ok {
		t.Fatalf("wrapper must not invent CreateIfAbsent")
	}
}

// plainStore hides the CreateIfAbsent method of the wrapped store.
type plainStore struct{ Store }

func TestInstrument_MetricsAndLogs(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := Instrument(NewMemory(nil), m, log)

	if _, err := s.Create(ctx, NewBlob("", []byte("12345")), P("k")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Get(ctx, P("k")); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := s.Get(ctx, P("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if got := testutil.ToFloat64(m.ops.WithLabelValues("memory", "create", "ok")); got != 1 {
		t.Fatalf("create ok count %v", got)
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("memory", "get", "not_found")); got != 1 {
		t.Fatalf("get not-found count %v", got)
	}
	if got := testutil.ToFloat64(m.bytes.WithLabelValues("memory", "write")); got != 5 {
		t.Fatalf("written bytes %v", got)
	}
	if got := testutil.ToFloat64(m.bytes.WithLabelValues("memory", "read")); got != 5 {
		t.Fatalf("read bytes %v", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 2 {
		t.Fatalf("expected latency series for create and get, got %d", n)
	}
	out := buf.String()
	if !strings.Contains(out, "blob operation rejected") || !strings.Contains(out, "path=missing") {
		t.Fatalf("expected rejected get in logs: %s", out)
	}

	again, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.ops != m.ops {
		t.Fatalf("expected existing collector to be adopted")
	}
}
