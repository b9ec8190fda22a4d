package blob

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"blobstore/internal/blob/core"
)

// Metrics holds Prometheus collectors for backend operations.
type Metrics struct {
	ops     *prometheus.CounterVec   // by driver, operation, outcome
	latency *prometheus.HistogramVec // by driver, operation
	bytes   *prometheus.CounterVec   // by driver, direction
}

// NewMetrics creates the backend collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobstore",
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Total number of backend operations by outcome",
		}, []string{"driver", "operation", "outcome"}), // outcome: ok or an error kind

		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blobstore",
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Backend operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"driver", "operation"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blobstore",
			Subsystem: "backend",
			Name:      "content_bytes_total",
			Help:      "Blob content bytes read from and written to the backend",
		}, []string{"driver", "direction"}), // direction: read, write
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.ops, err = register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	return m, nil
}

// register adopts an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Instrument wraps s so every contract call is logged and measured. The result
// implements ExclusiveCreator exactly when s does.
func Instrument(s Store, m *Metrics, log *slog.Logger) Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m, _ = NewMetrics(nil)
	}
	in := &instrumented{next: s, m: m, log: log, driver: string(s.Driver())}
	if ex, ok := s.(ExclusiveCreator); ok {
		return &instrumentedExclusive{instrumented: in, ex: ex}
	}
	return in
}

type instrumented struct {
	next   Store
	m      *Metrics
	log    *slog.Logger
	driver string
}

func (i *instrumented) observe(ctx context.Context, op string, path Path, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = strings.ReplaceAll(core.KindOf(err).String(), " ", "_")
	}
	i.m.ops.WithLabelValues(i.driver, op, outcome).Inc()
	i.m.latency.WithLabelValues(i.driver, op).Observe(elapsed.Seconds())
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Duration("elapsed", elapsed),
	}
	if path != nil {
		attrs = append(attrs, slog.String("path", path.String()))
	}
	switch {
	case err == nil:
		i.log.LogAttrs(ctx, slog.LevelDebug, "blob operation", attrs...)
	case core.KindOf(err) == core.KindNotFound, core.KindOf(err) == core.KindConflict, core.KindOf(err) == core.KindInvalidArgument:
		i.log.LogAttrs(ctx, slog.LevelDebug, "blob operation rejected", append(attrs, slog.Any("error", err))...)
	default:
		i.log.LogAttrs(ctx, slog.LevelError, "blob operation failed", append(attrs, slog.Any("error", err))...)
	}
}

func (i *instrumented) addBytes(direction string, b Blob) {
	if n := len(b.Contents); n > 0 {
		i.m.bytes.WithLabelValues(i.driver, direction).Add(float64(n))
	}
}

func (i *instrumented) List(ctx context.Context) ([]Blob, error) {
	start := time.Now()
	out, err := i.next.List(ctx)
	i.observe(ctx, "list", nil, start, err)
	return out, err
}

func (i *instrumented) Get(ctx context.Context, path Path) (Blob, error) {
	start := time.Now()
	b, err := i.next.Get(ctx, path)
	i.observe(ctx, "get", path, start, err)
	if err == nil {
		i.addBytes("read", b)
	}
	return b, err
}

func (i *instrumented) Create(ctx context.Context, blob Blob, path Path) (Blob, error) {
	start := time.Now()
	b, err := i.next.Create(ctx, blob, path)
	i.observe(ctx, "create", path, start, err)
	if err == nil {
		i.addBytes("write", blob)
	}
	return b, err
}

func (i *instrumented) Update(ctx context.Context, blob Blob, path Path) (Blob, error) {
	start := time.Now()
	b, err := i.next.Update(ctx, blob, path)
	i.observe(ctx, "update", path, start, err)
	if err == nil {
		i.addBytes("write", blob)
	}
	return b, err
}

func (i *instrumented) Delete(ctx context.Context, path Path) error {
	start := time.Now()
	err := i.next.Delete(ctx, path)
	i.observe(ctx, "delete", path, start, err)
	return err
}

func (i *instrumented) Driver() Driver { return i.next.Driver() }

func (i *instrumented) Close() error {
	err := i.next.Close()
	i.log.Info("blob store closed", slog.String("driver", i.driver), slog.Any("error", err))
	return err
}

type instrumentedExclusive struct {
	*instrumented
	ex ExclusiveCreator
}

func (i *instrumentedExclusive) CreateIfAbsent(ctx context.Context, blob Blob, path Path) (Blob, error) {
	start := time.Now()
	b, err := i.ex.CreateIfAbsent(ctx, blob, path)
	i.observe(ctx, "create_if_absent", path, start, err)
	if err == nil {
		i.addBytes("write", blob)
	}
	return b, err
}
