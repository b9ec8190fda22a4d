// Package core holds the caller layer over a blob.Store: existence guards,
// write serialization and operation observability.
package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"blobstore/internal/blob"
)

// MetricsRecorder observes the outcome of each service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// Service exposes guarded CRUD over a single configured blob store.
// Create rejects existing locations with KindConflict; Update and Delete reject
// absent ones with KindNotFound. Guarded mutations hold one mutex, and Create
// uses the store's CreateIfAbsent when it has one.
type Service struct {
	store   blob.Store
	mu      sync.Mutex
	log     *slog.Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store blob.Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() blob.Store {
	return s.store
}

// run wraps one operation with tracing and metrics.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
	return err
}

// List returns every blob. Backends may omit contents.
func (s *Service) List(ctx context.Context) ([]blob.Blob, error) {
	var out []blob.Blob
	err := s.run(ctx, "blob.list", func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx)
		return err
	})
	return out, err
}

// Get returns the blob at path.
func (s *Service) Get(ctx context.Context, path blob.Path) (blob.Blob, error) {
	var out blob.Blob
	err := s.run(ctx, "blob.get", func(ctx context.Context) error {
		var err error
		out, err = s.store.Get(ctx, path)
		return err
	})
	return out, err
}

// Create stores b at path if nothing exists there yet.
func (s *Service) Create(ctx context.Context, b blob.Blob, path blob.Path) (blob.Blob, error) {
	var out blob.Blob
	err := s.run(ctx, "blob.create", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var err error
		if ex, ok := s.store.(blob.ExclusiveCreator); ok {
			out, err = ex.CreateIfAbsent(ctx, b, path)
			return err
		}
		if err := s.absent(ctx, "create", path); err != nil {
			return err
		}
		out, err = s.store.Create(ctx, b, path)
		return err
	})
	if err == nil {
		s.log.Info("blob created", slog.String("path", path.String()), slog.Int("size", len(out.Contents)))
	}
	return out, err
}

// Update replaces the contents of the existing blob at path.
func (s *Service) Update(ctx context.Context, b blob.Blob, path blob.Path) (blob.Blob, error) {
	var out blob.Blob
	err := s.run(ctx, "blob.update", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.store.Get(ctx, path); err != nil {
			return err
		}
		var err error
		out, err = s.store.Update(ctx, b, path)
		return err
	})
	if err == nil {
		s.log.Info("blob updated", slog.String("path", path.String()), slog.Int("size", len(out.Contents)))
	}
	return out, err
}

// Delete removes the existing blob at path.
func (s *Service) Delete(ctx context.Context, path blob.Path) error {
	err := s.run(ctx, "blob.delete", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.store.Get(ctx, path); err != nil {
			return err
		}
		return s.store.Delete(ctx, path)
	})
	if err == nil {
		s.log.Info("blob deleted", slog.String("path", path.String()))
	}
	return err
}

// absent fails with KindConflict when a blob exists at path.
func (s *Service) absent(ctx context.Context, op string, path blob.Path) error {
	_, err := s.store.Get(ctx, path)
	switch {
	case err == nil:
		key, _ := path.Key()
		return blob.E(blob.KindConflict, op, "blob "+key+" already exists", nil)
	case errors.Is(err, blob.ErrNotFound):
		return nil
	default:
		return err
	}
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
