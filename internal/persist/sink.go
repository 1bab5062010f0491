package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var persistenceFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "parley_persistence_failures_total",
		Help: "Exchange or document writes that failed.",
	},
)

func init() {
	prometheus.MustRegister(persistenceFailuresTotal)
}

// DefaultWriteTimeout bounds one background write.
const DefaultWriteTimeout = 10 * time.Second

// Sink wraps a Writer with best-effort semantics.
type Sink struct {
	writer  Writer
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewSink creates a sink. A non-positive timeout uses DefaultWriteTimeout.
func NewSink(w Writer, timeout time.Duration, logger *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Persist writes ex and swallows any failure, including a panicking writer.
func (s *Sink) Persist(ctx context.Context, ex Exchange) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	err := guard(func() error { return s.writer.WriteExchange(ctx, ex) })
	if err != nil {
		persistenceFailuresTotal.Inc()
		s.logger.Error("persist exchange failed",
			zap.String("exchange_id", ex.ID),
			zap.String("kind", string(ex.Kind)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("exchange persisted", zap.String("exchange_id", ex.ID))
}

// Submit persists ex on a tracked goroutine and returns immediately. It is
// the completion hook of a finished stream, so the request context is
// already gone and a fresh one bounded by the write timeout is used.
func (s *Sink) Submit(ex Exchange) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Persist(ctx, ex)
	}()
}

// RecordDocument writes doc synchronously, reporting whether it succeeded.
// Failures are logged here; callers decide whether the document matters.
func (s *Sink) RecordDocument(ctx context.Context, doc Document) bool {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	err := guard(func() error { return s.writer.WriteDocument(ctx, doc) })
	if err != nil {
		persistenceFailuresTotal.Inc()
		s.logger.Error("persist document failed",
			zap.String("collection", doc.CollectionName),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Drain waits for outstanding Submit writes or for ctx to end.
func (s *Sink) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain persistence: %w", ctx.Err())
	}
}

// guard runs fn, converting a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("writer panicked: %v", rec)
		}
	}()
	return fn()
}
