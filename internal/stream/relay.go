// Package stream relays a model's token stream to a client while
// accumulating the full response, with cooperative cancellation.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/HerbHall/parley/pkg/llm"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancellation causes.
var (
	ErrSinkClosed = errors.New("sink closed")
	ErrStopped    = errors.New("stopped by client")
	ErrTimeout    = errors.New("stream timed out")
	ErrShutdown   = errors.New("server shutting down")
)

// FailureMessage is the text of the in-band error chunk.
const FailureMessage = "Failed to get response. Try again."

// DefaultTimeout is the wall-clock ceiling of one session.
const DefaultTimeout = 30 * time.Second

// Outcome is the terminal state of a session.
type Outcome string

// Session outcomes.
const (
	Completed Outcome = "completed"
	Cancelled Outcome = "cancelled"
	Failed    Outcome = "failed"
)

// Producer drives an upstream source, calling emit once per chunk in the
// order received. It must stop and return when emit returns an error.
type Producer func(ctx context.Context, emit func(chunk []byte) error) error

// Session is one in-flight relay. It is never shared between requests.
type Session struct {
	ID     string
	Owner  string
	Source Producer
	Sink   Sink
	// OnComplete runs after the sink is closed, only for Completed outcomes.
	OnComplete func(Result)
}

// Result summarizes a finished session. Text is empty unless the session
// completed.
type Result struct {
	ID      string
	Outcome Outcome
	Text    string
	Chunks  int
	Err     error
}

// NewID returns a fresh stream ID.
func NewID() string {
	return uuid.NewString()
}

// Relay runs sessions.
type Relay struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRelay creates a relay. registry may be nil when explicit stops are not
// needed. A non-positive timeout disables the ceiling.
func NewRelay(registry *Registry, timeout time.Duration, logger *zap.Logger) *Relay {
	return &Relay{registry: registry, timeout: timeout, logger: logger}
}

// Run relays s until the source completes, fails, or the session is
// cancelled. Client disconnect (ctx), an explicit stop, the timeout and a
// failed sink write all end in the Cancelled outcome.
func (r *Relay) Run(ctx context.Context, s Session) Result {
	if s.ID == "" {
		s.ID = NewID()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if r.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, r.timeout, ErrTimeout)
		defer stop()
	}

	if r.registry != nil {
		r.registry.add(s.ID, s.Owner, cancel)
		defer r.registry.remove(s.ID)
	}

	streamsActive.Inc()
	defer streamsActive.Dec()

	var buf strings.Builder
	chunks := 0
	emit := func(chunk []byte) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := s.Sink.Write(chunk); err != nil {
			cancel(fmt.Errorf("%w: %v", ErrSinkClosed, err))
			return context.Cause(ctx)
		}
		buf.Write(chunk)
		chunks++
		streamChunksTotal.Inc()
		return nil
	}

	err := s.Source(ctx, emit)

	res := Result{ID: s.ID, Chunks: chunks}
	switch {
	case ctx.Err() != nil:
		// Nothing more is written; partial text is discarded.
		res.Outcome = Cancelled
		res.Err = context.Cause(ctx)
	case err != nil:
		res.Outcome = Failed
		res.Err = err
		if werr := writeFailure(s.Sink, err); werr != nil {
			r.logger.Debug("error chunk not delivered", zap.String("stream_id", s.ID), zap.Error(werr))
		}
	default:
		res.Outcome = Completed
		res.Text = buf.String()
	}
	_ = s.Sink.Close()

	streamsTotal.WithLabelValues(string(res.Outcome)).Inc()
	r.log(s, res)

	if res.Outcome == Completed && s.OnComplete != nil {
		s.OnComplete(res)
	}
	return res
}

func (r *Relay) log(s Session, res Result) {
	fields := []zap.Field{
		zap.String("stream_id", s.ID),
		zap.String("identity", s.Owner),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("chunks", res.Chunks),
	}
	switch res.Outcome {
	case Failed:
		r.logger.Error("stream failed", append(fields, zap.Error(res.Err))...)
	case Cancelled:
		r.logger.Info("stream cancelled", append(fields, zap.NamedError("cause", res.Err))...)
	default:
		r.logger.Debug("stream completed", fields...)
	}
}

// writeFailure sends the single in-band error chunk.
func writeFailure(sink Sink, err error) error {
	code := llm.Code(err)
	if ew, ok := sink.(ErrorWriter); ok {
		return ew.WriteError(FailureMessage, code)
	}
	b, merr := json.Marshal(struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{FailureMessage, code})
	if merr != nil {
		return merr
	}
	return sink.Write(b)
}

// FromProvider adapts a streaming chat call to a Producer.
func FromProvider(p llm.Provider, messages []llm.Message, opts ...llm.CallOption) Producer {
	return func(ctx context.Context, emit func([]byte) error) error {
		callOpts := append(slices.Clone(opts), llm.WithStreamFunc(func(_ context.Context, chunk []byte) error {
			return emit(chunk)
		}))
		_, err := p.Chat(ctx, messages, callOpts...)
		return err
	}
}
