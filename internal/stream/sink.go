package stream

import (
	"errors"
	"net/http"
	"sync"
)

// Sink receives relayed chunks. Implementations must tolerate Close being
// called more than once.
type Sink interface {
	Write(chunk []byte) error
	Close() error
}

// ErrorWriter is implemented by sinks that frame upstream failures
// themselves. Other sinks receive the failure as a JSON chunk.
type ErrorWriter interface {
	WriteError(message, code string) error
}

// HTTPSink writes chunks to an HTTP response body, flushing after each one.
type HTTPSink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
}

// DefaultContentType is used when NewHTTPSink is given an empty type.
const DefaultContentType = "text/event-stream; charset=utf-8"

// NewHTTPSink commits the 200 status and streaming headers immediately; from
// here on errors can only be reported in-band.
func NewHTTPSink(w http.ResponseWriter, streamID, contentType string) *HTTPSink {
	if contentType == "" {
		contentType = DefaultContentType
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Stream-ID", streamID)
	w.WriteHeader(http.StatusOK)

	s := &HTTPSink{w: w, rc: http.NewResponseController(w)}
	_ = s.flush()
	return s
}

// Write sends one chunk to the client.
func (s *HTTPSink) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if _, err := s.w.Write(chunk); err != nil {
		return err
	}
	return s.flush()
}

// Close marks the sink closed. The handler returning ends the response.
func (s *HTTPSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *HTTPSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
