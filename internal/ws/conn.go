package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// WriteTimeout bounds a single message write.
const WriteTimeout = 5 * time.Second

// ErrClosed is returned by Sink writes after Close.
var ErrClosed = errors.New("websocket sink closed")

// Conn is one accepted WebSocket connection. Writes are serialized; a
// single goroutine may read at a time.
type Conn struct {
	conn   *websocket.Conn
	ctx    context.Context
	userID string
	logger *zap.Logger

	mu sync.Mutex
}

// Accept upgrades the request. Origin checks are skipped because callers
// are identified by token, not by cookie.
func Accept(w http.ResponseWriter, r *http.Request, userID string, logger *zap.Logger) (*Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn, ctx: r.Context(), userID: userID, logger: logger}, nil
}

// UserID returns the authenticated user of the connection, if any.
func (c *Conn) UserID() string {
	return c.userID
}

// Send writes one message.
func (c *Conn) Send(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		c.logger.Debug("websocket write error", zap.Error(err))
		return err
	}
	return nil
}

// ReadJSON reads the next client message into v, waiting at most timeout.
func (c *Conn) ReadJSON(timeout time.Duration, v any) error {
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	return wsjson.Read(ctx, c.conn, v)
}

// Listen reads client messages until the connection fails or is closed,
// calling onStop for each stop message. The returned error describes why
// reading ended. Reads are bound to the request context: cancelling a read
// context would close the connection.
func (c *Conn) Listen(onStop func()) error {
	for {
		var msg control
		if err := wsjson.Read(c.ctx, c.conn, &msg); err != nil {
			return err
		}
		if msg.Type == MessageStop {
			onStop()
		}
	}
}

// Close ends the connection with a close frame.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	if err := c.conn.Close(code, reason); err != nil {
		c.logger.Debug("websocket close", zap.Error(err))
	}
}

// Sink returns a stream sink that frames each chunk as a chunk message.
func (c *Conn) Sink(streamID string) *Sink {
	return &Sink{conn: c, streamID: streamID}
}

// Sink adapts a Conn to the relay's sink contract.
type Sink struct {
	conn     *Conn
	streamID string

	mu     sync.Mutex
	closed bool
}

// Write sends one chunk message.
func (s *Sink) Write(chunk []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.conn.Send(Message{Type: MessageChunk, StreamID: s.streamID, Data: string(chunk)})
}

// WriteError sends the in-band failure message.
func (s *Sink) WriteError(message, code string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.conn.Send(Message{Type: MessageError, StreamID: s.streamID, Error: message, Code: code})
}

// Close stops further chunk writes. The connection stays open so the
// handler can report the outcome.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
