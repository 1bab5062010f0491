package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/internal/stream"
	"github.com/HerbHall/parley/internal/ws"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// requestTimeout is how long a new WebSocket client has to send its request.
const requestTimeout = 10 * time.Second

// wsRequest is the single chat message a WebSocket client sends after
// connecting. isRag selects the retrieval pipeline.
type wsRequest struct {
	Type ws.MessageType `json:"type"`
	chatRequest
}

// message converts a preparation failure to an in-band error message.
func (f *failure) message() ws.Message {
	if f.details != nil {
		return ws.Message{Type: ws.MessageError, Error: "Invalid input", Details: f.details}
	}
	msg := ws.Message{Type: ws.MessageError, Error: f.msg}
	if f.cause != "" {
		msg.Details = []string{f.cause}
	}
	return msg
}

// handleWSChat streams one chat answer over a WebSocket. The client may
// send a stop message at any time; it and a dropped connection cancel the
// stream the same way.
func (h *Handler) handleWSChat(w http.ResponseWriter, r *http.Request) {
	if !h.Gate.Protect(w, r, h.Policies.Default) {
		return
	}

	uid := userID(r)
	conn, err := ws.Accept(w, r, uid, h.logger)
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}
	h.Hub.Register(conn)
	defer h.Hub.Unregister(conn)

	var req wsRequest
	if err := conn.ReadJSON(requestTimeout, &req); err != nil {
		h.logger.Debug("websocket chat request not received", zap.Error(err))
		conn.Close(websocket.StatusPolicyViolation, "expected a chat request")
		return
	}
	if req.Type != ws.MessageChat {
		_ = conn.Send(ws.Message{Type: ws.MessageError, Error: "Invalid input", Details: []string{"Expected a chat message"}})
		conn.Close(websocket.StatusPolicyViolation, "expected a chat request")
		return
	}

	kind := persist.KindText
	if req.IsRAG {
		kind = persist.KindRAG
	}
	p, f := h.prepare(r.Context(), kind, req.chatRequest, uid)
	if f != nil {
		_ = conn.Send(f.message())
		code := websocket.StatusPolicyViolation
		if f.status >= http.StatusInternalServerError {
			code = websocket.StatusInternalError
		}
		conn.Close(code, f.msg)
		return
	}

	id := stream.NewID()
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	if err := conn.Send(ws.Message{Type: ws.MessageStarted, StreamID: id}); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return
	}

	listening := make(chan struct{})
	go func() {
		defer close(listening)
		err := conn.Listen(func() { cancel(stream.ErrStopped) })
		cancel(fmt.Errorf("%w: %v", stream.ErrSinkClosed, err))
	}()

	res := h.relay(ctx, id, h.Gate.IdentityOf(r), conn.Sink(id), p)
	switch res.Outcome {
	case stream.Completed:
		_ = conn.Send(ws.Message{Type: ws.MessageDone, StreamID: id})
		conn.Close(websocket.StatusNormalClosure, "")
	case stream.Failed:
		conn.Close(websocket.StatusInternalError, "upstream failure")
	default:
		conn.Close(websocket.StatusNormalClosure, "cancelled")
	}
	<-listening
}
