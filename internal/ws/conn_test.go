package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// dial starts a server running handle for each upgraded connection and
// returns a client connection to it.
func dial(t *testing.T, hub *Hub, handle func(c *Conn)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, "user-1", testLogger())
		if err != nil {
			t.Errorf("Accept() error = %v", err)
			return
		}
		if hub != nil {
			hub.Register(c)
			defer hub.Unregister(c)
		}
		handle(c)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.CloseNow() })
	return client
}

func readMessage(t *testing.T, client *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg Message
	if err := wsjson.Read(ctx, client, &msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestSink_FramesChunksAndErrors(t *testing.T) {
	client := dial(t, nil, func(c *Conn) {
		s := c.Sink("stream-1")
		_ = s.Write([]byte("Hel"))
		_ = s.Write([]byte("lo"))
		_ = s.WriteError("Failed to get response. Try again.", "timeout")
		_ = s.Close()
		if err := s.Write([]byte("late")); !errors.Is(err, ErrClosed) {
			t.Errorf("Write after Close error = %v, want ErrClosed", err)
		}
		c.Close(websocket.StatusNormalClosure, "")
	})

	first := readMessage(t, client)
	if first.Type != MessageChunk || first.Data != "Hel" || first.StreamID != "stream-1" {
		t.Errorf("first message = %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if second := readMessage(t, client); second.Data != "lo" {
		t.Errorf("second message data = %q, want lo", second.Data)
	}
	errMsg := readMessage(t, client)
	if errMsg.Type != MessageError || errMsg.Code != "timeout" {
		t.Errorf("error message = %+v", errMsg)
	}
}

func TestConn_ListenReportsStop(t *testing.T) {
	stopped := make(chan struct{}, 1)
	done := make(chan error, 1)
	client := dial(t, nil, func(c *Conn) {
		done <- c.Listen(func() { stopped <- struct{}{} })
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, client, map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, client, map[string]string{"type": "stop"}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop message not reported")
	}

	client.Close(websocket.StatusNormalClosure, "")
	select {
	case err := <-done:
		if err == nil {
			t.Error("Listen() returned nil after client closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen() did not return after client closed")
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(testLogger())
	registered := make(chan struct{})
	client := dial(t, hub, func(c *Conn) {
		close(registered)
		_ = c.Listen(func() {})
	})
	<-registered

	if n := hub.CloseAll("server shutting down"); n != 1 {
		t.Errorf("CloseAll() = %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := client.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want StatusGoingAway (err %v)", got, err)
	}
}
