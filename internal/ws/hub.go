package ws

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var connectionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "parley_ws_connections_active",
		Help: "Open WebSocket chat connections.",
	},
)

func init() {
	prometheus.MustRegister(connectionsActive)
}

// Hub tracks open connections so they can be counted and closed on shutdown.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*Conn]struct{}),
		logger: logger,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	connectionsActive.Inc()
	h.logger.Debug("websocket client connected", zap.String("user_id", c.userID))
}

// Unregister removes a connection. Removing an unknown connection is a no-op.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if ok {
		connectionsActive.Dec()
		h.logger.Debug("websocket client disconnected", zap.String("user_id", c.userID))
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll sends a going-away close frame to every open connection and
// returns how many were closed. Hijacked connections are not closed by
// http.Server.Shutdown, so the server calls this while draining.
func (h *Hub) CloseAll(reason string) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close(websocket.StatusGoingAway, reason)
		}()
	}
	wg.Wait()
	return len(conns)
}
