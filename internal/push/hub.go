// Package push implements the websocket fan-out of spec §4.5 step 9 / §6:
// each subscriber gets an initial full snapshot, then a delta on every
// commit that changed something, plus a heartbeat to detect dead peers.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/store"
)

// MaxConnections is the hard cap on simultaneous subscribers (spec §6).
const MaxConnections = 100

// heartbeatInterval and readTimeout implement spec §6's "30s heartbeat,
// 35s read timeout" liveness contract.
const (
	heartbeatInterval = 30 * time.Second
	readTimeout       = 35 * time.Second
	writeTimeout      = 5 * time.Second
)

// closeTooManyConnections is the close code spec §6 specifies for a
// subscriber rejected for exceeding MaxConnections.
const closeTooManyConnections = 1008

// Hub upgrades HTTP connections to websockets and drives each subscriber's
// send loop independently, so one slow client never affects another.
type Hub struct {
	store    *store.Store
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*websocket.Conn
	closing bool
}

// NewHub returns a Hub serving snapshots and deltas from st.
func NewHub(st *store.Store, log *zap.Logger) *Hub {
	return &Hub{
		store: st,
		log:   log,
		conns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ConnectionCount reports current subscriber count, for /api/stats.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request to a websocket and drives it until the
// peer disconnects or goes silent past readTimeout.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return
	}
	if len(h.conns) >= MaxConnections {
		h.mu.Unlock()
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err == nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(closeTooManyConnections, "too many connections"),
				time.Now().Add(writeTimeout))
			_ = conn.Close()
		}
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("push: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id := xid.New().String()
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
	}()

	h.run(id, conn)
}

// Shutdown closes every live subscriber connection with a going-away close
// frame and stops ServeHTTP from accepting new ones (spec §12's graceful
// shutdown budget: "subscribers receive a close").
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closing = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			deadline)
		_ = c.Close()
	}
}

func (h *Hub) run(id string, conn *websocket.Conn) {
	wake := h.store.Subscribe(id)
	defer h.store.Unsubscribe(id)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	// drain and discard client reads on a separate goroutine: every inbound
	// message, like a pong, pushes the read deadline out by readTimeout, and
	// a close frame or an expired deadline ends the loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}()

	lastSent := h.store.Snapshot().Processes
	if err := h.send(conn, initialFrame(lastSent)); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case _, ok := <-wake:
			if !ok {
				return
			}
			// Diff against this subscriber's own lastSent, not a delta
			// precomputed by the store (spec §9): a coalesced or dropped
			// wake still produces a correct, if larger, delta on the next
			// successful one.
			snap := h.store.Snapshot().Processes
			d := store.Diff(lastSent, snap)
			lastSent = snap
			if d.Empty() {
				continue
			}
			if err := h.send(conn, deltaFrame(d)); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.send(conn, heartbeatFrame()); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, f frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Error("push: marshal frame", zap.Error(err))
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
