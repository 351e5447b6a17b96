package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mythorath/m2p/internal/metrics"
	"github.com/mythorath/m2p/internal/reward"
)

const writeTimeout = 5 * time.Second

// Hub is the live-connection registry: one room of websocket connections
// per wallet. It implements reward.Sink. Delivery is fire-and-forget; a
// wallet with no open connection is a no-op.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]struct{}
}

func NewHub(logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		rooms: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades GET /ws?wallet=... and keeps the connection registered
// until the peer closes it.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			http.Error(w, `{"error":"wallet query parameter is required"}`, http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "wallet", wallet, "error", err)
			return
		}

		h.add(wallet, conn)
		go h.readLoop(wallet, conn)
	}
}

// Notify pushes a reward event to every connection in the wallet's room.
// Dead connections are dropped; errors never propagate to the caller's
// poll unit beyond the returned value, which the engine logs and swallows.
func (h *Hub) Notify(_ context.Context, ev reward.Event) error {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		reward.Event
	}{Type: "mining_reward", Event: ev})
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[ev.Wallet]))
	for c := range h.rooms[ev.Wallet] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("websocket write failed, dropping connection", "wallet", ev.Wallet, "error", err)
			h.remove(ev.Wallet, c)
			_ = c.Close()
		}
	}
	return nil
}

// ConnectionCount reports the number of open connections across all rooms.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

func (h *Hub) add(wallet string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.rooms[wallet] == nil {
		h.rooms[wallet] = make(map[*websocket.Conn]struct{})
	}
	h.rooms[wallet][conn] = struct{}{}
	h.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	h.logger.Info("websocket connected", "wallet", wallet)
}

func (h *Hub) remove(wallet string, conn *websocket.Conn) {
	h.mu.Lock()
	room, ok := h.rooms[wallet]
	if ok {
		if _, present := room[conn]; present {
			delete(room, conn)
			metrics.WebsocketConnections.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, wallet)
		}
	}
	h.mu.Unlock()
}

// readLoop consumes inbound frames so control messages are processed and
// unregisters the connection when the peer goes away.
func (h *Hub) readLoop(wallet string, conn *websocket.Conn) {
	defer func() {
		h.remove(wallet, conn)
		_ = conn.Close()
		h.logger.Info("websocket disconnected", "wallet", wallet)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
