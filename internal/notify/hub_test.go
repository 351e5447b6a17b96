package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/reward"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.Default(), func(*http.Request) bool { return true })
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWallet(t *testing.T, srv *httptest.Server, wallet string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?wallet=" + wallet
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ConnectionCount = %d, want %d", hub.ConnectionCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testEvent(wallet string) reward.Event {
	return reward.Event{
		Wallet:     wallet,
		Source:     "cpu-pool",
		Amount:     decimal.RequireFromString("1.5"),
		AP:         decimal.RequireFromString("150"),
		TotalMined: decimal.RequireFromString("11.5"),
		TotalAP:    decimal.RequireFromString("1150"),
		ObservedAt: time.Now(),
	}
}

func TestHubRejectsMissingWallet(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHubDeliversToWalletRoom(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dialWallet(t, srv, "w1")
	waitForConnections(t, hub, 1)

	if err := hub.Notify(context.Background(), testEvent("w1")); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type   string `json:"type"`
		Wallet string `json:"wallet"`
		Amount string `json:"amount"`
		AP     string `json:"ap"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "mining_reward" {
		t.Errorf("type = %q, want mining_reward", msg.Type)
	}
	if msg.Wallet != "w1" || msg.Amount != "1.5" || msg.AP != "150" {
		t.Errorf("payload = %+v, want w1/1.5/150", msg)
	}
}

func TestHubIgnoresWalletWithoutConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dialWallet(t, srv, "w1")
	waitForConnections(t, hub, 1)

	if err := hub.Notify(context.Background(), testEvent("w2")); err != nil {
		t.Fatalf("Notify for unconnected wallet: %v", err)
	}

	// w1 must not receive w2's event
	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("w1 received an event addressed to w2")
	}
}

func TestHubRemovesClosedConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dialWallet(t, srv, "w1")
	waitForConnections(t, hub, 1)

	_ = conn.Close()
	waitForConnections(t, hub, 0)

	if err := hub.Notify(context.Background(), testEvent("w1")); err != nil {
		t.Fatalf("Notify after disconnect: %v", err)
	}
}

func TestHubMultipleConnectionsSameWallet(t *testing.T) {
	hub, srv := newTestHub(t)
	c1 := dialWallet(t, srv, "w1")
	c2 := dialWallet(t, srv, "w1")
	waitForConnections(t, hub, 2)

	if err := hub.Notify(context.Background(), testEvent("w1")); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	for i, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("connection %d did not receive event: %v", i, err)
		}
	}
}
