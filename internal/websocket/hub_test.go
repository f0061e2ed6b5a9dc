package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/gorilla/websocket"
)

func TestBroadcastWalletOnlyReachesShop(t *testing.T) {
	hub := NewHub()
	mine := &Client{send: make(chan []byte, 1)}
	other := &Client{send: make(chan []byte, 1)}
	hub.Register("shop-1", mine)
	hub.Register("shop-2", other)

	hub.BroadcastWallet(WalletUpdate{Event: "payout.approved", ShopID: "shop-1", Withdrawable: "400.00"})

	select {
	case payload := <-mine.send:
		var update WalletUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if update.Withdrawable != "400.00" || update.At.IsZero() {
			t.Fatalf("unexpected update %+v", update)
		}
	default:
		t.Fatal("expected update for shop-1")
	}
	if len(other.send) != 0 {
		t.Fatal("shop-2 must not receive shop-1 updates")
	}
}

func TestBroadcastDoesNotBlockOnFullBuffer(t *testing.T) {
	hub := NewHub()
	slow := &Client{send: make(chan []byte, 1)}
	hub.Register("shop-1", slow)
	hub.BroadcastWallet(WalletUpdate{ShopID: "shop-1"})
	hub.BroadcastWallet(WalletUpdate{ShopID: "shop-1"})
	if len(slow.send) != 1 {
		t.Fatalf("expected one buffered message, got %d", len(slow.send))
	}
}

func TestUnregisterRemovesEmptyShop(t *testing.T) {
	hub := NewHub()
	c := &Client{send: make(chan []byte, 1)}
	hub.Register("shop-1", c)
	hub.Unregister("shop-1", c)
	hub.Unregister("shop-1", c)
	if hub.ClientCount("shop-1") != 0 {
		t.Fatal("expected no clients")
	}
}

func TestServeWSDeliversUpdates(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "shop-1", nil)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount("shop-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	hub.BroadcastWallet(WalletUpdate{Event: "sale.recorded", ShopID: "shop-1", Pending: "90.00"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update WalletUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read: %v", err)
	}
	if update.Event != "sale.recorded" || update.Pending != "90.00" {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestServeWSSendsSnapshotFirst(t *testing.T) {
	hub := NewHub()
	wallet := models.Wallet{ID: "w-1", OwnerID: "shop-1", PendingBalance: 1250, WithdrawableBalance: 50000, Status: models.WalletStatusActive}
	snapshot := UpdateFor("wallet.snapshot", wallet, "", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "shop-1", &snapshot)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update WalletUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read: %v", err)
	}
	if update.Event != "wallet.snapshot" || update.Pending != "12.50" || update.Withdrawable != "500.00" || update.Status != "ACTIVE" {
		t.Fatalf("unexpected snapshot %+v", update)
	}
}
