package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/money"
)

// WalletUpdate is pushed to a vendor's open sockets after each committed
// balance change. Amounts are formatted major units.
type WalletUpdate struct {
	Event        string    `json:"event"`
	ShopID       string    `json:"shop_id"`
	WalletID     string    `json:"wallet_id"`
	Pending      string    `json:"pending_balance"`
	Withdrawable string    `json:"withdrawable_balance"`
	Frozen       string    `json:"frozen_balance"`
	Status       string    `json:"status"`
	PayoutID     string    `json:"payout_id,omitempty"`
	At           time.Time `json:"at"`
}

// UpdateFor renders wallet as an update carrying event.
func UpdateFor(event string, wallet models.Wallet, payoutID string, at time.Time) WalletUpdate {
	return WalletUpdate{
		Event:        event,
		ShopID:       wallet.OwnerID,
		WalletID:     wallet.ID,
		Pending:      money.FormatMinor(wallet.PendingBalance),
		Withdrawable: money.FormatMinor(wallet.WithdrawableBalance),
		Frozen:       money.FormatMinor(wallet.FrozenBalance),
		Status:       string(wallet.Status),
		PayoutID:     payoutID,
		At:           at,
	}
}

// Hub fans updates out to every socket registered for a shop.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(shopID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[shopID] == nil {
		h.clients[shopID] = make(map[*Client]struct{})
	}
	h.clients[shopID][client] = struct{}{}
}

func (h *Hub) Unregister(shopID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[shopID] == nil {
		return
	}
	delete(h.clients[shopID], client)
	if len(h.clients[shopID]) == 0 {
		delete(h.clients, shopID)
	}
}

func (h *Hub) ClientCount(shopID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[shopID])
}

// BroadcastWallet never blocks; a client with a full buffer misses the update.
func (h *Hub) BroadcastWallet(update WalletUpdate) {
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[update.ShopID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
