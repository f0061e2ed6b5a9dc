package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/store"
	"marketplace/internal/websocket"

	"github.com/jmoiron/sqlx"
)

// memState is the in-memory database. Transactions copy it up front and put
// the copy back if fn fails, so a failed transaction leaves no trace.
type memState struct {
	wallets map[string]models.Wallet
	entries []models.LedgerEntry
	payouts map[string]models.Payout
	shops   map[string]models.Shop
	orders  map[string]models.OrderVendorPayout
	audit   []models.AuditEntry
	seq     int
}

func newMemState() *memState {
	return &memState{
		wallets: map[string]models.Wallet{},
		payouts: map[string]models.Payout{},
		shops:   map[string]models.Shop{},
		orders:  map[string]models.OrderVendorPayout{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.entries = append([]models.LedgerEntry(nil), s.entries...)
	for k, v := range s.payouts {
		v.OrderIDs = append([]string(nil), v.OrderIDs...)
		c.payouts[k] = v
	}
	for k, v := range s.shops {
		c.shops[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	c.seq = s.seq
	return c
}

type memDB struct {
	mu    sync.Mutex
	state *memState
}

type memTxRunner struct {
	db        *memDB
	commits   int
	rollbacks int
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	snapshot := r.db.state.clone()
	if err := fn(nil); err != nil {
		r.db.state = snapshot
		r.rollbacks++
		return err
	}
	r.commits++
	return nil
}

// Methods taking a tx run under the runner's lock; the others lock
// themselves.
func (d *memDB) read(fn func(s *memState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.state)
}

type memWallets struct{ db *memDB }

func (m memWallets) Create(_ context.Context, _ store.Execer, wallet models.Wallet) error {
	s := m.db.state
	for _, existing := range s.wallets {
		if existing.OwnerID == wallet.OwnerID && existing.Kind == wallet.Kind {
			return nil
		}
	}
	s.seq++
	wallet.CreatedAt = time.Unix(int64(s.seq), 0)
	s.wallets[wallet.ID] = wallet
	return nil
}

func findWallet(s *memState, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	for _, wallet := range s.wallets {
		if wallet.OwnerID == ownerID && wallet.Kind == kind {
			return wallet, nil
		}
	}
	return models.Wallet{}, store.ErrNotFound
}

func (m memWallets) GetByOwner(_ context.Context, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	var wallet models.Wallet
	var err error
	m.db.read(func(s *memState) { wallet, err = findWallet(s, ownerID, kind) })
	return wallet, err
}

func (m memWallets) GetByOwnerForUpdate(_ context.Context, _ store.Getter, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	return findWallet(m.db.state, ownerID, kind)
}

func (m memWallets) GetForUpdate(_ context.Context, _ store.Getter, walletID string) (models.Wallet, error) {
	wallet, ok := m.db.state.wallets[walletID]
	if !ok {
		return models.Wallet{}, store.ErrNotFound
	}
	return wallet, nil
}

func (m memWallets) ApplyDelta(_ context.Context, _ store.Execer, walletID string, delta models.BalanceDelta) (bool, error) {
	wallet, ok := m.db.state.wallets[walletID]
	if !ok {
		return false, nil
	}
	if wallet.PendingBalance+delta.Pending < 0 ||
		wallet.WithdrawableBalance+delta.Withdrawable < 0 ||
		wallet.FrozenBalance+delta.Frozen < 0 {
		return false, nil
	}
	wallet.PendingBalance += delta.Pending
	wallet.WithdrawableBalance += delta.Withdrawable
	wallet.FrozenBalance += delta.Frozen
	m.db.state.wallets[walletID] = wallet
	return true, nil
}

func (m memWallets) UpdateStatus(_ context.Context, _ store.Execer, walletID string, status models.WalletStatus) error {
	wallet, ok := m.db.state.wallets[walletID]
	if !ok {
		return store.ErrNotFound
	}
	wallet.Status = status
	m.db.state.wallets[walletID] = wallet
	return nil
}

func (m memWallets) MarkReconciled(_ context.Context, _ store.Execer, walletID string, at time.Time) error {
	wallet := m.db.state.wallets[walletID]
	wallet.LastReconciledAt = &at
	m.db.state.wallets[walletID] = wallet
	return nil
}

func (m memWallets) GetByID(_ context.Context, walletID string) (models.Wallet, error) {
	var wallet models.Wallet
	var ok bool
	m.db.read(func(s *memState) { wallet, ok = s.wallets[walletID] })
	if !ok {
		return models.Wallet{}, store.ErrNotFound
	}
	return wallet, nil
}

func (m memWallets) Totals(_ context.Context, kind models.AccountKind) (models.WalletTotals, error) {
	var totals models.WalletTotals
	m.db.read(func(s *memState) {
		for _, wallet := range s.wallets {
			if wallet.Kind != kind {
				continue
			}
			totals.Wallets++
			totals.Pending += wallet.PendingBalance
			totals.Withdrawable += wallet.WithdrawableBalance
			totals.Frozen += wallet.FrozenBalance
		}
	})
	return totals, nil
}

func (m memWallets) VerifyBalances(_ context.Context) ([]models.BalanceCheck, error) {
	var checks []models.BalanceCheck
	m.db.read(func(s *memState) {
		checks = balanceChecks(s)
	})
	return checks, nil
}

func balanceChecks(s *memState) []models.BalanceCheck {
	var checks []models.BalanceCheck
	for _, wallet := range s.wallets {
		check := models.BalanceCheck{WalletID: wallet.ID, OwnerID: wallet.OwnerID, Kind: wallet.Kind, StoredTotal: wallet.Total()}
		for _, entry := range s.entries {
			if entry.AccountID == wallet.ID && entry.Counts() {
				check.LedgerTotal += entry.Amount
			}
		}
		checks = append(checks, check)
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].WalletID < checks[j].WalletID })
	return checks
}

type memLedger struct{ db *memDB }

func uniqueReference(entryType models.EntryType) bool {
	switch entryType {
	case models.EntryTypeSale, models.EntryTypeCommission, models.EntryTypePayoutDebit, models.EntryTypePayoutReversal:
		return true
	}
	return false
}

func (m memLedger) Insert(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
	s := m.db.state
	if uniqueReference(entry.Type) {
		for _, existing := range s.entries {
			if existing.AccountID == entry.AccountID && existing.Type == entry.Type && existing.ReferenceID == entry.ReferenceID {
				return &store.DuplicateError{Constraint: "ledger_entries_one_per_reference"}
			}
		}
	}
	s.seq++
	entry.CreatedAt = time.Unix(int64(s.seq), 0)
	s.entries = append(s.entries, entry)
	return nil
}

func (m memLedger) GetByReference(_ context.Context, _ store.Getter, accountID string, entryType models.EntryType, referenceID string) (models.LedgerEntry, error) {
	for _, entry := range m.db.state.entries {
		if entry.AccountID == accountID && entry.Type == entryType && entry.ReferenceID == referenceID {
			return entry, nil
		}
	}
	return models.LedgerEntry{}, store.ErrNotFound
}

func clearable(entry models.LedgerEntry, cutoff time.Time) bool {
	return entry.Type == models.EntryTypeSale && entry.Status == models.EntryStatusPending && !entry.EffectiveAt.After(cutoff)
}

func (m memLedger) ListClearable(_ context.Context, _ store.Selecter, accountID string, cutoff time.Time) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, entry := range m.db.state.entries {
		if entry.AccountID == accountID && clearable(entry, cutoff) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m memLedger) MarkCleared(_ context.Context, _ store.Execer, entryIDs []string, at time.Time) (int64, error) {
	ids := map[string]bool{}
	for _, id := range entryIDs {
		ids[id] = true
	}
	var moved int64
	for i, entry := range m.db.state.entries {
		if ids[entry.ID] && entry.Status == models.EntryStatusPending {
			m.db.state.entries[i].Status = models.EntryStatusCleared
			m.db.state.entries[i].ClearedAt = &at
			moved++
		}
	}
	return moved, nil
}

func (m memLedger) MarkReversed(_ context.Context, _ store.Execer, entryID string) (bool, error) {
	for i, entry := range m.db.state.entries {
		if entry.ID == entryID && entry.Status == models.EntryStatusPending {
			m.db.state.entries[i].Status = models.EntryStatusReversed
			return true, nil
		}
	}
	return false, nil
}

func (m memLedger) CountPendingSales(_ context.Context, _ store.Getter, accountID string) (int, error) {
	count := 0
	for _, entry := range m.db.state.entries {
		if entry.AccountID == accountID && entry.Type == models.EntryTypeSale && entry.Status == models.EntryStatusPending {
			count++
		}
	}
	return count, nil
}

func (m memLedger) SumByAccount(_ context.Context, accountID string) (int64, error) {
	var sum int64
	m.db.read(func(s *memState) {
		for _, entry := range s.entries {
			if entry.AccountID == accountID && entry.Counts() {
				sum += entry.Amount
			}
		}
	})
	return sum, nil
}

func (m memLedger) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	m.db.read(func(s *memState) {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].AccountID == accountID {
				out = append(out, s.entries[i])
			}
		}
	})
	return page(out, limit, offset), nil
}

func (m memLedger) ListRecent(_ context.Context, limit int) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	m.db.read(func(s *memState) {
		for i := len(s.entries) - 1; i >= 0; i-- {
			out = append(out, s.entries[i])
		}
	})
	return page(out, limit, 0), nil
}

func (m memLedger) AccountsWithClearable(_ context.Context, cutoff time.Time) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	m.db.read(func(s *memState) {
		for _, entry := range s.entries {
			if clearable(entry, cutoff) && !seen[entry.AccountID] {
				seen[entry.AccountID] = true
				ids = append(ids, entry.AccountID)
			}
		}
	})
	sort.Strings(ids)
	return ids, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type memPayouts struct{ db *memDB }

func (m memPayouts) Create(_ context.Context, _ store.Execer, payout models.Payout) error {
	s := m.db.state
	for _, existing := range s.payouts {
		if existing.IdempotencyKey == payout.IdempotencyKey {
			return &store.DuplicateError{Constraint: store.ConstraintPayoutIdempotency}
		}
		if existing.ShopID == payout.ShopID && !existing.Status.IsTerminal() {
			return &store.DuplicateError{Constraint: store.ConstraintPayoutInFlight}
		}
	}
	s.seq++
	payout.CreatedAt = time.Unix(int64(s.seq), 0)
	s.payouts[payout.ID] = payout
	return nil
}

func (m memPayouts) GetByID(_ context.Context, payoutID string) (models.Payout, error) {
	var payout models.Payout
	var ok bool
	m.db.read(func(s *memState) { payout, ok = s.payouts[payoutID] })
	if !ok {
		return models.Payout{}, store.ErrNotFound
	}
	return payout, nil
}

func (m memPayouts) GetForUpdate(_ context.Context, _ store.Getter, payoutID string) (models.Payout, error) {
	payout, ok := m.db.state.payouts[payoutID]
	if !ok {
		return models.Payout{}, store.ErrNotFound
	}
	return payout, nil
}

func (m memPayouts) GetByIdempotencyKey(_ context.Context, _ store.Getter, key string) (models.Payout, error) {
	for _, payout := range m.db.state.payouts {
		if payout.IdempotencyKey == key {
			return payout, nil
		}
	}
	return models.Payout{}, store.ErrNotFound
}

func (m memPayouts) GetInFlight(_ context.Context, _ store.Getter, shopID string) (models.Payout, error) {
	for _, payout := range m.db.state.payouts {
		if payout.ShopID == shopID && !payout.Status.IsTerminal() {
			return payout, nil
		}
	}
	return models.Payout{}, store.ErrNotFound
}

func (m memPayouts) Update(_ context.Context, _ store.Execer, payout models.Payout, from models.PayoutStatus) error {
	current, ok := m.db.state.payouts[payout.ID]
	if !ok || current.Status != from {
		return store.ErrNotFound
	}
	payout.CreatedAt = current.CreatedAt
	m.db.state.payouts[payout.ID] = payout
	return nil
}

func (m memPayouts) sorted(filter func(models.Payout) bool) []models.Payout {
	var out []models.Payout
	m.db.read(func(s *memState) {
		for _, payout := range s.payouts {
			if filter(payout) {
				out = append(out, payout)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m memPayouts) ListByShop(_ context.Context, shopID string, limit, offset int) ([]models.Payout, error) {
	return page(m.sorted(func(p models.Payout) bool { return p.ShopID == shopID }), limit, offset), nil
}

func (m memPayouts) List(_ context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error) {
	return page(m.sorted(func(p models.Payout) bool { return status == nil || p.Status == *status }), limit, offset), nil
}

func (m memPayouts) StatusBreakdown(_ context.Context) ([]models.PayoutBucket, error) {
	buckets := map[models.PayoutStatus]*models.PayoutBucket{}
	m.db.read(func(s *memState) {
		for _, payout := range s.payouts {
			b := buckets[payout.Status]
			if b == nil {
				b = &models.PayoutBucket{Status: payout.Status}
				buckets[payout.Status] = b
			}
			b.Count++
			b.Amount += payout.Amount
		}
	})
	var out []models.PayoutBucket
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

type memShops struct{ db *memDB }

func (m memShops) Upsert(_ context.Context, _ store.Execer, shop models.Shop) error {
	current, ok := m.db.state.shops[shop.ID]
	if ok {
		current.Name = shop.Name
		current.Email = shop.Email
		m.db.state.shops[shop.ID] = current
		return nil
	}
	shop.Status = models.ShopStatusActive
	m.db.state.shops[shop.ID] = shop
	return nil
}

func (m memShops) GetByID(_ context.Context, _ store.Getter, shopID string) (models.Shop, error) {
	shop, ok := m.db.state.shops[shopID]
	if !ok {
		return models.Shop{}, store.ErrNotFound
	}
	return shop, nil
}

func (m memShops) UpdateBankDetails(_ context.Context, _ store.Execer, shopID string, details models.BankDetails) error {
	shop, ok := m.db.state.shops[shopID]
	if !ok {
		return store.ErrNotFound
	}
	shop.BankAccountSealed = &details.Sealed
	shop.BankAccountMasked = &details.Masked
	shop.BankIFSC = &details.IFSC
	shop.BankName = &details.BankName
	shop.BankHolderName = &details.HolderName
	m.db.state.shops[shopID] = shop
	return nil
}

func (m memShops) Deactivate(_ context.Context, _ store.Execer, shopID string, at time.Time) error {
	shop, ok := m.db.state.shops[shopID]
	if !ok {
		return store.ErrNotFound
	}
	shop.Status = models.ShopStatusInactive
	shop.DeactivatedAt = &at
	m.db.state.shops[shopID] = shop
	return nil
}

type memOrders struct{ db *memDB }

func orderKey(orderID, shopID string) string { return orderID + "|" + shopID }

func (m memOrders) Track(_ context.Context, _ store.Execer, orderID, shopID string, amount int64) error {
	key := orderKey(orderID, shopID)
	if _, ok := m.db.state.orders[key]; ok {
		return nil
	}
	m.db.state.orders[key] = models.OrderVendorPayout{OrderID: orderID, ShopID: shopID, Amount: amount, Status: models.OrderPayoutPending}
	return nil
}

func (m memOrders) HoldSettled(_ context.Context, _ store.Selecter, shopID, walletID, payoutID string, amount int64) ([]string, error) {
	s := m.db.state
	var held []string
	var running int64
	for _, entry := range s.entries {
		if entry.AccountID != walletID || entry.Type != models.EntryTypeSale || entry.Status != models.EntryStatusCleared {
			continue
		}
		key := orderKey(entry.ReferenceID, shopID)
		order, ok := s.orders[key]
		if !ok || order.Status != models.OrderPayoutPending {
			continue
		}
		if running += order.Amount; running > amount {
			break
		}
		id := payoutID
		order.Status = models.OrderPayoutHeld
		order.PayoutID = &id
		s.orders[key] = order
		held = append(held, order.OrderID)
	}
	sort.Strings(held)
	return held, nil
}

func (m memOrders) MarkReversed(_ context.Context, _ store.Execer, orderID, shopID string) (bool, error) {
	key := orderKey(orderID, shopID)
	order, ok := m.db.state.orders[key]
	if !ok || (order.Status != models.OrderPayoutPending && order.Status != models.OrderPayoutHeld) {
		return false, nil
	}
	order.Status = models.OrderPayoutReversed
	order.PayoutID = nil
	m.db.state.orders[key] = order
	return true, nil
}

func (m memOrders) setForPayout(payoutID string, to models.OrderPayoutStatus) int64 {
	var n int64
	for key, order := range m.db.state.orders {
		if order.PayoutID != nil && *order.PayoutID == payoutID && order.Status == models.OrderPayoutHeld {
			order.Status = to
			if to == models.OrderPayoutPending {
				order.PayoutID = nil
			}
			m.db.state.orders[key] = order
			n++
		}
	}
	return n
}

func (m memOrders) ReleaseForPayout(_ context.Context, _ store.Execer, payoutID string) (int64, error) {
	return m.setForPayout(payoutID, models.OrderPayoutReleased), nil
}

func (m memOrders) ResetForPayout(_ context.Context, _ store.Execer, payoutID string) (int64, error) {
	return m.setForPayout(payoutID, models.OrderPayoutPending), nil
}

func (m memOrders) ListByShop(_ context.Context, shopID string, limit int) ([]models.OrderVendorPayout, error) {
	var out []models.OrderVendorPayout
	m.db.read(func(s *memState) {
		for _, order := range s.orders {
			if order.ShopID == shopID {
				out = append(out, order)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return page(out, limit, 0), nil
}

type memAudit struct{ db *memDB }

func (m memAudit) Log(_ context.Context, _ store.Execer, entry models.AuditEntry) error {
	if !json.Valid(entry.Metadata) {
		return errBadMetadata
	}
	m.db.state.audit = append(m.db.state.audit, entry)
	return nil
}

var errBadMetadata = errors.New("audit metadata is not valid JSON")

type recordingHub struct {
	mu      sync.Mutex
	updates []websocket.WalletUpdate
}

func (h *recordingHub) BroadcastWallet(update websocket.WalletUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
}

func (h *recordingHub) last() websocket.WalletUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.updates) == 0 {
		return websocket.WalletUpdate{}
	}
	return h.updates[len(h.updates)-1]
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, msg := range n.messages {
		out = append(out, msg.Event)
	}
	return out
}

type recordingMetrics struct {
	mu             sync.Mutex
	transitions    []string
	ledgerFailures int
	sales          map[string]int
}

func (m *recordingMetrics) Transition(status string, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, status)
}

func (m *recordingMetrics) LedgerFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgerFailures++
}

func (m *recordingMetrics) Sale(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sales == nil {
		m.sales = map[string]int{}
	}
	m.sales[outcome]++
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db       *memDB
	runner   *memTxRunner
	clock    *fakeClock
	hub      *recordingHub
	notifier *recordingNotifier
	metrics  *recordingMetrics
	ledger   *LedgerService
	payouts  *PayoutWorkflow
	exit     *VendorExitWorkflow
	bank     *BankDetailsService
	shops    *ShopService
	reports  *ReportService
}

const (
	threshold = 50000
	week      = 7 * 24 * time.Hour
)

func newHarness(t *testing.T, commissionRate string) *harness {
	t.Helper()
	rate, err := money.ParseRate(commissionRate)
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}
	db := &memDB{state: newMemState()}
	runner := &memTxRunner{db: db}
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	hub := &recordingHub{}
	notifier := &recordingNotifier{}
	recorder := &recordingMetrics{}
	wallets, ledgerStore, payoutStore := memWallets{db}, memLedger{db}, memPayouts{db}
	shopStore, orders, audit := memShops{db}, memOrders{db}, memAudit{db}

	ledger := NewLedgerService(LedgerParams{
		TxRunner:          runner,
		Wallets:           wallets,
		Ledger:            ledgerStore,
		Shops:             shopStore,
		Orders:            orders,
		Audit:             audit,
		Hub:               hub,
		Notifier:          notifier,
		Metrics:           recorder,
		CommissionRate:    rate,
		MinimumWithdrawal: threshold,
		SettlementWindow:  week,
		Now:               clock.Now,
	})
	payouts := NewPayoutWorkflow(PayoutParams{
		TxRunner: runner,
		Ledger:   ledger,
		Payouts:  payoutStore,
		Shops:    shopStore,
		Orders:   orders,
		Audit:    audit,
		Notifier: notifier,
		Metrics:  recorder,
		Now:      clock.Now,
	})
	exit := NewVendorExitWorkflow(ExitParams{
		TxRunner: runner,
		Ledger:   ledger,
		Payouts:  payouts,
		Shops:    shopStore,
		Audit:    audit,
		Notifier: notifier,
		Now:      clock.Now,
	})
	var key [32]byte
	copy(key[:], "test-bank-details-key-0123456789")
	return &harness{
		db:       db,
		runner:   runner,
		clock:    clock,
		hub:      hub,
		notifier: notifier,
		metrics:  recorder,
		ledger:   ledger,
		payouts:  payouts,
		exit:     exit,
		bank:     NewBankDetailsService(runner, shopStore, audit, NewSealer(key)),
		shops:    NewShopService(runner, shopStore),
		reports:  NewReportService(wallets, ledgerStore, payoutStore),
	}
}

func (h *harness) addShop(t *testing.T, shopID string, withBank bool) {
	t.Helper()
	if _, err := h.shops.Register(context.Background(), RegisterShopInput{ShopID: shopID, OwnerUserID: "user-" + shopID, Name: shopID}); err != nil {
		t.Fatalf("register shop: %v", err)
	}
	if !withBank {
		return
	}
	_, err := h.bank.Update(context.Background(), BankDetailsInput{
		ShopID:        shopID,
		Actor:         "user-" + shopID,
		AccountNumber: "123456789012",
		IFSC:          "HDFC0001234",
		BankName:      "HDFC Bank",
		HolderName:    "Shop Owner",
	})
	if err != nil {
		t.Fatalf("bank details: %v", err)
	}
}

// settle records a delivered sale and reconciles it into withdrawable funds.
func (h *harness) settle(t *testing.T, shopID, orderID string, gross int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.ledger.RecordSale(ctx, SaleInput{OrderID: orderID, ShopID: shopID, GrossAmount: gross, DeliveredAt: h.clock.Now()}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	h.clock.Advance(week + time.Hour)
	if _, err := h.ledger.ReconcileAll(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}

func (h *harness) wallet(t *testing.T, shopID string) models.Wallet {
	t.Helper()
	wallet, err := h.ledger.Wallet(context.Background(), shopID)
	if err != nil {
		t.Fatalf("wallet %s: %v", shopID, err)
	}
	return wallet
}

func (h *harness) entries(accountID string, entryType models.EntryType) []models.LedgerEntry {
	var out []models.LedgerEntry
	h.db.read(func(s *memState) {
		for _, entry := range s.entries {
			if entry.AccountID == accountID && entry.Type == entryType {
				out = append(out, entry)
			}
		}
	})
	return out
}

func (h *harness) order(orderID, shopID string) models.OrderVendorPayout {
	var order models.OrderVendorPayout
	h.db.read(func(s *memState) { order = s.orders[orderKey(orderID, shopID)] })
	return order
}

func (h *harness) auditActions() []string {
	var actions []string
	h.db.read(func(s *memState) {
		for _, entry := range s.audit {
			actions = append(actions, entry.Action)
		}
	})
	return actions
}

// assertBooksBalance checks that every wallet's total equals its ledger sum
// and that no bucket is negative.
func (h *harness) assertBooksBalance(t *testing.T) {
	t.Helper()
	h.db.read(func(s *memState) {
		for _, check := range balanceChecks(s) {
			if check.Difference() != 0 {
				t.Errorf("wallet %s (%s): stored %d, ledger %d", check.WalletID, check.OwnerID, check.StoredTotal, check.LedgerTotal)
			}
		}
		for _, wallet := range s.wallets {
			if wallet.PendingBalance < 0 || wallet.WithdrawableBalance < 0 || wallet.FrozenBalance < 0 {
				t.Errorf("wallet %s has a negative bucket: %+v", wallet.ID, wallet)
			}
		}
	})
}
