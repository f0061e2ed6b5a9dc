package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/apperrors"
	"marketplace/internal/db"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/store"
	"marketplace/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const defaultSettlementWindow = 7 * 24 * time.Hour

// LedgerParams wires the ledger service.
type LedgerParams struct {
	TxRunner          db.TxRunner
	Wallets           WalletStore
	Ledger            LedgerStore
	Shops             ShopStore
	Orders            OrderStore
	Audit             AuditStore
	Hub               WalletHub
	// Notifier should not block; the servers pass a notify.BestEffort.
	Notifier          notify.Notifier
	Metrics           PayoutRecorder
	Logger            *logger.Logger
	CommissionRate    decimal.Decimal
	MinimumWithdrawal int64
	SettlementWindow  time.Duration
	Now               func() time.Time
}

// LedgerService is the only writer of wallet balances and ledger entries.
// Every operation appends its entries and applies the matching balance delta
// in one serializable transaction, or does neither.
type LedgerService struct {
	txRunner          db.TxRunner
	wallets           WalletStore
	ledger            LedgerStore
	shops             ShopStore
	orders            OrderStore
	audit             AuditStore
	hub               WalletHub
	notifier          notify.Notifier
	metrics           PayoutRecorder
	logg              *logger.Logger
	commissionRate    decimal.Decimal
	minimumWithdrawal int64
	window            time.Duration
	now               func() time.Time
}

func NewLedgerService(p LedgerParams) *LedgerService {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	window := p.SettlementWindow
	if window <= 0 {
		window = defaultSettlementWindow
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	var hub WalletHub = nopHub{}
	if p.Hub != nil {
		hub = p.Hub
	}
	var recorder PayoutRecorder = metrics.NewPayoutMetrics(nil)
	if p.Metrics != nil {
		recorder = p.Metrics
	}
	return &LedgerService{
		txRunner:          p.TxRunner,
		wallets:           p.Wallets,
		ledger:            p.Ledger,
		shops:             p.Shops,
		orders:            p.Orders,
		audit:             p.Audit,
		hub:               hub,
		notifier:          notifier,
		metrics:           recorder,
		logg:              logg,
		commissionRate:    p.CommissionRate,
		minimumWithdrawal: p.MinimumWithdrawal,
		window:            window,
		now:               now,
	}
}

type nopHub struct{}

func (nopHub) BroadcastWallet(websocket.WalletUpdate) {}

func (s *LedgerService) SettlementWindow() time.Duration {
	return s.window
}

func (s *LedgerService) clock() time.Time {
	return s.now().UTC()
}

// ensureWallet locks the owner's wallet, creating it ACTIVE when missing.
func (s *LedgerService) ensureWallet(ctx context.Context, tx store.Tx, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	wallet, err := s.wallets.GetByOwnerForUpdate(ctx, tx, ownerID, kind)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Wallet{}, err
	}
	minimum := s.minimumWithdrawal
	if kind == models.AccountKindPlatform {
		minimum = 0
	}
	if err := s.wallets.Create(ctx, tx, models.Wallet{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Kind:              kind,
		Status:            models.WalletStatusActive,
		MinimumWithdrawal: minimum,
	}); err != nil {
		return models.Wallet{}, fmt.Errorf("create %s wallet: %w", strings.ToLower(string(kind)), err)
	}
	return s.wallets.GetByOwnerForUpdate(ctx, tx, ownerID, kind)
}

func (s *LedgerService) vendorWalletForUpdate(ctx context.Context, tx store.Tx, shopID string) (models.Wallet, error) {
	wallet, err := s.wallets.GetByOwnerForUpdate(ctx, tx, shopID, models.AccountKindVendor)
	if errors.Is(err, store.ErrNotFound) {
		return models.Wallet{}, ErrWalletNotFound
	}
	return wallet, err
}

// applyDelta is the single balance mutation path. The store refuses any
// change that would leave a bucket negative and that refusal surfaces as
// ErrInsufficientFunds with the current balances attached.
func (s *LedgerService) applyDelta(ctx context.Context, tx store.Tx, wallet models.Wallet, delta models.BalanceDelta) (models.Wallet, error) {
	ok, err := s.wallets.ApplyDelta(ctx, tx, wallet.ID, delta)
	if err != nil {
		return wallet, fmt.Errorf("apply wallet delta: %w", err)
	}
	if !ok {
		return wallet, withDetails(ErrInsufficientFunds, map[string]any{
			"pending_balance":      money.FormatMinor(wallet.PendingBalance),
			"withdrawable_balance": money.FormatMinor(wallet.WithdrawableBalance),
			"frozen_balance":       money.FormatMinor(wallet.FrozenBalance),
		})
	}
	return s.wallets.GetForUpdate(ctx, tx, wallet.ID)
}

func (s *LedgerService) newEntry(accountID string, entryType models.EntryType, amount int64, status models.EntryStatus, reference, description string, effective time.Time) models.LedgerEntry {
	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Type:        entryType,
		Amount:      amount,
		Status:      status,
		ReferenceID: reference,
		Description: description,
		EffectiveAt: effective,
	}
	if status == models.EntryStatusCleared {
		at := s.clock()
		entry.ClearedAt = &at
	}
	return entry
}

func commissionReference(orderID, shopID string) string {
	return orderID + ":" + shopID
}

func reversalReference(reference string) string {
	return "reversal:" + reference
}

func (s *LedgerService) broadcast(event string, wallet models.Wallet, payoutID string) {
	if wallet.ID == "" || wallet.Kind != models.AccountKindVendor {
		return
	}
	s.hub.BroadcastWallet(websocket.UpdateFor(event, wallet, payoutID, s.clock()))
}

type SaleInput struct {
	OrderID     string
	ShopID      string
	GrossAmount int64
	DeliveredAt time.Time
}

type SaleResult struct {
	Entry      models.LedgerEntry `json:"entry"`
	Commission int64              `json:"commission"`
	Duplicate  bool               `json:"duplicate"`
}

// RecordSale credits the vendor's pending balance with the sale net of
// commission and credits the commission to the platform wallet. Replaying the
// same order for the same shop returns the original entry.
func (s *LedgerService) RecordSale(ctx context.Context, in SaleInput) (SaleResult, error) {
	orderID := strings.TrimSpace(in.OrderID)
	shopID := strings.TrimSpace(in.ShopID)
	if orderID == "" || shopID == "" {
		return SaleResult{}, apperrors.New(apperrors.CodeValidation, "orderId and shopId are required")
	}
	if in.GrossAmount <= 0 {
		return SaleResult{}, ErrInvalidAmount
	}
	net, commission := money.Split(in.GrossAmount, s.commissionRate)
	if net <= 0 {
		return SaleResult{}, withDetails(ErrInvalidAmount, map[string]any{"gross_amount": money.FormatMinor(in.GrossAmount)})
	}
	effective := in.DeliveredAt.UTC()
	if in.DeliveredAt.IsZero() {
		effective = s.clock()
	}

	var result SaleResult
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = SaleResult{}
		if _, err := s.shops.GetByID(ctx, tx, shopID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrShopNotFound
			}
			return err
		}
		vendor, err := s.ensureWallet(ctx, tx, shopID, models.AccountKindVendor)
		if err != nil {
			return err
		}
		if vendor.Status == models.WalletStatusClosed {
			return ErrAccountClosed
		}
		existing, err := s.ledger.GetByReference(ctx, tx, vendor.ID, models.EntryTypeSale, orderID)
		if err == nil {
			result.Entry = existing
			result.Duplicate = true
			wallet = vendor
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		entry := s.newEntry(vendor.ID, models.EntryTypeSale, net, models.EntryStatusPending, orderID, "Sale "+orderID, effective)
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return fmt.Errorf("insert sale entry: %w", err)
		}
		if wallet, err = s.applyDelta(ctx, tx, vendor, models.BalanceDelta{Pending: net}); err != nil {
			return err
		}

		if commission > 0 {
			platform, err := s.ensureWallet(ctx, tx, models.PlatformOwnerID, models.AccountKindPlatform)
			if err != nil {
				return err
			}
			fee := s.newEntry(platform.ID, models.EntryTypeCommission, commission, models.EntryStatusCleared,
				commissionReference(orderID, shopID), "Commission on order "+orderID, effective)
			if err := s.ledger.Insert(ctx, tx, fee); err != nil {
				return fmt.Errorf("insert commission entry: %w", err)
			}
			if _, err := s.applyDelta(ctx, tx, platform, models.BalanceDelta{Withdrawable: commission}); err != nil {
				return err
			}
		}
		if err := s.orders.Track(ctx, tx, orderID, shopID, net); err != nil {
			return fmt.Errorf("track order payout: %w", err)
		}
		result.Entry = entry
		result.Commission = commission
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}
	if result.Duplicate {
		s.metrics.Sale("duplicate")
		return result, nil
	}
	s.metrics.Sale("recorded")
	s.broadcast("sale.recorded", wallet, "")
	return result, nil
}

type ReverseSaleInput struct {
	OrderID string
	ShopID  string
	Actor   string
	Reason  string
}

type ReversalResult struct {
	// Mode is "in_place" for a PENDING sale marked REVERSED, or
	// "compensating" when a CLEARED sale was offset by an ADJUSTMENT entry.
	Mode       string `json:"mode"`
	Amount     int64  `json:"amount"`
	Commission int64  `json:"commission"`
}

// ReverseSale undoes a sale after an order is cancelled or refunded.
func (s *LedgerService) ReverseSale(ctx context.Context, in ReverseSaleInput) (ReversalResult, error) {
	orderID := strings.TrimSpace(in.OrderID)
	shopID := strings.TrimSpace(in.ShopID)
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return ReversalResult{}, ErrReasonRequired
	}
	var result ReversalResult
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = ReversalResult{}
		vendor, err := s.vendorWalletForUpdate(ctx, tx, shopID)
		if errors.Is(err, ErrWalletNotFound) {
			return ErrSaleNotFound
		}
		if err != nil {
			return err
		}
		sale, err := s.ledger.GetByReference(ctx, tx, vendor.ID, models.EntryTypeSale, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSaleNotFound
		}
		if err != nil {
			return err
		}
		if sale.Status == models.EntryStatusReversed {
			return ErrAlreadyReversed
		}
		if _, err := s.ledger.GetByReference(ctx, tx, vendor.ID, models.EntryTypeAdjustment, reversalReference(orderID)); err == nil {
			return ErrAlreadyReversed
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		result.Amount = sale.Amount
		switch sale.Status {
		case models.EntryStatusPending:
			ok, err := s.ledger.MarkReversed(ctx, tx, sale.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrEntryNotReversible
			}
			result.Mode = "in_place"
			if wallet, err = s.applyDelta(ctx, tx, vendor, models.BalanceDelta{Pending: -sale.Amount}); err != nil {
				return err
			}
		case models.EntryStatusCleared:
			if vendor.Status == models.WalletStatusClosed {
				return ErrAccountClosed
			}
			adjustment := s.newEntry(vendor.ID, models.EntryTypeAdjustment, -sale.Amount, models.EntryStatusCleared,
				reversalReference(orderID), "Reversal of sale "+orderID, s.clock())
			if err := s.ledger.Insert(ctx, tx, adjustment); err != nil {
				return fmt.Errorf("insert adjustment entry: %w", err)
			}
			delta := models.BalanceDelta{Withdrawable: -sale.Amount}
			if vendor.Status == models.WalletStatusFrozen {
				delta = models.BalanceDelta{Frozen: -sale.Amount}
			}
			result.Mode = "compensating"
			if wallet, err = s.applyDelta(ctx, tx, vendor, delta); err != nil {
				return err
			}
		default:
			return ErrEntryNotReversible
		}
		if _, err := s.orders.MarkReversed(ctx, tx, orderID, shopID); err != nil {
			return fmt.Errorf("mark order reversed: %w", err)
		}

		commission, err := s.reverseCommission(ctx, tx, orderID, shopID)
		if err != nil {
			return err
		}
		result.Commission = commission

		return s.audit.Log(ctx, tx, newAuditEntry(ActionSaleReversed, in.Actor, entityLedger, sale.ID, shopID, reason, map[string]any{
			"order_id":   orderID,
			"amount":     sale.Amount,
			"mode":       result.Mode,
			"commission": commission,
		}))
	})
	if err != nil {
		return ReversalResult{}, err
	}
	s.metrics.Sale("reversed")
	s.broadcast("sale.reversed", wallet, "")
	return result, nil
}

func (s *LedgerService) reverseCommission(ctx context.Context, tx store.Tx, orderID, shopID string) (int64, error) {
	platform, err := s.wallets.GetByOwnerForUpdate(ctx, tx, models.PlatformOwnerID, models.AccountKindPlatform)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	reference := commissionReference(orderID, shopID)
	fee, err := s.ledger.GetByReference(ctx, tx, platform.ID, models.EntryTypeCommission, reference)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	adjustment := s.newEntry(platform.ID, models.EntryTypeAdjustment, -fee.Amount, models.EntryStatusCleared,
		reversalReference(reference), "Commission reversal for order "+orderID, s.clock())
	if err := s.ledger.Insert(ctx, tx, adjustment); err != nil {
		return 0, fmt.Errorf("insert commission adjustment: %w", err)
	}
	if _, err := s.applyDelta(ctx, tx, platform, models.BalanceDelta{Withdrawable: -fee.Amount}); err != nil {
		return 0, err
	}
	return fee.Amount, nil
}

// Reconcile clears the wallet's PENDING sale entries whose effective time is
// older than window, moving their sum from pending into withdrawable (or into
// frozen while the wallet is FROZEN). Running it again is a no-op.
func (s *LedgerService) Reconcile(ctx context.Context, walletID string, window time.Duration) (models.ReconcileSummary, error) {
	if window < 0 {
		window = 0
	}
	now := s.clock()
	cutoff := now.Add(-window)
	var summary models.ReconcileSummary
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		summary = models.ReconcileSummary{Accounts: 1}
		current, err := s.wallets.GetForUpdate(ctx, tx, walletID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		wallet = current
		entries, err := s.ledger.ListClearable(ctx, tx, walletID, cutoff)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			ids := make([]string, 0, len(entries))
			var sum int64
			for _, entry := range entries {
				ids = append(ids, entry.ID)
				sum += entry.Amount
			}
			moved, err := s.ledger.MarkCleared(ctx, tx, ids, now)
			if err != nil {
				return err
			}
			if moved != int64(len(ids)) {
				return fmt.Errorf("cleared %d of %d locked entries", moved, len(ids))
			}
			delta := models.BalanceDelta{Pending: -sum, Withdrawable: sum}
			if current.Status == models.WalletStatusFrozen {
				delta = models.BalanceDelta{Pending: -sum, Frozen: sum}
			}
			if wallet, err = s.applyDelta(ctx, tx, current, delta); err != nil {
				return err
			}
			summary.EntriesCleared = moved
			summary.AmountCleared = sum
		}
		return s.wallets.MarkReconciled(ctx, tx, walletID, now)
	})
	if err != nil {
		return models.ReconcileSummary{Accounts: 1, Failed: 1}, err
	}
	if summary.EntriesCleared > 0 {
		s.broadcast("sale.cleared", wallet, "")
	}
	return summary, nil
}

// ReconcileShop reconciles one vendor using the configured window.
func (s *LedgerService) ReconcileShop(ctx context.Context, shopID string) (models.ReconcileSummary, error) {
	wallet, err := s.wallets.GetByOwner(ctx, shopID, models.AccountKindVendor)
	if errors.Is(err, store.ErrNotFound) {
		return models.ReconcileSummary{}, ErrWalletNotFound
	}
	if err != nil {
		return models.ReconcileSummary{}, err
	}
	return s.Reconcile(ctx, wallet.ID, s.window)
}

// ReconcileAll reconciles every account holding matured entries. A failing
// account is recorded and the pass continues with the rest.
func (s *LedgerService) ReconcileAll(ctx context.Context) (models.ReconcileSummary, error) {
	cutoff := s.clock().Add(-s.window)
	walletIDs, err := s.ledger.AccountsWithClearable(ctx, cutoff)
	if err != nil {
		return models.ReconcileSummary{}, fmt.Errorf("list clearable accounts: %w", err)
	}
	var total models.ReconcileSummary
	var errs error
	for _, walletID := range walletIDs {
		if err := ctx.Err(); err != nil {
			return total, multierr.Append(errs, err)
		}
		summary, err := s.Reconcile(ctx, walletID, s.window)
		total.Add(summary)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", walletID, err))
			s.logg.Error(s.logg.WithField(ctx, "wallet_id", walletID), "reconcile wallet failed", err)
		}
	}
	return total, errs
}

// DebitRequest asks the ledger to debit a payout from withdrawable funds.
type DebitRequest struct {
	ShopID         string
	PayoutID       string
	Amount         int64
	ExitSettlement bool
}

// requestPayoutTx re-checks status and balance under the wallet row lock and
// appends a CLEARED PAYOUT_DEBIT. The guarded update rejects the debit even if
// a concurrent writer slipped between the check and the write.
func (s *LedgerService) requestPayoutTx(ctx context.Context, tx store.Tx, req DebitRequest) (models.Wallet, error) {
	if req.Amount <= 0 {
		return models.Wallet{}, ErrInvalidAmount
	}
	wallet, err := s.vendorWalletForUpdate(ctx, tx, req.ShopID)
	if err != nil {
		return models.Wallet{}, err
	}
	switch wallet.Status {
	case models.WalletStatusActive:
	case models.WalletStatusClosed:
		if !req.ExitSettlement {
			return wallet, ErrAccountClosed
		}
	default:
		return wallet, ErrAccountNotActive
	}
	if _, err := s.ledger.GetByReference(ctx, tx, wallet.ID, models.EntryTypePayoutDebit, req.PayoutID); err == nil {
		return wallet, ErrAlreadyDebited
	} else if !errors.Is(err, store.ErrNotFound) {
		return wallet, err
	}
	if wallet.WithdrawableBalance < req.Amount {
		return wallet, insufficientFunds(wallet.WithdrawableBalance, req.Amount)
	}
	debit := s.newEntry(wallet.ID, models.EntryTypePayoutDebit, -req.Amount, models.EntryStatusCleared,
		req.PayoutID, "Payout "+req.PayoutID, s.clock())
	if err := s.ledger.Insert(ctx, tx, debit); err != nil {
		return wallet, fmt.Errorf("insert payout debit: %w", err)
	}
	return s.applyDelta(ctx, tx, wallet, models.BalanceDelta{Withdrawable: -req.Amount})
}

// RequestPayout debits a payout in its own transaction.
func (s *LedgerService) RequestPayout(ctx context.Context, req DebitRequest) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, err = s.requestPayoutTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}
	s.broadcast("payout.debited", wallet, req.PayoutID)
	return wallet, nil
}

// completePayoutTx verifies the payout's debit exists, is cleared and has not
// been reversed. No balance moves.
func (s *LedgerService) completePayoutTx(ctx context.Context, tx store.Tx, walletID, payoutID string) (models.LedgerEntry, error) {
	debit, err := s.ledger.GetByReference(ctx, tx, walletID, models.EntryTypePayoutDebit, payoutID)
	if errors.Is(err, store.ErrNotFound) {
		return models.LedgerEntry{}, ErrDebitNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if debit.Status != models.EntryStatusCleared {
		return models.LedgerEntry{}, withDetails(ErrDebitNotFound, map[string]any{"entry_status": debit.Status})
	}
	if _, err := s.ledger.GetByReference(ctx, tx, walletID, models.EntryTypePayoutReversal, payoutID); err == nil {
		return models.LedgerEntry{}, ErrAlreadyReversed
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.LedgerEntry{}, err
	}
	return debit, nil
}

func (s *LedgerService) CompletePayout(ctx context.Context, walletID, payoutID string) (models.LedgerEntry, error) {
	var debit models.LedgerEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		debit, err = s.completePayoutTx(ctx, tx, walletID, payoutID)
		return err
	})
	return debit, err
}

// ReversalRequest restores a debited payout to the wallet.
type ReversalRequest struct {
	ShopID   string
	PayoutID string
}

// rejectPayoutTx appends a PAYOUT_REVERSAL exactly offsetting the payout's
// debit. Without a debit there is nothing to reverse and the call fails.
func (s *LedgerService) rejectPayoutTx(ctx context.Context, tx store.Tx, req ReversalRequest) (models.Wallet, error) {
	wallet, err := s.vendorWalletForUpdate(ctx, tx, req.ShopID)
	if err != nil {
		return models.Wallet{}, err
	}
	debit, err := s.ledger.GetByReference(ctx, tx, wallet.ID, models.EntryTypePayoutDebit, req.PayoutID)
	if errors.Is(err, store.ErrNotFound) {
		return wallet, ErrDebitNotFound
	}
	if err != nil {
		return wallet, err
	}
	if _, err := s.ledger.GetByReference(ctx, tx, wallet.ID, models.EntryTypePayoutReversal, req.PayoutID); err == nil {
		return wallet, ErrAlreadyReversed
	} else if !errors.Is(err, store.ErrNotFound) {
		return wallet, err
	}
	amount := -debit.Amount
	reversal := s.newEntry(wallet.ID, models.EntryTypePayoutReversal, amount, models.EntryStatusCleared,
		req.PayoutID, "Reversal of payout "+req.PayoutID, s.clock())
	if err := s.ledger.Insert(ctx, tx, reversal); err != nil {
		return wallet, fmt.Errorf("insert payout reversal: %w", err)
	}
	delta := models.BalanceDelta{Withdrawable: amount}
	if wallet.Status == models.WalletStatusFrozen {
		delta = models.BalanceDelta{Frozen: amount}
	}
	return s.applyDelta(ctx, tx, wallet, delta)
}

func (s *LedgerService) RejectPayout(ctx context.Context, req ReversalRequest) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, err = s.rejectPayoutTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}
	s.broadcast("payout.reversed", wallet, req.PayoutID)
	return wallet, nil
}

type WalletActionInput struct {
	ShopID string
	Actor  string
	Reason string
}

// Freeze moves an ACTIVE wallet to FROZEN and parks its withdrawable funds in
// the frozen bucket. The wallet total is unchanged so no entry is written.
func (s *LedgerService) Freeze(ctx context.Context, in WalletActionInput) (models.Wallet, error) {
	return s.changeFreeze(ctx, in, models.WalletStatusActive, models.WalletStatusFrozen)
}

// Unfreeze reverses Freeze.
func (s *LedgerService) Unfreeze(ctx context.Context, in WalletActionInput) (models.Wallet, error) {
	return s.changeFreeze(ctx, in, models.WalletStatusFrozen, models.WalletStatusActive)
}

func (s *LedgerService) changeFreeze(ctx context.Context, in WalletActionInput, from, to models.WalletStatus) (models.Wallet, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return models.Wallet{}, ErrReasonRequired
	}
	action, event := ActionWalletFrozen, notify.EventWalletFrozen
	if to == models.WalletStatusActive {
		action, event = ActionWalletUnfrozen, notify.EventWalletUnfrozen
	}
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.vendorWalletForUpdate(ctx, tx, in.ShopID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return withDetails(ErrInvalidWalletState, map[string]any{
				"status":   current.Status,
				"required": from,
			})
		}
		delta := models.BalanceDelta{Withdrawable: -current.WithdrawableBalance, Frozen: current.WithdrawableBalance}
		if to == models.WalletStatusActive {
			delta = models.BalanceDelta{Withdrawable: current.FrozenBalance, Frozen: -current.FrozenBalance}
		}
		moved := delta.Frozen
		if moved < 0 {
			moved = -moved
		}
		if moved != 0 {
			if current, err = s.applyDelta(ctx, tx, current, delta); err != nil {
				return err
			}
		}
		if err := s.wallets.UpdateStatus(ctx, tx, current.ID, to); err != nil {
			return err
		}
		current.Status = to
		wallet = current
		return s.audit.Log(ctx, tx, newAuditEntry(action, in.Actor, entityWallet, current.ID, in.ShopID, reason, map[string]any{
			"moved":  moved,
			"from":   from,
			"status": to,
		}))
	})
	if err != nil {
		return models.Wallet{}, err
	}
	_ = s.notifier.Notify(ctx, notify.Message{Event: event, ShopID: in.ShopID, Status: string(to), Reason: reason})
	s.broadcast(event, wallet, "")
	return wallet, nil
}

// Wallet returns the vendor wallet for read-only views.
func (s *LedgerService) Wallet(ctx context.Context, shopID string) (models.Wallet, error) {
	wallet, err := s.wallets.GetByOwner(ctx, shopID, models.AccountKindVendor)
	if errors.Is(err, store.ErrNotFound) {
		return models.Wallet{}, ErrWalletNotFound
	}
	return wallet, err
}

// closeWalletTx marks the wallet CLOSED. Balances are untouched; any exit
// settlement is debited when that payout is approved.
func (s *LedgerService) closeWalletTx(ctx context.Context, tx store.Tx, wallet models.Wallet) (models.Wallet, error) {
	if err := s.wallets.UpdateStatus(ctx, tx, wallet.ID, models.WalletStatusClosed); err != nil {
		return wallet, err
	}
	wallet.Status = models.WalletStatusClosed
	return wallet, nil
}

// History lists the wallet's most recent ledger entries.
func (s *LedgerService) History(ctx context.Context, walletID string, limit, offset int) ([]models.LedgerEntry, error) {
	return s.ledger.ListByAccount(ctx, walletID, limit, offset)
}
