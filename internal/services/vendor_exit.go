package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/db"
	"marketplace/internal/logger"
	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/store"

	"github.com/jmoiron/sqlx"
)

type ExitParams struct {
	TxRunner db.TxRunner
	Ledger   *LedgerService
	Payouts  *PayoutWorkflow
	Shops    ShopStore
	Audit    AuditStore
	// Notifier should not block; the servers pass a notify.BestEffort.
	Notifier notify.Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// VendorExitWorkflow closes a vendor's account once its books are settled.
type VendorExitWorkflow struct {
	txRunner db.TxRunner
	ledger   *LedgerService
	payouts  *PayoutWorkflow
	shops    ShopStore
	audit    AuditStore
	notifier notify.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewVendorExitWorkflow(p ExitParams) *VendorExitWorkflow {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &VendorExitWorkflow{
		txRunner: p.TxRunner,
		ledger:   p.Ledger,
		payouts:  p.Payouts,
		shops:    p.Shops,
		audit:    p.Audit,
		notifier: notifier,
		logg:     logg,
		now:      now,
	}
}

type ExitInput struct {
	ShopID string
	Actor  string
	Reason string
}

type ExitResult struct {
	ShopID           string         `json:"shop_id"`
	SettlementAmount int64          `json:"settlement_amount"`
	SettlementPayout *models.Payout `json:"settlement_payout,omitempty"`
	WalletClosed     bool           `json:"wallet_closed"`
}

func exitBlocked(message string, details map[string]any) error {
	return withDetails(ErrExitBlocked, details).withMessage(message)
}

// Exit checks, in order: no dispute, no unsettled sales, no payout in flight,
// and bank details when there is money to pay out. It then creates the exit
// settlement payout if needed, deactivates the shop and closes the wallet.
//
// Calling Exit again for a shop that has already exited re-issues the
// settlement when the CLOSED wallet still holds withdrawable money, which
// is the case after the first settlement was rejected.
func (w *VendorExitWorkflow) Exit(ctx context.Context, in ExitInput) (ExitResult, error) {
	shopID := strings.TrimSpace(in.ShopID)
	var result ExitResult
	var closed models.Wallet
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = ExitResult{ShopID: shopID}
		closed = models.Wallet{}
		now := w.now().UTC()
		shop, err := w.shops.GetByID(ctx, tx, shopID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrShopNotFound
		}
		if err != nil {
			return err
		}
		if shop.Status != models.ShopStatusActive {
			closed, err = w.resettleTx(ctx, tx, shop, in, now, &result)
			return err
		}

		wallet, err := w.ledger.vendorWalletForUpdate(ctx, tx, shopID)
		if errors.Is(err, ErrWalletNotFound) {
			if err := w.shops.Deactivate(ctx, tx, shopID, now); err != nil {
				return err
			}
			return w.audit.Log(ctx, tx, newAuditEntry(ActionVendorExit, in.Actor, entityShop, shopID, shopID, in.Reason, map[string]any{
				"settled_amount":    0,
				"settlement_payout": false,
				"wallet_exists":     false,
			}))
		}
		if err != nil {
			return err
		}

		switch wallet.Status {
		case models.WalletStatusFrozen:
			return exitBlocked("wallet is frozen because of an active dispute", map[string]any{"reason": "active_dispute"})
		case models.WalletStatusClosed:
			return ErrAccountClosed
		}
		pending, err := w.ledger.ledger.CountPendingSales(ctx, tx, wallet.ID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return exitBlocked(fmt.Sprintf("%d orders are not yet settled", pending), map[string]any{
				"reason":         "pending_sales",
				"pending_orders": pending,
			})
		}
		if err := w.checkInFlight(ctx, tx, shopID); err != nil {
			return err
		}

		if wallet.WithdrawableBalance > 0 {
			payout, err := w.settleTx(ctx, tx, shop, wallet, payoutDraft{
				key:         exitIdempotencyKey(shopID, wallet.WithdrawableBalance, now),
				requestedBy: in.Actor,
			})
			if err != nil {
				return err
			}
			result.SettlementAmount = payout.Amount
			result.SettlementPayout = &payout
		}

		if err := w.shops.Deactivate(ctx, tx, shopID, now); err != nil {
			return err
		}
		if closed, err = w.ledger.closeWalletTx(ctx, tx, wallet); err != nil {
			return err
		}
		result.WalletClosed = true
		metadata := map[string]any{
			"settled_amount":    result.SettlementAmount,
			"settlement_payout": result.SettlementPayout != nil,
			"wallet_exists":     true,
		}
		if result.SettlementPayout != nil {
			metadata["payout_id"] = result.SettlementPayout.ID
		}
		return w.audit.Log(ctx, tx, newAuditEntry(ActionVendorExit, in.Actor, entityShop, shopID, shopID, in.Reason, metadata))
	})
	if err != nil {
		return ExitResult{}, err
	}

	if result.SettlementPayout != nil {
		w.payouts.announce(ctx, notify.EventPayoutRequested, *result.SettlementPayout, &closed)
	}
	_ = w.notifier.Notify(ctx, notify.Message{
		Event:  notify.EventVendorExited,
		ShopID: shopID,
		Amount: result.SettlementAmount,
		Reason: in.Reason,
	})
	if result.WalletClosed {
		w.ledger.broadcast(notify.EventVendorExited, closed, "")
	}
	return result, nil
}

func (w *VendorExitWorkflow) checkInFlight(ctx context.Context, tx store.Tx, shopID string) error {
	inFlight, err := w.payouts.payouts.GetInFlight(ctx, tx, shopID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return exitBlocked(fmt.Sprintf("a payout of %s is still in flight", money.FormatMinor(inFlight.Amount)), map[string]any{
		"reason":    "payout_in_flight",
		"payout_id": inFlight.ID,
		"amount":    money.FormatMinor(inFlight.Amount),
	})
}

// settleTx creates the exit settlement for the wallet's whole withdrawable
// balance. The draft supplies the key, the actor and the resettle flag.
func (w *VendorExitWorkflow) settleTx(ctx context.Context, tx store.Tx, shop models.Shop, wallet models.Wallet, draft payoutDraft) (models.Payout, error) {
	if !shop.HasBankDetails() {
		return models.Payout{}, withDetails(ErrBankDetailsMissing, map[string]any{
			"withdrawable_balance": money.FormatMinor(wallet.WithdrawableBalance),
		}).withMessage("bank details are required to settle the remaining balance")
	}
	draft.shopID = shop.ID
	draft.amount = wallet.WithdrawableBalance
	draft.notes = "Exit settlement"
	draft.exit = true
	return w.payouts.createTx(ctx, tx, draft)
}

// resettleTx re-issues the exit settlement of a shop that has already exited.
// Anything other than a CLOSED wallet with withdrawable money left reports
// the shop as inactive.
func (w *VendorExitWorkflow) resettleTx(ctx context.Context, tx store.Tx, shop models.Shop, in ExitInput, now time.Time, result *ExitResult) (models.Wallet, error) {
	wallet, err := w.ledger.vendorWalletForUpdate(ctx, tx, shop.ID)
	if errors.Is(err, ErrWalletNotFound) {
		return models.Wallet{}, ErrShopInactive
	}
	if err != nil {
		return models.Wallet{}, err
	}
	if wallet.Status != models.WalletStatusClosed || wallet.WithdrawableBalance <= 0 {
		return models.Wallet{}, ErrShopInactive
	}
	if err := w.checkInFlight(ctx, tx, shop.ID); err != nil {
		return models.Wallet{}, err
	}
	payout, err := w.settleTx(ctx, tx, shop, wallet, payoutDraft{
		key:         resettleIdempotencyKey(shop.ID, wallet.WithdrawableBalance, now),
		requestedBy: in.Actor,
		resettle:    true,
	})
	if err != nil {
		return models.Wallet{}, err
	}
	result.SettlementAmount = payout.Amount
	result.SettlementPayout = &payout
	result.WalletClosed = true
	return wallet, w.audit.Log(ctx, tx, newAuditEntry(ActionExitResettled, in.Actor, entityShop, shop.ID, shop.ID, in.Reason, map[string]any{
		"settled_amount": payout.Amount,
		"payout_id":      payout.ID,
	}))
}
