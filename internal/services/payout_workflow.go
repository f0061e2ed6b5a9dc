package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/db"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Admin actions accepted by Transition.
const (
	ActionApprove  = "approve"
	ActionProcess  = "process"
	ActionComplete = "complete"
	ActionReject   = "reject"
)

const exitKeyPrefix = "exit|"

// IdempotencyKey derives the payout request key from the shop, the amount in
// minor units and the UTC calendar day.
func IdempotencyKey(shopID string, amount int64, at time.Time) string {
	raw := fmt.Sprintf("%s|%d|%s", shopID, amount, at.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func exitIdempotencyKey(shopID string, amount int64, at time.Time) string {
	return IdempotencyKey(exitKeyPrefix+shopID, amount, at)
}

// resettleIdempotencyKey keys a re-issued exit settlement by the instant it
// was requested, so a settlement rejected twice in a day can still be retried.
func resettleIdempotencyKey(shopID string, amount int64, at time.Time) string {
	raw := fmt.Sprintf("%sretry|%s|%d|%s", exitKeyPrefix, shopID, amount, at.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type PayoutParams struct {
	TxRunner db.TxRunner
	Ledger   *LedgerService
	Payouts  PayoutStore
	Shops    ShopStore
	Orders   OrderStore
	Audit    AuditStore
	// Notifier should not block; the servers pass a notify.BestEffort.
	Notifier notify.Notifier
	Metrics  PayoutRecorder
	Logger   *logger.Logger
	Now      func() time.Time
}

// PayoutWorkflow runs the payout request/approval state machine on top of
// the ledger service.
type PayoutWorkflow struct {
	txRunner db.TxRunner
	ledger   *LedgerService
	payouts  PayoutStore
	shops    ShopStore
	orders   OrderStore
	audit    AuditStore
	notifier notify.Notifier
	metrics  PayoutRecorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewPayoutWorkflow(p PayoutParams) *PayoutWorkflow {
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
	var recorder PayoutRecorder = metrics.NewPayoutMetrics(nil)
	if p.Metrics != nil {
		recorder = p.Metrics
	}
	return &PayoutWorkflow{
		txRunner: p.TxRunner,
		ledger:   p.Ledger,
		payouts:  p.Payouts,
		shops:    p.Shops,
		orders:   p.Orders,
		audit:    p.Audit,
		notifier: notifier,
		metrics:  recorder,
		logg:     logg,
		now:      now,
	}
}

func (w *PayoutWorkflow) clock() time.Time {
	return w.now().UTC()
}

type CreatePayoutInput struct {
	ShopID      string
	Amount      int64
	RequestedBy string
	Notes       string
}

type CreatePayoutResult struct {
	Payout  models.Payout
	Created bool
}

type payoutDraft struct {
	shopID      string
	amount      int64
	key         string
	requestedBy string
	notes       string
	exit        bool
	// resettle re-issues an exit settlement for a shop that has already
	// exited, so the shop is inactive and the wallet CLOSED.
	resettle    bool
}

// Create records a REQUESTED payout. The ledger is not touched until approval.
// An identical request on the same day returns the first payout with
// Created=false while that payout is still REQUESTED or already terminal.
func (w *PayoutWorkflow) Create(ctx context.Context, in CreatePayoutInput) (CreatePayoutResult, error) {
	if in.Amount <= 0 {
		return CreatePayoutResult{}, ErrInvalidAmount
	}
	key := IdempotencyKey(in.ShopID, in.Amount, w.clock())
	var result CreatePayoutResult
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = CreatePayoutResult{}
		existing, err := w.payouts.GetByIdempotencyKey(ctx, tx, key)
		if err == nil {
			// A duplicate of a request an admin already approved is a new
			// request blocked by the one in flight, not a replay.
			if existing.Status == models.PayoutStatusApproved || existing.Status == models.PayoutStatusProcessing {
				return inFlightError(existing)
			}
			result.Payout = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		payout, err := w.createTx(ctx, tx, payoutDraft{
			shopID:      in.ShopID,
			amount:      in.Amount,
			key:         key,
			requestedBy: in.RequestedBy,
			notes:       in.Notes,
		})
		if err != nil {
			return err
		}
		result = CreatePayoutResult{Payout: payout, Created: true}
		return nil
	})
	if err != nil {
		if err := w.resolveCreateConflict(ctx, err, key, in.ShopID, &result); err != nil {
			return CreatePayoutResult{}, err
		}
		return result, nil
	}
	if result.Created {
		w.announce(ctx, notify.EventPayoutRequested, result.Payout, nil)
	}
	return result, nil
}

// resolveCreateConflict turns unique violations from a concurrent create into
// a replay or an in-flight conflict. It returns nil when result was filled.
func (w *PayoutWorkflow) resolveCreateConflict(ctx context.Context, err error, key, shopID string, result *CreatePayoutResult) error {
	switch store.ConstraintOf(err) {
	case store.ConstraintPayoutIdempotency:
		var existing models.Payout
		readErr := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			existing, err = w.payouts.GetByIdempotencyKey(ctx, tx, key)
			return err
		})
		if readErr != nil {
			return readErr
		}
		*result = CreatePayoutResult{Payout: existing}
		return nil
	case store.ConstraintPayoutInFlight:
		var inFlight models.Payout
		readErr := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			inFlight, err = w.payouts.GetInFlight(ctx, tx, shopID)
			return err
		})
		if readErr != nil {
			return ErrPayoutInFlight
		}
		return inFlightError(inFlight)
	}
	return err
}

func inFlightError(payout models.Payout) error {
	return withDetails(ErrPayoutInFlight, map[string]any{
		"payout_id": payout.ID,
		"amount":    money.FormatMinor(payout.Amount),
		"status":    payout.Status,
	})
}

func transitionError(from, to models.PayoutStatus) error {
	return withDetails(ErrInvalidTransition, map[string]any{"from": from, "to": to})
}

// createTx checks the request preconditions in order and inserts the payout.
// Exit settlements skip the minimum withdrawal threshold.
func (w *PayoutWorkflow) createTx(ctx context.Context, tx store.Tx, draft payoutDraft) (models.Payout, error) {
	shop, err := w.shops.GetByID(ctx, tx, draft.shopID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Payout{}, ErrShopNotFound
	}
	if err != nil {
		return models.Payout{}, err
	}
	if shop.Status != models.ShopStatusActive && !draft.resettle {
		return models.Payout{}, ErrShopInactive
	}
	wallet, err := w.ledger.ensureWallet(ctx, tx, draft.shopID, models.AccountKindVendor)
	if err != nil {
		return models.Payout{}, err
	}
	switch wallet.Status {
	case models.WalletStatusActive:
	case models.WalletStatusClosed:
		if !draft.resettle {
			return models.Payout{}, ErrAccountClosed
		}
	default:
		return models.Payout{}, ErrAccountNotActive
	}
	if !draft.exit && draft.amount < wallet.MinimumWithdrawal {
		return models.Payout{}, withDetails(ErrBelowThreshold, map[string]any{
			"minimum_withdrawal": money.FormatMinor(wallet.MinimumWithdrawal),
			"requested":          money.FormatMinor(draft.amount),
		})
	}
	if draft.amount > wallet.WithdrawableBalance {
		return models.Payout{}, insufficientFunds(wallet.WithdrawableBalance, draft.amount)
	}
	if inFlight, err := w.payouts.GetInFlight(ctx, tx, draft.shopID); err == nil {
		return models.Payout{}, inFlightError(inFlight)
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Payout{}, err
	}
	if !shop.HasBankDetails() {
		return models.Payout{}, ErrBankDetailsMissing
	}

	now := w.clock()
	payout := models.Payout{
		ID:                uuid.NewString(),
		ShopID:            draft.shopID,
		WalletID:          wallet.ID,
		Amount:            draft.amount,
		IdempotencyKey:    draft.key,
		Status:            models.PayoutStatusRequested,
		BankAccountMasked: deref(shop.BankAccountMasked),
		BankIFSC:          deref(shop.BankIFSC),
		BankName:          deref(shop.BankName),
		OrderIDs:          []string{},
		IsExitSettlement:  draft.exit,
		RequestedBy:       draft.requestedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if notes := strings.TrimSpace(draft.notes); notes != "" {
		payout.Notes = &notes
	}
	if err := w.payouts.Create(ctx, tx, payout); err != nil {
		return models.Payout{}, err
	}
	orderIDs, err := w.orders.HoldSettled(ctx, tx, draft.shopID, wallet.ID, payout.ID, payout.Amount)
	if err != nil {
		return models.Payout{}, fmt.Errorf("hold settled orders: %w", err)
	}
	if len(orderIDs) > 0 {
		payout.OrderIDs = orderIDs
		if err := w.payouts.Update(ctx, tx, payout, models.PayoutStatusRequested); err != nil {
			return models.Payout{}, err
		}
	}
	if err := w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutRequested, draft.requestedBy, entityPayout, payout.ID, draft.shopID, "", map[string]any{
		"amount":             payout.Amount,
		"idempotency_key":    payout.IdempotencyKey,
		"is_exit_settlement": payout.IsExitSettlement,
		"order_ids":          payout.OrderIDs,
	})); err != nil {
		return models.Payout{}, err
	}
	return payout, nil
}

type TransitionInput struct {
	PayoutID      string
	Action        string
	Actor         string
	TransactionID string
	Reason        string
	Notes         string
}

// Transition dispatches an admin action.
func (w *PayoutWorkflow) Transition(ctx context.Context, in TransitionInput) (models.Payout, error) {
	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case ActionApprove:
		return w.Approve(ctx, in)
	case ActionProcess:
		return w.Process(ctx, in)
	case ActionComplete:
		return w.Complete(ctx, in)
	case ActionReject:
		return w.Reject(ctx, in)
	default:
		return models.Payout{}, withDetails(ErrInvalidAction, map[string]any{"action": in.Action})
	}
}

func (w *PayoutWorkflow) lockPayout(ctx context.Context, tx store.Tx, payoutID string) (models.Payout, error) {
	payout, err := w.payouts.GetForUpdate(ctx, tx, payoutID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Payout{}, ErrPayoutNotFound
	}
	return payout, err
}

// ledgerCallError marks a failure raised by the ledger during approval.
type ledgerCallError struct {
	err error
}

func (e *ledgerCallError) Error() string { return e.err.Error() }

func (e *ledgerCallError) Unwrap() error { return e.err }

// Approve debits the wallet and moves the payout to APPROVED. If the debit
// fails the approval is rolled back and the payout is cancelled separately.
func (w *PayoutWorkflow) Approve(ctx context.Context, in TransitionInput) (models.Payout, error) {
	var payout models.Payout
	var wallet models.Wallet
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := w.lockPayout(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(models.PayoutStatusApproved) {
			return transitionError(current.Status, models.PayoutStatusApproved)
		}
		wallet, err = w.ledger.requestPayoutTx(ctx, tx, DebitRequest{
			ShopID:         current.ShopID,
			PayoutID:       current.ID,
			Amount:         current.Amount,
			ExitSettlement: current.IsExitSettlement,
		})
		if err != nil {
			return &ledgerCallError{err: err}
		}
		now := w.clock()
		from := current.Status
		current.Status = models.PayoutStatusApproved
		current.ApprovedBy = &in.Actor
		current.ApprovedAt = &now
		current.UpdatedAt = now
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			current.Notes = &notes
		}
		if err := w.payouts.Update(ctx, tx, current, from); err != nil {
			return err
		}
		payout = current
		return w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutApproved, in.Actor, entityPayout, current.ID, current.ShopID, "", map[string]any{
			"amount":               current.Amount,
			"withdrawable_balance": wallet.WithdrawableBalance,
		}))
	})
	if err != nil {
		var ledgerErr *ledgerCallError
		if errors.As(err, &ledgerErr) {
			return w.cancelAfterLedgerFailure(ctx, in, ledgerErr.err)
		}
		return models.Payout{}, err
	}
	w.announce(ctx, notify.EventPayoutApproved, payout, &wallet)
	return payout, nil
}

// cancelAfterLedgerFailure marks a still-REQUESTED payout CANCELLED with the
// ledger error recorded, so no payout points at a debit that never happened.
func (w *PayoutWorkflow) cancelAfterLedgerFailure(ctx context.Context, in TransitionInput, cause error) (models.Payout, error) {
	logCtx := w.logg.WithFields(ctx, map[string]any{"payout_id": in.PayoutID, "actor": in.Actor})
	w.logg.Error(logCtx, "payout debit failed, cancelling payout", cause)
	w.metrics.LedgerFailure()

	var cancelled models.Payout
	var changed bool
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		current, err := w.lockPayout(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		cancelled = current
		if current.Status != models.PayoutStatusRequested {
			return nil
		}
		now := w.clock()
		reason := cause.Error()
		current.Status = models.PayoutStatusCancelled
		current.FailureReason = &reason
		current.ProcessedAt = &now
		current.UpdatedAt = now
		if err := w.payouts.Update(ctx, tx, current, models.PayoutStatusRequested); err != nil {
			return err
		}
		if _, err := w.orders.ResetForPayout(ctx, tx, current.ID); err != nil {
			return err
		}
		cancelled = current
		changed = true
		return w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutCancelled, SystemActor, entityPayout, current.ID, current.ShopID, reason, map[string]any{
			"amount":       current.Amount,
			"attempted_by": in.Actor,
		}))
	})
	failure := withDetails(ErrLedgerFailure, map[string]any{
		"payout_id": in.PayoutID,
		"status":    cancelled.Status,
	}).withCause(cause)
	if err != nil {
		w.logg.Error(logCtx, "cancelling payout after ledger failure failed", err)
		return cancelled, failure
	}
	if changed {
		w.announce(ctx, notify.EventPayoutCancelled, cancelled, nil)
	}
	return cancelled, failure
}

// Process marks an approved payout as in transfer.
func (w *PayoutWorkflow) Process(ctx context.Context, in TransitionInput) (models.Payout, error) {
	var payout models.Payout
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := w.lockPayout(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(models.PayoutStatusProcessing) {
			return transitionError(current.Status, models.PayoutStatusProcessing)
		}
		from := current.Status
		current.Status = models.PayoutStatusProcessing
		current.UpdatedAt = w.clock()
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			current.Notes = &notes
		}
		if err := w.payouts.Update(ctx, tx, current, from); err != nil {
			return err
		}
		payout = current
		return w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutProcessing, in.Actor, entityPayout, current.ID, current.ShopID, "", map[string]any{
			"amount": current.Amount,
		}))
	})
	if err != nil {
		return models.Payout{}, err
	}
	w.announce(ctx, notify.EventPayoutProcessing, payout, nil)
	return payout, nil
}

// Complete records the bank transfer reference and releases the payout's
// orders.
func (w *PayoutWorkflow) Complete(ctx context.Context, in TransitionInput) (models.Payout, error) {
	txnID := strings.TrimSpace(in.TransactionID)
	if txnID == "" {
		return models.Payout{}, ErrTransactionIDRequired
	}
	var payout models.Payout
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := w.lockPayout(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(models.PayoutStatusCompleted) {
			return transitionError(current.Status, models.PayoutStatusCompleted)
		}
		if _, err := w.ledger.completePayoutTx(ctx, tx, current.WalletID, current.ID); err != nil {
			return err
		}
		now := w.clock()
		from := current.Status
		current.Status = models.PayoutStatusCompleted
		current.TransactionID = &txnID
		current.ProcessedAt = &now
		current.UpdatedAt = now
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			current.Notes = &notes
		}
		if err := w.payouts.Update(ctx, tx, current, from); err != nil {
			return err
		}
		released, err := w.orders.ReleaseForPayout(ctx, tx, current.ID)
		if err != nil {
			return fmt.Errorf("release orders: %w", err)
		}
		payout = current
		return w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutCompleted, in.Actor, entityPayout, current.ID, current.ShopID, "", map[string]any{
			"amount":          current.Amount,
			"transaction_id":  txnID,
			"orders_released": released,
		}))
	})
	if err != nil {
		return models.Payout{}, err
	}
	w.announce(ctx, notify.EventPayoutCompleted, payout, nil)
	return payout, nil
}

// Reject fails the payout, restoring the debit if one was taken, and returns
// its orders to pending.
func (w *PayoutWorkflow) Reject(ctx context.Context, in TransitionInput) (models.Payout, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return models.Payout{}, ErrReasonRequired
	}
	var payout models.Payout
	var wallet *models.Wallet
	err := w.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet = nil
		current, err := w.lockPayout(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(models.PayoutStatusFailed) {
			return transitionError(current.Status, models.PayoutStatusFailed)
		}
		reversed := current.Debited()
		if reversed {
			restored, err := w.ledger.rejectPayoutTx(ctx, tx, ReversalRequest{ShopID: current.ShopID, PayoutID: current.ID})
			if err != nil {
				return err
			}
			wallet = &restored
		}
		now := w.clock()
		from := current.Status
		current.Status = models.PayoutStatusFailed
		current.FailureReason = &reason
		current.ProcessedAt = &now
		current.UpdatedAt = now
		if err := w.payouts.Update(ctx, tx, current, from); err != nil {
			return err
		}
		if _, err := w.orders.ResetForPayout(ctx, tx, current.ID); err != nil {
			return fmt.Errorf("reset orders: %w", err)
		}
		payout = current
		return w.audit.Log(ctx, tx, newAuditEntry(ActionPayoutRejected, in.Actor, entityPayout, current.ID, current.ShopID, reason, map[string]any{
			"amount":   current.Amount,
			"from":     from,
			"reversed": reversed,
		}))
	})
	if err != nil {
		return models.Payout{}, err
	}
	w.announce(ctx, notify.EventPayoutFailed, payout, wallet)
	return payout, nil
}

// announce runs the post-commit side effects of a transition. None of them
// can fail the transition.
func (w *PayoutWorkflow) announce(ctx context.Context, event string, payout models.Payout, wallet *models.Wallet) {
	w.metrics.Transition(string(payout.Status), payout.Amount)
	msg := notify.Message{
		Event:    event,
		ShopID:   payout.ShopID,
		PayoutID: payout.ID,
		Amount:   payout.Amount,
		Status:   string(payout.Status),
	}
	if payout.FailureReason != nil {
		msg.Reason = *payout.FailureReason
	}
	_ = w.notifier.Notify(ctx, msg)

	if wallet == nil {
		current, err := w.ledger.wallets.GetByOwner(ctx, payout.ShopID, models.AccountKindVendor)
		if err != nil {
			return
		}
		wallet = &current
	}
	w.ledger.broadcast(event, *wallet, payout.ID)
}

func (w *PayoutWorkflow) Get(ctx context.Context, payoutID string) (models.Payout, error) {
	payout, err := w.payouts.GetByID(ctx, payoutID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Payout{}, ErrPayoutNotFound
	}
	return payout, err
}

func (w *PayoutWorkflow) List(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error) {
	return w.payouts.List(ctx, status, limit, offset)
}

// VendorSummary is the vendor's payouts page.
type VendorSummary struct {
	Wallet   *models.Wallet
	InFlight *models.Payout
	Payouts  []models.Payout
	Entries  []models.LedgerEntry
	Orders   []models.OrderVendorPayout
}

// Summary returns the wallet, payout history and ledger history for a shop.
// A shop with no wallet yet gets an empty summary.
func (w *PayoutWorkflow) Summary(ctx context.Context, shopID string, limit int) (VendorSummary, error) {
	summary := VendorSummary{
		Payouts: []models.Payout{},
		Entries: []models.LedgerEntry{},
		Orders:  []models.OrderVendorPayout{},
	}
	wallet, err := w.ledger.Wallet(ctx, shopID)
	if errors.Is(err, ErrWalletNotFound) {
		return summary, nil
	}
	if err != nil {
		return summary, err
	}
	summary.Wallet = &wallet

	payouts, err := w.payouts.ListByShop(ctx, shopID, limit, 0)
	if err != nil {
		return summary, err
	}
	for i := range payouts {
		if !payouts[i].Status.IsTerminal() {
			inFlight := payouts[i]
			summary.InFlight = &inFlight
			break
		}
	}
	entries, err := w.ledger.History(ctx, wallet.ID, limit, 0)
	if err != nil {
		return summary, err
	}
	orders, err := w.orders.ListByShop(ctx, shopID, limit)
	if err != nil {
		return summary, err
	}
	if payouts != nil {
		summary.Payouts = payouts
	}
	if entries != nil {
		summary.Entries = entries
	}
	if orders != nil {
		summary.Orders = orders
	}
	return summary, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
