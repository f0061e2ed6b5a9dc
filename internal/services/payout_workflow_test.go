package services

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/apperrors"
	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyIsPerShopAmountAndDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	key := IdempotencyKey("shop-1", 60000, day)
	assert.Len(t, key, 64)
	assert.Equal(t, key, IdempotencyKey("shop-1", 60000, day.Add(20*time.Hour)))
	assert.NotEqual(t, key, IdempotencyKey("shop-1", 60000, day.Add(24*time.Hour)))
	assert.NotEqual(t, key, IdempotencyKey("shop-1", 60001, day))
	assert.NotEqual(t, key, IdempotencyKey("shop-2", 60000, day))
	assert.NotEqual(t, key, exitIdempotencyKey("shop-1", 60000, day))
}

func TestPayoutLifecycle(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 60000)
	h.settle(t, "shop-1", "ord-2", 40000)
	ctx := context.Background()

	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "user-shop-1"})
	require.NoError(t, err)
	require.True(t, created.Created)
	payout := created.Payout
	assert.Equal(t, models.PayoutStatusRequested, payout.Status)
	assert.Equal(t, []string{"ord-1"}, payout.OrderIDs)
	assert.Equal(t, "XXXXXX9012", payout.BankAccountMasked)
	assert.Equal(t, "HDFC0001234", payout.BankIFSC)
	assert.Equal(t, int64(100000), h.wallet(t, "shop-1").WithdrawableBalance, "request must not touch the ledger")
	assert.Equal(t, models.OrderPayoutHeld, h.order("ord-1", "shop-1").Status)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-2", "shop-1").Status)

	approved, err := h.payouts.Transition(ctx, TransitionInput{PayoutID: payout.ID, Action: "approve", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "admin-1", *approved.ApprovedBy)
	assert.Equal(t, int64(40000), h.wallet(t, "shop-1").WithdrawableBalance)

	_, err = h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "user-shop-1"})
	require.ErrorIs(t, err, ErrPayoutInFlight)
	appErr := AppError(err)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code())
	assert.Equal(t, payout.ID, appErr.Details()["payout_id"])

	_, err = h.payouts.Transition(ctx, TransitionInput{PayoutID: payout.ID, Action: "complete", Actor: "admin-1"})
	assert.ErrorIs(t, err, ErrTransactionIDRequired)

	processing, err := h.payouts.Transition(ctx, TransitionInput{PayoutID: payout.ID, Action: "process", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusProcessing, processing.Status)

	completed, err := h.payouts.Transition(ctx, TransitionInput{PayoutID: payout.ID, Action: "complete", Actor: "admin-1", TransactionID: "TXN1"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, completed.Status)
	require.NotNil(t, completed.TransactionID)
	assert.Equal(t, "TXN1", *completed.TransactionID)
	assert.NotNil(t, completed.ProcessedAt)
	assert.Equal(t, models.OrderPayoutReleased, h.order("ord-1", "shop-1").Status)
	assert.Equal(t, int64(40000), h.wallet(t, "shop-1").WithdrawableBalance)

	_, err = h.payouts.Transition(ctx, TransitionInput{PayoutID: payout.ID, Action: "reject", Actor: "admin-1", Reason: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{"payout.requested", "payout.approved", "payout.processing", "payout.completed"}, h.notifier.events())
	assert.Equal(t, []string{"APPROVED", "PROCESSING", "COMPLETED"}, h.metrics.transitions[1:])
	assert.Equal(t, "payout.completed", h.hub.last().Event)
	assert.Equal(t, "400.00", h.hub.last().Withdrawable)
	h.assertBooksBalance(t)
}

func TestCreatePayoutHoldsOnlyOrdersItCovers(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	h.settle(t, "shop-1", "ord-2", 100000)
	ctx := context.Background()

	small, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)
	assert.Empty(t, small.Payout.OrderIDs)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-1", "shop-1").Status)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-2", "shop-1").Status)
	_, err = h.payouts.Reject(ctx, TransitionInput{PayoutID: small.Payout.ID, Actor: "admin-1", Reason: "resize"})
	require.NoError(t, err)

	first, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 150000, RequestedBy: "u"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-1"}, first.Payout.OrderIDs)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-2", "shop-1").Status)
	for _, action := range []string{"approve", "process"} {
		_, err = h.payouts.Transition(ctx, TransitionInput{PayoutID: first.Payout.ID, Action: action, Actor: "admin-1"})
		require.NoError(t, err)
	}
	_, err = h.payouts.Complete(ctx, TransitionInput{PayoutID: first.Payout.ID, Actor: "admin-1", TransactionID: "TXN1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPayoutReleased, h.order("ord-1", "shop-1").Status)

	second, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 50000, RequestedBy: "u"})
	require.NoError(t, err)
	assert.Empty(t, second.Payout.OrderIDs, "ord-2 is only partly covered")
	h.assertBooksBalance(t)
}

func TestCreatePayoutSkipsReversedOrders(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	h.settle(t, "shop-1", "ord-2", 100000)
	ctx := context.Background()

	_, err := h.ledger.ReverseSale(ctx, ReverseSaleInput{OrderID: "ord-2", ShopID: "shop-1", Actor: "admin-1", Reason: "refund"})
	require.NoError(t, err)
	reversed := h.order("ord-2", "shop-1")
	assert.Equal(t, models.OrderPayoutReversed, reversed.Status)
	assert.Nil(t, reversed.PayoutID)

	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 100000, RequestedBy: "u"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-1"}, created.Payout.OrderIDs)
	for _, action := range []string{"approve", "process"} {
		_, err = h.payouts.Transition(ctx, TransitionInput{PayoutID: created.Payout.ID, Action: action, Actor: "admin-1"})
		require.NoError(t, err)
	}
	_, err = h.payouts.Complete(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1", TransactionID: "TXN1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPayoutReleased, h.order("ord-1", "shop-1").Status)
	assert.Equal(t, models.OrderPayoutReversed, h.order("ord-2", "shop-1").Status)
	assert.Equal(t, int64(0), h.wallet(t, "shop-1").WithdrawableBalance)
	h.assertBooksBalance(t)
}

func TestCreatePayoutReplaysSameDayRequest(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	in := CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "user-shop-1"}

	first, err := h.payouts.Create(ctx, in)
	require.NoError(t, err)
	second, err := h.payouts.Create(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Payout.ID, second.Payout.ID)

	payouts, err := h.payouts.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
	assert.Equal(t, []string{"payout.requested"}, h.notifier.events())

	_, err = h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 55000, RequestedBy: "user-shop-1"})
	assert.ErrorIs(t, err, ErrPayoutInFlight)
}

func TestCreatePayoutReplaysTerminalPayout(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	in := CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "user-shop-1"}

	first, err := h.payouts.Create(ctx, in)
	require.NoError(t, err)
	_, err = h.payouts.Reject(ctx, TransitionInput{PayoutID: first.Payout.ID, Actor: "admin-1", Reason: "wrong account"})
	require.NoError(t, err)

	again, err := h.payouts.Create(ctx, in)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, models.PayoutStatusFailed, again.Payout.Status)

	h.clock.Advance(24 * time.Hour)
	next, err := h.payouts.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, next.Created)
	assert.NotEqual(t, first.Payout.ID, next.Payout.ID)
}

func TestCreatePayoutPreconditions(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.addShop(t, "shop-nobank", false)
	h.settle(t, "shop-1", "ord-1", 100000)
	h.settle(t, "shop-nobank", "ord-2", 100000)
	ctx := context.Background()

	cases := []struct {
		name   string
		shopID string
		amount int64
		want   error
		code   apperrors.Code
	}{
		{"non-positive", "shop-1", 0, ErrInvalidAmount, apperrors.CodeValidation},
		{"unknown shop", "missing", 60000, ErrShopNotFound, apperrors.CodeNotFound},
		{"below threshold", "shop-1", threshold - 1, ErrBelowThreshold, apperrors.CodeValidation},
		{"over balance", "shop-1", 100001, ErrInsufficientFunds, apperrors.CodeValidation},
		{"no bank details", "shop-nobank", 60000, ErrBankDetailsMissing, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: tc.shopID, Amount: tc.amount, RequestedBy: "u"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.code, AppError(err).Code())
		})
	}

	_, err := h.ledger.Freeze(ctx, WalletActionInput{ShopID: "shop-1", Actor: "admin-1", Reason: "dispute"})
	require.NoError(t, err)
	_, err = h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	assert.ErrorIs(t, err, ErrAccountNotActive)
	assert.Equal(t, apperrors.CodeStateConflict, AppError(err).Code())
}

func TestRejectApprovedPayoutRestoresFunds(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)
	_, err = h.payouts.Approve(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1"})
	require.NoError(t, err)

	_, err = h.payouts.Reject(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1"})
	assert.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := h.payouts.Reject(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1", Reason: "bank bounced"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, rejected.Status)
	require.NotNil(t, rejected.FailureReason)
	assert.Equal(t, "bank bounced", *rejected.FailureReason)

	wallet := h.wallet(t, "shop-1")
	assert.Equal(t, int64(100000), wallet.WithdrawableBalance)
	assert.Len(t, h.entries(wallet.ID, models.EntryTypePayoutReversal), 1)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-1", "shop-1").Status)
	assert.Nil(t, h.order("ord-1", "shop-1").PayoutID)
	assert.Contains(t, h.auditActions(), ActionPayoutRejected)
	h.assertBooksBalance(t)
}

func TestRejectRequestedPayoutLeavesLedgerAlone(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)

	_, err = h.payouts.Reject(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1", Reason: "duplicate"})
	require.NoError(t, err)
	wallet := h.wallet(t, "shop-1")
	assert.Equal(t, int64(100000), wallet.WithdrawableBalance)
	assert.Empty(t, h.entries(wallet.ID, models.EntryTypePayoutReversal))
	assert.Empty(t, h.entries(wallet.ID, models.EntryTypePayoutDebit))
}

func TestApproveLedgerFailureCancelsPayout(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)
	_, err = h.ledger.Freeze(ctx, WalletActionInput{ShopID: "shop-1", Actor: "admin-2", Reason: "dispute"})
	require.NoError(t, err)

	cancelled, approveErr := h.payouts.Approve(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1"})
	require.ErrorIs(t, approveErr, ErrLedgerFailure)
	assert.ErrorIs(t, approveErr, ErrAccountNotActive)
	assert.Equal(t, models.PayoutStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.FailureReason)

	stored, err := h.payouts.Get(ctx, created.Payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCancelled, stored.Status)
	assert.Equal(t, models.OrderPayoutPending, h.order("ord-1", "shop-1").Status)

	appErr := AppError(approveErr)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code())
	assert.Equal(t, models.PayoutStatusCancelled, appErr.Details()["status"])
	assert.Equal(t, 1, h.metrics.ledgerFailures)
	assert.Contains(t, h.auditActions(), ActionPayoutCancelled)
	assert.Contains(t, h.notifier.events(), "payout.cancelled")

	wallet := h.wallet(t, "shop-1")
	assert.Empty(t, h.entries(wallet.ID, models.EntryTypePayoutDebit))
	assert.Equal(t, int64(100000), wallet.FrozenBalance)
	h.assertBooksBalance(t)
}

func TestTransitionRejectsUnknownActionAndPayout(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()

	_, err := h.payouts.Transition(ctx, TransitionInput{PayoutID: "p-1", Action: "refund"})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = h.payouts.Transition(ctx, TransitionInput{PayoutID: "p-1", Action: "approve", Actor: "admin-1"})
	assert.ErrorIs(t, err, ErrPayoutNotFound)
	assert.Equal(t, apperrors.CodeNotFound, AppError(err).Code())
}

func TestCompleteRequiresApproval(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	h.settle(t, "shop-1", "ord-1", 100000)
	ctx := context.Background()
	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)

	_, err = h.payouts.Complete(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1", TransactionID: "TXN1"})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, apperrors.CodeStateConflict, AppError(err).Code())

	_, err = h.payouts.Process(ctx, TransitionInput{PayoutID: created.Payout.ID, Actor: "admin-1"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSummaryShowsInFlightPayout(t *testing.T) {
	h := newHarness(t, "0")
	h.addShop(t, "shop-1", true)
	ctx := context.Background()

	empty, err := h.payouts.Summary(ctx, "shop-1", 20)
	require.NoError(t, err)
	assert.Nil(t, empty.Wallet)
	assert.Empty(t, empty.Payouts)

	h.settle(t, "shop-1", "ord-1", 100000)
	created, err := h.payouts.Create(ctx, CreatePayoutInput{ShopID: "shop-1", Amount: 60000, RequestedBy: "u"})
	require.NoError(t, err)

	summary, err := h.payouts.Summary(ctx, "shop-1", 20)
	require.NoError(t, err)
	require.NotNil(t, summary.Wallet)
	require.NotNil(t, summary.InFlight)
	assert.Equal(t, created.Payout.ID, summary.InFlight.ID)
	assert.Len(t, summary.Payouts, 1)
	assert.Len(t, summary.Entries, 1)
	assert.Len(t, summary.Orders, 1)

	status := models.PayoutStatusRequested
	listed, err := h.payouts.List(ctx, &status, 10, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	status = models.PayoutStatusCompleted
	listed, err = h.payouts.List(ctx, &status, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
