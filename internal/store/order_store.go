package store

import (
	"context"
	"sort"

	"marketplace/internal/models"
)

// OrderStore tracks each order's per-vendor payout status.
type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

// Track records the vendor share of an order as pending. Re-tracking an
// existing row is a no-op.
func (s *OrderStore) Track(ctx context.Context, tx Execer, orderID, shopID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_vendor_payouts (order_id, shop_id, amount, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (order_id, shop_id) DO NOTHING
	`, orderID, shopID, amount)
	return err
}

// HoldSettled attaches the shop's pending orders whose sale entries have
// cleared to the payout, oldest sale first, stopping before their running
// total would exceed amount. It returns the held order ids sorted.
func (s *OrderStore) HoldSettled(ctx context.Context, tx Selecter, shopID, walletID, payoutID string, amount int64) ([]string, error) {
	var orderIDs []string
	err := tx.SelectContext(ctx, &orderIDs, `
		WITH settled AS (
			SELECT o.order_id,
			       SUM(o.amount) OVER (ORDER BY l.created_at, o.order_id) AS running_total
			FROM order_vendor_payouts o
			JOIN ledger_entries l
			  ON l.account_id = $2
			 AND l.type = 'SALE'
			 AND l.status = 'CLEARED'
			 AND l.reference_id = o.order_id
			WHERE o.shop_id = $1
			  AND o.status = 'pending'
		)
		UPDATE order_vendor_payouts o
		SET status = 'held', payout_id = $3, updated_at = NOW()
		FROM settled
		WHERE o.shop_id = $1
		  AND o.order_id = settled.order_id
		  AND settled.running_total <= $4
		RETURNING o.order_id
	`, shopID, walletID, payoutID, amount)
	if err != nil {
		return nil, err
	}
	sort.Strings(orderIDs)
	return orderIDs, nil
}

// MarkReversed takes a refunded order out of payout tracking. It reports
// false when the order was never tracked or was already released.
func (s *OrderStore) MarkReversed(ctx context.Context, tx Execer, orderID, shopID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE order_vendor_payouts
		SET status = 'reversed', payout_id = NULL, updated_at = NOW()
		WHERE order_id = $1 AND shop_id = $2 AND status IN ('pending', 'held')
	`, orderID, shopID)
	if err != nil {
		return false, err
	}
	return expectOneRow(res)
}

// ReleaseForPayout marks the payout's orders released after a completed
// transfer.
func (s *OrderStore) ReleaseForPayout(ctx context.Context, tx Execer, payoutID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE order_vendor_payouts
		SET status = 'released', updated_at = NOW()
		WHERE payout_id = $1 AND status = 'held'
	`, payoutID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetForPayout returns the payout's orders to pending and detaches them.
func (s *OrderStore) ResetForPayout(ctx context.Context, tx Execer, payoutID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE order_vendor_payouts
		SET status = 'pending', payout_id = NULL, updated_at = NOW()
		WHERE payout_id = $1 AND status = 'held'
	`, payoutID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *OrderStore) ListByShop(ctx context.Context, shopID string, limit int) ([]models.OrderVendorPayout, error) {
	var rows []models.OrderVendorPayout
	err := s.db.SelectContext(ctx, &rows, `
		SELECT order_id, shop_id, amount, status, payout_id, updated_at
		FROM order_vendor_payouts
		WHERE shop_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
