package store

import (
	"context"
	"time"

	"marketplace/internal/models"

	"github.com/lib/pq"
)

const (
	// ConstraintPayoutIdempotency guards duplicate create requests.
	ConstraintPayoutIdempotency = "payouts_idempotency_key_key"
	// ConstraintPayoutInFlight allows one non-terminal payout per shop.
	ConstraintPayoutInFlight = "payouts_one_in_flight"
)

const payoutColumns = `id, shop_id, wallet_id, amount, idempotency_key, status, bank_account_masked,
		       bank_ifsc, bank_name, transaction_id, failure_reason, notes, order_ids,
		       is_exit_settlement, requested_by, approved_by, approved_at, processed_at,
		       created_at, updated_at`

type PayoutStore struct {
	db DB
}

type payoutRow struct {
	ID                string              `db:"id"`
	ShopID            string              `db:"shop_id"`
	WalletID          string              `db:"wallet_id"`
	Amount            int64               `db:"amount"`
	IdempotencyKey    string              `db:"idempotency_key"`
	Status            models.PayoutStatus `db:"status"`
	BankAccountMasked string              `db:"bank_account_masked"`
	BankIFSC          string              `db:"bank_ifsc"`
	BankName          string              `db:"bank_name"`
	TransactionID     *string             `db:"transaction_id"`
	FailureReason     *string             `db:"failure_reason"`
	Notes             *string             `db:"notes"`
	OrderIDs          pq.StringArray      `db:"order_ids"`
	IsExitSettlement  bool                `db:"is_exit_settlement"`
	RequestedBy       string              `db:"requested_by"`
	ApprovedBy        *string             `db:"approved_by"`
	ApprovedAt        *time.Time          `db:"approved_at"`
	ProcessedAt       *time.Time          `db:"processed_at"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

func (r payoutRow) toModel() models.Payout {
	orderIDs := []string(r.OrderIDs)
	if orderIDs == nil {
		orderIDs = []string{}
	}
	return models.Payout{
		ID:                r.ID,
		ShopID:            r.ShopID,
		WalletID:          r.WalletID,
		Amount:            r.Amount,
		IdempotencyKey:    r.IdempotencyKey,
		Status:            r.Status,
		BankAccountMasked: r.BankAccountMasked,
		BankIFSC:          r.BankIFSC,
		BankName:          r.BankName,
		TransactionID:     r.TransactionID,
		FailureReason:     r.FailureReason,
		Notes:             r.Notes,
		OrderIDs:          orderIDs,
		IsExitSettlement:  r.IsExitSettlement,
		RequestedBy:       r.RequestedBy,
		ApprovedBy:        r.ApprovedBy,
		ApprovedAt:        r.ApprovedAt,
		ProcessedAt:       r.ProcessedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func NewPayoutStore(db DB) *PayoutStore {
	return &PayoutStore{db: db}
}

// Create inserts a REQUESTED payout. Unique violations come back as a
// *DuplicateError naming either ConstraintPayoutIdempotency or
// ConstraintPayoutInFlight.
func (s *PayoutStore) Create(ctx context.Context, tx Execer, payout models.Payout) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payouts (
			id, shop_id, wallet_id, amount, idempotency_key, status, bank_account_masked,
			bank_ifsc, bank_name, notes, order_ids, is_exit_settlement, requested_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, payout.ID, payout.ShopID, payout.WalletID, payout.Amount, payout.IdempotencyKey, payout.Status,
		payout.BankAccountMasked, payout.BankIFSC, payout.BankName, payout.Notes, pq.Array(payout.OrderIDs),
		payout.IsExitSettlement, payout.RequestedBy)
	return translate(err)
}

func (s *PayoutStore) GetByID(ctx context.Context, payoutID string) (models.Payout, error) {
	return s.getOne(ctx, s.db, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE id = $1
	`, payoutID)
}

func (s *PayoutStore) GetForUpdate(ctx context.Context, tx Getter, payoutID string) (models.Payout, error) {
	return s.getOne(ctx, tx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE id = $1
		FOR UPDATE
	`, payoutID)
}

func (s *PayoutStore) GetByIdempotencyKey(ctx context.Context, tx Getter, key string) (models.Payout, error) {
	return s.getOne(ctx, tx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE idempotency_key = $1
	`, key)
}

// GetInFlight returns the shop's REQUESTED, APPROVED or PROCESSING payout.
func (s *PayoutStore) GetInFlight(ctx context.Context, tx Getter, shopID string) (models.Payout, error) {
	return s.getOne(ctx, tx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE shop_id = $1 AND status IN ('REQUESTED', 'APPROVED', 'PROCESSING')
		LIMIT 1
	`, shopID)
}

func (s *PayoutStore) getOne(ctx context.Context, q Getter, query string, args ...any) (models.Payout, error) {
	var row payoutRow
	if err := q.GetContext(ctx, &row, query, args...); err != nil {
		return models.Payout{}, translate(err)
	}
	return row.toModel(), nil
}

// Update persists the mutable lifecycle fields. The status moves only if the
// stored status still equals from.
func (s *PayoutStore) Update(ctx context.Context, tx Execer, payout models.Payout, from models.PayoutStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $3,
		    transaction_id = $4,
		    failure_reason = $5,
		    notes = $6,
		    order_ids = $7,
		    approved_by = $8,
		    approved_at = $9,
		    processed_at = $10,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, payout.ID, from, payout.Status, payout.TransactionID, payout.FailureReason, payout.Notes,
		pq.Array(payout.OrderIDs), payout.ApprovedBy, payout.ApprovedAt, payout.ProcessedAt)
	if err != nil {
		return translate(err)
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *PayoutStore) ListByShop(ctx context.Context, shopID string, limit, offset int) ([]models.Payout, error) {
	return s.list(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, shopID, limit, offset)
}

// List returns payouts newest first, optionally filtered by status.
func (s *PayoutStore) List(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error) {
	if status == nil {
		return s.list(ctx, `
			SELECT `+payoutColumns+`
			FROM payouts
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	return s.list(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, *status, limit, offset)
}

func (s *PayoutStore) list(ctx context.Context, query string, args ...any) ([]models.Payout, error) {
	var rows []payoutRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	payouts := make([]models.Payout, 0, len(rows))
	for _, row := range rows {
		payouts = append(payouts, row.toModel())
	}
	return payouts, nil
}

func (s *PayoutStore) StatusBreakdown(ctx context.Context) ([]models.PayoutBucket, error) {
	var buckets []models.PayoutBucket
	err := s.db.SelectContext(ctx, &buckets, `
		SELECT status, COUNT(1) AS count, COALESCE(SUM(amount), 0) AS amount
		FROM payouts
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, err
	}
	return buckets, nil
}
