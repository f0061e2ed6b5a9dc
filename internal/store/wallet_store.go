package store

import (
	"context"
	"time"

	"marketplace/internal/models"
)

const walletColumns = `id, owner_id, kind, pending_balance, withdrawable_balance, frozen_balance,
		       status, minimum_withdrawal, last_reconciled_at, created_at, updated_at`

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

// Create inserts the wallet unless the owner already has one of that kind.
func (s *WalletStore) Create(ctx context.Context, tx Execer, wallet models.Wallet) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, kind, status, minimum_withdrawal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, kind) DO NOTHING
	`, wallet.ID, wallet.OwnerID, wallet.Kind, wallet.Status, wallet.MinimumWithdrawal)
	return translate(err)
}

func (s *WalletStore) GetByID(ctx context.Context, walletID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
	`, walletID)
	if err != nil {
		return models.Wallet{}, translate(err)
	}
	return wallet, nil
}

func (s *WalletStore) GetByOwner(ctx context.Context, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1 AND kind = $2
	`, ownerID, kind)
	if err != nil {
		return models.Wallet{}, translate(err)
	}
	return wallet, nil
}

// GetByOwnerForUpdate locks the wallet row for the rest of the transaction.
func (s *WalletStore) GetByOwnerForUpdate(ctx context.Context, tx Getter, ownerID string, kind models.AccountKind) (models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE
	`, ownerID, kind)
	if err != nil {
		return models.Wallet{}, translate(err)
	}
	return wallet, nil
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, walletID)
	if err != nil {
		return models.Wallet{}, translate(err)
	}
	return wallet, nil
}

// ApplyDelta adds delta to the wallet buckets only if none would go negative.
// It reports false, without error, when the guard rejected the change.
func (s *WalletStore) ApplyDelta(ctx context.Context, tx Execer, walletID string, delta models.BalanceDelta) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET pending_balance = pending_balance + $2,
		    withdrawable_balance = withdrawable_balance + $3,
		    frozen_balance = frozen_balance + $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND pending_balance + $2 >= 0
		  AND withdrawable_balance + $3 >= 0
		  AND frozen_balance + $4 >= 0
	`, walletID, delta.Pending, delta.Withdrawable, delta.Frozen)
	if err != nil {
		return false, err
	}
	return expectOneRow(res)
}

func (s *WalletStore) UpdateStatus(ctx context.Context, tx Execer, walletID string, status models.WalletStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, walletID, status)
	if err != nil {
		return err
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

func (s *WalletStore) MarkReconciled(ctx context.Context, tx Execer, walletID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET last_reconciled_at = $2, updated_at = NOW()
		WHERE id = $1
	`, walletID, at)
	return err
}

func (s *WalletStore) Totals(ctx context.Context, kind models.AccountKind) (models.WalletTotals, error) {
	var totals models.WalletTotals
	err := s.db.GetContext(ctx, &totals, `
		SELECT COUNT(1) AS wallets,
		       COALESCE(SUM(pending_balance), 0) AS pending,
		       COALESCE(SUM(withdrawable_balance), 0) AS withdrawable,
		       COALESCE(SUM(frozen_balance), 0) AS frozen
		FROM wallets
		WHERE kind = $1
	`, kind)
	return totals, err
}

// VerifyBalances compares each wallet's stored total with the signed sum of
// its non-reversed ledger entries.
func (s *WalletStore) VerifyBalances(ctx context.Context) ([]models.BalanceCheck, error) {
	var rows []models.BalanceCheck
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id AS wallet_id,
		       w.owner_id,
		       w.kind,
		       (w.pending_balance + w.withdrawable_balance + w.frozen_balance) AS stored_total,
		       COALESCE(SUM(l.amount) FILTER (WHERE l.status <> 'REVERSED'), 0) AS ledger_total
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.account_id = w.id
		GROUP BY w.id, w.owner_id, w.kind, w.pending_balance, w.withdrawable_balance, w.frozen_balance
		ORDER BY w.created_at
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
