package store

import (
	"context"
	"time"

	"marketplace/internal/models"

	"github.com/lib/pq"
)

const entryColumns = `id, account_id, type, amount, status, reference_id, description,
		       effective_at, created_at, cleared_at`

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, status, reference_id, description, effective_at, cleared_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.Status, entry.ReferenceID, entry.Description, entry.EffectiveAt, entry.ClearedAt)
	return translate(err)
}

// GetByReference returns the entry of the given type for a business reference.
func (s *LedgerStore) GetByReference(ctx context.Context, tx Getter, accountID string, entryType models.EntryType, referenceID string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := tx.GetContext(ctx, &entry, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND type = $2 AND reference_id = $3
		ORDER BY created_at
		LIMIT 1
	`, accountID, entryType, referenceID)
	if err != nil {
		return models.LedgerEntry{}, translate(err)
	}
	return entry, nil
}

// ListClearable locks PENDING sale entries that became effective at or
// before cutoff.
func (s *LedgerStore) ListClearable(ctx context.Context, tx Selecter, accountID string, cutoff time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := tx.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		  AND type = 'SALE'
		  AND status = 'PENDING'
		  AND effective_at <= $2
		ORDER BY effective_at, created_at
		FOR UPDATE
	`, accountID, cutoff)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkCleared moves PENDING entries to CLEARED and returns how many moved.
func (s *LedgerStore) MarkCleared(ctx context.Context, tx Execer, entryIDs []string, at time.Time) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'CLEARED', cleared_at = $2
		WHERE id = ANY($1) AND status = 'PENDING'
	`, pq.Array(entryIDs), at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkReversed reverses a PENDING entry in place. CLEARED entries are left
// untouched and the call reports false.
func (s *LedgerStore) MarkReversed(ctx context.Context, tx Execer, entryID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = 'REVERSED'
		WHERE id = $1 AND status = 'PENDING'
	`, entryID)
	if err != nil {
		return false, err
	}
	return expectOneRow(res)
}

func (s *LedgerStore) CountPendingSales(ctx context.Context, tx Getter, accountID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM ledger_entries
		WHERE account_id = $1 AND type = 'SALE' AND status = 'PENDING'
	`, accountID)
	return count, err
}

func (s *LedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND status <> 'REVERSED'
	`, accountID)
	return sum, err
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *LedgerStore) ListRecent(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AccountsWithClearable lists wallets holding sale entries ready to clear.
func (s *LedgerStore) AccountsWithClearable(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT account_id
		FROM ledger_entries
		WHERE type = 'SALE' AND status = 'PENDING' AND effective_at <= $1
		ORDER BY account_id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
