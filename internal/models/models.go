package models

import (
	"encoding/json"
	"time"
)

// PlatformOwnerID owns the single PLATFORM_REVENUE wallet.
const PlatformOwnerID = "platform"

type Wallet struct {
	ID                  string       `db:"id" json:"id"`
	OwnerID             string       `db:"owner_id" json:"owner_id"`
	Kind                AccountKind  `db:"kind" json:"kind"`
	PendingBalance      int64        `db:"pending_balance" json:"pending_balance"`
	WithdrawableBalance int64        `db:"withdrawable_balance" json:"withdrawable_balance"`
	FrozenBalance       int64        `db:"frozen_balance" json:"frozen_balance"`
	Status              WalletStatus `db:"status" json:"status"`
	MinimumWithdrawal   int64        `db:"minimum_withdrawal" json:"minimum_withdrawal"`
	LastReconciledAt    *time.Time   `db:"last_reconciled_at" json:"last_reconciled_at,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

func (w Wallet) Total() int64 {
	return w.PendingBalance + w.WithdrawableBalance + w.FrozenBalance
}

// BalanceDelta is a signed change applied to the three wallet buckets at once.
type BalanceDelta struct {
	Pending      int64
	Withdrawable int64
	Frozen       int64
}

func (d BalanceDelta) Total() int64 {
	return d.Pending + d.Withdrawable + d.Frozen
}

type LedgerEntry struct {
	ID          string      `db:"id" json:"id"`
	AccountID   string      `db:"account_id" json:"account_id"`
	Type        EntryType   `db:"type" json:"type"`
	Amount      int64       `db:"amount" json:"amount"`
	Status      EntryStatus `db:"status" json:"status"`
	ReferenceID string      `db:"reference_id" json:"reference_id"`
	Description string      `db:"description" json:"description"`
	EffectiveAt time.Time   `db:"effective_at" json:"effective_at"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	ClearedAt   *time.Time  `db:"cleared_at" json:"cleared_at,omitempty"`
}

// Counts reports whether the entry contributes to the wallet total.
func (e LedgerEntry) Counts() bool {
	return e.Status != EntryStatusReversed
}

type Payout struct {
	ID                string       `json:"id"`
	ShopID            string       `json:"shop_id"`
	WalletID          string       `json:"wallet_id"`
	Amount            int64        `json:"amount"`
	IdempotencyKey    string       `json:"idempotency_key"`
	Status            PayoutStatus `json:"status"`
	BankAccountMasked string       `json:"bank_account_masked"`
	BankIFSC          string       `json:"bank_ifsc"`
	BankName          string       `json:"bank_name"`
	TransactionID     *string      `json:"transaction_id,omitempty"`
	FailureReason     *string      `json:"failure_reason,omitempty"`
	Notes             *string      `json:"notes,omitempty"`
	OrderIDs          []string     `json:"order_ids"`
	IsExitSettlement  bool         `json:"is_exit_settlement"`
	RequestedBy       string       `json:"requested_by"`
	ApprovedBy        *string      `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time   `json:"approved_at,omitempty"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Debited reports whether the wallet has been charged for this payout.
func (p Payout) Debited() bool {
	return p.Status == PayoutStatusApproved || p.Status == PayoutStatusProcessing || p.Status == PayoutStatusCompleted
}

type PayoutBucket struct {
	Status PayoutStatus `db:"status" json:"status"`
	Count  int64        `db:"count" json:"count"`
	Amount int64        `db:"amount" json:"amount"`
}

type AuditEntry struct {
	ID           string          `db:"id" json:"id"`
	Action       string          `db:"action" json:"action"`
	PerformedBy  string          `db:"performed_by" json:"performed_by"`
	TargetEntity string          `db:"target_entity" json:"target_entity"`
	TargetID     string          `db:"target_id" json:"target_id"`
	ShopID       *string         `db:"shop_id" json:"shop_id,omitempty"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata"`
	Reason       string          `db:"reason" json:"reason"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type Shop struct {
	ID                string     `db:"id" json:"id"`
	OwnerUserID       string     `db:"owner_user_id" json:"owner_user_id"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	Status            ShopStatus `db:"status" json:"status"`
	BankAccountSealed *string    `db:"bank_account_sealed" json:"-"`
	BankAccountMasked *string    `db:"bank_account_masked" json:"bank_account_masked,omitempty"`
	BankIFSC          *string    `db:"bank_ifsc" json:"bank_ifsc,omitempty"`
	BankName          *string    `db:"bank_name" json:"bank_name,omitempty"`
	BankHolderName    *string    `db:"bank_holder_name" json:"bank_holder_name,omitempty"`
	DeactivatedAt     *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (s Shop) HasBankDetails() bool {
	return s.BankAccountSealed != nil && *s.BankAccountSealed != "" &&
		s.BankIFSC != nil && *s.BankIFSC != ""
}

type BankDetails struct {
	Sealed     string
	Masked     string
	IFSC       string
	BankName   string
	HolderName string
}

type OrderVendorPayout struct {
	OrderID   string            `db:"order_id" json:"order_id"`
	ShopID    string            `db:"shop_id" json:"shop_id"`
	Amount    int64             `db:"amount" json:"amount"`
	Status    OrderPayoutStatus `db:"status" json:"status"`
	PayoutID  *string           `db:"payout_id" json:"payout_id,omitempty"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// BalanceCheck compares a wallet's stored total with its ledger sum.
type BalanceCheck struct {
	WalletID    string      `db:"wallet_id" json:"wallet_id"`
	OwnerID     string      `db:"owner_id" json:"owner_id"`
	Kind        AccountKind `db:"kind" json:"kind"`
	StoredTotal int64       `db:"stored_total" json:"stored_total"`
	LedgerTotal int64       `db:"ledger_total" json:"ledger_total"`
}

func (c BalanceCheck) Difference() int64 {
	return c.StoredTotal - c.LedgerTotal
}

type WalletTotals struct {
	Wallets      int64 `db:"wallets"`
	Pending      int64 `db:"pending"`
	Withdrawable int64 `db:"withdrawable"`
	Frozen       int64 `db:"frozen"`
}

// ReconcileSummary reports one settlement pass.
type ReconcileSummary struct {
	Accounts       int   `json:"accounts"`
	EntriesCleared int64 `json:"entries_cleared"`
	AmountCleared  int64 `json:"amount_cleared"`
	Failed         int   `json:"failed"`
}

func (s *ReconcileSummary) Add(other ReconcileSummary) {
	s.Accounts += other.Accounts
	s.EntriesCleared += other.EntriesCleared
	s.AmountCleared += other.AmountCleared
	s.Failed += other.Failed
}
