package services

import (
	"context"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/notify"
	"marketplace/internal/store"
	"marketplace/internal/websocket"
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, wallet models.Wallet) error
	GetByID(ctx context.Context, walletID string) (models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID string, kind models.AccountKind) (models.Wallet, error)
	GetByOwnerForUpdate(ctx context.Context, tx store.Getter, ownerID string, kind models.AccountKind) (models.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, walletID string) (models.Wallet, error)
	ApplyDelta(ctx context.Context, tx store.Execer, walletID string, delta models.BalanceDelta) (bool, error)
	UpdateStatus(ctx context.Context, tx store.Execer, walletID string, status models.WalletStatus) error
	MarkReconciled(ctx context.Context, tx store.Execer, walletID string, at time.Time) error
	Totals(ctx context.Context, kind models.AccountKind) (models.WalletTotals, error)
	VerifyBalances(ctx context.Context) ([]models.BalanceCheck, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	GetByReference(ctx context.Context, tx store.Getter, accountID string, entryType models.EntryType, referenceID string) (models.LedgerEntry, error)
	ListClearable(ctx context.Context, tx store.Selecter, accountID string, cutoff time.Time) ([]models.LedgerEntry, error)
	MarkCleared(ctx context.Context, tx store.Execer, entryIDs []string, at time.Time) (int64, error)
	MarkReversed(ctx context.Context, tx store.Execer, entryID string) (bool, error)
	CountPendingSales(ctx context.Context, tx store.Getter, accountID string) (int, error)
	SumByAccount(ctx context.Context, accountID string) (int64, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.LedgerEntry, error)
	AccountsWithClearable(ctx context.Context, cutoff time.Time) ([]string, error)
}

type PayoutStore interface {
	Create(ctx context.Context, tx store.Execer, payout models.Payout) error
	GetByID(ctx context.Context, payoutID string) (models.Payout, error)
	GetForUpdate(ctx context.Context, tx store.Getter, payoutID string) (models.Payout, error)
	GetByIdempotencyKey(ctx context.Context, tx store.Getter, key string) (models.Payout, error)
	GetInFlight(ctx context.Context, tx store.Getter, shopID string) (models.Payout, error)
	Update(ctx context.Context, tx store.Execer, payout models.Payout, from models.PayoutStatus) error
	ListByShop(ctx context.Context, shopID string, limit, offset int) ([]models.Payout, error)
	List(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error)
	StatusBreakdown(ctx context.Context) ([]models.PayoutBucket, error)
}

type ShopStore interface {
	Upsert(ctx context.Context, tx store.Execer, shop models.Shop) error
	GetByID(ctx context.Context, tx store.Getter, shopID string) (models.Shop, error)
	UpdateBankDetails(ctx context.Context, tx store.Execer, shopID string, details models.BankDetails) error
	Deactivate(ctx context.Context, tx store.Execer, shopID string, at time.Time) error
}

type OrderStore interface {
	Track(ctx context.Context, tx store.Execer, orderID, shopID string, amount int64) error
	HoldSettled(ctx context.Context, tx store.Selecter, shopID, walletID, payoutID string, amount int64) ([]string, error)
	MarkReversed(ctx context.Context, tx store.Execer, orderID, shopID string) (bool, error)
	ReleaseForPayout(ctx context.Context, tx store.Execer, payoutID string) (int64, error)
	ResetForPayout(ctx context.Context, tx store.Execer, payoutID string) (int64, error)
	ListByShop(ctx context.Context, shopID string, limit int) ([]models.OrderVendorPayout, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID, createdBy string) (bool, error)
	BootstrapSuper(ctx context.Context, tx store.Execer, userID string) (bool, error)
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, entry models.AuditEntry) error
}

type WalletHub interface {
	BroadcastWallet(update websocket.WalletUpdate)
}

type Notifier = notify.Notifier

type PayoutRecorder interface {
	Transition(status string, amount int64)
	LedgerFailure()
	Sale(outcome string)
}
