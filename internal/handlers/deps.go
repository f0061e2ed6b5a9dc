package handlers

import (
	"context"

	"marketplace/internal/models"
	"marketplace/internal/services"
)

type LedgerService interface {
	RecordSale(ctx context.Context, in services.SaleInput) (services.SaleResult, error)
	ReverseSale(ctx context.Context, in services.ReverseSaleInput) (services.ReversalResult, error)
	Freeze(ctx context.Context, in services.WalletActionInput) (models.Wallet, error)
	Unfreeze(ctx context.Context, in services.WalletActionInput) (models.Wallet, error)
	ReconcileAll(ctx context.Context) (models.ReconcileSummary, error)
}

type PayoutWorkflow interface {
	Create(ctx context.Context, in services.CreatePayoutInput) (services.CreatePayoutResult, error)
	Transition(ctx context.Context, in services.TransitionInput) (models.Payout, error)
	Summary(ctx context.Context, shopID string, limit int) (services.VendorSummary, error)
	List(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error)
}

type ExitWorkflow interface {
	Exit(ctx context.Context, in services.ExitInput) (services.ExitResult, error)
}

type BankDetailsService interface {
	Update(ctx context.Context, in services.BankDetailsInput) (models.BankDetails, error)
}

type ShopService interface {
	Register(ctx context.Context, in services.RegisterShopInput) (models.Shop, error)
}

type ReportService interface {
	Overview(ctx context.Context, recent int) (services.Overview, error)
	VerifyLedger(ctx context.Context) (services.VerifyReport, error)
	VerifyWallet(ctx context.Context, walletID string) (models.BalanceCheck, error)
}

type AdminService interface {
	Promote(ctx context.Context, actor, targetUserID string) error
	GrantRole(ctx context.Context, actor, adminUserID, role string) error
}

type AuditReader interface {
	List(ctx context.Context, shopID string, limit, offset int) ([]models.AuditEntry, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type ShopResolver interface {
	GetByOwner(ctx context.Context, ownerUserID string) (models.Shop, error)
}
