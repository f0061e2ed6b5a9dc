package services

import (
	"context"
	"errors"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

// ReportService serves the admin read models.
type ReportService struct {
	wallets WalletStore
	ledger  LedgerStore
	payouts PayoutStore
}

func NewReportService(wallets WalletStore, ledger LedgerStore, payouts PayoutStore) *ReportService {
	return &ReportService{wallets: wallets, ledger: ledger, payouts: payouts}
}

type Overview struct {
	Vendors  models.WalletTotals
	Platform models.WalletTotals
	Payouts  []models.PayoutBucket
	Recent   []models.LedgerEntry
}

// Liabilities is what the platform owes vendors: every vendor bucket plus
// money already debited for payouts still awaiting transfer.
func (o Overview) Liabilities() int64 {
	total := o.Vendors.Pending + o.Vendors.Withdrawable + o.Vendors.Frozen
	for _, bucket := range o.Payouts {
		if bucket.Status == models.PayoutStatusApproved || bucket.Status == models.PayoutStatusProcessing {
			total += bucket.Amount
		}
	}
	return total
}

func (r *ReportService) Overview(ctx context.Context, recent int) (Overview, error) {
	var overview Overview
	var err error
	if overview.Vendors, err = r.wallets.Totals(ctx, models.AccountKindVendor); err != nil {
		return Overview{}, err
	}
	if overview.Platform, err = r.wallets.Totals(ctx, models.AccountKindPlatform); err != nil {
		return Overview{}, err
	}
	if overview.Payouts, err = r.payouts.StatusBreakdown(ctx); err != nil {
		return Overview{}, err
	}
	if overview.Recent, err = r.ledger.ListRecent(ctx, recent); err != nil {
		return Overview{}, err
	}
	if overview.Payouts == nil {
		overview.Payouts = []models.PayoutBucket{}
	}
	if overview.Recent == nil {
		overview.Recent = []models.LedgerEntry{}
	}
	return overview, nil
}

type VerifyReport struct {
	Checked    int                   `json:"checked"`
	Balanced   bool                  `json:"balanced"`
	Mismatches []models.BalanceCheck `json:"mismatches"`
}

// VerifyLedger compares every stored wallet total with its ledger sum.
func (r *ReportService) VerifyLedger(ctx context.Context) (VerifyReport, error) {
	checks, err := r.wallets.VerifyBalances(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{Checked: len(checks), Mismatches: []models.BalanceCheck{}}
	for _, check := range checks {
		if check.Difference() != 0 {
			report.Mismatches = append(report.Mismatches, check)
		}
	}
	report.Balanced = len(report.Mismatches) == 0
	return report, nil
}

// VerifyWallet checks a single wallet's stored total against its ledger sum.
func (r *ReportService) VerifyWallet(ctx context.Context, walletID string) (models.BalanceCheck, error) {
	wallet, err := r.wallets.GetByID(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		return models.BalanceCheck{}, ErrWalletNotFound
	}
	if err != nil {
		return models.BalanceCheck{}, err
	}
	sum, err := r.ledger.SumByAccount(ctx, wallet.ID)
	if err != nil {
		return models.BalanceCheck{}, err
	}
	return models.BalanceCheck{
		WalletID:    wallet.ID,
		OwnerID:     wallet.OwnerID,
		Kind:        wallet.Kind,
		StoredTotal: wallet.Total(),
		LedgerTotal: sum,
	}, nil
}
