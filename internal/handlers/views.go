package handlers

import (
	"time"

	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/services"
)

// Amounts leave the API as decimal strings in major units.

type walletView struct {
	ID                  string     `json:"id"`
	ShopID              string     `json:"shopId"`
	Status              string     `json:"status"`
	PendingBalance      string     `json:"pendingBalance"`
	WithdrawableBalance string     `json:"withdrawableBalance"`
	FrozenBalance       string     `json:"frozenBalance"`
	TotalBalance        string     `json:"totalBalance"`
	MinimumWithdrawal   string     `json:"minimumWithdrawalThreshold"`
	LastReconciledAt    *time.Time `json:"lastReconciledAt,omitempty"`
}

func newWalletView(w models.Wallet) walletView {
	return walletView{
		ID:                  w.ID,
		ShopID:              w.OwnerID,
		Status:              string(w.Status),
		PendingBalance:      money.FormatMinor(w.PendingBalance),
		WithdrawableBalance: money.FormatMinor(w.WithdrawableBalance),
		FrozenBalance:       money.FormatMinor(w.FrozenBalance),
		TotalBalance:        money.FormatMinor(w.Total()),
		MinimumWithdrawal:   money.FormatMinor(w.MinimumWithdrawal),
		LastReconciledAt:    w.LastReconciledAt,
	}
}

type payoutView struct {
	ID                string     `json:"payoutId"`
	ShopID            string     `json:"shopId"`
	Amount            string     `json:"amount"`
	Status            string     `json:"status"`
	IdempotencyKey    string     `json:"idempotencyKey"`
	BankAccountMasked string     `json:"bankAccountMasked"`
	BankIFSC          string     `json:"bankIfsc"`
	BankName          string     `json:"bankName"`
	TransactionID     *string    `json:"transactionId,omitempty"`
	FailureReason     *string    `json:"failureReason,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	OrderIDs          []string   `json:"orderIds"`
	IsExitSettlement  bool       `json:"isExitSettlement"`
	RequestedBy       string     `json:"requestedBy"`
	ApprovedBy        *string    `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time `json:"approvedAt,omitempty"`
	ProcessedAt       *time.Time `json:"processedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func newPayoutView(p models.Payout) payoutView {
	orderIDs := p.OrderIDs
	if orderIDs == nil {
		orderIDs = []string{}
	}
	return payoutView{
		ID:                p.ID,
		ShopID:            p.ShopID,
		Amount:            money.FormatMinor(p.Amount),
		Status:            string(p.Status),
		IdempotencyKey:    p.IdempotencyKey,
		BankAccountMasked: p.BankAccountMasked,
		BankIFSC:          p.BankIFSC,
		BankName:          p.BankName,
		TransactionID:     p.TransactionID,
		FailureReason:     p.FailureReason,
		Notes:             p.Notes,
		OrderIDs:          orderIDs,
		IsExitSettlement:  p.IsExitSettlement,
		RequestedBy:       p.RequestedBy,
		ApprovedBy:        p.ApprovedBy,
		ApprovedAt:        p.ApprovedAt,
		ProcessedAt:       p.ProcessedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func newPayoutViews(payouts []models.Payout) []payoutView {
	views := make([]payoutView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, newPayoutView(p))
	}
	return views
}

type entryView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	ReferenceID string     `json:"referenceId"`
	Description string     `json:"description"`
	EffectiveAt time.Time  `json:"effectiveAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClearedAt   *time.Time `json:"clearedAt,omitempty"`
	AccountID   string     `json:"accountId,omitempty"`
}

func newEntryViews(entries []models.LedgerEntry, withAccount bool) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		view := entryView{
			ID:          e.ID,
			Type:        string(e.Type),
			Amount:      money.FormatMinor(e.Amount),
			Status:      string(e.Status),
			ReferenceID: e.ReferenceID,
			Description: e.Description,
			EffectiveAt: e.EffectiveAt,
			CreatedAt:   e.CreatedAt,
			ClearedAt:   e.ClearedAt,
		}
		if withAccount {
			view.AccountID = e.AccountID
		}
		views = append(views, view)
	}
	return views
}

type orderView struct {
	OrderID  string  `json:"orderId"`
	Amount   string  `json:"amount"`
	Status   string  `json:"status"`
	PayoutID *string `json:"payoutId,omitempty"`
}

type summaryView struct {
	Wallet   *walletView  `json:"wallet"`
	InFlight *payoutView  `json:"inFlightPayout"`
	Payouts  []payoutView `json:"payouts"`
	Ledger   []entryView  `json:"ledger"`
	Orders   []orderView  `json:"orders"`
}

func newSummaryView(s services.VendorSummary) summaryView {
	view := summaryView{
		Payouts: newPayoutViews(s.Payouts),
		Ledger:  newEntryViews(s.Entries, false),
		Orders:  make([]orderView, 0, len(s.Orders)),
	}
	if s.Wallet != nil {
		wallet := newWalletView(*s.Wallet)
		view.Wallet = &wallet
	}
	if s.InFlight != nil {
		inFlight := newPayoutView(*s.InFlight)
		view.InFlight = &inFlight
	}
	for _, o := range s.Orders {
		view.Orders = append(view.Orders, orderView{
			OrderID:  o.OrderID,
			Amount:   money.FormatMinor(o.Amount),
			Status:   string(o.Status),
			PayoutID: o.PayoutID,
		})
	}
	return view
}

type totalsView struct {
	Wallets      int64  `json:"wallets"`
	Pending      string `json:"pending"`
	Withdrawable string `json:"withdrawable"`
	Frozen       string `json:"frozen"`
}

func newTotalsView(t models.WalletTotals) totalsView {
	return totalsView{
		Wallets:      t.Wallets,
		Pending:      money.FormatMinor(t.Pending),
		Withdrawable: money.FormatMinor(t.Withdrawable),
		Frozen:       money.FormatMinor(t.Frozen),
	}
}

type bucketView struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Amount string `json:"amount"`
}

type overviewView struct {
	Liabilities     string       `json:"liabilities"`
	Vendors         totalsView   `json:"vendors"`
	PlatformRevenue totalsView   `json:"platformRevenue"`
	Payouts         []bucketView `json:"payoutBreakdown"`
	RecentActivity  []entryView  `json:"recentActivity"`
}

func newOverviewView(o services.Overview) overviewView {
	view := overviewView{
		Liabilities:     money.FormatMinor(o.Liabilities()),
		Vendors:         newTotalsView(o.Vendors),
		PlatformRevenue: newTotalsView(o.Platform),
		Payouts:         make([]bucketView, 0, len(o.Payouts)),
		RecentActivity:  newEntryViews(o.Recent, true),
	}
	for _, b := range o.Payouts {
		view.Payouts = append(view.Payouts, bucketView{Status: string(b.Status), Count: b.Count, Amount: money.FormatMinor(b.Amount)})
	}
	return view
}
