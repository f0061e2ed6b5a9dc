package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/services"
	"marketplace/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	testSecret   = "secret"
	testInternal = "internal-token"
	vendorUser   = "user-1"
	adminUser    = "admin-1"
)

type stubLedger struct {
	recordSaleFn   func(ctx context.Context, in services.SaleInput) (services.SaleResult, error)
	reverseSaleFn  func(ctx context.Context, in services.ReverseSaleInput) (services.ReversalResult, error)
	freezeFn       func(ctx context.Context, in services.WalletActionInput) (models.Wallet, error)
	unfreezeFn     func(ctx context.Context, in services.WalletActionInput) (models.Wallet, error)
	reconcileAllFn func(ctx context.Context) (models.ReconcileSummary, error)
}

func (s stubLedger) RecordSale(ctx context.Context, in services.SaleInput) (services.SaleResult, error) {
	if s.recordSaleFn == nil {
		return services.SaleResult{}, nil
	}
	return s.recordSaleFn(ctx, in)
}

func (s stubLedger) ReverseSale(ctx context.Context, in services.ReverseSaleInput) (services.ReversalResult, error) {
	if s.reverseSaleFn == nil {
		return services.ReversalResult{}, nil
	}
	return s.reverseSaleFn(ctx, in)
}

func (s stubLedger) Freeze(ctx context.Context, in services.WalletActionInput) (models.Wallet, error) {
	if s.freezeFn == nil {
		return models.Wallet{}, nil
	}
	return s.freezeFn(ctx, in)
}

func (s stubLedger) Unfreeze(ctx context.Context, in services.WalletActionInput) (models.Wallet, error) {
	if s.unfreezeFn == nil {
		return models.Wallet{}, nil
	}
	return s.unfreezeFn(ctx, in)
}

func (s stubLedger) ReconcileAll(ctx context.Context) (models.ReconcileSummary, error) {
	if s.reconcileAllFn == nil {
		return models.ReconcileSummary{}, nil
	}
	return s.reconcileAllFn(ctx)
}

type stubPayouts struct {
	createFn     func(ctx context.Context, in services.CreatePayoutInput) (services.CreatePayoutResult, error)
	transitionFn func(ctx context.Context, in services.TransitionInput) (models.Payout, error)
	summaryFn    func(ctx context.Context, shopID string, limit int) (services.VendorSummary, error)
	listFn       func(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error)
}

func (s stubPayouts) Create(ctx context.Context, in services.CreatePayoutInput) (services.CreatePayoutResult, error) {
	if s.createFn == nil {
		return services.CreatePayoutResult{}, nil
	}
	return s.createFn(ctx, in)
}

func (s stubPayouts) Transition(ctx context.Context, in services.TransitionInput) (models.Payout, error) {
	if s.transitionFn == nil {
		return models.Payout{}, nil
	}
	return s.transitionFn(ctx, in)
}

func (s stubPayouts) Summary(ctx context.Context, shopID string, limit int) (services.VendorSummary, error) {
	if s.summaryFn == nil {
		return services.VendorSummary{}, nil
	}
	return s.summaryFn(ctx, shopID, limit)
}

func (s stubPayouts) List(ctx context.Context, status *models.PayoutStatus, limit, offset int) ([]models.Payout, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

type stubExit struct {
	exitFn func(ctx context.Context, in services.ExitInput) (services.ExitResult, error)
}

func (s stubExit) Exit(ctx context.Context, in services.ExitInput) (services.ExitResult, error) {
	if s.exitFn == nil {
		return services.ExitResult{}, nil
	}
	return s.exitFn(ctx, in)
}

type stubBank struct {
	updateFn func(ctx context.Context, in services.BankDetailsInput) (models.BankDetails, error)
}

func (s stubBank) Update(ctx context.Context, in services.BankDetailsInput) (models.BankDetails, error) {
	if s.updateFn == nil {
		return models.BankDetails{}, nil
	}
	return s.updateFn(ctx, in)
}

type stubShops struct {
	registerFn func(ctx context.Context, in services.RegisterShopInput) (models.Shop, error)
}

func (s stubShops) Register(ctx context.Context, in services.RegisterShopInput) (models.Shop, error) {
	if s.registerFn == nil {
		return models.Shop{ID: in.ShopID, OwnerUserID: in.OwnerUserID}, nil
	}
	return s.registerFn(ctx, in)
}

type stubReports struct {
	overviewFn func(ctx context.Context, recent int) (services.Overview, error)
	verifyFn   func(ctx context.Context) (services.VerifyReport, error)
	walletFn   func(ctx context.Context, walletID string) (models.BalanceCheck, error)
}

func (s stubReports) Overview(ctx context.Context, recent int) (services.Overview, error) {
	if s.overviewFn == nil {
		return services.Overview{}, nil
	}
	return s.overviewFn(ctx, recent)
}

func (s stubReports) VerifyLedger(ctx context.Context) (services.VerifyReport, error) {
	if s.verifyFn == nil {
		return services.VerifyReport{Balanced: true}, nil
	}
	return s.verifyFn(ctx)
}

func (s stubReports) VerifyWallet(ctx context.Context, walletID string) (models.BalanceCheck, error) {
	if s.walletFn == nil {
		return models.BalanceCheck{WalletID: walletID}, nil
	}
	return s.walletFn(ctx, walletID)
}

type stubAdmins struct {
	promoteFn   func(ctx context.Context, actor, target string) error
	grantRoleFn func(ctx context.Context, actor, adminUserID, role string) error
}

func (s stubAdmins) Promote(ctx context.Context, actor, target string) error {
	if s.promoteFn == nil {
		return nil
	}
	return s.promoteFn(ctx, actor, target)
}

func (s stubAdmins) GrantRole(ctx context.Context, actor, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, actor, adminUserID, role)
}

type stubAudit struct {
	listFn func(ctx context.Context, shopID string, limit, offset int) ([]models.AuditEntry, error)
}

func (s stubAudit) List(ctx context.Context, shopID string, limit, offset int) ([]models.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, shopID, limit, offset)
}

// stubAdminDB treats adminUser as a super admin and everyone else as a
// regular user.
type stubAdminDB struct{}

func (stubAdminDB) IsAdmin(_ context.Context, userID string) (bool, bool, error) {
	return userID == adminUser, userID == adminUser, nil
}

func (stubAdminDB) HasRole(context.Context, string, string) (bool, error) {
	return false, nil
}

// stubOwners links vendorUser to shop-1.
type stubOwners struct{}

func (stubOwners) GetByOwner(_ context.Context, ownerUserID string) (models.Shop, error) {
	if ownerUserID == vendorUser {
		return models.Shop{ID: "shop-1", OwnerUserID: vendorUser}, nil
	}
	return models.Shop{}, store.ErrNotFound
}

func newTestHandler(p Params) *Handler {
	p.Config = config.Config{
		App:  config.AppConfig{Env: "test", AllowedOrigins: "*"},
		Auth: config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Minute, InternalToken: testInternal},
	}
	if p.Ledger == nil {
		p.Ledger = stubLedger{}
	}
	if p.Payouts == nil {
		p.Payouts = stubPayouts{}
	}
	if p.Exit == nil {
		p.Exit = stubExit{}
	}
	if p.Bank == nil {
		p.Bank = stubBank{}
	}
	if p.Shops == nil {
		p.Shops = stubShops{}
	}
	if p.Reports == nil {
		p.Reports = stubReports{}
	}
	if p.Admins == nil {
		p.Admins = stubAdmins{}
	}
	if p.Audit == nil {
		p.Audit = stubAudit{}
	}
	p.AdminDB = stubAdminDB{}
	p.Owners = stubOwners{}
	if p.Gatherer == nil {
		p.Gatherer = prometheus.NewRegistry()
	}
	return New(p)
}

// serve sends a request through the full router. userID "" sends no token.
func serve(t *testing.T, h *Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func serveInternal(t *testing.T, h *Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(middleware.InternalTokenHeader, testInternal)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

type errorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	decodeBody(t, rr, &body)
	return body
}

func stringPtr(value string) *string {
	return &value
}
