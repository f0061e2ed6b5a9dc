package handlers

import (
	"context"
	"net/http"

	"marketplace/internal/models"
	"marketplace/internal/money"
	"marketplace/internal/services"
	"marketplace/internal/validator"

	"github.com/go-chi/chi/v5"
)

const overviewRecentEntries = 20

func (h *Handler) WalletOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reports.Overview(r.Context(), overviewRecentEntries)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOverviewView(overview))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries, err := h.audit.List(r.Context(), r.URL.Query().Get("shopId"), limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) FreezeWallet(w http.ResponseWriter, r *http.Request) {
	h.walletAction(w, r, h.ledger.Freeze)
}

func (h *Handler) UnfreezeWallet(w http.ResponseWriter, r *http.Request) {
	h.walletAction(w, r, h.ledger.Unfreeze)
}

func (h *Handler) walletAction(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, in services.WalletActionInput) (models.Wallet, error)) {
	var req walletActionRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	wallet, err := apply(r.Context(), services.WalletActionInput{
		ShopID: chi.URLParam(r, "shopId"),
		Actor:  actor(r),
		Reason: req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newWalletView(wallet))
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.ReconcileAll(r.Context())
	if err != nil && summary.Accounts == 0 {
		h.respondError(w, r, err)
		return
	}
	body := map[string]any{
		"accounts":       summary.Accounts,
		"entriesCleared": summary.EntriesCleared,
		"amountCleared":  money.FormatMinor(summary.AmountCleared),
		"failed":         summary.Failed,
	}
	if err != nil {
		h.logg.Error(r.Context(), "reconcile finished with failures", err)
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.VerifyLedger(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	mismatches := make([]map[string]any, 0, len(report.Mismatches))
	for _, check := range report.Mismatches {
		mismatches = append(mismatches, map[string]any{
			"walletId":    check.WalletID,
			"ownerId":     check.OwnerID,
			"kind":        check.Kind,
			"storedTotal": money.FormatMinor(check.StoredTotal),
			"ledgerTotal": money.FormatMinor(check.LedgerTotal),
			"difference":  money.FormatMinor(check.Difference()),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"checked":    report.Checked,
		"balanced":   report.Balanced,
		"mismatches": mismatches,
	})
}

func (h *Handler) VerifyWallet(w http.ResponseWriter, r *http.Request) {
	check, err := h.reports.VerifyWallet(r.Context(), chi.URLParam(r, "walletId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"walletId":    check.WalletID,
		"ownerId":     check.OwnerID,
		"kind":        check.Kind,
		"storedTotal": money.FormatMinor(check.StoredTotal),
		"ledgerTotal": money.FormatMinor(check.LedgerTotal),
		"difference":  money.FormatMinor(check.Difference()),
		"balanced":    check.Difference() == 0,
	})
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.admins.Promote(r.Context(), actor(r), req.UserID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.admins.GrantRole(r.Context(), actor(r), req.AdminUserID, req.Role); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}
