package handlers

import (
	"errors"
	"net/http"
	"time"

	"marketplace/internal/apperrors"
	"marketplace/internal/auth"
	"marketplace/internal/middleware"
	"marketplace/internal/money"
	"marketplace/internal/services"
	"marketplace/internal/store"
	"marketplace/internal/validator"
	"marketplace/internal/websocket"
)

func (h *Handler) VendorExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeJSONBody(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	result, err := h.exit.Exit(r.Context(), services.ExitInput{
		ShopID: vendorShop(r),
		Actor:  actor(r),
		Reason: req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	body := map[string]any{
		"shopId":           result.ShopID,
		"walletClosed":     result.WalletClosed,
		"settlementAmount": money.FormatMinor(result.SettlementAmount),
		"settlementPayout": nil,
	}
	if result.SettlementPayout != nil {
		body["settlementPayout"] = newPayoutView(*result.SettlementPayout)
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *Handler) UpdateBankDetails(w http.ResponseWriter, r *http.Request) {
	var req bankDetailsRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	details, err := h.bank.Update(r.Context(), services.BankDetailsInput{
		ShopID:        vendorShop(r),
		Actor:         actor(r),
		AccountNumber: req.AccountNumber,
		IFSC:          req.IFSC,
		BankName:      req.BankName,
		HolderName:    req.HolderName,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"bankAccountMasked": details.Masked,
		"ifsc":              details.IFSC,
		"bankName":          details.BankName,
		"holderName":        details.HolderName,
	})
}

// WalletSocket upgrades to a websocket streaming the caller's wallet
// updates. Browsers cannot set headers on upgrade, so the token may also
// come from the query string.
func (h *Handler) WalletSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		middleware.WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "missing token"))
		return
	}
	claims, err := auth.ParseToken(h.cfg.Auth.JWTSecret, token)
	if err != nil {
		middleware.WriteError(w, apperrors.Wrap(apperrors.CodeUnauthorized, err, "invalid token"))
		return
	}
	shop, err := h.owners.GetByOwner(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, apperrors.New(apperrors.CodeForbidden, "no shop is linked to this account"))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	summary, err := h.payouts.Summary(r.Context(), shop.ID, 1)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var snapshot *websocket.WalletUpdate
	if summary.Wallet != nil {
		update := websocket.UpdateFor("wallet.snapshot", *summary.Wallet, "", time.Now().UTC())
		snapshot = &update
	}
	websocket.ServeWS(w, r, h.hub, shop.ID, snapshot)
}
