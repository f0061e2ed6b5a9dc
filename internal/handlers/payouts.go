package handlers

import (
	"net/http"

	"marketplace/internal/apperrors"
	"marketplace/internal/models"
	"marketplace/internal/services"
	"marketplace/internal/validator"
)

// VendorPayouts returns the wallet, payouts and ledger history of the
// caller's shop.
func (h *Handler) VendorPayouts(w http.ResponseWriter, r *http.Request) {
	limit, err := validator.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	summary, err := h.payouts.Summary(r.Context(), vendorShop(r), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSummaryView(summary))
}

// CreatePayout answers 201 for a new request and 200 when the same request
// is replayed.
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req createPayoutRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.payouts.Create(r.Context(), services.CreatePayoutInput{
		ShopID:      vendorShop(r),
		Amount:      amount,
		RequestedBy: actor(r),
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, newPayoutView(result.Payout))
}

func (h *Handler) AdminUpdatePayout(w http.ResponseWriter, r *http.Request) {
	var req adminPayoutRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	payout, err := h.payouts.Transition(r.Context(), services.TransitionInput{
		PayoutID:      req.PayoutID,
		Action:        req.Action,
		Actor:         actor(r),
		TransactionID: req.TransactionID,
		Reason:        req.FailureReason,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newPayoutView(payout))
}

func (h *Handler) AdminListPayouts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var status *models.PayoutStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParsePayoutStatus(raw)
		if err != nil {
			h.respondError(w, r, apperrors.Wrap(apperrors.CodeValidation, err, "invalid status filter").WithDetail("status", raw))
			return
		}
		status = &parsed
	}
	payouts, err := h.payouts.List(r.Context(), status, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"payouts": newPayoutViews(payouts),
		"limit":   limit,
		"offset":  offset,
	})
}
