package handlers

import (
	"net/http"

	"marketplace/internal/money"
	"marketplace/internal/services"
	"marketplace/internal/validator"
)

// internalActor marks changes pushed by the fulfillment pipeline.
const internalActor = "fulfillment"

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	gross, err := parseAmount("grossAmount", req.GrossAmount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	in := services.SaleInput{OrderID: req.OrderID, ShopID: req.ShopID, GrossAmount: gross}
	if req.DeliveredAt != nil {
		in.DeliveredAt = *req.DeliveredAt
	}
	result, err := h.ledger.RecordSale(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"entryId":    result.Entry.ID,
		"status":     result.Entry.Status,
		"netAmount":  money.FormatMinor(result.Entry.Amount),
		"commission": money.FormatMinor(result.Commission),
		"duplicate":  result.Duplicate,
	})
}

func (h *Handler) ReverseSale(w http.ResponseWriter, r *http.Request) {
	var req reverseSaleRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.ledger.ReverseSale(r.Context(), services.ReverseSaleInput{
		OrderID: req.OrderID,
		ShopID:  req.ShopID,
		Actor:   internalActor,
		Reason:  req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"mode":       result.Mode,
		"amount":     money.FormatMinor(result.Amount),
		"commission": money.FormatMinor(result.Commission),
	})
}

func (h *Handler) RegisterShop(w http.ResponseWriter, r *http.Request) {
	var req registerShopRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	shop, err := h.shops.Register(r.Context(), services.RegisterShopInput{
		ShopID:      req.ShopID,
		OwnerUserID: req.OwnerUserID,
		Name:        req.Name,
		Email:       req.Email,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, shop)
}
