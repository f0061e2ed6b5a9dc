package handlers

import (
	"net/http"
	"time"

	"marketplace/internal/apperrors"
	"marketplace/internal/money"
	"marketplace/internal/validator"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type createPayoutRequest struct {
	Amount string `json:"amount" validate:"required,amount"`
	Notes  string `json:"notes" validate:"max=500"`
}

type adminPayoutRequest struct {
	PayoutID      string `json:"payoutId" validate:"required"`
	Action        string `json:"action" validate:"required"`
	TransactionID string `json:"transactionId" validate:"max=128"`
	FailureReason string `json:"failureReason" validate:"max=500"`
	Notes         string `json:"notes" validate:"max=500"`
}

type walletActionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type exitRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type bankDetailsRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required,bank_account"`
	IFSC          string `json:"ifsc" validate:"required,ifsc"`
	BankName      string `json:"bankName" validate:"required,max=120"`
	HolderName    string `json:"holderName" validate:"required,max=120"`
}

type saleRequest struct {
	OrderID     string     `json:"orderId" validate:"required,max=128"`
	ShopID      string     `json:"shopId" validate:"required,max=128"`
	GrossAmount string     `json:"grossAmount" validate:"required,amount"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

type reverseSaleRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
	ShopID  string `json:"shopId" validate:"required,max=128"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

type registerShopRequest struct {
	ShopID      string `json:"shopId" validate:"required,max=128"`
	OwnerUserID string `json:"ownerUserId" validate:"required,max=128"`
	Name        string `json:"name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type promoteRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type grantRoleRequest struct {
	AdminUserID string `json:"adminUserId" validate:"required"`
	Role        string `json:"role" validate:"required"`
}

// parseAmount converts a validated decimal string to minor units.
func parseAmount(field, raw string) (int64, error) {
	amount, err := money.ParsePositiveMinor(raw)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeValidation, err, "invalid amount").WithDetail(field, raw)
	}
	return amount, nil
}

func parsePage(r *http.Request) (int, int, error) {
	limit, err := validator.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := validator.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
