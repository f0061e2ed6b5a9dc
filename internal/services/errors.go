package services

import (
	"errors"

	"marketplace/internal/apperrors"
	"marketplace/internal/db"
	"marketplace/internal/money"
	"marketplace/internal/store"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountNotActive      = errors.New("wallet is not active")
	ErrAccountClosed         = errors.New("wallet is closed")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrDebitNotFound         = errors.New("no payout debit to reverse")
	ErrAlreadyDebited        = errors.New("payout already debited")
	ErrAlreadyReversed       = errors.New("entry already reversed")
	ErrEntryNotReversible    = errors.New("entry cannot be reversed")
	ErrSaleNotFound          = errors.New("sale not found")
	ErrShopNotFound          = errors.New("shop not found")
	ErrShopInactive          = errors.New("shop is inactive")
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPayoutInFlight        = errors.New("payout already in flight")
	ErrBelowThreshold        = errors.New("amount below minimum withdrawal")
	ErrBankDetailsMissing    = errors.New("bank details required")
	ErrInvalidBankDetails    = errors.New("invalid bank details")
	ErrTransactionIDRequired = errors.New("transaction id required")
	ErrReasonRequired        = errors.New("reason required")
	ErrInvalidTransition     = errors.New("invalid payout transition")
	ErrInvalidAction         = errors.New("invalid payout action")
	ErrInvalidWalletState    = errors.New("invalid wallet state")
	ErrLedgerFailure         = errors.New("ledger operation failed")
	ErrExitBlocked           = errors.New("vendor exit blocked")
	ErrSuperAdminRequired    = errors.New("super admin required")
	ErrNotAdmin              = errors.New("user is not an admin")
	ErrUnknownRole           = errors.New("unknown admin role")
)

// DetailError attaches caller-actionable data to a sentinel error. Both the
// sentinel and the optional cause are reachable through errors.Is/As.
type DetailError struct {
	kind    error
	cause   error
	message string
	details map[string]any
}

func withDetails(kind error, details map[string]any) *DetailError {
	return &DetailError{kind: kind, details: details}
}

func (e *DetailError) withCause(cause error) *DetailError {
	e.cause = cause
	return e
}

func (e *DetailError) withMessage(message string) *DetailError {
	e.message = message
	return e
}

func (e *DetailError) Error() string {
	if e.cause != nil {
		return e.kind.Error() + ": " + e.cause.Error()
	}
	return e.kind.Error()
}

func (e *DetailError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

func (e *DetailError) Details() map[string]any {
	return e.details
}

func insufficientFunds(available, requested int64) error {
	return withDetails(ErrInsufficientFunds, map[string]any{
		"withdrawable_balance": money.FormatMinor(available),
		"requested":            money.FormatMinor(requested),
	})
}

type errorClass struct {
	target  error
	code    apperrors.Code
	message string
}

// Order matters: the first matching class wins, so specific failures are
// listed before the wrappers that may also be present in the chain.
var errorClasses = []errorClass{
	{ErrLedgerFailure, apperrors.CodeConflict, "payout cancelled: the wallet debit could not be applied"},
	{ErrPayoutInFlight, apperrors.CodeConflict, "a payout is already in flight for this shop"},
	{ErrExitBlocked, apperrors.CodeStateConflict, "vendor exit is blocked"},
	{ErrInvalidAmount, apperrors.CodeValidation, "amount must be a positive value"},
	{ErrBelowThreshold, apperrors.CodeValidation, "amount is below the minimum withdrawal threshold"},
	{ErrInsufficientFunds, apperrors.CodeValidation, "amount exceeds the withdrawable balance"},
	{ErrBankDetailsMissing, apperrors.CodeValidation, "bank details must be added before requesting a payout"},
	{ErrInvalidBankDetails, apperrors.CodeValidation, "bank details are invalid"},
	{ErrTransactionIDRequired, apperrors.CodeValidation, "transactionId is required to complete a payout"},
	{ErrReasonRequired, apperrors.CodeValidation, "a reason is required"},
	{ErrInvalidAction, apperrors.CodeValidation, "action must be one of approve, process, complete, reject"},
	{ErrInvalidTransition, apperrors.CodeStateConflict, "payout cannot move to the requested status"},
	{ErrInvalidWalletState, apperrors.CodeStateConflict, "wallet is not in the required state"},
	{ErrAccountNotActive, apperrors.CodeStateConflict, "wallet is not active"},
	{ErrAccountClosed, apperrors.CodeStateConflict, "wallet is closed"},
	{ErrShopInactive, apperrors.CodeStateConflict, "shop is inactive"},
	{ErrAlreadyDebited, apperrors.CodeStateConflict, "payout has already been debited"},
	{ErrAlreadyReversed, apperrors.CodeStateConflict, "entry has already been reversed"},
	{ErrEntryNotReversible, apperrors.CodeStateConflict, "entry cannot be reversed"},
	{ErrDebitNotFound, apperrors.CodeStateConflict, "no debit exists for this payout"},
	{ErrSuperAdminRequired, apperrors.CodeForbidden, "super admin privileges required"},
	{ErrNotAdmin, apperrors.CodeValidation, "target user is not an admin"},
	{ErrUnknownRole, apperrors.CodeValidation, "role is not recognised"},
	{ErrPayoutNotFound, apperrors.CodeNotFound, "payout not found"},
	{ErrShopNotFound, apperrors.CodeNotFound, "shop not found"},
	{ErrWalletNotFound, apperrors.CodeNotFound, "wallet not found"},
	{ErrSaleNotFound, apperrors.CodeNotFound, "sale not found"},
	{store.ErrNotFound, apperrors.CodeNotFound, "resource not found"},
	{db.ErrRetryLimit, apperrors.CodeConflict, "too many concurrent updates, retry the request"},
}

// AppError maps service failures onto the HTTP-facing taxonomy. Unknown
// errors become INTERNAL_ERROR with the cause kept for logging.
func AppError(err error) *apperrors.Error {
	if err == nil {
		return nil
	}
	if typed := apperrors.As(err); typed != nil {
		return typed
	}
	var details map[string]any
	var message string
	var detailed *DetailError
	if errors.As(err, &detailed) {
		details = detailed.Details()
		message = detailed.message
	}
	for _, class := range errorClasses {
		if errors.Is(err, class.target) {
			if message == "" {
				message = class.message
			}
			return apperrors.Wrap(class.code, err, message).WithDetails(details)
		}
	}
	return apperrors.Wrap(apperrors.CodeInternal, err, "internal server error")
}
