package models

import (
	"fmt"
	"strings"
)

type AccountKind string

const (
	AccountKindVendor   AccountKind = "VENDOR"
	AccountKindPlatform AccountKind = "PLATFORM_REVENUE"
)

type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusFrozen WalletStatus = "FROZEN"
	WalletStatusClosed WalletStatus = "CLOSED"
)

type EntryType string

const (
	EntryTypeSale           EntryType = "SALE"
	EntryTypePayoutDebit    EntryType = "PAYOUT_DEBIT"
	EntryTypePayoutReversal EntryType = "PAYOUT_REVERSAL"
	EntryTypeCommission     EntryType = "COMMISSION"
	EntryTypeAdjustment     EntryType = "ADJUSTMENT"
)

type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "PENDING"
	EntryStatusCleared  EntryStatus = "CLEARED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

type ShopStatus string

const (
	ShopStatusActive   ShopStatus = "ACTIVE"
	ShopStatusInactive ShopStatus = "INACTIVE"
)

type OrderPayoutStatus string

const (
	OrderPayoutPending  OrderPayoutStatus = "pending"
	OrderPayoutHeld     OrderPayoutStatus = "held"
	OrderPayoutReleased OrderPayoutStatus = "released"
	OrderPayoutReversed OrderPayoutStatus = "reversed"
)

type PayoutStatus string

const (
	PayoutStatusRequested  PayoutStatus = "REQUESTED"
	PayoutStatusApproved   PayoutStatus = "APPROVED"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// InFlightPayoutStatuses are the non-terminal states; at most one payout per
// shop may be in one of them.
var InFlightPayoutStatuses = []PayoutStatus{
	PayoutStatusRequested,
	PayoutStatusApproved,
	PayoutStatusProcessing,
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusRequested:  {PayoutStatusApproved, PayoutStatusFailed, PayoutStatusCancelled},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusRequested, PayoutStatusApproved, PayoutStatusProcessing,
		PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled:
		return true
	default:
		return false
	}
}

func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed || s == PayoutStatusCancelled
}

func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	for _, next := range payoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	status := PayoutStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payout status %q", value)
	}
	return status, nil
}
