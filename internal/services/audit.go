package services

import (
	"encoding/json"

	"marketplace/internal/models"

	"github.com/google/uuid"
)

// Audit actions written by the services.
const (
	ActionSaleReversed       = "sale.reversed"
	ActionPayoutRequested    = "payout.requested"
	ActionPayoutApproved     = "payout.approved"
	ActionPayoutProcessing   = "payout.processing"
	ActionPayoutCompleted    = "payout.completed"
	ActionPayoutRejected     = "payout.rejected"
	ActionPayoutCancelled    = "payout.cancelled"
	ActionWalletFrozen       = "wallet.frozen"
	ActionWalletUnfrozen     = "wallet.unfrozen"
	ActionBankDetailsUpdated = "shop.bank_details_updated"
	ActionVendorExit         = "vendor.exit"
	ActionExitResettled      = "vendor.exit_resettled"
	ActionAdminPromoted      = "admin.promoted"
	ActionAdminRoleGranted   = "admin.role_granted"
)

const (
	entityPayout = "payout"
	entityWallet = "wallet"
	entityShop   = "shop"
	entityLedger = "ledger_entry"
	entityAdmin  = "admin"
)

// SystemActor performs automated actions such as ledger-failure cancellation.
const SystemActor = "system"

func newAuditEntry(action, actor, entity, targetID, shopID, reason string, metadata map[string]any) models.AuditEntry {
	data, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		data = []byte("{}")
	}
	entry := models.AuditEntry{
		ID:           uuid.NewString(),
		Action:       action,
		PerformedBy:  actor,
		TargetEntity: entity,
		TargetID:     targetID,
		Metadata:     data,
		Reason:       reason,
	}
	if shopID != "" {
		entry.ShopID = &shopID
	}
	return entry
}
