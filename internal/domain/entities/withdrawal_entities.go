package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the settlement state machine:
// PENDING_APPROVAL -> APPROVED -> PROCESSING -> COMPLETED
// PENDING_APPROVAL -> REJECTED
// PROCESSING -> FAILED -> (admin retry) -> APPROVED
type WithdrawalStatus string

const (
	WithdrawalStatusPendingApproval WithdrawalStatus = "PENDING_APPROVAL"
	WithdrawalStatusApproved        WithdrawalStatus = "APPROVED"
	WithdrawalStatusProcessing      WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted       WithdrawalStatus = "COMPLETED"
	WithdrawalStatusRejected        WithdrawalStatus = "REJECTED"
	WithdrawalStatusFailed          WithdrawalStatus = "FAILED"
)

// IsTerminal reports whether the status ends the state machine.
// FAILED is non-terminal because an admin may retry it.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected
}

// LoyaltyTier keys the fee discount to days since the last withdrawal
type LoyaltyTier string

const (
	LoyaltyTierNormal  LoyaltyTier = "NORMAL"
	LoyaltyTierLoyal   LoyaltyTier = "LOYAL"
	LoyaltyTierVeteran LoyaltyTier = "VETERAN"
)

// Withdrawal is a settlement request. The gross amount is locked in the
// ledger while the request is in flight and released on rejection or
// failure.
type Withdrawal struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	AccountID          uuid.UUID        `json:"account_id" db:"account_id"`
	TokenSymbol        string           `json:"token_symbol" db:"token_symbol"`
	Amount             decimal.Decimal  `json:"amount" db:"amount"`
	FeeAmount          decimal.Decimal  `json:"fee_amount" db:"fee_amount"`
	FeePercentage      decimal.Decimal  `json:"fee_percentage" db:"fee_percentage"`
	NetAmount          decimal.Decimal  `json:"net_amount" db:"net_amount"`
	DestinationAddress string           `json:"destination_address" db:"destination_address"`
	Status             WithdrawalStatus `json:"status" db:"status"`
	ApprovedBy         *uuid.UUID       `json:"approved_by,omitempty" db:"approved_by"`
	RejectionReason    *string          `json:"rejection_reason,omitempty" db:"rejection_reason"`
	TxHash             *string          `json:"tx_hash,omitempty" db:"tx_hash"`
	FailureReason      *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// FeeBreakdown is the three-part fee computation for a withdrawal request.
// All components are percentage points of the gross amount.
type FeeBreakdown struct {
	BaseFee            decimal.Decimal `json:"base_fee"`
	ProgressiveFee     decimal.Decimal `json:"progressive_fee"`
	LoyaltyDiscount    decimal.Decimal `json:"loyalty_discount"`
	LoyaltyTier        LoyaltyTier     `json:"loyalty_tier"`
	TotalFeePercentage decimal.Decimal `json:"total_fee_percentage"`
	TotalFeeAmount     decimal.Decimal `json:"total_fee_amount"`
	NetAmount          decimal.Decimal `json:"net_amount"`
}

// RequestWithdrawalInput is the user-facing withdrawal request
type RequestWithdrawalInput struct {
	AccountID          uuid.UUID       `json:"-"`
	TokenSymbol        string          `json:"token_symbol" validate:"required"`
	Amount             decimal.Decimal `json:"amount" validate:"required"`
	DestinationAddress string          `json:"destination_address" validate:"required,evm_address"`
	ConfirmRankLoss    bool            `json:"confirm_rank_loss"`
}

// RequestWithdrawalResult is returned on a successful request, or as the
// non-committing "requires confirmation" response when the withdrawal
// would drop the account below its rank's blocked-balance threshold.
type RequestWithdrawalResult struct {
	Withdrawal           *Withdrawal   `json:"withdrawal,omitempty"`
	Fee                  *FeeBreakdown `json:"fee,omitempty"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	Message              string        `json:"message,omitempty"`
}
