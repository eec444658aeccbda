package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionDirection marks a ledger transaction as a credit or debit
type TransactionDirection string

const (
	DirectionCredit TransactionDirection = "CREDIT"
	DirectionDebit  TransactionDirection = "DEBIT"
)

// TransactionStatus is the lifecycle of a ledger transaction.
// Deposits move PENDING -> CONFIRMED -> SENT_TO_GLOBAL (after batch collect).
type TransactionStatus string

const (
	TransactionStatusPending      TransactionStatus = "PENDING"
	TransactionStatusConfirmed    TransactionStatus = "CONFIRMED"
	TransactionStatusSentToGlobal TransactionStatus = "SENT_TO_GLOBAL"
)

// LedgerTransaction is a confirmed-chain movement against an account.
// TxHash is unique and backs deposit idempotency.
type LedgerTransaction struct {
	ID          uuid.UUID            `json:"id" db:"id"`
	AccountID   uuid.UUID            `json:"account_id" db:"account_id"`
	TxHash      string               `json:"tx_hash" db:"tx_hash"`
	Direction   TransactionDirection `json:"direction" db:"direction"`
	TokenSymbol string               `json:"token_symbol" db:"token_symbol"`
	Amount      decimal.Decimal      `json:"amount" db:"amount"`
	RawAmount   string               `json:"raw_amount" db:"raw_amount"`
	Status      TransactionStatus    `json:"status" db:"status"`
	IsTest      bool                 `json:"is_test" db:"is_test"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
	ConfirmedAt *time.Time           `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// DepositNotificationKind distinguishes the two chain-watch events
type DepositNotificationKind string

const (
	DepositSeen      DepositNotificationKind = "seen"
	DepositConfirmed DepositNotificationKind = "confirmed"
)

// DepositNotification is the payload delivered by the chain-watch provider
type DepositNotification struct {
	Kind         DepositNotificationKind `json:"kind" binding:"required"`
	TxHash       string                  `json:"tx_hash" binding:"required"`
	Address      string                  `json:"address" binding:"required"`
	TokenAddress string                  `json:"token_address"`
	TokenSymbol  string                  `json:"token_symbol"`
	RawAmount    string                  `json:"raw_amount" binding:"required"`
	IsTest       bool                    `json:"is_test"`
}
