package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is the per-account, per-token ledger partition.
// available and locked are mutated only inside atomic ledger transactions.
type Balance struct {
	AccountID       uuid.UUID       `json:"account_id" db:"account_id"`
	TokenSymbol     string          `json:"token_symbol" db:"token_symbol"`
	Available       decimal.Decimal `json:"available" db:"available"`
	Locked          decimal.Decimal `json:"locked" db:"locked"`
	ContractAddress *string         `json:"contract_address,omitempty" db:"contract_address"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Total returns available + locked
func (b *Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// TokenInfo describes a token the platform understands. Tokens arriving
// from the chain without a mapping are stored but excluded from USD math.
type TokenInfo struct {
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contract_address"`
	Decimals        int    `json:"decimals"`
	Native          bool   `json:"native"`
	Stablecoin      bool   `json:"stablecoin"`
	Blockable       bool   `json:"blockable"`
}

// CustodialAddressStatus marks whether a custodial address is in service
type CustodialAddressStatus string

const (
	CustodialAddressActive   CustodialAddressStatus = "ACTIVE"
	CustodialAddressInactive CustodialAddressStatus = "INACTIVE"
)

// CustodialAddress is a per-account deposit address held in escrow by the
// platform. The signing key is stored AES-GCM encrypted.
type CustodialAddress struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	AccountID    uuid.UUID              `json:"account_id" db:"account_id"`
	Address      string                 `json:"address" db:"address"`
	EncryptedKey string                 `json:"-" db:"encrypted_key"`
	WatchActive  bool                   `json:"watch_active" db:"watch_active"`
	Status       CustodialAddressStatus `json:"status" db:"status"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
