package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionStatus tracks payout state. Daily yield is credited
// synchronously so records are born PAID.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "PENDING"
	CommissionStatusPaid      CommissionStatus = "PAID"
	CommissionStatusCancelled CommissionStatus = "CANCELLED"
)

// MaxNetworkLevel caps the upline walk. Level 0 is self yield,
// levels 1-3 are network depth.
const MaxNetworkLevel = 3

// Commission is a single accrual for a (recipient, source, level, date)
// tuple. The tuple is unique, which makes the daily job idempotent.
type Commission struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	RecipientID   uuid.UUID        `json:"recipient_id" db:"recipient_id"`
	SourceID      uuid.UUID        `json:"source_id" db:"source_id"`
	Level         int              `json:"level" db:"level"`
	BaseAmount    decimal.Decimal  `json:"base_amount" db:"base_amount"`
	Percentage    decimal.Decimal  `json:"percentage" db:"percentage"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	ReferenceDate time.Time        `json:"reference_date" db:"reference_date"`
	Status        CommissionStatus `json:"status" db:"status"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}
