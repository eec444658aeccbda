package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// BatchCollectStatus is the terminal state of a consolidation run
type BatchCollectStatus string

const (
	BatchCollectRunning   BatchCollectStatus = "RUNNING"
	BatchCollectCompleted BatchCollectStatus = "COMPLETED"
	BatchCollectPartial   BatchCollectStatus = "PARTIAL"
	BatchCollectFailed    BatchCollectStatus = "FAILED"
)

// BatchCollectPhase names the three ordered sweep phases
type BatchCollectPhase string

const (
	PhaseGasDistribution BatchCollectPhase = "GAS_DISTRIBUTION"
	PhaseTokenSweep      BatchCollectPhase = "TOKEN_SWEEP"
	PhaseNativeSweep     BatchCollectPhase = "NATIVE_SWEEP"
)

// BatchCollectRun is the per-token audit record of a consolidation sweep
type BatchCollectRun struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	JobID          uuid.UUID          `json:"job_id" db:"job_id"`
	TokenSymbol    string             `json:"token_symbol" db:"token_symbol"`
	TotalCollected decimal.Decimal    `json:"total_collected" db:"total_collected"`
	WalletsTouched int                `json:"wallets_touched" db:"wallets_touched"`
	WalletsFailed  int                `json:"wallets_failed" db:"wallets_failed"`
	TxHashes       pq.StringArray     `json:"tx_hashes" db:"tx_hashes"`
	Status         BatchCollectStatus `json:"status" db:"status"`
	TriggeredBy    uuid.UUID          `json:"triggered_by" db:"triggered_by"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// BatchCollectProgress is queryable mid-run
type BatchCollectProgress struct {
	JobID     uuid.UUID          `json:"job_id"`
	Phase     BatchCollectPhase  `json:"phase"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Failed    int                `json:"failed"`
	Status    BatchCollectStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// WalletSweepFailure records a single wallet that failed during a phase
// without aborting the run
type WalletSweepFailure struct {
	Address string            `json:"address"`
	Phase   BatchCollectPhase `json:"phase"`
	Reason  string            `json:"reason"`
}
