package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rank is the network tier governing commission rates, withdrawal fees
// and daily withdrawal caps
type Rank string

const (
	RankRecruit Rank = "RECRUIT"
	RankBronze  Rank = "BRONZE"
	RankSilver  Rank = "SILVER"
	RankGold    Rank = "GOLD"
)

// RankOrder lists ranks from lowest to highest
var RankOrder = []Rank{RankRecruit, RankBronze, RankSilver, RankGold}

// Next returns the rank above r, or r itself if already at the top
func (r Rank) Next() Rank {
	for i, rank := range RankOrder {
		if rank == r && i < len(RankOrder)-1 {
			return RankOrder[i+1]
		}
	}
	return r
}

// Previous returns the rank below r, or r itself if already at the bottom
func (r Rank) Previous() Rank {
	for i, rank := range RankOrder {
		if rank == r && i > 0 {
			return RankOrder[i-1]
		}
	}
	return r
}

// RankStatus tracks rank-maintenance standing
type RankStatus string

const (
	RankStatusActive     RankStatus = "ACTIVE"
	RankStatusWarning    RankStatus = "WARNING"
	RankStatusDownranked RankStatus = "DOWNRANKED"
)

// AccountStatus tracks activation state
type AccountStatus string

const (
	AccountStatusPendingActivation AccountStatus = "PENDING_ACTIVATION"
	AccountStatusActive            AccountStatus = "ACTIVE"
)

// Account is a platform member. The referrer link forms the network tree
// and is immutable after creation.
type Account struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ReferrerID       *uuid.UUID      `json:"referrer_id,omitempty" db:"referrer_id"`
	ReferralCode     string          `json:"referral_code" db:"referral_code"`
	Rank             Rank            `json:"rank" db:"rank"`
	RankStatus       RankStatus      `json:"rank_status" db:"rank_status"`
	Status           AccountStatus   `json:"status" db:"status"`
	BlockedBalance   decimal.Decimal `json:"blocked_balance" db:"blocked_balance"`
	LifetimeVolume   decimal.Decimal `json:"lifetime_volume" db:"lifetime_volume"`
	MonthlyVolume    decimal.Decimal `json:"monthly_volume" db:"monthly_volume"`
	RankConqueredAt  *time.Time      `json:"rank_conquered_at,omitempty" db:"rank_conquered_at"`
	LastWithdrawalAt *time.Time      `json:"last_withdrawal_at,omitempty" db:"last_withdrawal_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the account has crossed the activation threshold
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// EarnsCommissions reports whether the account is eligible for yield and
// network commissions. Downranked accounts keep their blocked balance but
// earn nothing until they re-qualify.
func (a *Account) EarnsCommissions() bool {
	return a.IsActive() && a.RankStatus != RankStatusDownranked
}

// RankRequirements holds the thresholds an account must meet to reach or
// maintain a rank
type RankRequirements struct {
	Rank             Rank
	MinActiveDirects int
	MinMonthlyVolume decimal.Decimal
	MinBlocked       decimal.Decimal
}

// MonthlyStats is an append-only per-account maintenance snapshot,
// one row per (account, year, month), upserted idempotently.
type MonthlyStats struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	AccountID       uuid.UUID       `json:"account_id" db:"account_id"`
	Year            int             `json:"year" db:"year"`
	Month           int             `json:"month" db:"month"`
	ActiveDirects   int             `json:"active_directs" db:"active_directs"`
	NetworkVolume   decimal.Decimal `json:"network_volume" db:"network_volume"`
	RequirementsMet bool            `json:"requirements_met" db:"requirements_met"`
	RankAtStart     Rank            `json:"rank_at_start" db:"rank_at_start"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
