package network

import (
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
)

// Commission rates in percentage points of the source's blocked balance.
// Index 0 is the daily self yield, indexes 1-3 pay the upline at that
// network depth. Rates grow with the recipient's rank.
var commissionRates = map[entities.Rank][entities.MaxNetworkLevel + 1]decimal.Decimal{
	entities.RankRecruit: {
		decimal.RequireFromString("0.70"),
		decimal.RequireFromString("5"),
		decimal.RequireFromString("2"),
		decimal.RequireFromString("1"),
	},
	entities.RankBronze: {
		decimal.RequireFromString("1.05"),
		decimal.RequireFromString("6"),
		decimal.RequireFromString("3"),
		decimal.RequireFromString("1.5"),
	},
	entities.RankSilver: {
		decimal.RequireFromString("1.40"),
		decimal.RequireFromString("7"),
		decimal.RequireFromString("4"),
		decimal.RequireFromString("2"),
	},
	entities.RankGold: {
		decimal.RequireFromString("1.75"),
		decimal.RequireFromString("8"),
		decimal.RequireFromString("5"),
		decimal.RequireFromString("3"),
	},
}

// SelfYieldRate returns the level-0 daily yield percentage for a rank
func SelfYieldRate(rank entities.Rank) decimal.Decimal {
	return commissionRates[rank][0]
}

// LevelRate returns the commission percentage a recipient of the given
// rank earns from a source at the given network depth (1-3)
func LevelRate(rank entities.Rank, level int) decimal.Decimal {
	if level < 1 || level > entities.MaxNetworkLevel {
		return decimal.Zero
	}
	return commissionRates[rank][level]
}
