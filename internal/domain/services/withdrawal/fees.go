package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
)

var hundred = decimal.NewFromInt(100)

// FeeCalculator computes the three-part withdrawal fee: a rank base fee,
// a progressive surcharge by withdrawal count this month, and a loyalty
// discount by days since the last withdrawal.
type FeeCalculator struct {
	baseFeeByRank   map[entities.Rank]decimal.Decimal
	progressiveFees []decimal.Decimal
	loyalDays       int
	veteranDays     int
	loyalDiscount   decimal.Decimal
	veteranDiscount decimal.Decimal
}

// NewFeeCalculator builds the calculator from withdrawal configuration
func NewFeeCalculator(cfg config.WithdrawalConfig) *FeeCalculator {
	base := make(map[entities.Rank]decimal.Decimal, len(cfg.BaseFeeByRank))
	for rank, fee := range cfg.BaseFeeByRank {
		base[entities.Rank(rank)] = config.MustDecimal(fee)
	}

	progressive := make([]decimal.Decimal, len(cfg.ProgressiveFees))
	for i, fee := range cfg.ProgressiveFees {
		progressive[i] = config.MustDecimal(fee)
	}

	return &FeeCalculator{
		baseFeeByRank:   base,
		progressiveFees: progressive,
		loyalDays:       cfg.LoyalDays,
		veteranDays:     cfg.VeteranDays,
		loyalDiscount:   config.MustDecimal(cfg.LoyalDiscount),
		veteranDiscount: config.MustDecimal(cfg.VeteranDiscount),
	}
}

// Calculate returns the fee breakdown for a withdrawal request.
// monthlyCount is the number of prior withdrawals this calendar month.
// The loyalty clock starts at the last completed withdrawal; accounts
// that never withdrew are NORMAL. The total fee never goes negative.
func (fc *FeeCalculator) Calculate(
	rank entities.Rank,
	monthlyCount int,
	lastWithdrawalAt *time.Time,
	amount decimal.Decimal,
	now time.Time,
) *entities.FeeBreakdown {
	base := fc.baseFeeByRank[rank]

	idx := monthlyCount
	if idx >= len(fc.progressiveFees) {
		idx = len(fc.progressiveFees) - 1
	}
	var progressive decimal.Decimal
	if idx >= 0 {
		progressive = fc.progressiveFees[idx]
	}

	tier := entities.LoyaltyTierNormal
	discount := decimal.Zero
	if lastWithdrawalAt != nil {
		days := int(now.Sub(*lastWithdrawalAt).Hours() / 24)
		switch {
		case days >= fc.veteranDays:
			tier = entities.LoyaltyTierVeteran
			discount = fc.veteranDiscount
		case days >= fc.loyalDays:
			tier = entities.LoyaltyTierLoyal
			discount = fc.loyalDiscount
		}
	}

	total := base.Add(progressive).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	feeAmount := amount.Mul(total).Div(hundred)

	return &entities.FeeBreakdown{
		BaseFee:            base,
		ProgressiveFee:     progressive,
		LoyaltyDiscount:    discount,
		LoyaltyTier:        tier,
		TotalFeePercentage: total,
		TotalFeeAmount:     feeAmount,
		NetAmount:          amount.Sub(feeAmount),
	}
}
