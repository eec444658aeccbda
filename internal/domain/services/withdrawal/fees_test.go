package withdrawal_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/domain/services/withdrawal"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
)

func testWithdrawalConfig() config.WithdrawalConfig {
	return config.WithdrawalConfig{
		MinAmount: "10",
		DailyCapByRank: map[string]string{
			"RECRUIT": "500", "BRONZE": "2000", "SILVER": "5000", "GOLD": "20000",
		},
		BaseFeeByRank: map[string]string{
			"RECRUIT": "5", "BRONZE": "4", "SILVER": "3", "GOLD": "2",
		},
		ProgressiveFees: []string{"0", "0.5", "1", "2"},
		LoyalDays:       30,
		VeteranDays:     90,
		LoyalDiscount:   "0.5",
		VeteranDiscount: "1",
	}
}

func TestFeeCalculator_FirstWithdrawalOfMonth(t *testing.T) {
	fc := withdrawal.NewFeeCalculator(testWithdrawalConfig())
	now := time.Now().UTC()

	fee := fc.Calculate(entities.RankGold, 0, nil, decimal.NewFromInt(1000), now)

	assert.True(t, fee.BaseFee.Equal(decimal.NewFromInt(2)))
	assert.True(t, fee.ProgressiveFee.IsZero())
	assert.Equal(t, entities.LoyaltyTierNormal, fee.LoyaltyTier)
	assert.True(t, fee.TotalFeePercentage.Equal(decimal.NewFromInt(2)))
	assert.True(t, fee.TotalFeeAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, fee.NetAmount.Equal(decimal.NewFromInt(980)))
}

func TestFeeCalculator_ProgressiveSurchargeClamps(t *testing.T) {
	fc := withdrawal.NewFeeCalculator(testWithdrawalConfig())
	now := time.Now().UTC()

	// Second withdrawal this month picks the second tier
	fee := fc.Calculate(entities.RankSilver, 1, nil, decimal.NewFromInt(100), now)
	assert.True(t, fee.ProgressiveFee.Equal(decimal.RequireFromString("0.5")))

	// Count beyond the table clamps to the last tier
	fee = fc.Calculate(entities.RankSilver, 9, nil, decimal.NewFromInt(100), now)
	assert.True(t, fee.ProgressiveFee.Equal(decimal.NewFromInt(2)))
}

func TestFeeCalculator_LoyaltyTiers(t *testing.T) {
	fc := withdrawal.NewFeeCalculator(testWithdrawalConfig())
	now := time.Now().UTC()

	loyal := now.AddDate(0, 0, -45)
	fee := fc.Calculate(entities.RankRecruit, 0, &loyal, decimal.NewFromInt(100), now)
	assert.Equal(t, entities.LoyaltyTierLoyal, fee.LoyaltyTier)
	assert.True(t, fee.TotalFeePercentage.Equal(decimal.RequireFromString("4.5")))

	veteran := now.AddDate(0, 0, -100)
	fee = fc.Calculate(entities.RankRecruit, 0, &veteran, decimal.NewFromInt(100), now)
	assert.Equal(t, entities.LoyaltyTierVeteran, fee.LoyaltyTier)
	assert.True(t, fee.TotalFeePercentage.Equal(decimal.NewFromInt(4)))
}

func TestFeeCalculator_NoWithdrawalHistoryIsNormal(t *testing.T) {
	fc := withdrawal.NewFeeCalculator(testWithdrawalConfig())
	now := time.Now().UTC()

	// An old account that never withdrew earns no loyalty discount
	fee := fc.Calculate(entities.RankGold, 0, nil, decimal.NewFromInt(100), now)
	assert.Equal(t, entities.LoyaltyTierNormal, fee.LoyaltyTier)
	assert.True(t, fee.LoyaltyDiscount.IsZero())
	assert.True(t, fee.TotalFeePercentage.Equal(decimal.NewFromInt(2)))
}

func TestFeeCalculator_TotalNeverNegative(t *testing.T) {
	cfg := testWithdrawalConfig()
	cfg.BaseFeeByRank["GOLD"] = "0.5"
	fc := withdrawal.NewFeeCalculator(cfg)
	now := time.Now().UTC()
	veteran := now.AddDate(0, 0, -200)

	fee := fc.Calculate(entities.RankGold, 0, &veteran, decimal.NewFromInt(100), now)
	assert.True(t, fee.TotalFeePercentage.IsZero())
	assert.True(t, fee.TotalFeeAmount.IsZero())
	assert.True(t, fee.NetAmount.Equal(decimal.NewFromInt(100)))
}
