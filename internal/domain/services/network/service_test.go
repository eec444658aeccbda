package network_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/domain/services/network"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

func payoutRegistry() *tokens.Registry {
	return tokens.NewRegistry(config.ChainConfig{
		NativeSymbol: "POL",
		Tokens: map[string]config.TokenConfig{
			"usdt": {Symbol: "USDT", ContractAddress: "0xC2132D05d31c914a87C6611C10748AEb04B58e8F", Decimals: 6, Stablecoin: true, Blockable: true},
		},
	})
}

type stubAccounts struct {
	earning []*entities.Account
	uplines map[uuid.UUID][]*entities.Account
}

func (s *stubAccounts) ListEarning(_ context.Context) ([]*entities.Account, error) {
	return s.earning, nil
}

func (s *stubAccounts) GetUplines(_ context.Context, accountID uuid.UUID, _ int) ([]*entities.Account, error) {
	return s.uplines[accountID], nil
}

type stubCommissions struct {
	rows map[string]*entities.Commission
}

func newStubCommissions() *stubCommissions {
	return &stubCommissions{rows: make(map[string]*entities.Commission)}
}

func accrualKey(c *entities.Commission) string {
	return fmt.Sprintf("%s|%s|%d|%s", c.RecipientID, c.SourceID, c.Level, c.ReferenceDate.Format("2006-01-02"))
}

func (s *stubCommissions) Insert(_ context.Context, c *entities.Commission) (bool, error) {
	key := accrualKey(c)
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	s.rows[key] = c
	return true, nil
}

func (s *stubCommissions) ListByRecipient(_ context.Context, recipientID uuid.UUID, _, _ int) ([]*entities.Commission, error) {
	var out []*entities.Commission
	for _, c := range s.rows {
		if c.RecipientID == recipientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCommissions) SumForDate(_ context.Context, date time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, c := range s.rows {
		if c.ReferenceDate.Equal(date) {
			total = total.Add(c.Amount)
		}
	}
	return total, nil
}

func (s *stubCommissions) CountForDate(_ context.Context, date time.Time) (int, error) {
	var n int
	for _, c := range s.rows {
		if c.ReferenceDate.Equal(date) {
			n++
		}
	}
	return n, nil
}

type stubBalances struct {
	credits map[uuid.UUID]decimal.Decimal
	calls   int
}

func newStubBalances() *stubBalances {
	return &stubBalances{credits: make(map[uuid.UUID]decimal.Decimal)}
}

func (s *stubBalances) Credit(_ context.Context, accountID uuid.UUID, _ string, _ *string, amount decimal.Decimal) error {
	s.calls++
	s.credits[accountID] = s.credits[accountID].Add(amount)
	return nil
}

func earningAccount(rank entities.Rank, blocked string) *entities.Account {
	return &entities.Account{
		ID:             uuid.New(),
		Rank:           rank,
		RankStatus:     entities.RankStatusActive,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.RequireFromString(blocked),
	}
}

func TestRunDaily_SelfYieldAndUplineCommissions(t *testing.T) {
	member := earningAccount(entities.RankBronze, "500")
	upline := earningAccount(entities.RankGold, "0")

	accounts := &stubAccounts{
		earning: []*entities.Account{member, upline},
		uplines: map[uuid.UUID][]*entities.Account{
			member.ID: {upline},
		},
	}
	commissions := newStubCommissions()
	balances := newStubBalances()

	svc, err := network.NewService(accounts, commissions, balances, payoutRegistry(), logger.NewNop())
	require.NoError(t, err)

	refDate := time.Date(2026, 8, 30, 15, 4, 0, 0, time.UTC)
	require.NoError(t, svc.RunDaily(context.Background(), refDate))

	// BRONZE self yield: 500 * 1.05% = 5.25
	assert.True(t, balances.credits[member.ID].Equal(decimal.RequireFromString("5.25")),
		"got %s", balances.credits[member.ID])
	// GOLD level-1 commission: 500 * 8% = 40
	assert.True(t, balances.credits[upline.ID].Equal(decimal.NewFromInt(40)),
		"got %s", balances.credits[upline.ID])
	// Upline's own self yield is zero (no blocked balance), so no row
	assert.Len(t, commissions.rows, 2)
}

func TestRunDaily_RerunIsIdempotent(t *testing.T) {
	member := earningAccount(entities.RankSilver, "1000")
	accounts := &stubAccounts{
		earning: []*entities.Account{member},
		uplines: map[uuid.UUID][]*entities.Account{},
	}
	commissions := newStubCommissions()
	balances := newStubBalances()

	svc, err := network.NewService(accounts, commissions, balances, payoutRegistry(), logger.NewNop())
	require.NoError(t, err)

	refDate := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RunDaily(context.Background(), refDate))
	require.NoError(t, svc.RunDaily(context.Background(), refDate))

	// SILVER self yield: 1000 * 1.40% = 14, paid exactly once
	assert.Equal(t, 1, balances.calls)
	assert.True(t, balances.credits[member.ID].Equal(decimal.NewFromInt(14)))
	assert.Len(t, commissions.rows, 1)
}

func TestRunDaily_DownrankedUplineEarnsNothing(t *testing.T) {
	member := earningAccount(entities.RankRecruit, "200")
	downranked := earningAccount(entities.RankGold, "0")
	downranked.RankStatus = entities.RankStatusDownranked

	accounts := &stubAccounts{
		earning: []*entities.Account{member},
		uplines: map[uuid.UUID][]*entities.Account{
			member.ID: {downranked},
		},
	}
	commissions := newStubCommissions()
	balances := newStubBalances()

	svc, err := network.NewService(accounts, commissions, balances, payoutRegistry(), logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.RunDaily(context.Background(), time.Now()))

	assert.True(t, balances.credits[downranked.ID].IsZero())
	// Only the member's own yield landed
	assert.Len(t, commissions.rows, 1)
}

func TestRunDaily_LevelRatesDecayWithDepth(t *testing.T) {
	member := earningAccount(entities.RankRecruit, "1000")
	l1 := earningAccount(entities.RankRecruit, "0")
	l2 := earningAccount(entities.RankRecruit, "0")
	l3 := earningAccount(entities.RankRecruit, "0")

	accounts := &stubAccounts{
		earning: []*entities.Account{member},
		uplines: map[uuid.UUID][]*entities.Account{
			member.ID: {l1, l2, l3},
		},
	}
	commissions := newStubCommissions()
	balances := newStubBalances()

	svc, err := network.NewService(accounts, commissions, balances, payoutRegistry(), logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.RunDaily(context.Background(), time.Now()))

	// RECRUIT upline rates: 5% / 2% / 1%
	assert.True(t, balances.credits[l1.ID].Equal(decimal.NewFromInt(50)))
	assert.True(t, balances.credits[l2.ID].Equal(decimal.NewFromInt(20)))
	assert.True(t, balances.credits[l3.ID].Equal(decimal.NewFromInt(10)))
}
