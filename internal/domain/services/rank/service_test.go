package rank_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/domain/services/rank"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

func testRankConfig() config.RankConfig {
	return config.RankConfig{
		ActiveDirectMinBlocked: "100",
		Tiers: map[string]config.RankTier{
			"RECRUIT": {MinActiveDirects: 0, MinMonthlyVolume: "0", MinBlocked: "0"},
			"BRONZE":  {MinActiveDirects: 3, MinMonthlyVolume: "1000", MinBlocked: "250"},
			"SILVER":  {MinActiveDirects: 5, MinMonthlyVolume: "5000", MinBlocked: "1000"},
			"GOLD":    {MinActiveDirects: 10, MinMonthlyVolume: "25000", MinBlocked: "5000"},
		},
	}
}

type memAccounts struct {
	accounts map[uuid.UUID]*entities.Account
	directs  map[uuid.UUID]int
	resets   int
}

func newMemAccounts(accounts ...*entities.Account) *memAccounts {
	m := &memAccounts{
		accounts: make(map[uuid.UUID]*entities.Account),
		directs:  make(map[uuid.UUID]int),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*entities.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return a, nil
}

func (m *memAccounts) CountActiveDirects(_ context.Context, accountID uuid.UUID, _ decimal.Decimal) (int, error) {
	return m.directs[accountID], nil
}

func (m *memAccounts) ListActive(_ context.Context) ([]*entities.Account, error) {
	var out []*entities.Account
	for _, a := range m.accounts {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAccounts) ListByRankStatus(_ context.Context, status entities.RankStatus) ([]*entities.Account, error) {
	var out []*entities.Account
	for _, a := range m.accounts {
		if a.RankStatus == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAccounts) UpdateRank(_ context.Context, accountID uuid.UUID, r entities.Rank) error {
	m.accounts[accountID].Rank = r
	return nil
}

func (m *memAccounts) UpdateRankStatus(_ context.Context, accountID uuid.UUID, from, to entities.RankStatus) error {
	a := m.accounts[accountID]
	if a.RankStatus != from {
		return domainerrors.ErrInvalidTransition
	}
	a.RankStatus = to
	return nil
}

func (m *memAccounts) ResetMonthlyVolumes(_ context.Context) error {
	m.resets++
	for _, a := range m.accounts {
		a.MonthlyVolume = decimal.Zero
	}
	return nil
}

type memStats struct {
	snapshots map[string]*entities.MonthlyStats
}

func newMemStats() *memStats {
	return &memStats{snapshots: make(map[string]*entities.MonthlyStats)}
}

func statsKey(accountID uuid.UUID, year, month int) string {
	return accountID.String() + "/" + time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (m *memStats) Upsert(_ context.Context, s *entities.MonthlyStats) error {
	m.snapshots[statsKey(s.AccountID, s.Year, s.Month)] = s
	return nil
}

func (m *memStats) Get(_ context.Context, accountID uuid.UUID, year, month int) (*entities.MonthlyStats, error) {
	s, ok := m.snapshots[statsKey(accountID, year, month)]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return s, nil
}

func newRankService(accounts *memAccounts, stats *memStats) *rank.Service {
	return rank.NewService(accounts, stats, testRankConfig(), notify.NewLogNotifier(logger.NewNop()), logger.NewNop())
}

func TestEvaluatePromotion_ClimbsEveryQualifiedRank(t *testing.T) {
	account := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankRecruit,
		RankStatus:     entities.RankStatusActive,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(1200),
		LifetimeVolume: decimal.NewFromInt(6000),
	}
	accounts := newMemAccounts(account)
	accounts.directs[account.ID] = 6

	svc := newRankService(accounts, newMemStats())
	require.NoError(t, svc.EvaluatePromotion(context.Background(), account.ID))

	// Qualifies for BRONZE and SILVER, but GOLD needs 10 directs
	assert.Equal(t, entities.RankSilver, account.Rank)
}

func TestEvaluatePromotion_SkipsInactiveAccounts(t *testing.T) {
	account := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankRecruit,
		RankStatus:     entities.RankStatusActive,
		Status:         entities.AccountStatusPendingActivation,
		BlockedBalance: decimal.NewFromInt(9999),
		LifetimeVolume: decimal.NewFromInt(99999),
	}
	accounts := newMemAccounts(account)
	accounts.directs[account.ID] = 20

	svc := newRankService(accounts, newMemStats())
	require.NoError(t, svc.EvaluatePromotion(context.Background(), account.ID))

	assert.Equal(t, entities.RankRecruit, account.Rank)
}

func TestMonthlyMaintenance_WarningThenDownranked(t *testing.T) {
	account := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankBronze,
		RankStatus:     entities.RankStatusActive,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(300),
		MonthlyVolume:  decimal.Zero,
	}
	accounts := newMemAccounts(account)
	stats := newMemStats()
	svc := newRankService(accounts, stats)

	// Close July: volume requirement missed, ACTIVE -> WARNING
	july := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	require.NoError(t, svc.RunMonthlyMaintenance(context.Background(), july))
	assert.Equal(t, entities.RankStatusWarning, account.RankStatus)
	assert.Equal(t, 1, accounts.resets)

	// Close August: still unmet, WARNING -> DOWNRANKED
	august := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	require.NoError(t, svc.RunMonthlyMaintenance(context.Background(), august))
	assert.Equal(t, entities.RankStatusDownranked, account.RankStatus)
}

func TestMonthlyMaintenance_RerunDoesNotDemoteTwice(t *testing.T) {
	account := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankBronze,
		RankStatus:     entities.RankStatusActive,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(300),
		MonthlyVolume:  decimal.Zero,
	}
	accounts := newMemAccounts(account)
	stats := newMemStats()
	svc := newRankService(accounts, stats)

	now := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	require.NoError(t, svc.RunMonthlyMaintenance(context.Background(), now))
	assert.Equal(t, entities.RankStatusWarning, account.RankStatus)

	// A crash-recovery re-run for the same month reuses the snapshot and
	// must not advance WARNING to DOWNRANKED
	require.NoError(t, svc.RunMonthlyMaintenance(context.Background(), now))
	assert.Equal(t, entities.RankStatusWarning, account.RankStatus)
}

func TestMonthlyMaintenance_MetRequirementsRecoverWarning(t *testing.T) {
	account := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankBronze,
		RankStatus:     entities.RankStatusWarning,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(300),
		MonthlyVolume:  decimal.NewFromInt(1500),
	}
	accounts := newMemAccounts(account)
	accounts.directs[account.ID] = 4
	svc := newRankService(accounts, newMemStats())

	now := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	require.NoError(t, svc.RunMonthlyMaintenance(context.Background(), now))

	assert.Equal(t, entities.RankStatusActive, account.RankStatus)
}

func TestGraceRecovery_RestoresQualifiedAccounts(t *testing.T) {
	recovered := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankBronze,
		RankStatus:     entities.RankStatusDownranked,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(400),
		MonthlyVolume:  decimal.NewFromInt(2000),
	}
	stillOut := &entities.Account{
		ID:             uuid.New(),
		Rank:           entities.RankBronze,
		RankStatus:     entities.RankStatusDownranked,
		Status:         entities.AccountStatusActive,
		BlockedBalance: decimal.NewFromInt(10),
		MonthlyVolume:  decimal.Zero,
	}
	accounts := newMemAccounts(recovered, stillOut)
	accounts.directs[recovered.ID] = 3
	svc := newRankService(accounts, newMemStats())

	require.NoError(t, svc.RunGraceRecovery(context.Background()))

	assert.Equal(t, entities.RankStatusActive, recovered.RankStatus)
	assert.Equal(t, entities.RankStatusDownranked, stillOut.RankStatus)
}
