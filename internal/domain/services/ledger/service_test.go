package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/ledger"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

type memBalances struct {
	balance *entities.Balance
	credits int
	locks   int
}

func (m *memBalances) Get(_ context.Context, _ uuid.UUID, _ string) (*entities.Balance, error) {
	if m.balance == nil {
		return nil, domainerrors.ErrUnknownToken
	}
	return m.balance, nil
}

func (m *memBalances) GetAll(_ context.Context, _ uuid.UUID) ([]*entities.Balance, error) {
	if m.balance == nil {
		return nil, nil
	}
	return []*entities.Balance{m.balance}, nil
}

func (m *memBalances) Credit(_ context.Context, _ uuid.UUID, _ string, _ *string, amount decimal.Decimal) error {
	m.credits++
	m.balance.Available = m.balance.Available.Add(amount)
	return nil
}

func (m *memBalances) Debit(_ context.Context, _ uuid.UUID, _ string, amount decimal.Decimal) error {
	if m.balance.Available.LessThan(amount) {
		return domainerrors.ErrInsufficientFunds
	}
	m.balance.Available = m.balance.Available.Sub(amount)
	return nil
}

func (m *memBalances) Lock(_ context.Context, _ uuid.UUID, _ string, amount decimal.Decimal) error {
	if m.balance.Available.LessThan(amount) {
		return domainerrors.ErrInsufficientFunds
	}
	m.locks++
	m.balance.Available = m.balance.Available.Sub(amount)
	m.balance.Locked = m.balance.Locked.Add(amount)
	return nil
}

func (m *memBalances) Unlock(_ context.Context, _ uuid.UUID, _ string, amount decimal.Decimal) error {
	m.balance.Locked = m.balance.Locked.Sub(amount)
	m.balance.Available = m.balance.Available.Add(amount)
	return nil
}

func (m *memBalances) Settle(_ context.Context, _ uuid.UUID, _ string, amount decimal.Decimal) error {
	m.balance.Locked = m.balance.Locked.Sub(amount)
	return nil
}

func (m *memBalances) Block(_ context.Context, _ uuid.UUID, _ string, amount decimal.Decimal) error {
	return m.Debit(context.Background(), uuid.Nil, "", amount)
}

type memTransactions struct {
	net decimal.Decimal
}

func (m *memTransactions) ListByAccount(_ context.Context, _ uuid.UUID, _, _ int) ([]*entities.LedgerTransaction, error) {
	return nil, nil
}

func (m *memTransactions) NetConfirmed(_ context.Context, _ uuid.UUID, _ string) (decimal.Decimal, error) {
	return m.net, nil
}

func newLedgerService(available, locked string, net string) (*ledger.Service, *memBalances) {
	balances := &memBalances{balance: &entities.Balance{
		Available: decimal.RequireFromString(available),
		Locked:    decimal.RequireFromString(locked),
	}}
	svc := ledger.NewService(balances, &memTransactions{net: decimal.RequireFromString(net)}, logger.NewNop())
	return svc, balances
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	svc, balances := newLedgerService("100", "0", "100")
	accountID := uuid.New()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		assert.ErrorIs(t, svc.Credit(context.Background(), accountID, "USDT", nil, amount), domainerrors.ErrNonPositiveAmount)
		assert.ErrorIs(t, svc.Debit(context.Background(), accountID, "USDT", amount), domainerrors.ErrNonPositiveAmount)
		assert.ErrorIs(t, svc.Lock(context.Background(), accountID, "USDT", amount), domainerrors.ErrNonPositiveAmount)
		assert.ErrorIs(t, svc.Unlock(context.Background(), accountID, "USDT", amount), domainerrors.ErrNonPositiveAmount)
		assert.ErrorIs(t, svc.Settle(context.Background(), accountID, "USDT", amount), domainerrors.ErrNonPositiveAmount)
		assert.ErrorIs(t, svc.Block(context.Background(), accountID, "USDT", amount), domainerrors.ErrNonPositiveAmount)
	}
	assert.Equal(t, 0, balances.credits)
	assert.Equal(t, 0, balances.locks)
}

func TestLedger_LockMovesAvailableToLocked(t *testing.T) {
	svc, balances := newLedgerService("100", "0", "100")
	accountID := uuid.New()

	require.NoError(t, svc.Lock(context.Background(), accountID, "USDT", decimal.NewFromInt(40)))
	assert.True(t, balances.balance.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, balances.balance.Locked.Equal(decimal.NewFromInt(40)))
	assert.True(t, balances.balance.Total().Equal(decimal.NewFromInt(100)))

	err := svc.Lock(context.Background(), accountID, "USDT", decimal.NewFromInt(70))
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	svc, _ := newLedgerService("100", "50", "120")

	rec, err := svc.Reconcile(context.Background(), uuid.New(), "USDT")
	require.NoError(t, err)

	assert.True(t, rec.LedgerTotal.Equal(decimal.NewFromInt(150)))
	assert.True(t, rec.NetConfirmed.Equal(decimal.NewFromInt(120)))
	assert.True(t, rec.Drift.Equal(decimal.NewFromInt(30)))
}

func TestReconcile_CleanLedgerHasZeroDrift(t *testing.T) {
	svc, _ := newLedgerService("80", "20", "100")

	rec, err := svc.Reconcile(context.Background(), uuid.New(), "USDT")
	require.NoError(t, err)
	assert.True(t, rec.Drift.IsZero())
}
