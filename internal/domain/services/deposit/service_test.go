package deposit_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/deposit"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/domain/services/pricing"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

const usdtContract = "0xC2132D05d31c914a87C6611C10748AEb04B58e8F"

func depositRegistry() *tokens.Registry {
	return tokens.NewRegistry(config.ChainConfig{
		NativeSymbol: "POL",
		Tokens: map[string]config.TokenConfig{
			"usdt": {Symbol: "USDT", ContractAddress: usdtContract, Decimals: 6, Stablecoin: true, Blockable: true},
		},
	})
}

type depositAccounts struct {
	accounts  map[uuid.UUID]*entities.Account
	uplines   map[uuid.UUID][]*entities.Account
	volumes   map[uuid.UUID]decimal.Decimal
	activated map[uuid.UUID]bool
}

func newDepositAccounts(accounts ...*entities.Account) *depositAccounts {
	d := &depositAccounts{
		accounts:  make(map[uuid.UUID]*entities.Account),
		uplines:   make(map[uuid.UUID][]*entities.Account),
		volumes:   make(map[uuid.UUID]decimal.Decimal),
		activated: make(map[uuid.UUID]bool),
	}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *depositAccounts) GetByID(_ context.Context, id uuid.UUID) (*entities.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return a, nil
}

func (d *depositAccounts) Activate(_ context.Context, accountID uuid.UUID) error {
	d.activated[accountID] = true
	d.accounts[accountID].Status = entities.AccountStatusActive
	return nil
}

func (d *depositAccounts) AddVolume(_ context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	d.volumes[accountID] = d.volumes[accountID].Add(amount)
	return nil
}

func (d *depositAccounts) GetUplines(_ context.Context, accountID uuid.UUID, _ int) ([]*entities.Account, error) {
	return d.uplines[accountID], nil
}

type depositTransactions struct {
	byHash    map[string]*entities.LedgerTransaction
	confirmed map[string]bool
}

func newDepositTransactions() *depositTransactions {
	return &depositTransactions{
		byHash:    make(map[string]*entities.LedgerTransaction),
		confirmed: make(map[string]bool),
	}
}

func (d *depositTransactions) Create(_ context.Context, tx *entities.LedgerTransaction) error {
	if _, exists := d.byHash[tx.TxHash]; exists {
		return domainerrors.ErrAlreadyExists
	}
	d.byHash[tx.TxHash] = tx
	return nil
}

func (d *depositTransactions) Confirm(_ context.Context, txHash string) (bool, error) {
	if d.confirmed[txHash] {
		return false, nil
	}
	d.confirmed[txHash] = true
	if tx, ok := d.byHash[txHash]; ok {
		tx.Status = entities.TransactionStatusConfirmed
	}
	return true, nil
}

type depositBalances struct {
	credits map[uuid.UUID]decimal.Decimal
	calls   int
}

func newDepositBalances() *depositBalances {
	return &depositBalances{credits: make(map[uuid.UUID]decimal.Decimal)}
}

func (d *depositBalances) Credit(_ context.Context, accountID uuid.UUID, _ string, _ *string, amount decimal.Decimal) error {
	d.calls++
	d.credits[accountID] = d.credits[accountID].Add(amount)
	return nil
}

type depositResolver struct {
	byAddress map[string]*entities.CustodialAddress
}

func (d *depositResolver) ResolveAddress(_ context.Context, address string) (*entities.CustodialAddress, error) {
	addr, ok := d.byAddress[address]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return addr, nil
}

type promotionSpy struct {
	evaluated []uuid.UUID
}

func (p *promotionSpy) EvaluatePromotion(_ context.Context, accountID uuid.UUID) error {
	p.evaluated = append(p.evaluated, accountID)
	return nil
}

type depositFixture struct {
	svc      *deposit.Service
	accounts *depositAccounts
	txs      *depositTransactions
	balances *depositBalances
	promos   *promotionSpy
}

func newDepositFixture(account *entities.Account, address string) *depositFixture {
	f := &depositFixture{
		accounts: newDepositAccounts(account),
		txs:      newDepositTransactions(),
		balances: newDepositBalances(),
		promos:   &promotionSpy{},
	}
	resolver := &depositResolver{byAddress: map[string]*entities.CustodialAddress{
		address: {ID: uuid.New(), AccountID: account.ID, Address: address},
	}}
	registry := depositRegistry()
	f.svc = deposit.NewService(
		f.accounts, f.txs, f.balances, resolver,
		registry, pricing.NewPeggedOracle(registry, nil, logger.NewNop()),
		f.promos, notify.NewLogNotifier(logger.NewNop()),
		decimal.NewFromInt(50), logger.NewNop(),
	)
	return f
}

func pendingAccount() *entities.Account {
	return &entities.Account{
		ID:         uuid.New(),
		Rank:       entities.RankRecruit,
		RankStatus: entities.RankStatusActive,
		Status:     entities.AccountStatusPendingActivation,
	}
}

const custodyAddr = "0x00000000000000000000000000000000000000bb"

func confirmedNotification(txHash, rawAmount string) *entities.DepositNotification {
	return &entities.DepositNotification{
		Kind:         entities.DepositConfirmed,
		TxHash:       txHash,
		Address:      custodyAddr,
		TokenAddress: usdtContract,
		RawAmount:    rawAmount,
	}
}

func TestHandleNotification_ConfirmedDepositCreditsAndActivates(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	// 100 USDT at 6 decimals
	err := f.svc.HandleNotification(context.Background(), confirmedNotification("0xdeposit1", "100000000"))
	require.NoError(t, err)

	assert.True(t, f.balances.credits[account.ID].Equal(decimal.NewFromInt(100)))
	assert.True(t, f.accounts.activated[account.ID])
	assert.True(t, f.accounts.volumes[account.ID].Equal(decimal.NewFromInt(100)))
	assert.Contains(t, f.promos.evaluated, account.ID)
}

func TestHandleNotification_DuplicateConfirmationCreditsOnce(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	n := confirmedNotification("0xdeposit2", "100000000")
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))

	assert.Equal(t, 1, f.balances.calls)
	assert.True(t, f.balances.credits[account.ID].Equal(decimal.NewFromInt(100)))
}

func TestHandleNotification_SeenThenConfirmed(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	seen := confirmedNotification("0xdeposit3", "25000000")
	seen.Kind = entities.DepositSeen
	require.NoError(t, f.svc.HandleNotification(context.Background(), seen))
	assert.Equal(t, 0, f.balances.calls)

	require.NoError(t, f.svc.HandleNotification(context.Background(), confirmedNotification("0xdeposit3", "25000000")))
	assert.True(t, f.balances.credits[account.ID].Equal(decimal.NewFromInt(25)))
	// 25 USD is below the 50 USD activation threshold
	assert.False(t, f.accounts.activated[account.ID])
}

func TestHandleNotification_UnknownAddressIsAcknowledged(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	n := confirmedNotification("0xdeposit4", "100000000")
	n.Address = "0x00000000000000000000000000000000000000cc"

	err := f.svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 0, f.balances.calls)
}

func TestHandleNotification_TestDepositSkipsVolume(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	n := confirmedNotification("0xdeposit5", "100000000")
	n.IsTest = true
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))

	// Credited, but no volume, no activation, no promotion checks
	assert.True(t, f.balances.credits[account.ID].Equal(decimal.NewFromInt(100)))
	assert.True(t, f.accounts.volumes[account.ID].IsZero())
	assert.False(t, f.accounts.activated[account.ID])
	assert.Empty(t, f.promos.evaluated)
}

func TestHandleNotification_UnknownTokenCreditedWithoutVolume(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	n := confirmedNotification("0xdeposit6", "1000000000000000000")
	n.TokenAddress = "0x1111111111111111111111111111111111111111"
	n.TokenSymbol = "MYSTERY"
	require.NoError(t, f.svc.HandleNotification(context.Background(), n))

	// 18-decimal default applies, USD math is skipped entirely
	assert.True(t, f.balances.credits[account.ID].Equal(decimal.NewFromInt(1)))
	assert.True(t, f.accounts.volumes[account.ID].IsZero())
	assert.False(t, f.accounts.activated[account.ID])
}

func TestHandleNotification_VolumeFlowsUpTheNetwork(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	upline := pendingAccount()
	upline.Status = entities.AccountStatusActive
	f.accounts.accounts[upline.ID] = upline
	f.accounts.uplines[account.ID] = []*entities.Account{upline}

	require.NoError(t, f.svc.HandleNotification(context.Background(), confirmedNotification("0xdeposit7", "200000000")))

	assert.True(t, f.accounts.volumes[account.ID].Equal(decimal.NewFromInt(200)))
	assert.True(t, f.accounts.volumes[upline.ID].Equal(decimal.NewFromInt(200)))
	assert.Contains(t, f.promos.evaluated, upline.ID)
}

func TestHandleNotification_RejectsMalformedRawAmount(t *testing.T) {
	account := pendingAccount()
	f := newDepositFixture(account, custodyAddr)

	n := confirmedNotification("0xdeposit8", "12.5")
	err := f.svc.HandleNotification(context.Background(), n)
	assert.Error(t, err)
	assert.Equal(t, 0, f.balances.calls)
}
