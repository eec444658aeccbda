package batchcollect_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/batchcollect"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

const treasuryAddr = "0x00000000000000000000000000000000000000fe"

func sweepRegistry() *tokens.Registry {
	return tokens.NewRegistry(config.ChainConfig{
		NativeSymbol: "POL",
		Tokens: map[string]config.TokenConfig{
			"usdt": {Symbol: "USDT", ContractAddress: "0xC2132D05d31c914a87C6611C10748AEb04B58e8F", Decimals: 6, Stablecoin: true, Blockable: true},
			"pol":  {Symbol: "POL", Decimals: 18, Native: true},
		},
	})
}

type sweepAddresses struct {
	addrs []*entities.CustodialAddress
}

func (s *sweepAddresses) ListActive(_ context.Context) ([]*entities.CustodialAddress, error) {
	return s.addrs, nil
}

type sweepRuns struct {
	mu   sync.Mutex
	runs []*entities.BatchCollectRun
}

func (s *sweepRuns) CreateRun(_ context.Context, run *entities.BatchCollectRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *sweepRuns) ListRuns(_ context.Context, _, _ int) ([]*entities.BatchCollectRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.BatchCollectRun(nil), s.runs...), nil
}

func (s *sweepRuns) GetRunsByJob(_ context.Context, jobID uuid.UUID) ([]*entities.BatchCollectRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.BatchCollectRun
	for _, r := range s.runs {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *sweepRuns) byToken(token string) *entities.BatchCollectRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.TokenSymbol == token {
			return r
		}
	}
	return nil
}

type sweepTransactions struct {
	mu      sync.Mutex
	stamped []uuid.UUID
}

func (s *sweepTransactions) MarkSentToGlobal(_ context.Context, accountID uuid.UUID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamped = append(s.stamped, accountID)
	return nil
}

// sweepGateway serves native balances at exactly the gas reserve so only
// the token phase moves funds, and fails sends from one poisoned key
type sweepGateway struct {
	mu            sync.Mutex
	tokenBalances map[string]decimal.Decimal
	failKey       string
	nativeBalance decimal.Decimal
	nativeSendErr error
	sends         int
}

func (g *sweepGateway) GetNativeBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	return g.nativeBalance, nil
}

func (g *sweepGateway) GetTokenBalance(_ context.Context, address, _ string, _ int) (decimal.Decimal, error) {
	return g.tokenBalances[address], nil
}

func (g *sweepGateway) SendNative(_ context.Context, _, _ string, _ decimal.Decimal) (string, error) {
	if g.nativeSendErr != nil {
		return "", g.nativeSendErr
	}
	return "0xgashash", nil
}

func (g *sweepGateway) SendToken(_ context.Context, fromKey, _, to string, _ decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fromKey == g.failKey {
		return "", errors.New("nonce too low")
	}
	if to != treasuryAddr {
		return "", errors.New("unexpected destination")
	}
	g.sends++
	return "0xsweephash", nil
}

func (g *sweepGateway) WaitForConfirmation(_ context.Context, _ string, _ int) error {
	return nil
}

type staticKeys struct{}

func (staticKeys) DecryptKey(addr *entities.CustodialAddress) (string, error) {
	return "key-" + addr.Address, nil
}

// unreachableRedis returns a client whose writes fail fast; progress
// publication is best-effort and must not affect the sweep itself
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
}

func TestBatchCollect_PartialSweepRecordsFailures(t *testing.T) {
	var addrs []*entities.CustodialAddress
	balances := make(map[string]decimal.Decimal)
	for i := 0; i < 5; i++ {
		addr := &entities.CustodialAddress{
			ID:        uuid.New(),
			AccountID: uuid.New(),
			Address:   "0x000000000000000000000000000000000000000" + string(rune('0'+i)),
			Status:    entities.CustodialAddressActive,
		}
		addrs = append(addrs, addr)
		balances[addr.Address] = decimal.NewFromInt(10)
	}

	gateway := &sweepGateway{
		tokenBalances: balances,
		failKey:       "key-" + addrs[2].Address,
		nativeBalance: decimal.RequireFromString("0.01"),
	}
	runs := &sweepRuns{}
	txs := &sweepTransactions{}

	svc := batchcollect.NewService(
		&sweepAddresses{addrs: addrs}, runs, txs,
		gateway, sweepRegistry(), staticKeys{}, unreachableRedis(),
		config.ChainConfig{
			TreasuryAddress: treasuryAddr,
			TreasuryKey:     "treasury-key",
			Confirmations:   1,
			GasTopupAmount:  "0.05",
			MinGasBalance:   "0.01",
		},
		logger.NewNop(),
	)

	jobID, err := svc.Start(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.byToken("USDT") != nil
	}, 10*time.Second, 20*time.Millisecond)

	run := runs.byToken("USDT")
	assert.Equal(t, jobID, run.JobID)
	assert.Equal(t, entities.BatchCollectPartial, run.Status)
	assert.Equal(t, 4, run.WalletsTouched)
	assert.Equal(t, 1, run.WalletsFailed)
	assert.True(t, run.TotalCollected.Equal(decimal.NewFromInt(40)))

	txs.mu.Lock()
	stamped := len(txs.stamped)
	txs.mu.Unlock()
	assert.Equal(t, 4, stamped)
}

func TestBatchCollect_TreasuryFundingFailureAbortsRun(t *testing.T) {
	var addrs []*entities.CustodialAddress
	balances := make(map[string]decimal.Decimal)
	for i := 0; i < 3; i++ {
		addr := &entities.CustodialAddress{
			ID:        uuid.New(),
			AccountID: uuid.New(),
			Address:   "0x00000000000000000000000000000000000000b" + string(rune('0'+i)),
			Status:    entities.CustodialAddressActive,
		}
		addrs = append(addrs, addr)
		balances[addr.Address] = decimal.NewFromInt(10)
	}

	// Every wallet needs gas and the treasury cannot fund any of them
	gateway := &sweepGateway{
		tokenBalances: balances,
		nativeBalance: decimal.Zero,
		nativeSendErr: errors.New("insufficient funds for gas"),
	}
	runs := &sweepRuns{}
	txs := &sweepTransactions{}

	svc := batchcollect.NewService(
		&sweepAddresses{addrs: addrs}, runs, txs,
		gateway, sweepRegistry(), staticKeys{}, unreachableRedis(),
		config.ChainConfig{
			TreasuryAddress: treasuryAddr,
			TreasuryKey:     "treasury-key",
			Confirmations:   1,
			GasTopupAmount:  "0.05",
			MinGasBalance:   "0.01",
		},
		logger.NewNop(),
	)

	jobID, err := svc.Start(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return errors.Is(svc.Cancel(jobID), domainerrors.ErrNotFound)
	}, 10*time.Second, 20*time.Millisecond)

	// The sweep phases never ran: no per-token records, no sends
	assert.Nil(t, runs.byToken("USDT"))
	gateway.mu.Lock()
	sends := gateway.sends
	gateway.mu.Unlock()
	assert.Equal(t, 0, sends)
}

func TestBatchCollect_SecondStartWhileRunningIsRejected(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	gateway := &gatedGateway{started: started, proceed: proceed}

	addr := &entities.CustodialAddress{
		ID: uuid.New(), AccountID: uuid.New(),
		Address: "0x00000000000000000000000000000000000000a1",
	}
	runs := &sweepRuns{}

	svc := batchcollect.NewService(
		&sweepAddresses{addrs: []*entities.CustodialAddress{addr}}, runs, &sweepTransactions{},
		gateway, sweepRegistry(), staticKeys{}, unreachableRedis(),
		config.ChainConfig{
			TreasuryAddress: treasuryAddr,
			TreasuryKey:     "treasury-key",
			Confirmations:   1,
			GasTopupAmount:  "0.05",
			MinGasBalance:   "0.01",
		},
		logger.NewNop(),
	)

	jobID, err := svc.Start(context.Background(), uuid.New())
	require.NoError(t, err)

	<-started
	_, err = svc.Start(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateJob)

	close(proceed)
	require.Eventually(t, func() bool {
		return errors.Is(svc.Cancel(jobID), domainerrors.ErrNotFound)
	}, 10*time.Second, 20*time.Millisecond)
}

// gatedGateway blocks the first balance check until released so the test
// can observe the running job deterministically
type gatedGateway struct {
	once    sync.Once
	started chan struct{}
	proceed chan struct{}
}

func (g *gatedGateway) GetNativeBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	g.once.Do(func() { close(g.started) })
	<-g.proceed
	return decimal.NewFromInt(1), nil
}

func (g *gatedGateway) GetTokenBalance(_ context.Context, _, _ string, _ int) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (g *gatedGateway) SendNative(_ context.Context, _, _ string, _ decimal.Decimal) (string, error) {
	return "0xhash", nil
}

func (g *gatedGateway) SendToken(_ context.Context, _, _, _ string, _ decimal.Decimal) (string, error) {
	return "0xhash", nil
}

func (g *gatedGateway) WaitForConfirmation(_ context.Context, _ string, _ int) error {
	return nil
}
