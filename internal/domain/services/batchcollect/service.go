// Package batchcollect consolidates custodial wallet funds into the
// treasury in three ordered phases: gas distribution, token sweep, native
// sweep. Individual wallet failures are recorded and skipped so the run
// ends PARTIAL; a treasury-side funding failure in phase one fails the
// whole run.
package batchcollect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/chain"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
)

const progressTTL = 24 * time.Hour

// errTreasuryFunding marks a gas top-up the treasury itself could not
// send. Later wallets cannot do better, so the whole run fails.
var errTreasuryFunding = errors.New("treasury gas distribution failed")

// AddressStore lists the sweep universe
type AddressStore interface {
	ListActive(ctx context.Context) ([]*entities.CustodialAddress, error)
}

// RunStore persists per-token audit records
type RunStore interface {
	CreateRun(ctx context.Context, run *entities.BatchCollectRun) error
	ListRuns(ctx context.Context, limit, offset int) ([]*entities.BatchCollectRun, error)
	GetRunsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.BatchCollectRun, error)
}

// TransactionStore stamps swept deposits
type TransactionStore interface {
	MarkSentToGlobal(ctx context.Context, accountID uuid.UUID, token string) error
}

// KeySource decrypts custodial signing keys
type KeySource interface {
	DecryptKey(addr *entities.CustodialAddress) (string, error)
}

type activeJob struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Service is the batch collect orchestrator. At most one sweep runs at a
// time per process; progress is mirrored to Redis so it survives the
// HTTP request that triggered it.
type Service struct {
	addresses    AddressStore
	runs         RunStore
	transactions TransactionStore
	gateway      chain.Gateway
	registry     *tokens.Registry
	keys         KeySource
	redis        *redis.Client
	logger       *logger.Logger

	treasuryAddress string
	treasuryKey     string
	gasTopup        decimal.Decimal
	minGas          decimal.Decimal
	confirmations   int

	mu     sync.Mutex
	active *activeJob
}

// NewService creates the batch collect service
func NewService(
	addresses AddressStore,
	runs RunStore,
	transactions TransactionStore,
	gateway chain.Gateway,
	registry *tokens.Registry,
	keys KeySource,
	redisClient *redis.Client,
	chainCfg config.ChainConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		addresses:       addresses,
		runs:            runs,
		transactions:    transactions,
		gateway:         gateway,
		registry:        registry,
		keys:            keys,
		redis:           redisClient,
		logger:          log,
		treasuryAddress: chainCfg.TreasuryAddress,
		treasuryKey:     chainCfg.TreasuryKey,
		gasTopup:        config.MustDecimal(chainCfg.GasTopupAmount),
		minGas:          config.MustDecimal(chainCfg.MinGasBalance),
		confirmations:   chainCfg.Confirmations,
	}
}

// Start launches a sweep asynchronously and returns its job id.
// A second Start while one is running returns ErrDuplicateJob.
func (s *Service) Start(ctx context.Context, triggeredBy uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return uuid.Nil, domainerrors.ErrDuplicateJob
	}

	jobID := uuid.New()
	runCtx, cancel := context.WithCancel(context.Background())
	s.active = &activeJob{id: jobID, cancel: cancel}

	go s.run(runCtx, jobID, triggeredBy)

	s.logger.Info("batch collect started",
		"job_id", jobID.String(), "triggered_by", triggeredBy.String())
	return jobID, nil
}

// Cancel aborts the running sweep, if any
func (s *Service) Cancel(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.id != jobID {
		return domainerrors.ErrNotFound
	}
	s.active.cancel()
	return nil
}

// Progress returns the current or final state of a sweep
func (s *Service) Progress(ctx context.Context, jobID uuid.UUID) (*entities.BatchCollectProgress, error) {
	raw, err := s.redis.Get(ctx, progressKey(jobID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	var p entities.BatchCollectProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &p, nil
}

// History returns past per-token run records, newest first
func (s *Service) History(ctx context.Context, limit, offset int) ([]*entities.BatchCollectRun, error) {
	return s.runs.ListRuns(ctx, limit, offset)
}

// RunsByJob returns the per-token records of one sweep
func (s *Service) RunsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.BatchCollectRun, error) {
	return s.runs.GetRunsByJob(ctx, jobID)
}

func (s *Service) run(ctx context.Context, jobID, triggeredBy uuid.UUID) {
	defer func() {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
	}()

	addrs, err := s.addresses.ListActive(ctx)
	if err != nil {
		s.logger.Error("batch collect failed to list addresses", "job_id", jobID.String(), "error", err)
		s.setProgress(jobID, entities.PhaseGasDistribution, 0, 0, 0, entities.BatchCollectFailed)
		return
	}

	var failures []entities.WalletSweepFailure

	gasFailures, err := s.distributeGas(ctx, jobID, addrs)
	failures = append(failures, gasFailures...)
	if err != nil {
		s.logger.Error("batch collect aborted in gas distribution",
			"job_id", jobID.String(), "error", err)
		return
	}
	if ctx.Err() != nil {
		s.finish(jobID, entities.PhaseGasDistribution, len(addrs), failures, true)
		return
	}

	failures = append(failures, s.sweepTokens(ctx, jobID, triggeredBy, addrs)...)
	if ctx.Err() != nil {
		s.finish(jobID, entities.PhaseTokenSweep, len(addrs), failures, true)
		return
	}

	failures = append(failures, s.sweepNative(ctx, jobID, triggeredBy, addrs)...)

	s.finish(jobID, entities.PhaseNativeSweep, len(addrs), failures, ctx.Err() != nil)
}

// distributeGas tops up wallets below the minimum native balance so the
// sweep phases can pay for their own transactions. A wallet-side failure
// is recorded and skipped; a treasury-side send failure ends the run as
// FAILED because no later top-up can succeed either.
func (s *Service) distributeGas(ctx context.Context, jobID uuid.UUID, addrs []*entities.CustodialAddress) ([]entities.WalletSweepFailure, error) {
	var failures []entities.WalletSweepFailure
	s.setProgress(jobID, entities.PhaseGasDistribution, 0, len(addrs), 0, entities.BatchCollectRunning)

	for i, addr := range addrs {
		if ctx.Err() != nil {
			break
		}

		if err := s.topUp(ctx, addr.Address); err != nil {
			if errors.Is(err, errTreasuryFunding) {
				s.setProgress(jobID, entities.PhaseGasDistribution, i, len(addrs), len(failures), entities.BatchCollectFailed)
				return failures, err
			}
			failures = append(failures, entities.WalletSweepFailure{
				Address: addr.Address,
				Phase:   entities.PhaseGasDistribution,
				Reason:  err.Error(),
			})
			metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseGasDistribution), "failed").Inc()
			s.logger.Warn("gas top-up failed",
				"job_id", jobID.String(), "address", addr.Address, "error", err)
		} else {
			metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseGasDistribution), "ok").Inc()
		}

		s.setProgress(jobID, entities.PhaseGasDistribution, i+1, len(addrs), len(failures), entities.BatchCollectRunning)
	}

	return failures, nil
}

func (s *Service) topUp(ctx context.Context, address string) error {
	balance, err := s.gateway.GetNativeBalance(ctx, address)
	if err != nil {
		return fmt.Errorf("balance check: %w", err)
	}
	if balance.GreaterThanOrEqual(s.minGas) {
		return nil
	}

	txHash, err := s.gateway.SendNative(ctx, s.treasuryKey, address, s.gasTopup)
	if err != nil {
		return fmt.Errorf("%w: %s", errTreasuryFunding, err)
	}
	if err := s.gateway.WaitForConfirmation(ctx, txHash, s.confirmations); err != nil {
		return fmt.Errorf("confirmation of %s: %w", txHash, err)
	}
	return nil
}

// sweepTokens moves every configured ERC-20 balance to the treasury, one
// run record per token
func (s *Service) sweepTokens(ctx context.Context, jobID, triggeredBy uuid.UUID, addrs []*entities.CustodialAddress) []entities.WalletSweepFailure {
	var failures []entities.WalletSweepFailure

	for _, symbol := range s.registry.Symbols() {
		info, _ := s.registry.BySymbol(symbol)
		if info.Native {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		run := &entities.BatchCollectRun{
			ID:          uuid.New(),
			JobID:       jobID,
			TokenSymbol: info.Symbol,
			TriggeredBy: triggeredBy,
			CreatedAt:   time.Now(),
		}

		s.setProgress(jobID, entities.PhaseTokenSweep, 0, len(addrs), len(failures), entities.BatchCollectRunning)
		for i, addr := range addrs {
			if ctx.Err() != nil {
				break
			}

			swept, amount, txHash, err := s.sweepTokenWallet(ctx, addr, info)
			if err != nil {
				run.WalletsFailed++
				failures = append(failures, entities.WalletSweepFailure{
					Address: addr.Address,
					Phase:   entities.PhaseTokenSweep,
					Reason:  fmt.Sprintf("%s: %s", info.Symbol, err),
				})
				metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseTokenSweep), "failed").Inc()
				s.logger.Warn("token sweep failed",
					"job_id", jobID.String(), "address", addr.Address, "token", info.Symbol, "error", err)
			} else if swept {
				run.WalletsTouched++
				run.TotalCollected = run.TotalCollected.Add(amount)
				run.TxHashes = append(run.TxHashes, txHash)
				metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseTokenSweep), "ok").Inc()

				if err := s.transactions.MarkSentToGlobal(ctx, addr.AccountID, info.Symbol); err != nil {
					s.logger.Error("failed to stamp swept deposits",
						"account_id", addr.AccountID.String(), "token", info.Symbol, "error", err)
				}
			}

			s.setProgress(jobID, entities.PhaseTokenSweep, i+1, len(addrs), len(failures), entities.BatchCollectRunning)
		}

		if run.WalletsTouched == 0 && run.WalletsFailed == 0 {
			continue
		}
		run.Status = runStatus(run.WalletsTouched, run.WalletsFailed)
		if run.TxHashes == nil {
			run.TxHashes = pq.StringArray{}
		}
		if err := s.runs.CreateRun(ctx, run); err != nil {
			s.logger.Error("failed to persist sweep run",
				"job_id", jobID.String(), "token", info.Symbol, "error", err)
		}
	}

	return failures
}

func (s *Service) sweepTokenWallet(ctx context.Context, addr *entities.CustodialAddress, info entities.TokenInfo) (bool, decimal.Decimal, string, error) {
	balance, err := s.gateway.GetTokenBalance(ctx, addr.Address, info.ContractAddress, info.Decimals)
	if err != nil {
		return false, decimal.Zero, "", fmt.Errorf("balance check: %w", err)
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return false, decimal.Zero, "", nil
	}

	key, err := s.keys.DecryptKey(addr)
	if err != nil {
		return false, decimal.Zero, "", err
	}

	txHash, err := s.gateway.SendToken(ctx, key, info.ContractAddress, s.treasuryAddress, balance)
	if err != nil {
		return false, decimal.Zero, "", fmt.Errorf("send: %w", err)
	}
	if err := s.gateway.WaitForConfirmation(ctx, txHash, s.confirmations); err != nil {
		return false, decimal.Zero, "", fmt.Errorf("confirmation of %s: %w", txHash, err)
	}

	return true, balance, txHash, nil
}

// sweepNative moves native balances above the gas reserve to the treasury
func (s *Service) sweepNative(ctx context.Context, jobID, triggeredBy uuid.UUID, addrs []*entities.CustodialAddress) []entities.WalletSweepFailure {
	var failures []entities.WalletSweepFailure

	run := &entities.BatchCollectRun{
		ID:          uuid.New(),
		JobID:       jobID,
		TokenSymbol: s.registry.NativeSymbol(),
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now(),
	}

	s.setProgress(jobID, entities.PhaseNativeSweep, 0, len(addrs), 0, entities.BatchCollectRunning)
	for i, addr := range addrs {
		if ctx.Err() != nil {
			break
		}

		swept, amount, txHash, err := s.sweepNativeWallet(ctx, addr)
		if err != nil {
			run.WalletsFailed++
			failures = append(failures, entities.WalletSweepFailure{
				Address: addr.Address,
				Phase:   entities.PhaseNativeSweep,
				Reason:  err.Error(),
			})
			metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseNativeSweep), "failed").Inc()
			s.logger.Warn("native sweep failed",
				"job_id", jobID.String(), "address", addr.Address, "error", err)
		} else if swept {
			run.WalletsTouched++
			run.TotalCollected = run.TotalCollected.Add(amount)
			run.TxHashes = append(run.TxHashes, txHash)
			metrics.BatchCollectWallets.WithLabelValues(string(entities.PhaseNativeSweep), "ok").Inc()
		}

		s.setProgress(jobID, entities.PhaseNativeSweep, i+1, len(addrs), len(failures), entities.BatchCollectRunning)
	}

	if run.WalletsTouched > 0 || run.WalletsFailed > 0 {
		run.Status = runStatus(run.WalletsTouched, run.WalletsFailed)
		if run.TxHashes == nil {
			run.TxHashes = pq.StringArray{}
		}
		if err := s.runs.CreateRun(ctx, run); err != nil {
			s.logger.Error("failed to persist sweep run",
				"job_id", jobID.String(), "token", run.TokenSymbol, "error", err)
		}
	}

	return failures
}

func (s *Service) sweepNativeWallet(ctx context.Context, addr *entities.CustodialAddress) (bool, decimal.Decimal, string, error) {
	balance, err := s.gateway.GetNativeBalance(ctx, addr.Address)
	if err != nil {
		return false, decimal.Zero, "", fmt.Errorf("balance check: %w", err)
	}

	// Leave the gas reserve behind so the wallet can move tokens next run
	amount := balance.Sub(s.minGas)
	if amount.LessThanOrEqual(decimal.Zero) {
		return false, decimal.Zero, "", nil
	}

	key, err := s.keys.DecryptKey(addr)
	if err != nil {
		return false, decimal.Zero, "", err
	}

	txHash, err := s.gateway.SendNative(ctx, key, s.treasuryAddress, amount)
	if err != nil {
		return false, decimal.Zero, "", fmt.Errorf("send: %w", err)
	}
	if err := s.gateway.WaitForConfirmation(ctx, txHash, s.confirmations); err != nil {
		return false, decimal.Zero, "", fmt.Errorf("confirmation of %s: %w", txHash, err)
	}

	return true, amount, txHash, nil
}

func (s *Service) finish(jobID uuid.UUID, phase entities.BatchCollectPhase, total int, failures []entities.WalletSweepFailure, cancelled bool) {
	status := entities.BatchCollectCompleted
	switch {
	case cancelled:
		status = entities.BatchCollectFailed
	case len(failures) > 0:
		status = entities.BatchCollectPartial
	}

	s.setProgress(jobID, phase, total, total, len(failures), status)
	s.logger.Info("batch collect finished",
		"job_id", jobID.String(),
		"status", string(status),
		"failures", len(failures),
	)
}

func (s *Service) setProgress(jobID uuid.UUID, phase entities.BatchCollectPhase, completed, total, failed int, status entities.BatchCollectStatus) {
	p := entities.BatchCollectProgress{
		JobID:     jobID,
		Phase:     phase,
		Completed: completed,
		Total:     total,
		Failed:    failed,
		Status:    status,
		UpdatedAt: time.Now(),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Set(ctx, progressKey(jobID), raw, progressTTL).Err(); err != nil {
		s.logger.Warn("failed to publish sweep progress", "job_id", jobID.String(), "error", err)
	}
}

func runStatus(touched, failed int) entities.BatchCollectStatus {
	switch {
	case failed == 0:
		return entities.BatchCollectCompleted
	case touched == 0:
		return entities.BatchCollectFailed
	default:
		return entities.BatchCollectPartial
	}
}

func progressKey(jobID uuid.UUID) string {
	return "batchcollect:progress:" + jobID.String()
}
