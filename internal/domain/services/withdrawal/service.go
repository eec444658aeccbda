// Package withdrawal implements the settlement pipeline:
// PENDING_APPROVAL -> APPROVED -> PROCESSING -> COMPLETED, with REJECTED
// and FAILED side exits. The gross amount is locked in the ledger while a
// request is in flight: settlement consumes the lock, rejection and
// failure release it, and an admin retry locks it again.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/chain"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/domain/services/rank"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
)

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// AccountStore is the account surface the pipeline needs
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	SetLastWithdrawal(ctx context.Context, accountID uuid.UUID, at time.Time) error
	ReduceBlockedBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	UpdateRank(ctx context.Context, accountID uuid.UUID, rank entities.Rank) error
}

// WithdrawalStore persists requests and their status transitions
type WithdrawalStore interface {
	Create(ctx context.Context, w *entities.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error)
	HasNonTerminal(ctx context.Context, accountID uuid.UUID) (bool, error)
	SumCompletedSince(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error)
	CountSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)
	Approve(ctx context.Context, id, approver uuid.UUID) error
	Reject(ctx context.Context, id, approver uuid.UUID, reason string) error
	BeginProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
}

// BalanceStore is the ledger surface for locking and settling funds
type BalanceStore interface {
	Get(ctx context.Context, accountID uuid.UUID, token string) (*entities.Balance, error)
	Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error
	Lock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Unlock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Settle(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
}

// TransactionStore records the outbound chain movement
type TransactionStore interface {
	Create(ctx context.Context, tx *entities.LedgerTransaction) error
}

// Enqueuer hands settlement work to the background queue
type Enqueuer interface {
	Enqueue(jobID string, run func(context.Context) error) error
}

// Service is the withdrawal settlement pipeline
type Service struct {
	accounts     AccountStore
	withdrawals  WithdrawalStore
	balances     BalanceStore
	transactions TransactionStore
	gateway      chain.Gateway
	registry     *tokens.Registry
	fees         *FeeCalculator
	enqueuer     Enqueuer
	notifier     notify.Notifier
	logger       *logger.Logger

	minAmount      decimal.Decimal
	dailyCapByRank map[entities.Rank]decimal.Decimal
	rankReqs       map[entities.Rank]entities.RankRequirements
	confirmations  int
	treasuryKey    string
}

// NewService creates the withdrawal service
func NewService(
	accounts AccountStore,
	withdrawals WithdrawalStore,
	balances BalanceStore,
	transactions TransactionStore,
	gateway chain.Gateway,
	registry *tokens.Registry,
	enqueuer Enqueuer,
	notifier notify.Notifier,
	withdrawalCfg config.WithdrawalConfig,
	rankCfg config.RankConfig,
	chainCfg config.ChainConfig,
	log *logger.Logger,
) *Service {
	caps := make(map[entities.Rank]decimal.Decimal, len(withdrawalCfg.DailyCapByRank))
	for r, c := range withdrawalCfg.DailyCapByRank {
		caps[entities.Rank(r)] = config.MustDecimal(c)
	}

	return &Service{
		accounts:       accounts,
		withdrawals:    withdrawals,
		balances:       balances,
		transactions:   transactions,
		gateway:        gateway,
		registry:       registry,
		fees:           NewFeeCalculator(withdrawalCfg),
		enqueuer:       enqueuer,
		notifier:       notifier,
		logger:         log,
		minAmount:      config.MustDecimal(withdrawalCfg.MinAmount),
		dailyCapByRank: caps,
		rankReqs:       rank.ParseRequirements(rankCfg),
		confirmations:  chainCfg.Confirmations,
		treasuryKey:    chainCfg.TreasuryKey,
	}
}

// Quote previews the fee breakdown for a withdrawal without creating one
func (s *Service) Quote(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*entities.FeeBreakdown, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ErrNonPositiveAmount
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	monthlyCount, err := s.withdrawals.CountSince(ctx, accountID, startOfMonth(now))
	if err != nil {
		return nil, err
	}

	return s.fees.Calculate(account.Rank, monthlyCount, account.LastWithdrawalAt, amount, now), nil
}

// Request validates and creates a withdrawal in PENDING_APPROVAL, locking
// the gross amount. When the available balance cannot cover the amount,
// the shortfall is drawn from the blocked balance; if that would drop the
// account below its rank threshold the caller must confirm the rank loss
// first, and on confirmation the account is demoted to the highest rank
// its remaining blocked balance still qualifies for.
func (s *Service) Request(ctx context.Context, input *entities.RequestWithdrawalInput) (*entities.RequestWithdrawalResult, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ErrNonPositiveAmount
	}
	if input.Amount.LessThan(s.minAmount) {
		return nil, domainerrors.ErrBelowMinimum
	}
	if !evmAddressPattern.MatchString(input.DestinationAddress) {
		return nil, domainerrors.ErrInvalidAddress
	}

	info, ok := s.registry.BySymbol(input.TokenSymbol)
	if !ok {
		return nil, domainerrors.ErrUnknownToken
	}

	account, err := s.accounts.GetByID(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	pending, err := s.withdrawals.HasNonTerminal(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domainerrors.ErrWithdrawalPending
	}

	now := time.Now().UTC()
	if err := s.checkDailyCap(ctx, account, input.Amount, now); err != nil {
		return nil, err
	}

	monthlyCount, err := s.withdrawals.CountSince(ctx, input.AccountID, startOfMonth(now))
	if err != nil {
		return nil, err
	}
	fee := s.fees.Calculate(account.Rank, monthlyCount, account.LastWithdrawalAt, input.Amount, now)

	balance, err := s.balances.Get(ctx, input.AccountID, info.Symbol)
	if err != nil {
		return nil, err
	}

	shortfall := input.Amount.Sub(balance.Available)
	if shortfall.IsPositive() {
		if shortfall.GreaterThan(account.BlockedBalance) {
			return nil, domainerrors.ErrInsufficientFunds
		}
		if !info.Blockable {
			return nil, domainerrors.ErrInsufficientFunds
		}

		newBlocked := account.BlockedBalance.Sub(shortfall)
		req := s.rankReqs[account.Rank]
		if newBlocked.LessThan(req.MinBlocked) {
			if !input.ConfirmRankLoss {
				return &entities.RequestWithdrawalResult{
					Fee:                  fee,
					RequiresConfirmation: true,
					Message:              "withdrawal draws on blocked funds and will lower your rank",
				}, nil
			}
			if err := s.applyRankLoss(ctx, account, newBlocked); err != nil {
				return nil, err
			}
		}

		if err := s.unblock(ctx, account.ID, info, shortfall); err != nil {
			return nil, err
		}
	}

	if err := s.balances.Lock(ctx, input.AccountID, info.Symbol, input.Amount); err != nil {
		return nil, err
	}

	w := &entities.Withdrawal{
		ID:                 uuid.New(),
		AccountID:          input.AccountID,
		TokenSymbol:        info.Symbol,
		Amount:             input.Amount,
		FeeAmount:          fee.TotalFeeAmount,
		FeePercentage:      fee.TotalFeePercentage,
		NetAmount:          fee.NetAmount,
		DestinationAddress: input.DestinationAddress,
		Status:             entities.WithdrawalStatusPendingApproval,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.withdrawals.Create(ctx, w); err != nil {
		// Compensate the lock so the funds are not stranded
		if unlockErr := s.balances.Unlock(ctx, input.AccountID, info.Symbol, input.Amount); unlockErr != nil {
			s.logger.Error("failed to unlock after create failure",
				"account_id", input.AccountID.String(), "error", unlockErr)
		}
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		"withdrawal_id", w.ID.String(),
		"account_id", input.AccountID.String(),
		"token", info.Symbol,
		"amount", input.Amount.String(),
		"net_amount", w.NetAmount.String(),
	)

	if err := s.notifier.Notify(ctx, input.AccountID, notify.EventWithdrawalRequested, map[string]string{
		"withdrawal_id": w.ID.String(),
		"amount":        input.Amount.String(),
	}); err != nil {
		s.logger.Warn("withdrawal notification delivery failed", "error", err)
	}

	return &entities.RequestWithdrawalResult{Withdrawal: w, Fee: fee}, nil
}

// Get returns one withdrawal
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	return s.withdrawals.GetByID(ctx, id)
}

// List returns an account's withdrawal history, newest first
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	return s.withdrawals.ListByAccount(ctx, accountID, limit, offset)
}

// Approve moves PENDING_APPROVAL -> APPROVED and queues settlement
func (s *Service) Approve(ctx context.Context, id, approver uuid.UUID) error {
	if err := s.withdrawals.Approve(ctx, id, approver); err != nil {
		return err
	}

	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.notifier.Notify(ctx, w.AccountID, notify.EventWithdrawalApproved, map[string]string{
		"withdrawal_id": id.String(),
	}); err != nil {
		s.logger.Warn("withdrawal notification delivery failed", "error", err)
	}

	return s.enqueueProcessing(id)
}

// Reject moves PENDING_APPROVAL -> REJECTED and releases the lock
func (s *Service) Reject(ctx context.Context, id, approver uuid.UUID, reason string) error {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.withdrawals.Reject(ctx, id, approver, reason); err != nil {
		return err
	}

	if err := s.balances.Unlock(ctx, w.AccountID, w.TokenSymbol, w.Amount); err != nil {
		s.logger.Error("failed to unlock rejected withdrawal",
			"withdrawal_id", id.String(), "error", err)
		return err
	}

	if err := s.notifier.Notify(ctx, w.AccountID, notify.EventWithdrawalRejected, map[string]string{
		"withdrawal_id": id.String(),
		"reason":        reason,
	}); err != nil {
		s.logger.Warn("withdrawal notification delivery failed", "error", err)
	}
	return nil
}

// Retry moves FAILED -> APPROVED and queues settlement again. The fail
// path released the lock, so the gross amount is locked again first; a
// lock failure (funds spent in the meantime) leaves the withdrawal FAILED.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.Status != entities.WithdrawalStatusFailed {
		return domainerrors.ErrInvalidTransition
	}

	if err := s.balances.Lock(ctx, w.AccountID, w.TokenSymbol, w.Amount); err != nil {
		return err
	}
	if err := s.withdrawals.ResetForRetry(ctx, id); err != nil {
		if unlockErr := s.balances.Unlock(ctx, w.AccountID, w.TokenSymbol, w.Amount); unlockErr != nil {
			s.logger.Error("failed to unlock after retry reset failure",
				"withdrawal_id", id.String(), "error", unlockErr)
		}
		return err
	}
	return s.enqueueProcessing(id)
}

// Process performs the on-chain settlement of an approved withdrawal.
// The status + processed_at compare-and-swap guarantees a single
// processor even when the trigger fires twice.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	if err := s.withdrawals.BeginProcessing(ctx, id); err != nil {
		return err
	}

	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return err
	}

	info, ok := s.registry.BySymbol(w.TokenSymbol)
	if !ok {
		return s.fail(ctx, w, fmt.Errorf("token %s no longer configured", w.TokenSymbol))
	}

	var txHash string
	if info.Native {
		txHash, err = s.gateway.SendNative(ctx, s.treasuryKey, w.DestinationAddress, w.NetAmount)
	} else {
		txHash, err = s.gateway.SendToken(ctx, s.treasuryKey, info.ContractAddress, w.DestinationAddress, w.NetAmount)
	}
	if err != nil {
		return s.fail(ctx, w, fmt.Errorf("chain send failed: %w", err))
	}

	if err := s.gateway.WaitForConfirmation(ctx, txHash, s.confirmations); err != nil {
		return s.fail(ctx, w, fmt.Errorf("confirmation failed for tx %s: %w", txHash, err))
	}

	if err := s.withdrawals.MarkCompleted(ctx, id, txHash); err != nil {
		return err
	}

	// The DEBIT row carries the gross amount, matching what settle consumes
	// from the lock; the fee split lives on the withdrawal itself. Settle
	// only runs once the row exists so confirmed sums and balances never
	// diverge silently.
	now := time.Now()
	if err := s.transactions.Create(ctx, &entities.LedgerTransaction{
		ID:          uuid.New(),
		AccountID:   w.AccountID,
		TxHash:      txHash,
		Direction:   entities.DirectionDebit,
		TokenSymbol: w.TokenSymbol,
		Amount:      w.Amount,
		RawAmount:   tokens.ToRaw(w.Amount, info.Decimals),
		Status:      entities.TransactionStatusConfirmed,
		CreatedAt:   now,
		ConfirmedAt: &now,
	}); err != nil {
		s.logger.Error("failed to record settlement transaction",
			"withdrawal_id", id.String(), "tx_hash", txHash, "error", err)
		return fmt.Errorf("failed to record settlement debit: %w", err)
	}

	if err := s.balances.Settle(ctx, w.AccountID, w.TokenSymbol, w.Amount); err != nil {
		s.logger.Error("failed to settle locked funds",
			"withdrawal_id", id.String(), "error", err)
		return err
	}

	if err := s.accounts.SetLastWithdrawal(ctx, w.AccountID, now); err != nil {
		s.logger.Warn("failed to stamp loyalty clock",
			"account_id", w.AccountID.String(), "error", err)
	}

	metrics.WithdrawalsProcessed.WithLabelValues("completed").Inc()
	s.logger.Info("withdrawal settled",
		"withdrawal_id", id.String(),
		"account_id", w.AccountID.String(),
		"tx_hash", txHash,
		"net_amount", w.NetAmount.String(),
	)

	if err := s.notifier.Notify(ctx, w.AccountID, notify.EventWithdrawalCompleted, map[string]string{
		"withdrawal_id": id.String(),
		"tx_hash":       txHash,
	}); err != nil {
		s.logger.Warn("withdrawal notification delivery failed", "error", err)
	}
	return nil
}

// fail marks the withdrawal FAILED and releases the lock so the funds
// return to available. When the failure happened after broadcast the tx
// hash is in the failure reason; the admin checks the chain before
// retrying, since a retry submits a fresh transaction.
func (s *Service) fail(ctx context.Context, w *entities.Withdrawal, cause error) error {
	if err := s.withdrawals.MarkFailed(ctx, w.ID, cause.Error()); err != nil {
		s.logger.Error("failed to mark withdrawal failed",
			"withdrawal_id", w.ID.String(), "error", err)
		return err
	}

	if err := s.balances.Unlock(ctx, w.AccountID, w.TokenSymbol, w.Amount); err != nil {
		s.logger.Error("failed to unlock failed withdrawal",
			"withdrawal_id", w.ID.String(), "error", err)
		return err
	}

	metrics.WithdrawalsProcessed.WithLabelValues("failed").Inc()
	s.logger.Error("withdrawal settlement failed",
		"withdrawal_id", w.ID.String(), "error", cause)

	if err := s.notifier.Notify(ctx, w.AccountID, notify.EventWithdrawalFailed, map[string]string{
		"withdrawal_id": w.ID.String(),
	}); err != nil {
		s.logger.Warn("withdrawal notification delivery failed", "error", err)
	}
	return cause
}

func (s *Service) enqueueProcessing(id uuid.UUID) error {
	return s.enqueuer.Enqueue("withdrawal:"+id.String(), func(ctx context.Context) error {
		err := s.Process(ctx, id)
		// Another trigger won the processing gate; nothing to do
		if errors.Is(err, domainerrors.ErrAlreadyProcessing) {
			return nil
		}
		return err
	})
}

func (s *Service) checkDailyCap(ctx context.Context, account *entities.Account, amount decimal.Decimal, now time.Time) error {
	dailyCap, ok := s.dailyCapByRank[account.Rank]
	if !ok {
		return nil
	}

	spent, err := s.withdrawals.SumCompletedSince(ctx, account.ID, startOfDay(now))
	if err != nil {
		return err
	}
	if spent.Add(amount).GreaterThan(dailyCap) {
		return domainerrors.ErrDailyCapExceeded
	}
	return nil
}

// applyRankLoss demotes the account to the highest rank whose blocked
// threshold the remaining balance still meets
func (s *Service) applyRankLoss(ctx context.Context, account *entities.Account, newBlocked decimal.Decimal) error {
	newRank := entities.RankRecruit
	for _, r := range entities.RankOrder {
		req, ok := s.rankReqs[r]
		if !ok {
			continue
		}
		if newBlocked.GreaterThanOrEqual(req.MinBlocked) {
			newRank = r
		}
	}

	if newRank == account.Rank {
		return nil
	}

	if err := s.accounts.UpdateRank(ctx, account.ID, newRank); err != nil {
		return err
	}
	s.logger.Info("rank loss confirmed on withdrawal",
		"account_id", account.ID.String(),
		"from", string(account.Rank),
		"to", string(newRank),
	)
	account.Rank = newRank
	return nil
}

// unblock moves the shortfall from the blocked commitment back into the
// available balance so the subsequent lock covers the full gross amount
func (s *Service) unblock(ctx context.Context, accountID uuid.UUID, info entities.TokenInfo, amount decimal.Decimal) error {
	if err := s.accounts.ReduceBlockedBalance(ctx, accountID, amount); err != nil {
		return err
	}

	var contract *string
	if info.ContractAddress != "" {
		contract = &info.ContractAddress
	}
	if err := s.balances.Credit(ctx, accountID, info.Symbol, contract, amount); err != nil {
		s.logger.Error("failed to credit unblocked funds",
			"account_id", accountID.String(), "amount", amount.String(), "error", err)
		return err
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
