// Package network runs the daily commission engine: level-0 self yield on
// blocked balances plus three levels of upline commissions. The unique
// (recipient, source, level, reference_date) tuple makes re-runs no-ops.
package network

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
)

var hundred = decimal.NewFromInt(100)

// AccountStore is the account surface the engine needs
type AccountStore interface {
	ListEarning(ctx context.Context) ([]*entities.Account, error)
	GetUplines(ctx context.Context, accountID uuid.UUID, maxLevels int) ([]*entities.Account, error)
}

// CommissionStore persists accruals
type CommissionStore interface {
	Insert(ctx context.Context, c *entities.Commission) (bool, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*entities.Commission, error)
	SumForDate(ctx context.Context, date time.Time) (decimal.Decimal, error)
	CountForDate(ctx context.Context, date time.Time) (int, error)
}

// BalanceStore credits commission payouts
type BalanceStore interface {
	Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error
}

// Service is the network commission engine
type Service struct {
	accounts    AccountStore
	commissions CommissionStore
	balances    BalanceStore
	payoutToken entities.TokenInfo
	logger      *logger.Logger
}

// NewService creates the commission engine. Payouts are credited in the
// registry's payout token (the first blockable stablecoin).
func NewService(accounts AccountStore, commissions CommissionStore, balances BalanceStore, registry *tokens.Registry, log *logger.Logger) (*Service, error) {
	payout, ok := registry.PayoutToken()
	if !ok {
		return nil, fmt.Errorf("no blockable stablecoin configured for commission payouts")
	}

	return &Service{
		accounts:    accounts,
		commissions: commissions,
		balances:    balances,
		payoutToken: payout,
		logger:      log,
	}, nil
}

// RunDaily emits yield and commissions for the given reference date.
// Accounts must be ACTIVE, not downranked, and hold a positive blocked
// balance to earn. The run is idempotent per reference date.
func (s *Service) RunDaily(ctx context.Context, refDate time.Time) error {
	refDate = truncateToDay(refDate)

	earning, err := s.accounts.ListEarning(ctx)
	if err != nil {
		return fmt.Errorf("failed to list earning accounts: %w", err)
	}

	var failed int
	for _, account := range earning {
		if err := s.processAccount(ctx, account, refDate); err != nil {
			failed++
			s.logger.Error("commission processing failed for account",
				"account_id", account.ID.String(), "error", err)
		}
	}

	count, _ := s.commissions.CountForDate(ctx, refDate)
	total, _ := s.commissions.SumForDate(ctx, refDate)
	s.logger.Info("daily commission run finished",
		"reference_date", refDate.Format("2006-01-02"),
		"earning_accounts", len(earning),
		"failed_accounts", failed,
		"rows", count,
		"total_paid", total.String(),
	)

	if failed > 0 {
		return fmt.Errorf("commission run had %d failed accounts", failed)
	}
	return nil
}

// History returns commission history for a recipient, newest first
func (s *Service) History(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*entities.Commission, error) {
	return s.commissions.ListByRecipient(ctx, recipientID, limit, offset)
}

func (s *Service) processAccount(ctx context.Context, account *entities.Account, refDate time.Time) error {
	base := account.BlockedBalance

	// Level 0: self yield on the account's own blocked balance
	if err := s.emit(ctx, account.ID, account.ID, 0, base, SelfYieldRate(account.Rank), refDate); err != nil {
		return err
	}

	uplines, err := s.accounts.GetUplines(ctx, account.ID, entities.MaxNetworkLevel)
	if err != nil {
		return fmt.Errorf("failed to walk uplines: %w", err)
	}

	for i, upline := range uplines {
		level := i + 1
		if !upline.EarnsCommissions() {
			continue
		}
		rate := LevelRate(upline.Rank, level)
		if rate.IsZero() {
			continue
		}
		if err := s.emit(ctx, upline.ID, account.ID, level, base, rate, refDate); err != nil {
			return err
		}
	}

	return nil
}

// emit inserts the accrual row and credits the ledger only when the row
// won the unique tuple, so a re-run never pays twice
func (s *Service) emit(ctx context.Context, recipientID, sourceID uuid.UUID, level int, base, rate decimal.Decimal, refDate time.Time) error {
	amount := base.Mul(rate).Div(hundred)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	commission := &entities.Commission{
		ID:            uuid.New(),
		RecipientID:   recipientID,
		SourceID:      sourceID,
		Level:         level,
		BaseAmount:    base,
		Percentage:    rate,
		Amount:        amount,
		ReferenceDate: refDate,
		Status:        entities.CommissionStatusPaid,
		CreatedAt:     time.Now(),
	}

	inserted, err := s.commissions.Insert(ctx, commission)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	contract := s.payoutToken.ContractAddress
	if err := s.balances.Credit(ctx, recipientID, s.payoutToken.Symbol, &contract, amount); err != nil {
		// The accrual row exists but the credit did not land. This needs
		// operator attention; the row id pins down exactly what to fix.
		s.logger.Error("commission credit failed after insert",
			"commission_id", commission.ID.String(),
			"recipient_id", recipientID.String(),
			"amount", amount.String(),
			"error", err,
		)
		return err
	}

	metrics.CommissionsEmitted.WithLabelValues(strconv.Itoa(level)).Inc()
	return nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
