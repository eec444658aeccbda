// Package ledger orchestrates balance mutations. Every operation is
// delegated to a single conditional statement in the store so concurrent
// callers cannot observe or create negative balances.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// BalanceStore is the persistence surface for balances
type BalanceStore interface {
	Get(ctx context.Context, accountID uuid.UUID, token string) (*entities.Balance, error)
	GetAll(ctx context.Context, accountID uuid.UUID) ([]*entities.Balance, error)
	Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error
	Debit(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Lock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Unlock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Settle(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
	Block(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error
}

// TransactionStore is the persistence surface for ledger transactions
type TransactionStore interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerTransaction, error)
	NetConfirmed(ctx context.Context, accountID uuid.UUID, token string) (decimal.Decimal, error)
}

// Service is the balance ledger
type Service struct {
	balances     BalanceStore
	transactions TransactionStore
	logger       *logger.Logger
}

// NewService creates the ledger service
func NewService(balances BalanceStore, transactions TransactionStore, log *logger.Logger) *Service {
	return &Service{balances: balances, transactions: transactions, logger: log}
}

// Balance returns the (account, token) balance row
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID, token string) (*entities.Balance, error) {
	return s.balances.Get(ctx, accountID, token)
}

// Balances returns all balances for an account
func (s *Service) Balances(ctx context.Context, accountID uuid.UUID) ([]*entities.Balance, error) {
	return s.balances.GetAll(ctx, accountID)
}

// Transactions returns transaction history for an account
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerTransaction, error) {
	return s.transactions.ListByAccount(ctx, accountID, limit, offset)
}

// Credit adds amount to available
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := s.balances.Credit(ctx, accountID, token, contractAddress, amount); err != nil {
		return err
	}
	s.logger.Debug("balance credited",
		"account_id", accountID.String(), "token", token, "amount", amount.String())
	return nil
}

// Debit removes amount from available, failing if the account lacks funds
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return s.balances.Debit(ctx, accountID, token, amount)
}

// Lock reserves amount for a pending withdrawal
func (s *Service) Lock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return s.balances.Lock(ctx, accountID, token, amount)
}

// Unlock releases a reservation back to available
func (s *Service) Unlock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return s.balances.Unlock(ctx, accountID, token, amount)
}

// Settle burns locked funds after an on-chain settlement completes
func (s *Service) Settle(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return s.balances.Settle(ctx, accountID, token, amount)
}

// Block moves available funds into the account's rank commitment.
// Both the balance deduction and the blocked counter move atomically.
func (s *Service) Block(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return s.balances.Block(ctx, accountID, token, amount)
}

// Reconciliation compares the transaction ledger against the balance row
type Reconciliation struct {
	AccountID    uuid.UUID       `json:"account_id"`
	TokenSymbol  string          `json:"token_symbol"`
	NetConfirmed decimal.Decimal `json:"net_confirmed"`
	LedgerTotal  decimal.Decimal `json:"ledger_total"`
	Drift        decimal.Decimal `json:"drift"`
}

// Reconcile checks that available + locked matches the net of confirmed
// transactions. A non-zero drift means an internal movement (commission,
// fee) or a bug changed the balance outside the transaction log.
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID, token string) (*Reconciliation, error) {
	balance, err := s.balances.Get(ctx, accountID, token)
	if err != nil {
		return nil, err
	}

	net, err := s.transactions.NetConfirmed(ctx, accountID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to compute net confirmed: %w", err)
	}

	rec := &Reconciliation{
		AccountID:    accountID,
		TokenSymbol:  token,
		NetConfirmed: net,
		LedgerTotal:  balance.Total(),
		Drift:        balance.Total().Sub(net),
	}

	if !rec.Drift.IsZero() {
		s.logger.Warn("ledger drift detected",
			"account_id", accountID.String(),
			"token", token,
			"drift", rec.Drift.String(),
		)
	}

	return rec, nil
}

func requirePositive(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domainerrors.ErrNonPositiveAmount
	}
	return nil
}
