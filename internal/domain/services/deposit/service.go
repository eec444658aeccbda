// Package deposit processes chain-watch notifications into ledger credits.
// The pipeline is idempotent end to end: the unique tx hash absorbs
// duplicate "seen" events and the PENDING -> CONFIRMED compare-and-swap
// absorbs duplicate "confirmed" events.
package deposit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/domain/services/pricing"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// AccountStore is the account surface the pipeline needs
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	Activate(ctx context.Context, accountID uuid.UUID) error
	AddVolume(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	GetUplines(ctx context.Context, accountID uuid.UUID, maxLevels int) ([]*entities.Account, error)
}

// TransactionStore is the ledger transaction surface
type TransactionStore interface {
	Create(ctx context.Context, tx *entities.LedgerTransaction) error
	Confirm(ctx context.Context, txHash string) (bool, error)
}

// BalanceStore credits confirmed deposits
type BalanceStore interface {
	Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error
}

// AddressResolver maps a chain address to its custodial record
type AddressResolver interface {
	ResolveAddress(ctx context.Context, address string) (*entities.CustodialAddress, error)
}

// PromotionEvaluator re-checks rank thresholds after a volume change
type PromotionEvaluator interface {
	EvaluatePromotion(ctx context.Context, accountID uuid.UUID) error
}

// Service is the deposit confirmation pipeline
type Service struct {
	accounts            AccountStore
	transactions        TransactionStore
	balances            BalanceStore
	addresses           AddressResolver
	registry            *tokens.Registry
	oracle              pricing.Oracle
	ranks               PromotionEvaluator
	notifier            notify.Notifier
	activationThreshold decimal.Decimal
	logger              *logger.Logger
}

// NewService creates the deposit pipeline
func NewService(
	accounts AccountStore,
	transactions TransactionStore,
	balances BalanceStore,
	addresses AddressResolver,
	registry *tokens.Registry,
	oracle pricing.Oracle,
	ranks PromotionEvaluator,
	notifier notify.Notifier,
	activationThreshold decimal.Decimal,
	log *logger.Logger,
) *Service {
	return &Service{
		accounts:            accounts,
		transactions:        transactions,
		balances:            balances,
		addresses:           addresses,
		registry:            registry,
		oracle:              oracle,
		ranks:               ranks,
		notifier:            notifier,
		activationThreshold: activationThreshold,
		logger:              log,
	}
}

// HandleNotification processes one chain-watch event. Notifications for
// addresses we don't custody are acknowledged and dropped so the provider
// does not redeliver them forever.
func (s *Service) HandleNotification(ctx context.Context, n *entities.DepositNotification) error {
	addr, err := s.addresses.ResolveAddress(ctx, n.Address)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			s.logger.Warn("deposit notification for unknown address, dropping",
				"address", n.Address, "tx_hash", n.TxHash)
			return nil
		}
		return err
	}

	info, known := s.registry.Resolve(n.TokenAddress, n.TokenSymbol)
	if !known {
		s.logger.Warn("deposit in unmapped token, stored without USD value",
			"token_address", n.TokenAddress, "symbol", info.Symbol, "tx_hash", n.TxHash)
	}

	amount, err := tokens.ParseRaw(n.RawAmount, info.Decimals)
	if err != nil {
		return domainerrors.Wrap(err, "invalid raw amount")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return domainerrors.ErrNonPositiveAmount
	}

	switch n.Kind {
	case entities.DepositSeen:
		return s.handleSeen(ctx, addr, n, info, amount)
	case entities.DepositConfirmed:
		return s.handleConfirmed(ctx, addr, n, info, known, amount)
	default:
		return domainerrors.New(nil, "UNKNOWN_KIND", "unknown notification kind "+string(n.Kind))
	}
}

func (s *Service) handleSeen(ctx context.Context, addr *entities.CustodialAddress, n *entities.DepositNotification, info entities.TokenInfo, amount decimal.Decimal) error {
	err := s.transactions.Create(ctx, s.newTransaction(addr.AccountID, n, info, amount))
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			s.logger.Debug("duplicate seen notification", "tx_hash", n.TxHash)
			return nil
		}
		return err
	}

	s.logger.Info("deposit seen",
		"account_id", addr.AccountID.String(),
		"token", info.Symbol,
		"amount", amount.String(),
		"tx_hash", n.TxHash,
	)
	return nil
}

func (s *Service) handleConfirmed(ctx context.Context, addr *entities.CustodialAddress, n *entities.DepositNotification, info entities.TokenInfo, known bool, amount decimal.Decimal) error {
	// A confirmation can arrive without a prior seen event; make sure the
	// pending row exists before the confirm gate.
	if err := s.transactions.Create(ctx, s.newTransaction(addr.AccountID, n, info, amount)); err != nil &&
		!errors.Is(err, domainerrors.ErrAlreadyExists) {
		return err
	}

	won, err := s.transactions.Confirm(ctx, n.TxHash)
	if err != nil {
		return err
	}
	if !won {
		s.logger.Debug("duplicate confirmed notification", "tx_hash", n.TxHash)
		return nil
	}

	var contract *string
	if info.ContractAddress != "" {
		contract = &info.ContractAddress
	}
	if err := s.balances.Credit(ctx, addr.AccountID, info.Symbol, contract, amount); err != nil {
		return err
	}

	s.logger.Info("deposit confirmed and credited",
		"account_id", addr.AccountID.String(),
		"token", info.Symbol,
		"amount", amount.String(),
		"tx_hash", n.TxHash,
	)

	if !n.IsTest {
		s.applyVolume(ctx, addr.AccountID, info, known, amount)
	}

	if err := s.notifier.Notify(ctx, addr.AccountID, notify.EventDepositConfirmed, map[string]string{
		"token":  info.Symbol,
		"amount": amount.String(),
	}); err != nil {
		s.logger.Warn("deposit notification delivery failed", "error", err)
	}

	return nil
}

// applyVolume converts the deposit to USD and feeds the activation check,
// volume counters and promotion evaluation. Failures here are logged but
// never fail the credit: funds safety comes first, counters can lag.
func (s *Service) applyVolume(ctx context.Context, accountID uuid.UUID, info entities.TokenInfo, known bool, amount decimal.Decimal) {
	if !known {
		return
	}

	price, err := s.oracle.PriceUSD(ctx, info.Symbol)
	if err != nil {
		s.logger.Warn("price lookup failed, deposit excluded from volume",
			"token", info.Symbol, "error", err)
		return
	}
	usd := amount.Mul(price)
	if usd.LessThanOrEqual(decimal.Zero) {
		return
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to load account for volume", "account_id", accountID.String(), "error", err)
		return
	}

	if account.Status == entities.AccountStatusPendingActivation && usd.GreaterThanOrEqual(s.activationThreshold) {
		if err := s.accounts.Activate(ctx, accountID); err != nil {
			s.logger.Error("activation failed", "account_id", accountID.String(), "error", err)
		} else {
			s.logger.Info("account activated", "account_id", accountID.String(), "deposit_usd", usd.String())
			if err := s.notifier.Notify(ctx, accountID, notify.EventAccountActivated, nil); err != nil {
				s.logger.Warn("activation notification delivery failed", "error", err)
			}
		}
	}

	// Volume accrues to the depositor and its uplines: a deposit is
	// network volume for everyone above it in the tree.
	if err := s.accounts.AddVolume(ctx, accountID, usd); err != nil {
		s.logger.Error("failed to add volume", "account_id", accountID.String(), "error", err)
	}
	s.evaluatePromotion(ctx, accountID)

	uplines, err := s.accounts.GetUplines(ctx, accountID, entities.MaxNetworkLevel)
	if err != nil {
		s.logger.Error("failed to walk uplines for volume", "account_id", accountID.String(), "error", err)
		return
	}
	for _, up := range uplines {
		if err := s.accounts.AddVolume(ctx, up.ID, usd); err != nil {
			s.logger.Error("failed to add upline volume", "account_id", up.ID.String(), "error", err)
			continue
		}
		s.evaluatePromotion(ctx, up.ID)
	}
}

func (s *Service) evaluatePromotion(ctx context.Context, accountID uuid.UUID) {
	if err := s.ranks.EvaluatePromotion(ctx, accountID); err != nil {
		s.logger.Error("promotion evaluation failed", "account_id", accountID.String(), "error", err)
	}
}

func (s *Service) newTransaction(accountID uuid.UUID, n *entities.DepositNotification, info entities.TokenInfo, amount decimal.Decimal) *entities.LedgerTransaction {
	return &entities.LedgerTransaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		TxHash:      n.TxHash,
		Direction:   entities.DirectionCredit,
		TokenSymbol: info.Symbol,
		Amount:      amount,
		RawAmount:   n.RawAmount,
		Status:      entities.TransactionStatusPending,
		IsTest:      n.IsTest,
		CreatedAt:   time.Now(),
	}
}
