package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/infrastructure/database"
)

// BalanceRepository persists per-account, per-token balances. Every
// mutation is a single conditional statement or wrapped transaction so
// concurrent credits/debits to the same row cannot lose updates.
type BalanceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *sqlx.DB, logger *zap.Logger) *BalanceRepository {
	return &BalanceRepository{db: db, logger: logger}
}

// Get retrieves the balance row for (account, token)
func (r *BalanceRepository) Get(ctx context.Context, accountID uuid.UUID, token string) (*entities.Balance, error) {
	var balance entities.Balance
	query := `SELECT * FROM balances WHERE account_id = $1 AND token_symbol = $2`
	err := r.db.GetContext(ctx, &balance, query, accountID, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrUnknownToken
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &balance, nil
}

// GetAll retrieves all balances for an account
func (r *BalanceRepository) GetAll(ctx context.Context, accountID uuid.UUID) ([]*entities.Balance, error) {
	var balances []*entities.Balance
	query := `SELECT * FROM balances WHERE account_id = $1 ORDER BY token_symbol`
	err := r.db.SelectContext(ctx, &balances, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	return balances, nil
}

// Credit adds to available, creating the balance row on first deposit
func (r *BalanceRepository) Credit(ctx context.Context, accountID uuid.UUID, token string, contractAddress *string, amount decimal.Decimal) error {
	query := `
		INSERT INTO balances (account_id, token_symbol, available, locked, contract_address, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (account_id, token_symbol)
		DO UPDATE SET
			available = balances.available + EXCLUDED.available,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, accountID, token, amount, contractAddress, time.Now())
	if err != nil {
		r.logger.Error("failed to credit balance",
			zap.Error(err),
			zap.String("account_id", accountID.String()),
			zap.String("token", token),
			zap.String("amount", amount.String()),
		)
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// Debit subtracts from available. Fails with ErrInsufficientFunds when
// the conditional update matches no row.
func (r *BalanceRepository) Debit(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		UPDATE balances
		SET available = available - $3, updated_at = $4
		WHERE account_id = $1 AND token_symbol = $2 AND available >= $3
	`
	return r.execGuarded(ctx, query, "debit", accountID, token, amount)
}

// Lock moves available to locked, reserving funds for a pending withdrawal
func (r *BalanceRepository) Lock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		UPDATE balances
		SET available = available - $3, locked = locked + $3, updated_at = $4
		WHERE account_id = $1 AND token_symbol = $2 AND available >= $3
	`
	return r.execGuarded(ctx, query, "lock", accountID, token, amount)
}

// Unlock moves locked back to available on rejection or failure
func (r *BalanceRepository) Unlock(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		UPDATE balances
		SET available = available + $3, locked = locked - $3, updated_at = $4
		WHERE account_id = $1 AND token_symbol = $2 AND locked >= $3
	`
	return r.execGuarded(ctx, query, "unlock", accountID, token, amount)
}

// Settle burns locked funds when a withdrawal completes on-chain
func (r *BalanceRepository) Settle(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		UPDATE balances
		SET locked = locked - $3, updated_at = $4
		WHERE account_id = $1 AND token_symbol = $2 AND locked >= $3
	`
	return r.execGuarded(ctx, query, "settle", accountID, token, amount)
}

func (r *BalanceRepository) execGuarded(ctx context.Context, query, op string, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx, query, accountID, token, amount, time.Now())
	if err != nil {
		r.logger.Error("balance operation failed",
			zap.Error(err),
			zap.String("op", op),
			zap.String("account_id", accountID.String()),
			zap.String("token", token),
		)
		return fmt.Errorf("failed to %s balance: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing row from an underfunded one
		if _, getErr := r.Get(ctx, accountID, token); getErr != nil {
			return getErr
		}
		return domainerrors.ErrInsufficientFunds
	}

	return nil
}

// Block atomically moves available funds into the account's blocked
// balance. Both sides commit or neither does.
func (r *BalanceRepository) Block(ctx context.Context, accountID uuid.UUID, token string, amount decimal.Decimal) error {
	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE balances
			SET available = available - $3, updated_at = $4
			WHERE account_id = $1 AND token_symbol = $2 AND available >= $3
		`, accountID, token, amount, time.Now())
		if err != nil {
			return fmt.Errorf("failed to deduct available: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM balances WHERE account_id = $1 AND token_symbol = $2)`,
				accountID, token); err != nil {
				return fmt.Errorf("failed to check balance row: %w", err)
			}
			if !exists {
				return domainerrors.ErrUnknownToken
			}
			return domainerrors.ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET blocked_balance = blocked_balance + $2, updated_at = $3
			WHERE id = $1
		`, accountID, amount, time.Now()); err != nil {
			return fmt.Errorf("failed to add blocked balance: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("funds blocked for rank commitment",
		zap.String("account_id", accountID.String()),
		zap.String("token", token),
		zap.String("amount", amount.String()),
	)
	return nil
}

// ListHolders returns account ids holding a confirmed positive balance in
// the given token, used by batch collect to enumerate sweep targets
func (r *BalanceRepository) ListHolders(ctx context.Context, token string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT account_id FROM balances WHERE token_symbol = $1 AND available > 0`
	err := r.db.SelectContext(ctx, &ids, query, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders: %w", err)
	}
	return ids, nil
}
