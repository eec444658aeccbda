package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
)

// uniqueViolation is the Postgres error code for duplicate keys
const uniqueViolation = "23505"

// TransactionRepository persists ledger transactions. The unique tx_hash
// constraint backs deposit idempotency.
type TransactionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// Create inserts a new ledger transaction. Returns ErrAlreadyExists when
// the tx hash was seen before.
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.LedgerTransaction) error {
	query := `
		INSERT INTO ledger_transactions (id, account_id, tx_hash, direction, token_symbol,
			amount, raw_amount, status, is_test, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.AccountID, tx.TxHash, tx.Direction, tx.TokenSymbol,
		tx.Amount, tx.RawAmount, tx.Status, tx.IsTest, tx.CreatedAt, tx.ConfirmedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return domainerrors.ErrAlreadyExists
		}
		r.logger.Error("failed to create ledger transaction",
			zap.Error(err),
			zap.String("tx_hash", tx.TxHash),
		)
		return fmt.Errorf("failed to create ledger transaction: %w", err)
	}
	return nil
}

// GetByTxHash retrieves a transaction by its chain hash
func (r *TransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.LedgerTransaction, error) {
	var tx entities.LedgerTransaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM ledger_transactions WHERE tx_hash = $1`, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// Confirm transitions a PENDING transaction to CONFIRMED. The conditional
// update makes redelivery of an already-confirmed notification a no-op;
// the bool result tells the caller whether this delivery won.
func (r *TransactionRepository) Confirm(ctx context.Context, txHash string) (bool, error) {
	query := `
		UPDATE ledger_transactions
		SET status = $2, confirmed_at = $3
		WHERE tx_hash = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, txHash,
		entities.TransactionStatusConfirmed, time.Now(), entities.TransactionStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to confirm transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkSentToGlobal stamps deposit transactions swept by batch collect
func (r *TransactionRepository) MarkSentToGlobal(ctx context.Context, accountID uuid.UUID, token string) error {
	query := `
		UPDATE ledger_transactions
		SET status = $3
		WHERE account_id = $1 AND token_symbol = $2 AND status = $4 AND direction = $5
	`
	_, err := r.db.ExecContext(ctx, query, accountID, token,
		entities.TransactionStatusSentToGlobal, entities.TransactionStatusConfirmed, entities.DirectionCredit)
	if err != nil {
		return fmt.Errorf("failed to mark transactions sent to global: %w", err)
	}
	return nil
}

// ListByAccount returns transaction history, newest first
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerTransaction, error) {
	var txs []*entities.LedgerTransaction
	query := `
		SELECT * FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &txs, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// HasConfirmedDeposit reports whether the account ever had a confirmed
// credit, used to gate lazy activation
func (r *TransactionRepository) HasConfirmedDeposit(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM ledger_transactions
			WHERE account_id = $1 AND direction = $2
			AND status IN ($3, $4)
		)
	`
	err := r.db.GetContext(ctx, &exists, query, accountID, entities.DirectionCredit,
		entities.TransactionStatusConfirmed, entities.TransactionStatusSentToGlobal)
	if err != nil {
		return false, fmt.Errorf("failed to check confirmed deposits: %w", err)
	}
	return exists, nil
}

// NetConfirmed returns sum(confirmed credits) - sum(confirmed debits) for
// (account, token). Reconciliation checks this against available + locked.
func (r *TransactionRepository) NetConfirmed(ctx context.Context, accountID uuid.UUID, token string) (decimal.Decimal, error) {
	var net decimal.Decimal
	query := `
		SELECT COALESCE(SUM(
			CASE WHEN direction = $3 THEN amount ELSE -amount END
		), 0)
		FROM ledger_transactions
		WHERE account_id = $1 AND token_symbol = $2 AND status IN ($4, $5)
	`
	err := r.db.GetContext(ctx, &net, query, accountID, token, entities.DirectionCredit,
		entities.TransactionStatusConfirmed, entities.TransactionStatusSentToGlobal)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum confirmed transactions: %w", err)
	}
	return net, nil
}
