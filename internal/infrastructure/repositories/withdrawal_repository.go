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
)

// WithdrawalRepository persists withdrawal requests. Status transitions
// are conditional updates so concurrent triggers cannot double-apply:
// the status + processed_at pair acts as a compare-and-swap gate.
type WithdrawalRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB, logger *zap.Logger) *WithdrawalRepository {
	return &WithdrawalRepository{db: db, logger: logger}
}

// Create inserts a withdrawal in PENDING_APPROVAL
func (r *WithdrawalRepository) Create(ctx context.Context, w *entities.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (id, account_id, token_symbol, amount, fee_amount,
			fee_percentage, net_amount, destination_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.AccountID, w.TokenSymbol, w.Amount, w.FeeAmount,
		w.FeePercentage, w.NetAmount, w.DestinationAddress, w.Status,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create withdrawal",
			zap.Error(err),
			zap.String("account_id", w.AccountID.String()),
		)
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	var w entities.Withdrawal
	err := r.db.GetContext(ctx, &w, `SELECT * FROM withdrawals WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &w, nil
}

// ListByAccount returns withdrawal history, newest first
func (r *WithdrawalRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	var ws []*entities.Withdrawal
	query := `
		SELECT * FROM withdrawals WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &ws, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return ws, nil
}

// HasNonTerminal reports whether the account already has an in-flight
// withdrawal (anything not COMPLETED or REJECTED)
func (r *WithdrawalRepository) HasNonTerminal(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM withdrawals
			WHERE account_id = $1 AND status NOT IN ($2, $3)
		)
	`
	err := r.db.GetContext(ctx, &exists, query, accountID,
		entities.WithdrawalStatusCompleted, entities.WithdrawalStatusRejected)
	if err != nil {
		return false, fmt.Errorf("failed to check pending withdrawals: %w", err)
	}
	return exists, nil
}

// SumCompletedSince totals completed withdrawals since a cutoff, used for
// the rank-dependent daily cap
func (r *WithdrawalRepository) SumCompletedSince(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM withdrawals
		WHERE account_id = $1 AND created_at >= $2 AND status NOT IN ($3, $4)
	`
	err := r.db.GetContext(ctx, &total, query, accountID, since,
		entities.WithdrawalStatusRejected, entities.WithdrawalStatusFailed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	return total, nil
}

// CountSince counts withdrawal requests since a cutoff, used for the
// progressive fee tier
func (r *WithdrawalRepository) CountSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM withdrawals
		WHERE account_id = $1 AND created_at >= $2 AND status != $3
	`
	err := r.db.GetContext(ctx, &count, query, accountID, since, entities.WithdrawalStatusRejected)
	if err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	return count, nil
}

// Approve transitions PENDING_APPROVAL -> APPROVED
func (r *WithdrawalRepository) Approve(ctx context.Context, id, approver uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $3, approved_by = $2, approved_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	return r.execTransition(ctx, query, id, approver,
		entities.WithdrawalStatusApproved, now, entities.WithdrawalStatusPendingApproval)
}

// Reject transitions PENDING_APPROVAL -> REJECTED with a reason
func (r *WithdrawalRepository) Reject(ctx context.Context, id, approver uuid.UUID, reason string) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $3, approved_by = $2, rejection_reason = $6, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, id, approver,
		entities.WithdrawalStatusRejected, now, entities.WithdrawalStatusPendingApproval, reason)
	if err != nil {
		return fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	return checkTransition(result)
}

// BeginProcessing is the compare-and-swap gate: only one caller can move
// APPROVED -> PROCESSING because processed_at must still be null.
func (r *WithdrawalRepository) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $2, processed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4 AND processed_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusProcessing, now, entities.WithdrawalStatusApproved)
	if err != nil {
		return fmt.Errorf("failed to begin processing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrAlreadyProcessing
	}
	return nil
}

// MarkCompleted transitions PROCESSING -> COMPLETED and records the chain
// transaction hash
func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $2, tx_hash = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusCompleted, txHash, now, entities.WithdrawalStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	return checkTransition(result)
}

// MarkFailed transitions PROCESSING -> FAILED with the failure reason
func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusFailed, reason, now, entities.WithdrawalStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return checkTransition(result)
}

// ResetForRetry transitions FAILED -> APPROVED and clears processed_at so
// the processing gate opens again. Admin-only.
func (r *WithdrawalRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE withdrawals
		SET status = $2, processed_at = NULL, failure_reason = NULL, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusApproved, now, entities.WithdrawalStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset for retry: %w", err)
	}
	return checkTransition(result)
}

func (r *WithdrawalRepository) execTransition(ctx context.Context, query string, id, approver uuid.UUID, to entities.WithdrawalStatus, now time.Time, from entities.WithdrawalStatus) error {
	result, err := r.db.ExecContext(ctx, query, id, approver, to, now, from)
	if err != nil {
		return fmt.Errorf("failed to transition withdrawal: %w", err)
	}
	return checkTransition(result)
}

func checkTransition(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}
