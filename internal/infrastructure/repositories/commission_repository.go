package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
)

// CommissionRepository persists commission accruals. The unique
// (recipient, source, level, reference_date) index makes the daily job
// idempotent: re-runs insert nothing.
type CommissionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCommissionRepository creates a new commission repository
func NewCommissionRepository(db *sqlx.DB, logger *zap.Logger) *CommissionRepository {
	return &CommissionRepository{db: db, logger: logger}
}

// Insert writes a commission row if the tuple is new. Returns true when
// the row was inserted, false when an identical accrual already exists.
func (r *CommissionRepository) Insert(ctx context.Context, c *entities.Commission) (bool, error) {
	query := `
		INSERT INTO commissions (id, recipient_id, source_id, level, base_amount,
			percentage, amount, reference_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (recipient_id, source_id, level, reference_date) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		c.ID, c.RecipientID, c.SourceID, c.Level, c.BaseAmount,
		c.Percentage, c.Amount, c.ReferenceDate, c.Status, c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to insert commission",
			zap.Error(err),
			zap.String("recipient_id", c.RecipientID.String()),
			zap.Int("level", c.Level),
		)
		return false, fmt.Errorf("failed to insert commission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListByRecipient returns commission history, newest first
func (r *CommissionRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*entities.Commission, error) {
	var commissions []*entities.Commission
	query := `
		SELECT * FROM commissions
		WHERE recipient_id = $1
		ORDER BY reference_date DESC, level
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &commissions, query, recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return commissions, nil
}

// SumForDate totals paid commissions for a reference date, used by the
// daily job's summary log line
func (r *CommissionRepository) SumForDate(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM commissions
		WHERE reference_date = $1 AND status = $2
	`
	err := r.db.GetContext(ctx, &total, query, date, entities.CommissionStatusPaid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum commissions: %w", err)
	}
	return total, nil
}

// CountForDate counts rows for a reference date
func (r *CommissionRepository) CountForDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM commissions WHERE reference_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to count commissions: %w", err)
	}
	return count, nil
}
