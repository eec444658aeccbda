package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
)

// MonthlyStatsRepository persists the append-only maintenance snapshots
type MonthlyStatsRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMonthlyStatsRepository creates a new monthly stats repository
func NewMonthlyStatsRepository(db *sqlx.DB, logger *zap.Logger) *MonthlyStatsRepository {
	return &MonthlyStatsRepository{db: db, logger: logger}
}

// Upsert writes the snapshot for (account, year, month). Re-running the
// maintenance job overwrites with identical data rather than duplicating.
func (r *MonthlyStatsRepository) Upsert(ctx context.Context, s *entities.MonthlyStats) error {
	query := `
		INSERT INTO monthly_stats (id, account_id, year, month, active_directs,
			network_volume, requirements_met, rank_at_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id, year, month)
		DO UPDATE SET
			active_directs = EXCLUDED.active_directs,
			network_volume = EXCLUDED.network_volume,
			requirements_met = EXCLUDED.requirements_met
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.AccountID, s.Year, s.Month, s.ActiveDirects,
		s.NetworkVolume, s.RequirementsMet, s.RankAtStart, s.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to upsert monthly stats",
			zap.Error(err),
			zap.String("account_id", s.AccountID.String()),
			zap.Int("year", s.Year),
			zap.Int("month", s.Month),
		)
		return fmt.Errorf("failed to upsert monthly stats: %w", err)
	}
	return nil
}

// Get retrieves the snapshot for (account, year, month)
func (r *MonthlyStatsRepository) Get(ctx context.Context, accountID uuid.UUID, year, month int) (*entities.MonthlyStats, error) {
	var stats entities.MonthlyStats
	query := `SELECT * FROM monthly_stats WHERE account_id = $1 AND year = $2 AND month = $3`
	err := r.db.GetContext(ctx, &stats, query, accountID, year, month)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get monthly stats: %w", err)
	}
	return &stats, nil
}
