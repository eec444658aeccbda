package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
)

// BatchCollectRepository persists per-token consolidation run records
type BatchCollectRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBatchCollectRepository creates a new batch collect repository
func NewBatchCollectRepository(db *sqlx.DB, logger *zap.Logger) *BatchCollectRepository {
	return &BatchCollectRepository{db: db, logger: logger}
}

// CreateRun writes the audit record for one token of a sweep
func (r *BatchCollectRepository) CreateRun(ctx context.Context, run *entities.BatchCollectRun) error {
	query := `
		INSERT INTO batch_collect_runs (id, job_id, token_symbol, total_collected,
			wallets_touched, wallets_failed, tx_hashes, status, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.JobID, run.TokenSymbol, run.TotalCollected,
		run.WalletsTouched, run.WalletsFailed, run.TxHashes,
		run.Status, run.TriggeredBy, run.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create batch collect run",
			zap.Error(err),
			zap.String("job_id", run.JobID.String()),
			zap.String("token", run.TokenSymbol),
		)
		return fmt.Errorf("failed to create batch collect run: %w", err)
	}
	return nil
}

// ListRuns returns run history, newest first
func (r *BatchCollectRepository) ListRuns(ctx context.Context, limit, offset int) ([]*entities.BatchCollectRun, error) {
	var runs []*entities.BatchCollectRun
	query := `SELECT * FROM batch_collect_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	err := r.db.SelectContext(ctx, &runs, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch collect runs: %w", err)
	}
	return runs, nil
}

// GetRunsByJob returns the per-token records of a single sweep
func (r *BatchCollectRepository) GetRunsByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.BatchCollectRun, error) {
	var runs []*entities.BatchCollectRun
	err := r.db.SelectContext(ctx, &runs,
		`SELECT * FROM batch_collect_runs WHERE job_id = $1 ORDER BY token_symbol`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch collect runs: %w", err)
	}
	return runs, nil
}
