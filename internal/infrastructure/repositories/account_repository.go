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

// AccountRepository handles account persistence
type AccountRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

// Create inserts a new account. The referrer link is immutable afterwards.
func (r *AccountRepository) Create(ctx context.Context, account *entities.Account) error {
	query := `
		INSERT INTO accounts (id, referrer_id, referral_code, rank, rank_status, status,
			blocked_balance, lifetime_volume, monthly_volume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.ReferrerID, account.ReferralCode,
		account.Rank, account.RankStatus, account.Status,
		account.BlockedBalance, account.LifetimeVolume, account.MonthlyVolume,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create account",
			zap.Error(err),
			zap.String("account_id", account.ID.String()),
		)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	var account entities.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetByReferralCode retrieves an account by its unique referral code
func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*entities.Account, error) {
	var account entities.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE referral_code = $1`, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by referral code: %w", err)
	}
	return &account, nil
}

// GetUplines walks the referrer chain up to maxLevels hops. The walk is
// level-bounded so a corrupt chain can never loop the caller.
func (r *AccountRepository) GetUplines(ctx context.Context, accountID uuid.UUID, maxLevels int) ([]*entities.Account, error) {
	uplines := make([]*entities.Account, 0, maxLevels)
	visited := map[uuid.UUID]bool{accountID: true}

	current, err := r.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	for level := 0; level < maxLevels && current.ReferrerID != nil; level++ {
		if visited[*current.ReferrerID] {
			r.logger.Warn("referrer chain cycle detected, truncating walk",
				zap.String("account_id", accountID.String()),
				zap.String("repeated_id", current.ReferrerID.String()),
			)
			break
		}

		upline, err := r.GetByID(ctx, *current.ReferrerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get upline at level %d: %w", level+1, err)
		}

		visited[upline.ID] = true
		uplines = append(uplines, upline)
		current = upline
	}

	return uplines, nil
}

// CountActiveDirects counts direct referrals that are ACTIVE and hold at
// least minBlocked in blocked balance
func (r *AccountRepository) CountActiveDirects(ctx context.Context, accountID uuid.UUID, minBlocked decimal.Decimal) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM accounts
		WHERE referrer_id = $1 AND status = $2 AND blocked_balance >= $3
	`
	err := r.db.GetContext(ctx, &count, query, accountID, entities.AccountStatusActive, minBlocked)
	if err != nil {
		return 0, fmt.Errorf("failed to count active directs: %w", err)
	}
	return count, nil
}

// ListEarning returns accounts eligible for the daily commission run:
// ACTIVE, not DOWNRANKED, with a positive blocked balance.
func (r *AccountRepository) ListEarning(ctx context.Context) ([]*entities.Account, error) {
	var accounts []*entities.Account
	query := `
		SELECT * FROM accounts
		WHERE status = $1 AND rank_status != $2 AND blocked_balance > 0
		ORDER BY created_at
	`
	err := r.db.SelectContext(ctx, &accounts, query, entities.AccountStatusActive, entities.RankStatusDownranked)
	if err != nil {
		return nil, fmt.Errorf("failed to list earning accounts: %w", err)
	}
	return accounts, nil
}

// ListByRankStatus returns all accounts in a given rank status
func (r *AccountRepository) ListByRankStatus(ctx context.Context, status entities.RankStatus) ([]*entities.Account, error) {
	var accounts []*entities.Account
	err := r.db.SelectContext(ctx, &accounts,
		`SELECT * FROM accounts WHERE rank_status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by rank status: %w", err)
	}
	return accounts, nil
}

// ListActive returns all ACTIVE accounts
func (r *AccountRepository) ListActive(ctx context.Context) ([]*entities.Account, error) {
	var accounts []*entities.Account
	err := r.db.SelectContext(ctx, &accounts,
		`SELECT * FROM accounts WHERE status = $1 ORDER BY created_at`, entities.AccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accounts, nil
}

// Activate flips a pending account to ACTIVE. Idempotent.
func (r *AccountRepository) Activate(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE accounts SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, accountID,
		entities.AccountStatusActive, time.Now(), entities.AccountStatusPendingActivation)
	if err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	return nil
}

// UpdateRank promotes an account and stamps rank_conquered_at
func (r *AccountRepository) UpdateRank(ctx context.Context, accountID uuid.UUID, rank entities.Rank) error {
	now := time.Now()
	query := `
		UPDATE accounts SET rank = $2, rank_conquered_at = $3, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, accountID, rank, now)
	if err != nil {
		return fmt.Errorf("failed to update rank: %w", err)
	}

	r.logger.Info("account rank updated",
		zap.String("account_id", accountID.String()),
		zap.String("rank", string(rank)),
	)
	return nil
}

// UpdateRankStatus transitions rank status with a guard on the expected
// current status, so concurrent maintenance runs cannot double-apply.
func (r *AccountRepository) UpdateRankStatus(ctx context.Context, accountID uuid.UUID, from, to entities.RankStatus) error {
	query := `
		UPDATE accounts SET rank_status = $3, updated_at = $4
		WHERE id = $1 AND rank_status = $2
	`
	result, err := r.db.ExecContext(ctx, query, accountID, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update rank status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInvalidTransition
	}

	return nil
}

// AddVolume adds USD-equivalent volume to lifetime and monthly counters
func (r *AccountRepository) AddVolume(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET lifetime_volume = lifetime_volume + $2,
			monthly_volume = monthly_volume + $2,
			updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add volume: %w", err)
	}
	return nil
}

// ResetMonthlyVolumes zeroes the monthly volume counters, called by the
// monthly maintenance job after snapshots are taken
func (r *AccountRepository) ResetMonthlyVolumes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET monthly_volume = 0, updated_at = $1`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reset monthly volumes: %w", err)
	}
	return nil
}

// SetLastWithdrawal stamps the loyalty clock
func (r *AccountRepository) SetLastWithdrawal(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_withdrawal_at = $2, updated_at = $2 WHERE id = $1`, accountID, at)
	if err != nil {
		return fmt.Errorf("failed to set last withdrawal: %w", err)
	}
	return nil
}

// ReduceBlockedBalance releases blocked balance on withdrawal/downrank
// reconciliation. Fails if it would go negative.
func (r *AccountRepository) ReduceBlockedBalance(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE accounts SET blocked_balance = blocked_balance - $2, updated_at = $3
		WHERE id = $1 AND blocked_balance >= $2
	`
	result, err := r.db.ExecContext(ctx, query, accountID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reduce blocked balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domainerrors.ErrInsufficientFunds
	}

	return nil
}
