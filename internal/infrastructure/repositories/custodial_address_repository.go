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

// CustodialAddressRepository persists per-account custodial addresses
type CustodialAddressRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCustodialAddressRepository creates a new custodial address repository
func NewCustodialAddressRepository(db *sqlx.DB, logger *zap.Logger) *CustodialAddressRepository {
	return &CustodialAddressRepository{db: db, logger: logger}
}

// Create inserts a custodial address
func (r *CustodialAddressRepository) Create(ctx context.Context, addr *entities.CustodialAddress) error {
	query := `
		INSERT INTO custodial_addresses (id, account_id, address, encrypted_key,
			watch_active, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		addr.ID, addr.AccountID, addr.Address, addr.EncryptedKey,
		addr.WatchActive, addr.Status, addr.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create custodial address",
			zap.Error(err),
			zap.String("account_id", addr.AccountID.String()),
		)
		return fmt.Errorf("failed to create custodial address: %w", err)
	}
	return nil
}

// GetByAccount retrieves the custodial address for an account
func (r *CustodialAddressRepository) GetByAccount(ctx context.Context, accountID uuid.UUID) (*entities.CustodialAddress, error) {
	var addr entities.CustodialAddress
	err := r.db.GetContext(ctx, &addr,
		`SELECT * FROM custodial_addresses WHERE account_id = $1`, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get custodial address: %w", err)
	}
	return &addr, nil
}

// GetByAddress retrieves a custodial address by its chain address
func (r *CustodialAddressRepository) GetByAddress(ctx context.Context, address string) (*entities.CustodialAddress, error) {
	var addr entities.CustodialAddress
	err := r.db.GetContext(ctx, &addr,
		`SELECT * FROM custodial_addresses WHERE LOWER(address) = LOWER($1)`, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get custodial address: %w", err)
	}
	return &addr, nil
}

// ListActive returns all active custodial addresses, the sweep universe
// for batch collect
func (r *CustodialAddressRepository) ListActive(ctx context.Context) ([]*entities.CustodialAddress, error) {
	var addrs []*entities.CustodialAddress
	err := r.db.SelectContext(ctx, &addrs,
		`SELECT * FROM custodial_addresses WHERE status = $1 ORDER BY created_at`,
		entities.CustodialAddressActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list custodial addresses: %w", err)
	}
	return addrs, nil
}

// SetWatchActive marks the address as registered with the chain-watch
// provider
func (r *CustodialAddressRepository) SetWatchActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE custodial_addresses SET watch_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set watch active: %w", err)
	}
	return nil
}
