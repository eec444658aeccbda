// Package wallet provisions per-account custodial deposit addresses and
// guards their signing keys.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/chain"
	"github.com/stakevine/stakevine_core/pkg/crypto"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// AddressStore is the persistence surface for custodial addresses
type AddressStore interface {
	Create(ctx context.Context, addr *entities.CustodialAddress) error
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*entities.CustodialAddress, error)
	GetByAddress(ctx context.Context, address string) (*entities.CustodialAddress, error)
	ListActive(ctx context.Context) ([]*entities.CustodialAddress, error)
	SetWatchActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Service mints and serves custodial addresses. Signing keys are stored
// AES-GCM encrypted and only decrypted for batch collect sweeps.
type Service struct {
	addresses        AddressStore
	generator        chain.AddressGenerator
	watcher          chain.WatchProvider
	encryptionSecret string
	logger           *logger.Logger
}

// NewService creates the wallet service
func NewService(addresses AddressStore, generator chain.AddressGenerator, watcher chain.WatchProvider, encryptionSecret string, log *logger.Logger) *Service {
	return &Service{
		addresses:        addresses,
		generator:        generator,
		watcher:          watcher,
		encryptionSecret: encryptionSecret,
		logger:           log,
	}
}

// GetOrCreate returns the account's deposit address, minting one lazily
// on first use. Addresses are registered with the chain-watch provider so
// deposits to them produce webhook notifications.
func (s *Service) GetOrCreate(ctx context.Context, accountID uuid.UUID) (*entities.CustodialAddress, error) {
	addr, err := s.addresses.GetByAccount(ctx, accountID)
	if err == nil {
		if !addr.WatchActive {
			s.tryRegisterWatch(ctx, addr)
		}
		return addr, nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	address, privateKey, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to generate address")
	}

	encrypted, err := crypto.Encrypt(privateKey, s.encryptionSecret)
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to encrypt signing key")
	}

	addr = &entities.CustodialAddress{
		ID:           uuid.New(),
		AccountID:    accountID,
		Address:      address,
		EncryptedKey: encrypted,
		Status:       entities.CustodialAddressActive,
		CreatedAt:    time.Now(),
	}

	if err := s.addresses.Create(ctx, addr); err != nil {
		// A concurrent request may have won the race; serve its address
		if existing, getErr := s.addresses.GetByAccount(ctx, accountID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info("custodial address provisioned",
		"account_id", accountID.String(), "address", address)

	s.tryRegisterWatch(ctx, addr)
	return addr, nil
}

// ResolveAddress maps a chain address back to its custodial record
func (s *Service) ResolveAddress(ctx context.Context, address string) (*entities.CustodialAddress, error) {
	return s.addresses.GetByAddress(ctx, address)
}

// DecryptKey returns the plaintext signing key for a custodial address
func (s *Service) DecryptKey(addr *entities.CustodialAddress) (string, error) {
	key, err := crypto.Decrypt(addr.EncryptedKey, s.encryptionSecret)
	if err != nil {
		return "", domainerrors.Wrap(err, "failed to decrypt signing key")
	}
	return key, nil
}

// ResumeWatches re-registers addresses whose chain-watch registration
// never succeeded. Called at startup.
func (s *Service) ResumeWatches(ctx context.Context) error {
	addrs, err := s.addresses.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, addr := range addrs {
		if addr.WatchActive {
			continue
		}
		s.tryRegisterWatch(ctx, addr)
	}
	return nil
}

func (s *Service) tryRegisterWatch(ctx context.Context, addr *entities.CustodialAddress) {
	if err := s.watcher.RegisterAddress(ctx, addr.Address); err != nil {
		s.logger.Warn("chain-watch registration failed, will retry at startup",
			"address", addr.Address, "error", err)
		return
	}
	if err := s.addresses.SetWatchActive(ctx, addr.ID, true); err != nil {
		s.logger.Error("failed to persist watch state",
			"address", addr.Address, "error", err)
		return
	}
	addr.WatchActive = true
}
