// Package rank implements promotion, monthly maintenance and grace
// recovery. Promotions are immediate and evaluated on volume-changing
// events; demotions move through WARNING before DOWNRANKED so one bad
// month never costs a rank outright.
package rank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// AccountStore is the account surface the state machine needs
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	CountActiveDirects(ctx context.Context, accountID uuid.UUID, minBlocked decimal.Decimal) (int, error)
	ListActive(ctx context.Context) ([]*entities.Account, error)
	ListByRankStatus(ctx context.Context, status entities.RankStatus) ([]*entities.Account, error)
	UpdateRank(ctx context.Context, accountID uuid.UUID, rank entities.Rank) error
	UpdateRankStatus(ctx context.Context, accountID uuid.UUID, from, to entities.RankStatus) error
	ResetMonthlyVolumes(ctx context.Context) error
}

// StatsStore persists the monthly maintenance snapshots
type StatsStore interface {
	Upsert(ctx context.Context, s *entities.MonthlyStats) error
	Get(ctx context.Context, accountID uuid.UUID, year, month int) (*entities.MonthlyStats, error)
}

// ParseRequirements converts rank configuration to typed thresholds
func ParseRequirements(cfg config.RankConfig) map[entities.Rank]entities.RankRequirements {
	reqs := make(map[entities.Rank]entities.RankRequirements, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		rank := entities.Rank(name)
		reqs[rank] = entities.RankRequirements{
			Rank:             rank,
			MinActiveDirects: tier.MinActiveDirects,
			MinMonthlyVolume: config.MustDecimal(tier.MinMonthlyVolume),
			MinBlocked:       config.MustDecimal(tier.MinBlocked),
		}
	}
	return reqs
}

// Service is the rank progression state machine
type Service struct {
	accounts         AccountStore
	stats            StatsStore
	requirements     map[entities.Rank]entities.RankRequirements
	directMinBlocked decimal.Decimal
	notifier         notify.Notifier
	logger           *logger.Logger
}

// NewService creates the rank service
func NewService(accounts AccountStore, stats StatsStore, cfg config.RankConfig, notifier notify.Notifier, log *logger.Logger) *Service {
	return &Service{
		accounts:         accounts,
		stats:            stats,
		requirements:     ParseRequirements(cfg),
		directMinBlocked: config.MustDecimal(cfg.ActiveDirectMinBlocked),
		notifier:         notifier,
		logger:           log,
	}
}

// Requirements returns the thresholds for a rank
func (s *Service) Requirements(rank entities.Rank) (entities.RankRequirements, bool) {
	req, ok := s.requirements[rank]
	return req, ok
}

// EvaluatePromotion promotes the account through every rank whose
// thresholds it meets. Called after deposits, blocks and other
// volume-changing events.
func (s *Service) EvaluatePromotion(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive() {
		return nil
	}

	directs, err := s.accounts.CountActiveDirects(ctx, accountID, s.directMinBlocked)
	if err != nil {
		return err
	}

	current := account.Rank
	for {
		next := current.Next()
		if next == current {
			break
		}
		req, ok := s.requirements[next]
		if !ok {
			break
		}
		if directs < req.MinActiveDirects ||
			account.BlockedBalance.LessThan(req.MinBlocked) ||
			account.LifetimeVolume.LessThan(req.MinMonthlyVolume) {
			break
		}

		if err := s.accounts.UpdateRank(ctx, accountID, next); err != nil {
			return err
		}
		s.logger.Info("account promoted",
			"account_id", accountID.String(), "from", string(current), "to", string(next))
		if err := s.notifier.Notify(ctx, accountID, notify.EventRankPromoted, map[string]string{
			"rank": string(next),
		}); err != nil {
			s.logger.Warn("promotion notification delivery failed", "error", err)
		}
		current = next
	}

	return nil
}

// RunMonthlyMaintenance closes the previous month: snapshots every active
// account's metrics, advances ACTIVE -> WARNING -> DOWNRANKED for
// accounts missing their rank requirements, and resets monthly volume
// counters. An existing snapshot for the closed month is reused so a
// partial re-run after the volume reset cannot demote anyone twice.
func (s *Service) RunMonthlyMaintenance(ctx context.Context, now time.Time) error {
	closed := now.UTC().AddDate(0, -1, 0)
	year, month := closed.Year(), int(closed.Month())

	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active accounts: %w", err)
	}

	var failed int
	for _, account := range accounts {
		if err := s.closeMonth(ctx, account, year, month); err != nil {
			failed++
			s.logger.Error("monthly maintenance failed for account",
				"account_id", account.ID.String(), "error", err)
		}
	}

	if err := s.accounts.ResetMonthlyVolumes(ctx); err != nil {
		return fmt.Errorf("failed to reset monthly volumes: %w", err)
	}

	s.logger.Info("monthly maintenance finished",
		"year", year, "month", month,
		"accounts", len(accounts), "failed", failed)

	if failed > 0 {
		return fmt.Errorf("monthly maintenance had %d failed accounts", failed)
	}
	return nil
}

func (s *Service) closeMonth(ctx context.Context, account *entities.Account, year, month int) error {
	var met, fresh bool
	existing, err := s.stats.Get(ctx, account.ID, year, month)
	switch {
	case err == nil:
		met = existing.RequirementsMet
	case errors.Is(err, domainerrors.ErrNotFound):
		fresh = true
		directs, countErr := s.accounts.CountActiveDirects(ctx, account.ID, s.directMinBlocked)
		if countErr != nil {
			return countErr
		}
		req := s.requirements[account.Rank]
		met = directs >= req.MinActiveDirects &&
			account.MonthlyVolume.GreaterThanOrEqual(req.MinMonthlyVolume) &&
			account.BlockedBalance.GreaterThanOrEqual(req.MinBlocked)

		if upErr := s.stats.Upsert(ctx, &entities.MonthlyStats{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Year:            year,
			Month:           month,
			ActiveDirects:   directs,
			NetworkVolume:   account.MonthlyVolume,
			RequirementsMet: met,
			RankAtStart:     account.Rank,
			CreatedAt:       time.Now(),
		}); upErr != nil {
			return upErr
		}
	default:
		return err
	}

	if met {
		if account.RankStatus == entities.RankStatusWarning {
			return s.transition(ctx, account.ID, entities.RankStatusWarning, entities.RankStatusActive, notify.EventRankRecovered)
		}
		return nil
	}

	// An existing snapshot means the run that wrote it already advanced
	// the status for this month; re-runs must not demote a second time.
	if !fresh {
		return nil
	}

	switch account.RankStatus {
	case entities.RankStatusActive:
		return s.transition(ctx, account.ID, entities.RankStatusActive, entities.RankStatusWarning, notify.EventRankWarning)
	case entities.RankStatusWarning:
		return s.transition(ctx, account.ID, entities.RankStatusWarning, entities.RankStatusDownranked, notify.EventRankDownranked)
	}
	return nil
}

// RunGraceRecovery restores WARNING and DOWNRANKED accounts that meet
// their rank requirements again mid-month. Runs daily so recovery is not
// deferred to the next monthly close.
func (s *Service) RunGraceRecovery(ctx context.Context) error {
	var failed int
	for _, status := range []entities.RankStatus{entities.RankStatusWarning, entities.RankStatusDownranked} {
		accounts, err := s.accounts.ListByRankStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list %s accounts: %w", status, err)
		}

		for _, account := range accounts {
			recovered, err := s.tryRecover(ctx, account, status)
			if err != nil {
				failed++
				s.logger.Error("grace recovery failed for account",
					"account_id", account.ID.String(), "error", err)
				continue
			}
			if recovered {
				s.logger.Info("account recovered rank standing",
					"account_id", account.ID.String(), "from", string(status))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("grace recovery had %d failed accounts", failed)
	}
	return nil
}

func (s *Service) tryRecover(ctx context.Context, account *entities.Account, from entities.RankStatus) (bool, error) {
	directs, err := s.accounts.CountActiveDirects(ctx, account.ID, s.directMinBlocked)
	if err != nil {
		return false, err
	}

	req := s.requirements[account.Rank]
	met := directs >= req.MinActiveDirects &&
		account.MonthlyVolume.GreaterThanOrEqual(req.MinMonthlyVolume) &&
		account.BlockedBalance.GreaterThanOrEqual(req.MinBlocked)
	if !met {
		return false, nil
	}

	if err := s.transition(ctx, account.ID, from, entities.RankStatusActive, notify.EventRankRecovered); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) transition(ctx context.Context, accountID uuid.UUID, from, to entities.RankStatus, event string) error {
	err := s.accounts.UpdateRankStatus(ctx, accountID, from, to)
	if err != nil {
		// A concurrent run already applied the transition
		if errors.Is(err, domainerrors.ErrInvalidTransition) {
			s.logger.Debug("rank status transition already applied",
				"account_id", accountID.String(), "from", string(from), "to", string(to))
			return nil
		}
		return err
	}

	if err := s.notifier.Notify(ctx, accountID, event, map[string]string{
		"rank_status": string(to),
	}); err != nil {
		s.logger.Warn("rank notification delivery failed", "error", err)
	}
	return nil
}
