package scheduler

import (
	"context"
	"time"

	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/retry"
)

// Job ids, also the keys of the cross-process Redis locks
const (
	JobDailyCommissions   = "daily-commissions"
	JobMonthlyMaintenance = "monthly-maintenance"
	JobGraceRecovery      = "grace-recovery"
)

// CommissionRunner runs the daily commission engine
type CommissionRunner interface {
	RunDaily(ctx context.Context, refDate time.Time) error
}

// MaintenanceRunner closes the month and runs grace recovery
type MaintenanceRunner interface {
	RunMonthlyMaintenance(ctx context.Context, now time.Time) error
	RunGraceRecovery(ctx context.Context) error
}

// RegisterCoreJobs wires the three recurring jobs. The maintenance job
// gets the most patient policy because a missed monthly close is the
// most expensive to recover by hand; all jobs are idempotent so retries
// and manual re-triggers are safe.
func RegisterCoreJobs(s *Scheduler, cfg config.SchedulerConfig, commissions CommissionRunner, maintenance MaintenanceRunner) error {
	if err := s.Register(Job{
		ID:      JobDailyCommissions,
		Spec:    cfg.CommissionCron,
		Policy:  retryPolicy(3, time.Minute),
		LockTTL: time.Hour,
		Run: func(ctx context.Context) error {
			return commissions.RunDaily(ctx, time.Now().UTC())
		},
	}); err != nil {
		return err
	}

	if err := s.Register(Job{
		ID:      JobMonthlyMaintenance,
		Spec:    cfg.MaintenanceCron,
		Policy:  retryPolicy(5, 2*time.Minute),
		LockTTL: 2 * time.Hour,
		Run: func(ctx context.Context) error {
			return maintenance.RunMonthlyMaintenance(ctx, time.Now().UTC())
		},
	}); err != nil {
		return err
	}

	return s.Register(Job{
		ID:      JobGraceRecovery,
		Spec:    cfg.GraceCron,
		Policy:  retryPolicy(3, time.Minute),
		LockTTL: time.Hour,
		Run: func(ctx context.Context) error {
			return maintenance.RunGraceRecovery(ctx)
		},
	})
}

func retryPolicy(maxRetries int, initialBackoff time.Duration) retry.Policy {
	return retry.Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		Multiplier:     2,
		MaxBackoff:     30 * time.Minute,
	}
}
