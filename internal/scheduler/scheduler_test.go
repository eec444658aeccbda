package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/scheduler"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, Multiplier: 2}
}

// unreachableRedis fails every command fast; the queue path never talks
// to Redis and the cron path surfaces the failure as a lock error
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
}

func noopRun(context.Context) error { return nil }

func TestRegister_RejectsDuplicatesAndBadSpecs(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 1, logger.NewNop())

	job := scheduler.Job{ID: "daily-commissions", Spec: "0 0 * * *", Policy: testPolicy(), Run: noopRun}
	require.NoError(t, sched.Register(job))

	err := sched.Register(job)
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateJob)

	err = sched.Register(scheduler.Job{ID: "broken", Spec: "not a cron spec", Policy: testPolicy(), Run: noopRun})
	assert.Error(t, err)

	err = sched.Register(scheduler.Job{ID: "bad-policy", Spec: "0 0 * * *", Policy: retry.Policy{MaxRetries: -1}, Run: noopRun})
	assert.Error(t, err)
}

func TestStatus_ReportsRegisteredJobs(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 1, logger.NewNop())

	require.NoError(t, sched.Register(scheduler.Job{
		ID: "monthly-maintenance", Spec: "0 0 1 * *", Policy: testPolicy(), Run: noopRun,
	}))

	status := sched.Status()
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, "monthly-maintenance", status.Jobs[0].JobID)
	assert.Equal(t, "0 0 1 * *", status.Jobs[0].Schedule)
	assert.False(t, status.Jobs[0].Running)
	assert.Equal(t, 0, status.QueueDepth)
}

func TestEnqueue_WorkersDrainTheQueue(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 1, logger.NewNop())
	sched.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sched.Stop(ctx))
	}()

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, sched.Enqueue("settle-withdrawal", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	require.Eventually(t, func() bool {
		return ran.Load() == 8
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueue_TaskFailureDoesNotStopWorkers(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 1, logger.NewNop())
	sched.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sched.Stop(ctx))
	}()

	var succeeded atomic.Bool
	require.NoError(t, sched.Enqueue("failing-task", func(context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, sched.Enqueue("following-task", func(context.Context) error {
		succeeded.Store(true)
		return nil
	}))

	require.Eventually(t, succeeded.Load, 5*time.Second, 10*time.Millisecond)
}

func TestTriggerNow_UnknownJob(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 1, logger.NewNop())

	_, err := sched.TriggerNow(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestTriggerNow_SurfacesLockFailure(t *testing.T) {
	sched := scheduler.New(unreachableRedis(), 2, logger.NewNop())

	require.NoError(t, sched.Register(scheduler.Job{
		ID: "grace-recovery", Spec: "0 1 * * *", Policy: testPolicy(), Run: noopRun,
	}))

	finished, err := sched.TriggerNow(context.Background(), "grace-recovery")
	assert.True(t, finished)
	assert.Error(t, err)

	status := sched.Status()
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, "lock_error", status.Jobs[0].LastOutcome)
	require.NotNil(t, status.Jobs[0].LastRunAt)
}
