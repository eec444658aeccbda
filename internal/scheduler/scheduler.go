// Package scheduler runs the recurring jobs (daily commissions, monthly
// maintenance, grace recovery) and a small background queue for ad-hoc
// work like withdrawal settlement. Jobs take a Redis lock keyed by job id
// so two processes never run the same job concurrently, and each job
// carries its own retry policy.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	domainerrors "github.com/stakevine/stakevine_core/internal/domain/errors"
	"github.com/stakevine/stakevine_core/internal/infrastructure/cache"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
	"github.com/stakevine/stakevine_core/pkg/retry"
)

const (
	queueCapacity   = 256
	queueWorkers    = 4
	defaultLockTTL  = 30 * time.Minute
	queuedJobMetric = "queued"
)

// Job is a recurring unit of work
type Job struct {
	ID     string
	Spec   string
	Policy retry.Policy
	// LockTTL bounds how long the cross-process lock is held; it should
	// exceed the job's worst-case runtime. Zero means the default.
	LockTTL time.Duration
	Run     func(context.Context) error
}

type jobState struct {
	job         Job
	entryID     cron.EntryID
	lastRunAt   *time.Time
	lastOutcome string
	running     bool
}

type queuedTask struct {
	id  string
	run func(context.Context) error
}

// Scheduler owns the cron table and the background queue
type Scheduler struct {
	cron       *cron.Cron
	redis      *redis.Client
	logger     *logger.Logger
	manualWait time.Duration

	mu   sync.RWMutex
	jobs map[string]*jobState

	queue  chan queuedTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the scheduler. Cron specs are evaluated in UTC.
func New(redisClient *redis.Client, manualWaitSecs int, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		redis:      redisClient,
		logger:     log,
		manualWait: time.Duration(manualWaitSecs) * time.Second,
		jobs:       make(map[string]*jobState),
		queue:      make(chan queuedTask, queueCapacity),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds a recurring job to the cron table
func (s *Scheduler) Register(job Job) error {
	if err := job.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy for job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return domainerrors.ErrDuplicateJob
	}

	id := job.ID
	entryID, err := s.cron.AddFunc(job.Spec, func() {
		s.execute(s.ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}

	s.jobs[job.ID] = &jobState{job: job, entryID: entryID}
	s.logger.Info("job registered", "job_id", job.ID, "spec", job.Spec)
	return nil
}

// Start begins cron evaluation and the queue workers
func (s *Scheduler) Start() {
	s.cron.Start()
	for i := 0; i < queueWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs), "queue_workers", queueWorkers)
}

// Stop halts cron evaluation and drains the workers, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	s.cancel()
	close(s.queue)

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown timed out: %w", ctx.Err())
	}
}

// TriggerNow runs a registered job immediately, waiting up to the
// configured manual wait. The false return means the job is still
// running in the background past the wait window.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return false, domainerrors.ErrNotFound
	}

	done := make(chan error, 1)
	go func() {
		done <- s.execute(s.ctx, jobID)
	}()

	select {
	case err := <-done:
		return true, err
	case <-time.After(s.manualWait):
		s.logger.Info("manual trigger still running past wait window", "job_id", jobID)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Enqueue submits one-off work to the background queue. The id is used
// for logging and metrics only; retries are up to the submitted func.
func (s *Scheduler) Enqueue(id string, run func(context.Context) error) error {
	select {
	case s.queue <- queuedTask{id: id, run: run}:
		metrics.JobQueueDepth.WithLabelValues(queuedJobMetric).Set(float64(len(s.queue)))
		return nil
	default:
		return fmt.Errorf("background queue full, dropping %s: %w", id, domainerrors.ErrServiceUnavailable)
	}
}

// Status reports all registered jobs and the queue depth
func (s *Scheduler) Status() entities.WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]entities.JobStatus, 0, len(s.jobs))
	for id, state := range s.jobs {
		js := entities.JobStatus{
			JobID:       id,
			Schedule:    state.job.Spec,
			LastOutcome: state.lastOutcome,
			Running:     state.running,
		}
		if state.lastRunAt != nil {
			t := state.lastRunAt.UTC().Format(time.RFC3339)
			js.LastRunAt = &t
		}
		if next := s.cron.Entry(state.entryID).Next; !next.IsZero() {
			n := next.UTC().Format(time.RFC3339)
			js.NextRunAt = &n
		}
		jobs = append(jobs, js)
	}

	return entities.WorkerStatus{Jobs: jobs, QueueDepth: len(s.queue)}
}

func (s *Scheduler) execute(ctx context.Context, jobID string) error {
	s.mu.Lock()
	state, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return domainerrors.ErrNotFound
	}
	job := state.job
	state.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		state.running = false
		s.mu.Unlock()
	}()

	ttl := job.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	acquired, err := cache.Lock(ctx, s.redis, "job:"+jobID, ttl)
	if err != nil {
		s.recordOutcome(state, "lock_error")
		return err
	}
	if !acquired {
		s.logger.Debug("job lock held elsewhere, skipping", "job_id", jobID)
		s.recordOutcome(state, "skipped")
		return nil
	}
	defer func() {
		if err := cache.Unlock(context.Background(), s.redis, "job:"+jobID); err != nil {
			s.logger.Warn("failed to release job lock", "job_id", jobID, "error", err)
		}
	}()

	started := time.Now()
	s.logger.Info("job starting", "job_id", jobID)

	retrier := retry.NewRetrier(job.Policy, s.logger.Zap())
	runErr := retrier.Do(ctx, func() error {
		return job.Run(ctx)
	})

	outcome := "success"
	if runErr != nil {
		outcome = "failure"
		s.logger.Error("job failed after retries",
			"job_id", jobID, "duration", time.Since(started).String(), "error", runErr)
	} else {
		s.logger.Info("job finished",
			"job_id", jobID, "duration", time.Since(started).String())
	}

	s.recordOutcome(state, outcome)
	metrics.JobRunsTotal.WithLabelValues(jobID, outcome).Inc()
	return runErr
}

func (s *Scheduler) recordOutcome(state *jobState, outcome string) {
	now := time.Now()
	s.mu.Lock()
	state.lastRunAt = &now
	state.lastOutcome = outcome
	s.mu.Unlock()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for task := range s.queue {
		metrics.JobQueueDepth.WithLabelValues(queuedJobMetric).Set(float64(len(s.queue)))

		if err := task.run(s.ctx); err != nil {
			s.logger.Error("queued task failed", "task_id", task.id, "error", err)
		} else {
			s.logger.Debug("queued task finished", "task_id", task.id)
		}
	}
}
