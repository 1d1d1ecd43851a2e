package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
)

// Submission errors
var (
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	ErrJobQueueFull        = errors.New("scheduler: job queue full")
	ErrUnknownJobKind      = errors.New("scheduler: no executor for job kind")
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind identifies the work a job carries
type JobKind string

const (
	// JobKindProvisionWebhook retries webhook setup for an active integration
	JobKindProvisionWebhook JobKind = "PROVISION_WEBHOOK"
	// JobKindRefreshToken refreshes an oauth access token ahead of expiry
	JobKindRefreshToken JobKind = "REFRESH_TOKEN"
)

// Job is one unit of background connector work
type Job struct {
	ID            uuid.UUID
	Kind          JobKind
	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Marketplace   integration.Marketplace
	Status        JobStatus
	Error         string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	RetryCount    int
	MaxRetries    int
	NextRetryAt   *time.Time
}

// NewJob creates a new job instance
func NewJob(kind JobKind, tenantID, integrationID uuid.UUID, marketplace integration.Marketplace, maxRetries int) *Job {
	return &Job{
		ID:            uuid.New(),
		Kind:          kind,
		TenantID:      tenantID,
		IntegrationID: integrationID,
		Marketplace:   marketplace,
		Status:        JobStatusPending,
		MaxRetries:    maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// Backoff returns the delay before the next attempt: base doubled per retry, capped at ceiling
func (j *Job) Backoff(base, ceiling time.Duration) time.Duration {
	delay := base
	for i := 0; i < j.RetryCount && (ceiling <= 0 || delay < ceiling); i++ {
		delay *= 2
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor is the interface for executing jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:       true,
		Workers:       2,
		QueueSize:     100,
		JobTimeout:    time.Minute,
		RetryAttempts: 5,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 30 * time.Minute,
	}
}

// Scheduler runs connector jobs on a fixed worker pool. Failed jobs are
// re-queued with exponential backoff until MaxRetries is reached.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	timers    map[uuid.UUID]*time.Timer
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = time.Minute
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Connector scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler. Pending retries are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Connector scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Connector scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the worker pool is accepting jobs
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob submits a job for immediate execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	return s.enqueueLocked(job)
}

// SubmitAfter submits a job to run once the delay has elapsed
func (s *Scheduler) SubmitAfter(job *Job, delay time.Duration) error {
	if delay <= 0 {
		return s.SubmitJob(job)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	next := time.Now().Add(delay)
	job.NextRetryAt = &next
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, job.ID)
		if !s.isRunning {
			return
		}
		if err := s.enqueueLocked(job); err != nil {
			s.logger.Warn("Failed to queue delayed job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
	return nil
}

// EnqueueProvision queues a delayed webhook provisioning retry
func (s *Scheduler) EnqueueProvision(_ context.Context, tenantID, integrationID uuid.UUID, marketplace integration.Marketplace) error {
	job := NewJob(JobKindProvisionWebhook, tenantID, integrationID, marketplace, s.config.RetryAttempts)
	return s.SubmitAfter(job, s.config.RetryDelay)
}

// EnqueueRefresh queues a token refresh; refreshes are not retried by the pool
func (s *Scheduler) EnqueueRefresh(tenantID, integrationID uuid.UUID, marketplace integration.Marketplace) error {
	return s.SubmitJob(NewJob(JobKindRefreshToken, tenantID, integrationID, marketplace, 0))
}

func (s *Scheduler) enqueueLocked(job *Job) error {
	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("marketplace", job.Marketplace.String()),
	)
	log.Debug("Processing job")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err == nil {
		job.Complete()
		log.Info("Job completed successfully")
		return
	}

	job.Fail(err.Error())
	if !job.ShouldRetry() || ctx.Err() != nil {
		log.Error("Job failed", zap.Int("retry_count", job.RetryCount), zap.Error(err))
		return
	}

	delay := job.Backoff(s.config.RetryDelay, s.config.MaxRetryDelay)
	job.ScheduleRetry(delay)
	log.Warn("Job failed, scheduled for retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	if err := s.SubmitAfter(job, delay); err != nil {
		log.Warn("Failed to re-queue job for retry", zap.Error(err))
	}
}
