// Package scheduler runs background jobs at startup and on a fixed interval,
// retrying failed runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobStatus represents the status of the latest run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is a named unit of background work
type Job struct {
	Name       string
	Run        func(ctx context.Context) error
	RunAtStart bool          // run once as soon as the scheduler starts
	Interval   time.Duration // zero disables periodic runs
	Timeout    time.Duration // per attempt, zero means none
	MaxRetries int
	RetryDelay time.Duration
}

func (j Job) validate() error {
	if j.Name == "" || j.Run == nil {
		return fmt.Errorf("%w: name and run function are required", ErrInvalidJob)
	}
	if !j.RunAtStart && j.Interval <= 0 {
		return fmt.Errorf("%w: %s never runs", ErrInvalidJob, j.Name)
	}
	return nil
}

// JobState reports the outcome of the runs of a job
type JobState struct {
	Status      JobStatus
	Runs        int
	LastError   string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Scheduler owns one goroutine per registered job
type Scheduler struct {
	logger *zap.Logger

	mu        sync.Mutex
	jobs      []Job
	states    map[string]*JobState
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		states: make(map[string]*JobState),
	}
}

// Register adds a job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, ok := s.states[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.jobs = append(s.jobs, job)
	s.states[job.Name] = &JobState{Status: JobStatusPending}
	return nil
}

// Start launches the registered jobs. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// State returns a copy of the state of the named job
func (s *Scheduler) State(name string) (JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return JobState{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return *st, nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunAtStart {
		s.runWithRetry(ctx, job)
	}
	if job.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWithRetry(ctx, job)
		}
	}
}

// runWithRetry runs job until it succeeds, MaxRetries is exhausted or ctx ends
func (s *Scheduler) runWithRetry(ctx context.Context, job Job) {
	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, job)
		if err == nil || ctx.Err() != nil {
			return
		}
		if attempt >= job.MaxRetries {
			s.logger.Error("Job failed",
				zap.String("job", job.Name),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return
		}
		s.logger.Warn("Job failed, retrying",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", job.RetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(job.RetryDelay):
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) error {
	s.update(job.Name, func(st *JobState) {
		now := time.Now()
		st.Status = JobStatusRunning
		st.StartedAt = &now
		st.Runs++
	})

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	err := job.Run(runCtx)

	s.update(job.Name, func(st *JobState) {
		now := time.Now()
		st.CompletedAt = &now
		if err != nil {
			st.Status = JobStatusFailed
			st.LastError = err.Error()
			return
		}
		st.Status = JobStatusSuccess
		st.LastError = ""
	})
	if err == nil {
		s.logger.Debug("Job completed", zap.String("job", job.Name))
	}
	return err
}

func (s *Scheduler) update(name string, fn func(*JobState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.states[name])
}
