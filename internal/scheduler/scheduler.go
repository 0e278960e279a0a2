package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

// Job is one named recurring task.
type Job struct {
	Name    string
	Cadence Cadence
	Fn      func(ctx context.Context) error
}

type trackedJob struct {
	job     Job
	nextRun time.Time
	mu      sync.Mutex
	running bool
}

// Scheduler runs a table of Jobs, edge-triggered against its clock:
// skipped ticks during downtime are not replayed, and a job never
// overlaps itself, though distinct jobs run concurrently (spec.md §4.7).
type Scheduler struct {
	clk  clock.Clock
	log  *zap.Logger
	jobs []*trackedJob
}

// New builds a Scheduler with no jobs yet; call Add for each.
func New(clk clock.Clock, log *zap.Logger) *Scheduler {
	return &Scheduler{clk: clk, log: log}
}

// Add registers job, scheduling its first run at Cadence.Next(now).
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, &trackedJob{job: job, nextRun: job.Cadence.Next(s.clk.Now())})
}

// Run drives every registered job until ctx is cancelled, checking for
// due jobs at resolution. A production caller passes a small resolution
// (e.g. one second); tests drive Scheduler via checkDue directly against
// a MutableClock instead of running the ticker loop in real time.
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) {
	if resolution <= 0 {
		resolution = time.Second
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// checkDue fires every job whose nextRun has passed and who is not
// already running, advancing nextRun immediately (edge-triggered, no
// backlog replay).
func (s *Scheduler) checkDue(ctx context.Context) {
	now := s.clk.Now()
	for _, tj := range s.jobs {
		tj.mu.Lock()
		due := !now.Before(tj.nextRun)
		alreadyRunning := tj.running
		if due && !alreadyRunning {
			tj.running = true
			tj.nextRun = tj.job.Cadence.Next(now)
		}
		tj.mu.Unlock()

		if !due || alreadyRunning {
			continue
		}
		go s.runOne(ctx, tj)
	}
}

func (s *Scheduler) runOne(ctx context.Context, tj *trackedJob) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: job panicked", zap.String("job", tj.job.Name), zap.Any("recover", r))
		}
		tj.mu.Lock()
		tj.running = false
		tj.mu.Unlock()
	}()

	if err := tj.job.Fn(ctx); err != nil {
		s.log.Error("scheduler: job failed", zap.String("job", tj.job.Name), zap.Error(err))
		return
	}
	s.log.Info("scheduler: job completed", zap.String("job", tj.job.Name))
}

// NextRun exposes a job's next scheduled fire time, for tests and dashboards.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	for _, tj := range s.jobs {
		if tj.job.Name == name {
			tj.mu.Lock()
			defer tj.mu.Unlock()
			return tj.nextRun, nil
		}
	}
	return time.Time{}, fmt.Errorf("scheduler: unknown job %q", name)
}

// Tick is the test seam equivalent of one resolution-tick of Run,
// exported so tests can drive the scheduler deterministically against a
// MutableClock without waiting on a real ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	s.checkDue(ctx)
}
