package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

func TestSchedulerFiresDueJob(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	var runs int32
	var wg sync.WaitGroup
	wg.Add(1)
	s.Add(Job{
		Name:    "test-job",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			wg.Done()
			return nil
		},
	})

	clk.Advance(time.Minute)
	s.Tick(context.Background())
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&runs))
}

func TestSchedulerDoesNotFireBeforeDue(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	var runs int32
	s.Add(Job{
		Name:    "test-job",
		Cadence: Every{Interval: time.Hour},
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	clk.Advance(time.Minute)
	s.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)

	require.EqualValues(t, 0, atomic.LoadInt32(&runs))
}

func TestSchedulerDoesNotReplayMissedTicks(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	var runs int32
	s.Add(Job{
		Name:    "test-job",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	// Five missed intervals' worth of elapsed time, but only one Tick call:
	// edge-triggered semantics fire once, not five times.
	clk.Advance(5 * time.Minute)
	s.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)

	require.EqualValues(t, 1, atomic.LoadInt32(&runs))
}

func TestSchedulerSkipsOverlapOfSameJob(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	s.Add(Job{
		Name:    "slow-job",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			started <- struct{}{}
			<-release
			return nil
		},
	})

	clk.Advance(time.Minute)
	s.Tick(context.Background())
	<-started // first run is now blocked inside Fn

	// Due again, but the first invocation hasn't finished: must not overlap.
	clk.Advance(time.Minute)
	s.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&runs))

	close(release)
	time.Sleep(20 * time.Millisecond)

	// Now that the first run finished and nextRun passed again, a further
	// tick should be able to fire it again.
	clk.Advance(time.Minute)
	s.Tick(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerRunsDistinctJobsConcurrently(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	block := make(chan struct{})

	s.Add(Job{
		Name:    "job-a",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			wg.Done()
			<-block
			return nil
		},
	})
	s.Add(Job{
		Name:    "job-b",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			wg.Done()
			<-block
			return nil
		},
	})

	clk.Advance(time.Minute)
	s.Tick(context.Background())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(block)
	case <-time.After(time.Second):
		close(block)
		t.Fatal("timed out waiting for both jobs to start concurrently")
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())

	done := make(chan struct{})
	s.Add(Job{
		Name:    "panicky",
		Cadence: Every{Interval: time.Minute},
		Fn: func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		},
	})

	clk.Advance(time.Minute)
	require.NotPanics(t, func() {
		s.Tick(context.Background())
		<-done
		time.Sleep(10 * time.Millisecond)
	})

	// The job's running flag must have been reset despite the panic, so a
	// later due tick fires it again instead of leaving it stuck "running".
	nextRun, err := s.NextRun("panicky")
	require.NoError(t, err)
	require.True(t, nextRun.After(clk.Now()))
}

func TestSchedulerNextRunUnknownJob(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())
	_, err := s.NextRun("nope")
	require.Error(t, err)
}

func TestRegisterBuiltinsPeeredAddsVaultSync(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())
	RegisterBuiltins(s, true, BuiltinFuncs{})

	_, err := s.NextRun(JobVaultSync)
	require.NoError(t, err)
	_, err = s.NextRun(JobSignalMerge)
	require.Error(t, err)

	for _, name := range []string{JobInboxProcessing, JobDashboardRefresh, JobMorningBriefing, JobWeeklyAudit} {
		_, err := s.NextRun(name)
		require.NoError(t, err)
	}
}

func TestRegisterBuiltinsLocalAddsSignalMerge(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())
	RegisterBuiltins(s, false, BuiltinFuncs{})

	_, err := s.NextRun(JobSignalMerge)
	require.NoError(t, err)
	_, err = s.NextRun(JobVaultSync)
	require.Error(t, err)
}

func TestRegisterBuiltinsNilFuncsAreNoops(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	s := New(clk, zap.NewNop())
	RegisterBuiltins(s, true, BuiltinFuncs{})

	clk.Advance(31 * time.Minute)
	require.NotPanics(t, func() {
		s.Tick(context.Background())
		time.Sleep(20 * time.Millisecond)
	})
}

func TestMustParsePanicsOnMalformed(t *testing.T) {
	require.Panics(t, func() {
		mustParse("@every not-a-duration")
	})
}
