/*
scheduler.go - Timer-driven sweeps

PURPOSE:
  Runs the two engine sweeps on their own tickers: expire stale pending
  shifts (every 5 minutes) and auto-clock-out overdue active shifts
  (every minute). Each job has its own goroutine, so a slow or failing
  run of one never delays the other.

DESIGN:
  - One ticker goroutine per job, both stopped by Stop
  - Each run takes a sweeplock lock named after the job; a run that
    cannot get the lock is skipped (another instance has it)
  - Failures are logged and the next tick retries; sweeps are idempotent
  - RunNow backs the manual admin endpoints under the same lock

CONFIGURATION:
  - ExpireInterval:       default 5m
  - AutoClockOutInterval: default 1m
  - Enabled:              default true

USAGE:
  sched := NewSweepScheduler(engine.Sweeper, sweeplock.NewLocal(), logger)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - shift/sweeper.go: ExpirePending, AutoClockOut
  - sweeplock/sweeplock.go: Local and Redis lockers
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/angau/shift-engine/shift"
	"github.com/angau/shift-engine/sweeplock"
)

// ErrSweepBusy is returned by RunNow when the job is already running.
var ErrSweepBusy = errors.New("sweep already running")

// SweepScheduler runs the engine sweeps periodically.
type SweepScheduler struct {
	Sweeper              *shift.Sweeper
	Locker               sweeplock.Locker
	ExpireInterval       time.Duration
	AutoClockOutInterval time.Duration
	Enabled              bool
	Logger               *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweepScheduler creates a scheduler with default intervals. A nil
// locker uses an in-process one.
func NewSweepScheduler(sweeper *shift.Sweeper, locker sweeplock.Locker, logger *zap.Logger) *SweepScheduler {
	if locker == nil {
		locker = sweeplock.NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		Sweeper:              sweeper,
		Locker:               locker,
		ExpireInterval:       shift.DefaultExpireInterval,
		AutoClockOutInterval: shift.DefaultAutoClockOutInterval,
		Enabled:              true,
		Logger:               logger,
	}
}

// Start launches both job goroutines. Calling Start twice is a no-op.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("sweep scheduler disabled")
		return
	}
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.run(ctx, shift.JobExpirePending, s.ExpireInterval)
	go s.run(ctx, shift.JobAutoClockOut, s.AutoClockOutInterval)

	s.Logger.Info("sweep scheduler started",
		zap.Duration("expire_interval", s.ExpireInterval),
		zap.Duration("auto_clock_out_interval", s.AutoClockOutInterval),
	)
}

// Stop cancels in-flight runs and waits for both goroutines to exit.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.Logger.Info("sweep scheduler stopped")
}

func (s *SweepScheduler) run(ctx context.Context, job string, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx, job)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (s *SweepScheduler) tick(ctx context.Context, job string) {
	_, err := s.RunNow(ctx, job)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepBusy):
		s.Logger.Debug("sweep skipped, lock held elsewhere", zap.String("job", job))
	case ctx.Err() != nil:
		// Shutting down.
	default:
		s.Logger.Error("sweep failed", zap.String("job", job), zap.Error(err))
	}
}

// RunNow runs job once under its lock and returns the number of shifts
// it mutated.
func (s *SweepScheduler) RunNow(ctx context.Context, job string) (int, error) {
	var sweep func(context.Context) (int, error)
	switch job {
	case shift.JobExpirePending:
		sweep = s.Sweeper.ExpirePending
	case shift.JobAutoClockOut:
		sweep = s.Sweeper.AutoClockOut
	default:
		return 0, fmt.Errorf("unknown sweep job %q", job)
	}

	release, ok, err := s.Locker.TryLock(ctx, job)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSweepBusy
	}
	defer release()

	return sweep(ctx)
}
