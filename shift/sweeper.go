/*
sweeper.go - Time-driven shift transitions

PURPOSE:
  Two independent jobs advance shifts nobody touched:

  ExpirePending  (every 5min)  pending, never clocked in, now > start + 20min
                               → expired
  AutoClockOut   (every 1min)  active, not clocked out, now > end + 10min
                               → completed, clockOut = scheduled end

  Overtime shifts are never auto-clocked-out: an approved extension must
  not be cut short by the sweep.

WRITE STRATEGY:
  1. List by status, evaluate each candidate through the state machine
  2. Write every transition in one conditional batch (all or none)
  3. If the batch is rejected because a shift changed after it was read
     (caregiver clocked out, admin override), retry each candidate with
     its own conditional write. The changed ones fail and are skipped.

  A shift that already left the source status is filtered out by the
  status predicate on the next run, so both jobs are idempotent.

ERRORS:
  Per-shift failures are logged and skipped. Only a failure to list, or
  a batch failure that is not a version conflict, fails the run.

SEE ALSO:
  - api/scheduler.go: Timers driving these jobs
  - machine.go: Expire, AutoClockOut
*/
package shift

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	JobExpirePending = "expire_pending"
	JobAutoClockOut  = "auto_clock_out"

	DefaultExpireInterval       = 5 * time.Minute
	DefaultAutoClockOutInterval = time.Minute
)

// Sweeper runs the periodic jobs. It holds no state between runs.
type Sweeper struct {
	Store    Store
	Machine  *Machine
	Clock    Clock
	Notifier Notifier
	Logger   *zap.Logger
}

func NewSweeper(store Store, machine *Machine, clock Clock, notifier Notifier, logger *zap.Logger) *Sweeper {
	if machine == nil {
		machine = NewMachine(DefaultRules())
	}
	return &Sweeper{
		Store:    store,
		Machine:  machine,
		Clock:    clockOrSystem(clock),
		Notifier: notifier,
		Logger:   loggerOrNop(logger),
	}
}

// ExpirePending expires stale pending shifts and returns how many changed.
func (sw *Sweeper) ExpirePending(ctx context.Context) (int, error) {
	const job = JobExpirePending
	now := sw.Clock.Now()

	shifts, err := sw.Store.ListShifts(ctx, ShiftFilter{Status: StatusPending})
	if err != nil {
		return 0, classify(err, "list pending shifts")
	}

	var candidates []Shift
	for _, s := range shifts {
		if s.ClockInTime != nil || !sw.Machine.ExpireDue(s, now) {
			continue
		}
		next, err := sw.Machine.Expire(s, now)
		if err != nil {
			sw.skip(job, s.ID, err)
			continue
		}
		candidates = append(candidates, next)
	}

	committed, err := sw.commit(ctx, job, candidates)
	if err != nil {
		return 0, err
	}
	sw.Logger.Info("sweep finished",
		zap.String("job", job),
		zap.Int("scanned", len(shifts)),
		zap.Int("mutated", len(committed)),
	)
	return len(committed), nil
}

// AutoClockOut closes overdue active shifts and returns how many changed.
func (sw *Sweeper) AutoClockOut(ctx context.Context) (int, error) {
	const job = JobAutoClockOut
	now := sw.Clock.Now()

	shifts, err := sw.Store.ListShifts(ctx, ShiftFilter{Status: StatusActive})
	if err != nil {
		return 0, classify(err, "list active shifts")
	}

	var candidates []Shift
	for _, s := range shifts {
		if s.ClockOutTime != nil || !sw.Machine.AutoClockOutDue(s, now) {
			continue
		}
		next, err := sw.Machine.AutoClockOut(s, now)
		if err != nil {
			sw.skip(job, s.ID, err)
			continue
		}
		candidates = append(candidates, next)
	}

	committed, err := sw.commit(ctx, job, candidates)
	if err != nil {
		return 0, err
	}
	for _, s := range committed {
		notify(ctx, sw.Notifier, sw.Logger, Notification{
			RecipientID: s.CaregiverID,
			SenderID:    System.ID,
			SenderName:  System.Name,
			Type:        NotifyAutoClockOut,
			ResourceID:  string(s.ID),
			Content:     "Your shift with " + s.PatientName + " was clocked out automatically at its scheduled end",
			At:          now,
		})
	}
	sw.Logger.Info("sweep finished",
		zap.String("job", job),
		zap.Int("scanned", len(shifts)),
		zap.Int("mutated", len(committed)),
	)
	return len(committed), nil
}

// commit writes candidates as one batch, falling back to per-shift
// conditional writes on a version conflict. Returns the shifts written.
func (sw *Sweeper) commit(ctx context.Context, job string, candidates []Shift) ([]Shift, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	batch := make([]*Shift, len(candidates))
	for i := range candidates {
		batch[i] = &candidates[i]
	}
	err := sw.Store.UpdateShifts(ctx, batch)
	if err == nil {
		return candidates, nil
	}
	if !errors.Is(err, ErrConcurrentModification) {
		return nil, classify(err, "write sweep batch")
	}

	sw.Logger.Info("sweep batch conflicted, retrying per shift",
		zap.String("job", job),
		zap.Int("candidates", len(candidates)),
	)
	var committed []Shift
	for i := range candidates {
		c := candidates[i]
		if err := sw.Store.UpdateShift(ctx, &c); err != nil {
			sw.skip(job, c.ID, err)
			continue
		}
		committed = append(committed, c)
	}
	return committed, nil
}

func (sw *Sweeper) skip(job string, id ShiftID, err error) {
	level := sw.Logger.Warn
	if errors.Is(err, ErrConcurrentModification) {
		level = sw.Logger.Info
	}
	level("sweep skipped shift",
		zap.String("job", job),
		zap.String("shift_id", string(id)),
		zap.Error(err),
	)
}

