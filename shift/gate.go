/*
gate.go - Clock-in / clock-out orchestration

PURPOSE:
  Runs a clock attempt end to end: identity, time window and proximity
  are checked, then the state machine transition is committed. The whole
  read-check-write happens inside one store transaction so a caregiver
  and an admin racing on the same shift cannot both succeed.

SELF-SERVICE CHECKS (in order):
  1. actor is the assigned caregiver          permission-denied
  2. now >= start - 5min (clock-in)           failed-precondition
     now >= end + 5min   (clock-out)
  3. actor within 70m of the patient address  failed-precondition
     (unknown location on either side fails)
  4. state machine precondition               failed-precondition

ADMIN OVERRIDE:
  AdminClockInOut skips 1-3 and annotates the notes with the admin id.
  Status preconditions (4) still apply.

SEE ALSO:
  - machine.go: The transitions being executed
  - geo.go: Within
*/
package shift

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NextViewTaskDetail tells the UI to open the task checklist after clock-in.
const NextViewTaskDetail = "task-detail"

// ClockAction selects the admin override direction.
type ClockAction string

const (
	ActionClockIn  ClockAction = "clockIn"
	ActionClockOut ClockAction = "clockOut"
)

// ClockResult is what a successful clock action reports back.
type ClockResult struct {
	ShiftID      ShiftID
	Status       Status
	ClockInTime  *time.Time
	ClockOutTime *time.Time
	TotalHours   *decimal.Decimal
	// NextView is set on clock-in; the caller routes the caregiver there.
	NextView string
}

func resultOf(s *Shift) ClockResult {
	return ClockResult{
		ShiftID:      s.ID,
		Status:       s.Status,
		ClockInTime:  s.ClockInTime,
		ClockOutTime: s.ClockOutTime,
		TotalHours:   s.TotalHours,
	}
}

// ClockGate validates and commits clock actions.
type ClockGate struct {
	Store     TxStore
	Directory Directory
	Machine   *Machine
	Clock     Clock
	Logger    *zap.Logger
}

// NewClockGate wires a gate. A nil machine uses DefaultRules.
func NewClockGate(store TxStore, dir Directory, machine *Machine, clock Clock, logger *zap.Logger) *ClockGate {
	if machine == nil {
		machine = NewMachine(DefaultRules())
	}
	return &ClockGate{
		Store:     store,
		Directory: dir,
		Machine:   machine,
		Clock:     clockOrSystem(clock),
		Logger:    loggerOrNop(logger),
	}
}

// ClockIn is the caregiver self-service clock-in.
func (g *ClockGate) ClockIn(ctx context.Context, actor Actor, id ShiftID, location *LatLng) (ClockResult, error) {
	var result ClockResult
	err := g.selfService(ctx, actor, id, location, func(cur *Shift, now time.Time, patientLoc *LatLng) (Shift, error) {
		if opens := g.Machine.ClockInOpensAt(*cur); now.Before(opens) {
			return Shift{}, failedPrecondition("clock-in for shift %s opens at %s", cur.ID, opens.Format(time.RFC3339))
		}
		if err := g.checkProximity(location, patientLoc); err != nil {
			return Shift{}, err
		}
		return g.Machine.ClockIn(*cur, ClockInput{At: now, Actor: actor, Location: location})
	}, &result)
	if err != nil {
		return ClockResult{}, err
	}
	result.NextView = NextViewTaskDetail
	g.Logger.Info("shift clocked in",
		zap.String("shift_id", string(id)),
		zap.String("caregiver_id", string(actor.ID)),
	)
	return result, nil
}

// ClockOut is the caregiver self-service clock-out.
func (g *ClockGate) ClockOut(ctx context.Context, actor Actor, id ShiftID, location *LatLng) (ClockResult, error) {
	var result ClockResult
	err := g.selfService(ctx, actor, id, location, func(cur *Shift, now time.Time, patientLoc *LatLng) (Shift, error) {
		if opens := g.Machine.ClockOutOpensAt(*cur); now.Before(opens) {
			return Shift{}, failedPrecondition("clock-out for shift %s opens at %s", cur.ID, opens.Format(time.RFC3339))
		}
		if err := g.checkProximity(location, patientLoc); err != nil {
			return Shift{}, err
		}
		return g.Machine.ClockOut(*cur, ClockInput{At: now, Actor: actor, Location: location})
	}, &result)
	if err != nil {
		return ClockResult{}, err
	}
	g.Logger.Info("shift clocked out",
		zap.String("shift_id", string(id)),
		zap.String("caregiver_id", string(actor.ID)),
		zap.Stringer("total_hours", result.TotalHours),
	)
	return result, nil
}

// AdminClockInOut clocks a shift in or out on behalf of the caregiver.
func (g *ClockGate) AdminClockInOut(ctx context.Context, actor Actor, id ShiftID, action ClockAction) (ClockResult, error) {
	if !actor.Admin {
		return ClockResult{}, permissionDenied("admin capability required to override clock actions")
	}
	if action != ActionClockIn && action != ActionClockOut {
		return ClockResult{}, invalidArgument("unknown clock action %q", action)
	}

	var result ClockResult
	err := g.Store.WithTx(ctx, func(tx Store) error {
		cur, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		in := ClockInput{At: g.Clock.Now(), Actor: actor, Override: true}
		var next Shift
		if action == ActionClockIn {
			next, err = g.Machine.ClockIn(*cur, in)
		} else {
			next, err = g.Machine.ClockOut(*cur, in)
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateShift(ctx, &next); err != nil {
			return classify(err, "save shift")
		}
		result = resultOf(&next)
		return nil
	})
	if err != nil {
		return ClockResult{}, err
	}
	if action == ActionClockIn {
		result.NextView = NextViewTaskDetail
	}
	g.Logger.Info("admin clock override",
		zap.String("shift_id", string(id)),
		zap.String("admin_id", string(actor.ID)),
		zap.String("action", string(action)),
	)
	return result, nil
}

type clockStep func(cur *Shift, now time.Time, patientLoc *LatLng) (Shift, error)

func (g *ClockGate) selfService(ctx context.Context, actor Actor, id ShiftID, location *LatLng, step clockStep, result *ClockResult) error {
	if actor.ID == "" {
		return invalidArgument("actor id is required")
	}
	if location != nil && !location.Valid() {
		return invalidArgument("location %v is not a valid coordinate", *location)
	}

	// The patient is fixed for the life of a shift, so its location can be
	// resolved before the transaction opens.
	s, err := loadShift(ctx, g.Store, id)
	if err != nil {
		return err
	}
	if s.CaregiverID != actor.ID {
		return permissionDenied("shift %s is not assigned to %s", id, actor.ID)
	}
	patientLoc, err := g.patientLocation(ctx, s.PatientID)
	if err != nil {
		return err
	}

	return g.Store.WithTx(ctx, func(tx Store) error {
		cur, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.CaregiverID != actor.ID {
			return permissionDenied("shift %s is not assigned to %s", id, actor.ID)
		}
		next, err := step(cur, g.Clock.Now(), patientLoc)
		if err != nil {
			return err
		}
		if err := tx.UpdateShift(ctx, &next); err != nil {
			return classify(err, "save shift")
		}
		*result = resultOf(&next)
		return nil
	})
}

// patientLocation returns nil when the patient or its coordinates are unknown.
func (g *ClockGate) patientLocation(ctx context.Context, id PatientID) (*LatLng, error) {
	if g.Directory == nil {
		return nil, nil
	}
	p, err := g.Directory.GetPatient(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "load patient")
	}
	return p.Location, nil
}

func (g *ClockGate) checkProximity(actorLoc, patientLoc *LatLng) error {
	if actorLoc == nil {
		return failedPrecondition("your location is unavailable")
	}
	if patientLoc == nil {
		return failedPrecondition("patient location is unavailable")
	}
	if !Within(actorLoc, patientLoc, g.Machine.Rules.ProximityMeters) {
		return failedPrecondition("you are %.0fm from the patient's address, must be within %.0fm",
			DistanceMeters(*actorLoc, *patientLoc), g.Machine.Rules.ProximityMeters)
	}
	return nil
}
