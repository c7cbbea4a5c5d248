/*
service.go - Schedule management and engine wiring

PURPOSE:
  The non-clock operations around a shift: admins create, delete and
  force-expire shifts and maintain the patient/caregiver directory;
  caregivers save checklist progress while on the clock. Engine wires
  every component over one store, clock and rule set.

NAME SNAPSHOT:
  CreateShift copies caregiver and patient names from the directory onto
  the shift. Later directory edits do not rewrite existing shifts.

EXAMPLE:
  eng := shift.NewEngine(shift.Deps{Store: st, Directory: st, Logger: log})
  s, _ := eng.Schedule.CreateShift(ctx, admin, shift.NewShift{...})
  res, _ := eng.Gate.ClockIn(ctx, caregiver, s.ID, &loc)
*/
package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE
// =============================================================================

// Deps are the collaborators shared by every component.
type Deps struct {
	Store     TxStore
	Directory DirectoryStore
	Rules     Rules
	Clock     Clock
	Notifier  Notifier
	Logger    *zap.Logger
}

// Engine groups the components that operate on shifts.
type Engine struct {
	Machine  *Machine
	Schedule *Schedule
	Gate     *ClockGate
	Requests *RequestWorkflow
	Sweeper  *Sweeper
}

func NewEngine(d Deps) *Engine {
	m := NewMachine(d.Rules)
	clock := clockOrSystem(d.Clock)
	logger := loggerOrNop(d.Logger)
	return &Engine{
		Machine: m,
		Schedule: &Schedule{
			Store:     d.Store,
			Directory: d.Directory,
			Machine:   m,
			Clock:     clock,
			Logger:    logger.Named("schedule"),
		},
		Gate:     NewClockGate(d.Store, d.Directory, m, clock, logger.Named("gate")),
		Requests: NewRequestWorkflow(d.Store, m, clock, d.Notifier, logger.Named("requests")),
		Sweeper:  NewSweeper(d.Store, m, clock, d.Notifier, logger.Named("sweeper")),
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

// NewShift is the admin input for scheduling a visit.
type NewShift struct {
	CaregiverID ActorID
	PatientID   PatientID
	Task        string
	SubTasks    []string
	Notes       string
	StartTime   time.Time
	EndTime     time.Time
}

// Progress is the caregiver's checklist update.
type Progress struct {
	// Completed maps sub-task id to its new state. Omitted ids are unchanged.
	Completed map[string]bool
	// Notes replaces the notes when non-nil.
	Notes *string
}

// Schedule manages shifts and the directory.
type Schedule struct {
	Store     TxStore
	Directory DirectoryStore
	Machine   *Machine
	Clock     Clock
	Logger    *zap.Logger
}

func requireAdmin(actor Actor, what string) error {
	if !actor.Admin {
		return permissionDenied("admin capability required to %s", what)
	}
	return nil
}

// CreateShift schedules a pending shift.
func (sc *Schedule) CreateShift(ctx context.Context, actor Actor, in NewShift) (*Shift, error) {
	if err := requireAdmin(actor, "create shifts"); err != nil {
		return nil, err
	}
	if in.CaregiverID == "" || in.PatientID == "" {
		return nil, invalidArgument("caregiver id and patient id are required")
	}
	if strings.TrimSpace(in.Task) == "" {
		return nil, invalidArgument("task is required")
	}
	if in.StartTime.IsZero() || !in.EndTime.After(in.StartTime) {
		return nil, invalidArgument("end time must be after start time")
	}

	caregiver, err := sc.Directory.GetCaregiver(ctx, in.CaregiverID)
	if errors.Is(err, ErrNotFound) {
		return nil, invalidArgument("unknown caregiver %s", in.CaregiverID)
	}
	if err != nil {
		return nil, classify(err, "load caregiver")
	}
	if !caregiver.Active {
		return nil, failedPrecondition("caregiver %s is not active", in.CaregiverID)
	}
	patient, err := sc.Directory.GetPatient(ctx, in.PatientID)
	if errors.Is(err, ErrNotFound) {
		return nil, invalidArgument("unknown patient %s", in.PatientID)
	}
	if err != nil {
		return nil, classify(err, "load patient")
	}

	now := sc.Clock.Now()
	s := &Shift{
		ID:            ShiftID("shift-" + uuid.NewString()),
		CaregiverID:   caregiver.ID,
		CaregiverName: caregiver.Name,
		PatientID:     patient.ID,
		PatientName:   patient.Name,
		Task:          strings.TrimSpace(in.Task),
		Notes:         in.Notes,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, desc := range in.SubTasks {
		s.SubTasks = append(s.SubTasks, SubTask{ID: fmt.Sprintf("st-%d", i+1), Description: desc})
	}

	if err := sc.Store.CreateShift(ctx, s); err != nil {
		return nil, classify(err, "create shift")
	}
	sc.Logger.Info("shift created",
		zap.String("shift_id", string(s.ID)),
		zap.String("caregiver_id", string(s.CaregiverID)),
		zap.String("patient_id", string(s.PatientID)),
		zap.Time("start", s.StartTime),
	)
	return s, nil
}

// GetShift returns a shift. Caregivers only see their own.
func (sc *Schedule) GetShift(ctx context.Context, actor Actor, id ShiftID) (*Shift, error) {
	s, err := loadShift(ctx, sc.Store, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && s.CaregiverID != actor.ID {
		return nil, permissionDenied("shift %s is not assigned to %s", id, actor.ID)
	}
	return s, nil
}

// ListShifts returns matching shifts. Caregivers are restricted to their own.
func (sc *Schedule) ListShifts(ctx context.Context, actor Actor, filter ShiftFilter) ([]Shift, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidArgument("unknown status %q", filter.Status)
	}
	if !actor.Admin {
		filter.CaregiverID = actor.ID
	}
	shifts, err := sc.Store.ListShifts(ctx, filter)
	if err != nil {
		return nil, classify(err, "list shifts")
	}
	return shifts, nil
}

// DeleteShift removes a shift that is not in progress.
func (sc *Schedule) DeleteShift(ctx context.Context, actor Actor, id ShiftID) error {
	if err := requireAdmin(actor, "delete shifts"); err != nil {
		return err
	}
	err := sc.Store.WithTx(ctx, func(tx Store) error {
		s, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		if s.Status.InProgress() {
			return failedPrecondition("shift %s is in progress, clock it out first", id)
		}
		return classify(tx.DeleteShift(ctx, id), "delete shift")
	})
	if err != nil {
		return err
	}
	sc.Logger.Info("shift deleted", zap.String("shift_id", string(id)), zap.String("admin_id", string(actor.ID)))
	return nil
}

// UpdateProgress saves checklist state and notes for an in-progress shift.
func (sc *Schedule) UpdateProgress(ctx context.Context, actor Actor, id ShiftID, p Progress) (*Shift, error) {
	var saved *Shift
	err := sc.Store.WithTx(ctx, func(tx Store) error {
		s, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		if s.CaregiverID != actor.ID {
			return permissionDenied("shift %s is not assigned to %s", id, actor.ID)
		}
		if !s.Status.InProgress() {
			return failedPrecondition("progress can only be saved while shift %s is in progress (status %s)", id, s.Status)
		}

		next := s.clone()
		for subID, done := range p.Completed {
			found := false
			for i := range next.SubTasks {
				if next.SubTasks[i].ID == subID {
					next.SubTasks[i].Completed = done
					found = true
					break
				}
			}
			if !found {
				return invalidArgument("shift %s has no sub-task %s", id, subID)
			}
		}
		if p.Notes != nil {
			next.Notes = *p.Notes
		}
		next.UpdatedAt = sc.Clock.Now()
		if err := tx.UpdateShift(ctx, &next); err != nil {
			return classify(err, "save shift")
		}
		saved = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ForceExpire lets an admin expire a stale pending shift ahead of the sweep.
func (sc *Schedule) ForceExpire(ctx context.Context, actor Actor, id ShiftID) (*Shift, error) {
	if err := requireAdmin(actor, "expire shifts"); err != nil {
		return nil, err
	}
	var saved *Shift
	err := sc.Store.WithTx(ctx, func(tx Store) error {
		s, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := sc.Machine.Expire(*s, sc.Clock.Now())
		if err != nil {
			return err
		}
		if err := tx.UpdateShift(ctx, &next); err != nil {
			return classify(err, "save shift")
		}
		saved = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	sc.Logger.Info("shift force-expired", zap.String("shift_id", string(id)), zap.String("admin_id", string(actor.ID)))
	return saved, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

// SavePatient creates or replaces a patient record.
func (sc *Schedule) SavePatient(ctx context.Context, actor Actor, p Patient) error {
	if err := requireAdmin(actor, "edit patients"); err != nil {
		return err
	}
	if p.ID == "" || strings.TrimSpace(p.Name) == "" {
		return invalidArgument("patient id and name are required")
	}
	if p.Location != nil && !p.Location.Valid() {
		return invalidArgument("patient location %v is not a valid coordinate", *p.Location)
	}
	return classify(sc.Directory.SavePatient(ctx, p), "save patient")
}

// SaveCaregiver creates or replaces a caregiver record.
func (sc *Schedule) SaveCaregiver(ctx context.Context, actor Actor, c Caregiver) error {
	if err := requireAdmin(actor, "edit caregivers"); err != nil {
		return err
	}
	if c.ID == "" || strings.TrimSpace(c.Name) == "" {
		return invalidArgument("caregiver id and name are required")
	}
	return classify(sc.Directory.SaveCaregiver(ctx, c), "save caregiver")
}
