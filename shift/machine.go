/*
machine.go - Shift state machine

PURPOSE:
  Owns the shift status field. Every status change in the engine goes
  through one of the transition functions below, which validate the
  precondition and return the next version of the shift.

TRANSITIONS:
  Event                  From               To         Precondition
  clock_in               pending            active     never clocked in
  clock_out              active, overtime   completed  clocked in, not clocked out
  auto_clock_out         active, overtime   completed  now > end + 10min, not clocked out
  expire                 pending            expired    now > start + 20min, never clocked in
  overtime_approved      active, overtime   overtime   still clocked in, new end > end
  cancellation_approved  pending, active    cancelled  -

ATOMICITY:
  Transition functions take a Shift by value and return a new Shift.
  On error the input is untouched and the zero Shift is returned, so a
  caller can never persist a half-applied transition. Persisting the
  result is the caller's job (always a conditional write on Version).

HOURS:
  TotalHours = (clockOut - clockIn) in ms / 3_600_000, clamped at zero.
  Auto clock-out uses the scheduled end as clockOut so overdue time is
  never paid.

SEE ALSO:
  - hours.go: HoursBetween, HoursMinutes
  - gate.go: Caregiver-facing preconditions layered on top
*/
package shift

import (
	"fmt"
	"time"
)

// =============================================================================
// RULES - Time windows and thresholds
// =============================================================================

// Rules holds the configurable thresholds. Zero fields take the default.
type Rules struct {
	// Caregiver must be this close to the patient's address.
	ProximityMeters float64
	// Self-service clock-in opens this long before start.
	ClockInLead time.Duration
	// Self-service clock-out opens this long after end.
	ClockOutDelay time.Duration
	// Pending shifts expire this long after start.
	ExpireAfter time.Duration
	// Active shifts are auto-clocked-out this long after end.
	AutoClockOutAfter time.Duration
	// Overtime may be requested during this window before end.
	OvertimeWindow time.Duration
	// Cancellation may be requested during this window after start.
	CancellationWindow time.Duration
}

// DefaultRules returns the production thresholds.
func DefaultRules() Rules {
	return Rules{
		ProximityMeters:    DefaultProximityMeters,
		ClockInLead:        5 * time.Minute,
		ClockOutDelay:      5 * time.Minute,
		ExpireAfter:        20 * time.Minute,
		AutoClockOutAfter:  10 * time.Minute,
		OvertimeWindow:     20 * time.Minute,
		CancellationWindow: 20 * time.Minute,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.ProximityMeters <= 0 {
		r.ProximityMeters = d.ProximityMeters
	}
	if r.ClockInLead <= 0 {
		r.ClockInLead = d.ClockInLead
	}
	if r.ClockOutDelay <= 0 {
		r.ClockOutDelay = d.ClockOutDelay
	}
	if r.ExpireAfter <= 0 {
		r.ExpireAfter = d.ExpireAfter
	}
	if r.AutoClockOutAfter <= 0 {
		r.AutoClockOutAfter = d.AutoClockOutAfter
	}
	if r.OvertimeWindow <= 0 {
		r.OvertimeWindow = d.OvertimeWindow
	}
	if r.CancellationWindow <= 0 {
		r.CancellationWindow = d.CancellationWindow
	}
	return r
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

type Event string

const (
	EventClockIn              Event = "clock_in"
	EventClockOut             Event = "clock_out"
	EventAutoClockOut         Event = "auto_clock_out"
	EventExpire               Event = "expire"
	EventOvertimeApproved     Event = "overtime_approved"
	EventCancellationApproved Event = "cancellation_approved"
)

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Event]transition{
	EventClockIn:              {from: []Status{StatusPending}, to: StatusActive},
	EventClockOut:             {from: []Status{StatusActive, StatusOvertime}, to: StatusCompleted},
	EventAutoClockOut:         {from: []Status{StatusActive, StatusOvertime}, to: StatusCompleted},
	EventExpire:               {from: []Status{StatusPending}, to: StatusExpired},
	EventOvertimeApproved:     {from: []Status{StatusActive, StatusOvertime}, to: StatusOvertime},
	EventCancellationApproved: {from: []Status{StatusPending, StatusActive}, to: StatusCancelled},
}

// CanTransition reports whether ev is allowed from status.
func CanTransition(from Status, ev Event) bool {
	t, ok := transitions[ev]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

// Target returns the status ev leads to.
func Target(ev Event) Status {
	return transitions[ev].to
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine validates and executes transitions under a set of Rules.
type Machine struct {
	Rules Rules
}

// NewMachine creates a machine; zero rule fields take their defaults.
func NewMachine(rules Rules) *Machine {
	return &Machine{Rules: rules.withDefaults()}
}

// ClockInput describes who clocks and when.
type ClockInput struct {
	At       time.Time
	Actor    Actor
	Override bool // admin override: annotate the notes
	Location *LatLng
}

const autoClockOutNote = "[System Auto-Clock-Out: Shift ended and not clocked out within 10 minutes. Overdue time not counted.]"

func (m *Machine) checkSource(s *Shift, ev Event) error {
	if !CanTransition(s.Status, ev) {
		return failedPrecondition("cannot apply %s to shift %s in status %s", ev, s.ID, s.Status)
	}
	return nil
}

// ClockIn moves a pending shift to active.
func (m *Machine) ClockIn(s Shift, in ClockInput) (Shift, error) {
	if s.ClockInTime != nil {
		return Shift{}, failedPrecondition("shift %s has already been clocked in", s.ID)
	}
	if err := m.checkSource(&s, EventClockIn); err != nil {
		return Shift{}, err
	}

	next := s.clone()
	at := in.At
	next.ClockInTime = &at
	next.ClockInLocation = copyLocation(in.Location)
	next.Status = Target(EventClockIn)
	if in.Override {
		next.appendNote(fmt.Sprintf("[Admin Clock-In by %s]", in.Actor.ID))
	}
	next.UpdatedAt = in.At
	return next, nil
}

// ClockOut completes a clocked-in shift and computes TotalHours.
func (m *Machine) ClockOut(s Shift, in ClockInput) (Shift, error) {
	if s.ClockOutTime != nil {
		return Shift{}, failedPrecondition("shift %s has already been clocked out", s.ID)
	}
	if s.ClockInTime == nil {
		return Shift{}, failedPrecondition("cannot clock out of shift %s before clocking in", s.ID)
	}
	if err := m.checkSource(&s, EventClockOut); err != nil {
		return Shift{}, err
	}

	next := s.clone()
	out := notBefore(in.At, *s.ClockInTime)
	hours := HoursBetween(*s.ClockInTime, out)
	next.ClockOutTime = &out
	next.ClockOutLocation = copyLocation(in.Location)
	next.TotalHours = &hours
	next.Status = Target(EventClockOut)
	if in.Override {
		next.appendNote(fmt.Sprintf("[Admin Clock-Out by %s]", in.Actor.ID))
	}
	next.UpdatedAt = in.At
	return next, nil
}

// AutoClockOut closes an overdue shift at its scheduled end.
func (m *Machine) AutoClockOut(s Shift, now time.Time) (Shift, error) {
	if err := m.checkSource(&s, EventAutoClockOut); err != nil {
		return Shift{}, err
	}
	if s.ClockOutTime != nil {
		return Shift{}, failedPrecondition("shift %s has already been clocked out", s.ID)
	}
	if s.ClockInTime == nil {
		return Shift{}, failedPrecondition("shift %s has no clock-in time", s.ID)
	}
	if !m.AutoClockOutDue(s, now) {
		return Shift{}, failedPrecondition("shift %s is not overdue until %s",
			s.ID, s.EndTime.Add(m.Rules.AutoClockOutAfter).Format(time.RFC3339))
	}

	next := s.clone()
	out := notBefore(s.EndTime, *s.ClockInTime)
	hours := HoursBetween(*s.ClockInTime, out)
	next.ClockOutTime = &out
	next.TotalHours = &hours
	next.Status = Target(EventAutoClockOut)
	next.appendNote(autoClockOutNote)
	next.UpdatedAt = now
	return next, nil
}

// Expire marks a pending shift nobody clocked into as expired.
func (m *Machine) Expire(s Shift, now time.Time) (Shift, error) {
	if err := m.checkSource(&s, EventExpire); err != nil {
		return Shift{}, err
	}
	if s.ClockInTime != nil {
		return Shift{}, failedPrecondition("shift %s has already been clocked in", s.ID)
	}
	if !m.ExpireDue(s, now) {
		return Shift{}, failedPrecondition("shift %s does not expire until %s",
			s.ID, s.StartTime.Add(m.Rules.ExpireAfter).Format(time.RFC3339))
	}

	next := s.clone()
	next.Status = Target(EventExpire)
	next.UpdatedAt = now
	return next, nil
}

// ApproveOvertime extends the end of a shift the caregiver is still on.
func (m *Machine) ApproveOvertime(s Shift, newEnd, at time.Time) (Shift, error) {
	if err := m.checkSource(&s, EventOvertimeApproved); err != nil {
		return Shift{}, err
	}
	if !s.ClockedIn() {
		return Shift{}, failedPrecondition("shift %s is not clocked in", s.ID)
	}
	if !newEnd.After(s.EndTime) {
		return Shift{}, invalidArgument("new end time %s must be after current end %s",
			newEnd.Format(time.RFC3339), s.EndTime.Format(time.RFC3339))
	}

	next := s.clone()
	next.EndTime = newEnd
	next.Status = Target(EventOvertimeApproved)
	next.UpdatedAt = at
	return next, nil
}

// ApproveCancellation cancels the shift, crediting compensation as hours.
func (m *Machine) ApproveCancellation(s Shift, compensation *HoursMinutes, by Actor, at time.Time) (Shift, error) {
	if err := m.checkSource(&s, EventCancellationApproved); err != nil {
		return Shift{}, err
	}

	var granted HoursMinutes
	if compensation != nil {
		granted = *compensation
	}
	hours := granted.DecimalHours()

	next := s.clone()
	next.TotalHours = &hours
	next.Status = Target(EventCancellationApproved)
	next.appendNote(fmt.Sprintf("[Cancellation approved by %s, compensation %s]", by.ID, granted))
	next.UpdatedAt = at
	return next, nil
}

// =============================================================================
// WINDOWS
// =============================================================================

// ClockInOpensAt is the earliest self-service clock-in.
func (m *Machine) ClockInOpensAt(s Shift) time.Time {
	return s.StartTime.Add(-m.Rules.ClockInLead)
}

// ClockOutOpensAt is the earliest self-service clock-out.
func (m *Machine) ClockOutOpensAt(s Shift) time.Time {
	return s.EndTime.Add(m.Rules.ClockOutDelay)
}

// ExpireDue reports whether a pending shift has passed its expiry point.
func (m *Machine) ExpireDue(s Shift, now time.Time) bool {
	return now.After(s.StartTime.Add(m.Rules.ExpireAfter))
}

// AutoClockOutDue reports whether an open shift is overdue.
func (m *Machine) AutoClockOutDue(s Shift, now time.Time) bool {
	return now.After(s.EndTime.Add(m.Rules.AutoClockOutAfter))
}

// OvertimeWindow returns [end - window, end].
func (m *Machine) OvertimeWindow(s Shift) (time.Time, time.Time) {
	return s.EndTime.Add(-m.Rules.OvertimeWindow), s.EndTime
}

// CancellationWindow returns [start, start + window].
func (m *Machine) CancellationWindow(s Shift) (time.Time, time.Time) {
	return s.StartTime, s.StartTime.Add(m.Rules.CancellationWindow)
}

func inWindow(now, from, to time.Time) bool {
	return !now.Before(from) && !now.After(to)
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

func copyLocation(l *LatLng) *LatLng {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
