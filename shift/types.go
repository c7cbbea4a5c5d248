/*
Package shift provides the shift lifecycle engine.

PURPOSE:
  A shift is a scheduled caregiver visit to a patient. This package owns
  the shift status field and everything allowed to change it: caregiver
  clock-in/out, admin overrides, overtime and cancellation requests, and
  the time-driven sweeps that expire or auto-close shifts nobody touched.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift:    The scheduled visit with its time window and clock stamps
  - Status:   pending → active → completed (plus overtime/cancelled/expired/missed)
  - Request:  Caregiver-submitted amendment (overtime or cancellation)
  - Actor:    Who is calling (caregiver id, admin capability)

LIFECYCLE:
  ┌─────────┐  clock_in   ┌────────┐  clock_out / auto_clock_out  ┌───────────┐
  │ pending │ ──────────▶ │ active │ ────────────────────────────▶│ completed │
  └─────────┘             └────────┘                              └───────────┘
       │ expire               │ overtime_approved                       ▲
       ▼                      ▼                                         │
  ┌─────────┐            ┌──────────┐  clock_out / auto_clock_out       │
  │ expired │            │ overtime │ ──────────────────────────────────┘
  └─────────┘            └──────────┘
  pending/active ── cancellation_approved ──▶ cancelled

DENORMALIZED NAMES:
  CaregiverName and PatientName are a snapshot taken from the Directory
  when the shift is created. They are a display cache and never re-joined.

SEE ALSO:
  - machine.go: Transition table and transition functions
  - gate.go: Caregiver clock-in/out preconditions
  - request.go: Overtime and cancellation workflow
  - sweeper.go: Expiry and auto-clock-out jobs
*/
package shift

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShiftID string

type RequestID string

type ActorID string

type PatientID string

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusOvertime  Status = "overtime"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusMissed    Status = "missed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusActive, StatusOvertime, StatusCompleted,
	StatusCancelled, StatusExpired, StatusMissed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true once no further transition can leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusMissed:
		return true
	}
	return false
}

// InProgress returns true while the caregiver is on the clock.
func (s Status) InProgress() bool {
	return s == StatusActive || s == StatusOvertime
}

// =============================================================================
// SHIFT
// =============================================================================

// SubTask is one checklist item of a shift.
type SubTask struct {
	ID          string
	Description string
	Completed   bool
}

// Shift is a scheduled caregiver visit.
type Shift struct {
	ID ShiftID

	CaregiverID   ActorID
	CaregiverName string
	PatientID     PatientID
	PatientName   string

	Task     string
	SubTasks []SubTask
	Notes    string

	// Scheduled window. EndTime moves only on overtime approval.
	StartTime time.Time
	EndTime   time.Time

	// Set at most once each.
	ClockInTime  *time.Time
	ClockOutTime *time.Time

	ClockInLocation  *LatLng
	ClockOutLocation *LatLng

	Status Status

	// Nil until the shift is completed or cancelled.
	TotalHours *decimal.Decimal

	// Optimistic concurrency token. Stores reject a write whose Version
	// differs from the stored one, then bump it.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClockedIn returns true between clock-in and clock-out.
func (s *Shift) ClockedIn() bool {
	return s.ClockInTime != nil && s.ClockOutTime == nil
}

// appendNote adds a bracketed annotation without touching existing text.
func (s *Shift) appendNote(note string) {
	if s.Notes == "" {
		s.Notes = note
		return
	}
	s.Notes = s.Notes + " " + note
}

// clone returns a copy safe to mutate without affecting s.
func (s Shift) clone() Shift {
	if s.SubTasks != nil {
		s.SubTasks = append([]SubTask(nil), s.SubTasks...)
	}
	return s
}

// ShiftFilter narrows ListShifts. Zero values match everything.
type ShiftFilter struct {
	Status      Status
	CaregiverID ActorID
	PatientID   PatientID
	From        *time.Time // StartTime >= From
	To          *time.Time // StartTime < To
}

// Matches reports whether s passes the filter.
func (f ShiftFilter) Matches(s Shift) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.CaregiverID != "" && s.CaregiverID != f.CaregiverID {
		return false
	}
	if f.PatientID != "" && s.PatientID != f.PatientID {
		return false
	}
	if f.From != nil && s.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.StartTime.Before(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// REQUEST
// =============================================================================

type RequestType string

const (
	RequestOvertime     RequestType = "overtime"
	RequestCancellation RequestType = "cancellation"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
)

// Decision is the admin verdict on a request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Request is a caregiver-submitted amendment to a shift.
type Request struct {
	ID      RequestID
	ShiftID ShiftID

	CaregiverID   ActorID
	CaregiverName string
	PatientID     PatientID
	PatientName   string

	Type   RequestType
	Status RequestStatus
	Reason string

	RequestDate time.Time

	// Overtime: the extra time the caregiver asked for.
	Overtime *HoursMinutes
	// Overtime approval: the end instant the admin chose.
	ApprovedEndTime *time.Time
	// Cancellation approval: the credited time.
	Compensation *HoursMinutes

	ReviewedBy   ActorID
	ReviewedAt   *time.Time
	DenialReason string

	Version int64
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	Status      RequestStatus
	Type        RequestType
	ShiftID     ShiftID
	CaregiverID ActorID
}

// Matches reports whether r passes the filter.
func (f RequestFilter) Matches(r Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.ShiftID != "" && r.ShiftID != f.ShiftID {
		return false
	}
	if f.CaregiverID != "" && r.CaregiverID != f.CaregiverID {
		return false
	}
	return true
}

// =============================================================================
// ACTOR
// =============================================================================

// Actor identifies the caller. Admin is the capability bit; role storage
// lives outside this engine.
type Actor struct {
	ID    ActorID
	Name  string
	Admin bool
}

// System is the actor used by the sweeps.
var System = Actor{ID: "system", Name: "System", Admin: true}
