package shift

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testDay = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// pendingShift is scheduled 09:00-11:00.
func pendingShift() Shift {
	return Shift{
		ID:          "shift-1",
		CaregiverID: "cg-1",
		PatientID:   "pt-1",
		Task:        "Morning visit",
		SubTasks:    []SubTask{{ID: "st-1", Description: "Medication"}},
		StartTime:   at(9, 0),
		EndTime:     at(11, 0),
		Status:      StatusPending,
		Version:     1,
	}
}

func activeShift(clockIn time.Time) Shift {
	s := pendingShift()
	s.Status = StatusActive
	s.ClockInTime = &clockIn
	return s
}

var caregiver = Actor{ID: "cg-1", Name: "Dana"}

var admin = Actor{ID: "admin-1", Name: "Ops", Admin: true}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, CodeOf(err), "error: %v", err)
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		ev   Event
		want bool
	}{
		{StatusPending, EventClockIn, true},
		{StatusActive, EventClockIn, false},
		{StatusActive, EventClockOut, true},
		{StatusOvertime, EventClockOut, true},
		{StatusPending, EventClockOut, false},
		{StatusOvertime, EventAutoClockOut, true},
		{StatusPending, EventExpire, true},
		{StatusActive, EventExpire, false},
		{StatusActive, EventOvertimeApproved, true},
		{StatusCompleted, EventOvertimeApproved, false},
		{StatusPending, EventCancellationApproved, true},
		{StatusActive, EventCancellationApproved, true},
		{StatusOvertime, EventCancellationApproved, false},
		{StatusExpired, EventCancellationApproved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.ev))
		})
	}
}

func TestTerminalStatuses_NoOutgoingTransition(t *testing.T) {
	for _, s := range Statuses {
		if !s.IsTerminal() {
			continue
		}
		for ev := range transitions {
			assert.False(t, CanTransition(s, ev), "%s should not leave terminal %s", ev, s)
		}
	}
}

func TestNewMachine_ZeroRulesTakeDefaults(t *testing.T) {
	m := NewMachine(Rules{ExpireAfter: 30 * time.Minute})

	assert.Equal(t, 30*time.Minute, m.Rules.ExpireAfter)
	assert.Equal(t, DefaultProximityMeters, m.Rules.ProximityMeters)
	assert.Equal(t, 10*time.Minute, m.Rules.AutoClockOutAfter)
}

// =============================================================================
// CLOCK IN / OUT
// =============================================================================

func TestClockIn_SetsActive_LeavesInputUntouched(t *testing.T) {
	m := NewMachine(DefaultRules())
	s := pendingShift()
	loc := LatLng{Lat: 1, Lng: 2}

	next, err := m.ClockIn(s, ClockInput{At: at(8, 56), Actor: caregiver, Location: &loc})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, next.Status)
	require.NotNil(t, next.ClockInTime)
	assert.Equal(t, at(8, 56), *next.ClockInTime)
	assert.Equal(t, loc, *next.ClockInLocation)
	assert.Empty(t, next.Notes)

	assert.Equal(t, StatusPending, s.Status)
	assert.Nil(t, s.ClockInTime)
}

func TestClockIn_AlreadyClockedIn_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.ClockIn(activeShift(at(9, 0)), ClockInput{At: at(9, 5), Actor: caregiver})
	requireCode(t, err, CodeFailedPrecondition)
}

func TestClockIn_AdminOverride_AppendsNote(t *testing.T) {
	m := NewMachine(DefaultRules())
	s := pendingShift()
	s.Notes = "Bring gloves"

	next, err := m.ClockIn(s, ClockInput{At: at(9, 30), Actor: admin, Override: true})
	require.NoError(t, err)

	assert.Equal(t, "Bring gloves [Admin Clock-In by admin-1]", next.Notes)
}

func TestClockOut_ComputesTotalHours(t *testing.T) {
	m := NewMachine(DefaultRules())

	next, err := m.ClockOut(activeShift(at(8, 56)), ClockInput{At: at(11, 5), Actor: caregiver})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, next.Status)
	require.NotNil(t, next.TotalHours)
	assert.True(t, decimal.RequireFromString("2.15").Equal(*next.TotalHours), "got %s", next.TotalHours)
}

func TestClockOut_BeforeClockIn_ClampedToClockIn(t *testing.T) {
	// GIVEN: A clock-in stamped later than the clock-out instant (skewed clocks)
	// WHEN: Clocking out
	// THEN: clockOut == clockIn and totalHours == 0

	m := NewMachine(DefaultRules())

	next, err := m.ClockOut(activeShift(at(10, 0)), ClockInput{At: at(9, 0), Actor: caregiver})
	require.NoError(t, err)

	assert.False(t, next.ClockOutTime.Before(*next.ClockInTime))
	assert.True(t, next.TotalHours.IsZero())
}

func TestClockOut_NotClockedIn_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.ClockOut(pendingShift(), ClockInput{At: at(11, 5), Actor: caregiver})
	requireCode(t, err, CodeFailedPrecondition)
}

func TestClockOut_Twice_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())
	done, err := m.ClockOut(activeShift(at(9, 0)), ClockInput{At: at(11, 5), Actor: caregiver})
	require.NoError(t, err)

	_, err = m.ClockOut(done, ClockInput{At: at(11, 6), Actor: caregiver})
	requireCode(t, err, CodeFailedPrecondition)
}

func TestClockOut_FromOvertime(t *testing.T) {
	m := NewMachine(DefaultRules())
	s := activeShift(at(9, 0))
	s.Status = StatusOvertime
	s.EndTime = at(12, 0)

	next, err := m.ClockOut(s, ClockInput{At: at(12, 5), Actor: admin, Override: true})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, next.Status)
	assert.Contains(t, next.Notes, "[Admin Clock-Out by admin-1]")
}

// =============================================================================
// TIME-DRIVEN TRANSITIONS
// =============================================================================

func TestAutoClockOut_UsesScheduledEnd(t *testing.T) {
	// GIVEN: Shift 09:00-11:00, clocked in at 09:00, never clocked out
	// WHEN: Auto clock-out at 11:11
	// THEN: clockOut is 11:00 and only 2 hours are counted

	m := NewMachine(DefaultRules())

	next, err := m.AutoClockOut(activeShift(at(9, 0)), at(11, 11))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, next.Status)
	assert.Equal(t, at(11, 0), *next.ClockOutTime)
	assert.True(t, decimal.NewFromInt(2).Equal(*next.TotalHours))
	assert.Contains(t, next.Notes, autoClockOutNote)
}

func TestAutoClockOut_NotYetOverdue_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.AutoClockOut(activeShift(at(9, 0)), at(11, 10))
	requireCode(t, err, CodeFailedPrecondition)
}

func TestAutoClockOut_ClockInAfterEnd_ZeroHours(t *testing.T) {
	m := NewMachine(DefaultRules())

	next, err := m.AutoClockOut(activeShift(at(11, 2)), at(11, 30))
	require.NoError(t, err)

	assert.Equal(t, at(11, 2), *next.ClockOutTime)
	assert.True(t, next.TotalHours.IsZero())
}

func TestExpire_AfterTwentyMinutes(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.Expire(pendingShift(), at(9, 20))
	requireCode(t, err, CodeFailedPrecondition)

	next, err := m.Expire(pendingShift(), at(9, 21))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, next.Status)
}

func TestExpire_ActiveShift_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.Expire(activeShift(at(9, 0)), at(10, 0))
	requireCode(t, err, CodeFailedPrecondition)
}

// =============================================================================
// REQUEST APPROVALS
// =============================================================================

func TestApproveOvertime_ExtendsEnd(t *testing.T) {
	m := NewMachine(DefaultRules())

	next, err := m.ApproveOvertime(activeShift(at(9, 0)), at(12, 0), at(10, 50))
	require.NoError(t, err)

	assert.Equal(t, StatusOvertime, next.Status)
	assert.Equal(t, at(12, 0), next.EndTime)
}

func TestApproveOvertime_EndNotLater_InvalidArgument(t *testing.T) {
	m := NewMachine(DefaultRules())

	_, err := m.ApproveOvertime(activeShift(at(9, 0)), at(11, 0), at(10, 50))
	requireCode(t, err, CodeInvalidArgument)
}

func TestApproveOvertime_NotClockedIn_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())
	s := activeShift(at(9, 0))
	out := at(10, 0)
	s.ClockOutTime = &out

	_, err := m.ApproveOvertime(s, at(12, 0), at(10, 50))
	requireCode(t, err, CodeFailedPrecondition)
}

func TestApproveCancellation_Compensation(t *testing.T) {
	m := NewMachine(DefaultRules())

	next, err := m.ApproveCancellation(pendingShift(), &HoursMinutes{Hours: 1, Minutes: 30}, admin, at(9, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, next.Status)
	assert.True(t, decimal.RequireFromString("1.5").Equal(*next.TotalHours))

	none, err := m.ApproveCancellation(pendingShift(), nil, admin, at(9, 10))
	require.NoError(t, err)
	assert.True(t, none.TotalHours.IsZero())
}

func TestApproveCancellation_Completed_FailedPrecondition(t *testing.T) {
	m := NewMachine(DefaultRules())
	s := pendingShift()
	s.Status = StatusCompleted

	_, err := m.ApproveCancellation(s, nil, admin, at(9, 10))
	requireCode(t, err, CodeFailedPrecondition)
}
