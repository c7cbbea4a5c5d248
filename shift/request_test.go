package shift_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// OVERTIME
// =============================================================================

func TestSubmitOvertime_ApproveExtendsShift(t *testing.T) {
	// GIVEN: Caregiver on the clock for a 09:00-11:00 shift
	// WHEN: They request 1h overtime at 10:45 and an admin approves a 12:00 end
	// THEN: Shift is in overtime with end 12:00, request approved

	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))

	env.clock.Set(at(10, 45))
	reqID, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 1, 0, "Patient fell, staying with her")
	require.NoError(t, err)

	req, err := env.eng.Requests.Get(ctx, caregiver, reqID)
	require.NoError(t, err)
	assert.Equal(t, shift.RequestPending, req.Status)
	assert.Equal(t, "Ruth Hale", req.PatientName)
	assert.Equal(t, &shift.HoursMinutes{Hours: 1}, req.Overtime)

	newEnd := at(12, 0)
	env.clock.Set(at(10, 50))
	reviewed, err := env.eng.Requests.Review(ctx, admin, reqID, shift.DecisionApproved, shift.ReviewDetails{NewEndTime: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, shift.RequestApproved, reviewed.Status)
	assert.Equal(t, newEnd, *reviewed.ApprovedEndTime)
	assert.Equal(t, admin.ID, reviewed.ReviewedBy)

	stored := env.get(t, s.ID)
	assert.Equal(t, shift.StatusOvertime, stored.Status)
	assert.Equal(t, newEnd, stored.EndTime)

	assert.Equal(t, []shift.NotificationType{shift.NotifyRequestSubmitted, shift.NotifyRequestReviewed}, env.notifier.types())
}

func TestSubmitOvertime_OutsideWindow_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))

	for _, when := range []struct{ h, m int }{{10, 39}, {11, 1}} {
		env.clock.Set(at(when.h, when.m))
		_, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 0, 30, "running late")
		requireCode(t, err, shift.CodeFailedPrecondition)
	}

	// Window edges are inclusive
	env.clock.Set(at(10, 40))
	_, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 0, 30, "running late")
	require.NoError(t, err)
}

func TestSubmitOvertime_NotClockedIn_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)

	env.clock.Set(at(10, 45))
	_, err := env.eng.Requests.SubmitOvertime(context.Background(), caregiver, s.ID, 1, 0, "reason")
	requireCode(t, err, shift.CodeFailedPrecondition)
}

func TestSubmitOvertime_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))
	env.clock.Set(at(10, 45))

	tests := []struct {
		name           string
		hours, minutes int
		reason         string
	}{
		{"zero duration", 0, 0, "reason"},
		{"negative minutes", 1, -10, "reason"},
		{"minutes overflow", 0, 75, "reason"},
		{"blank reason", 1, 0, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, tt.hours, tt.minutes, tt.reason)
			requireCode(t, err, shift.CodeInvalidArgument)
		})
	}
}

func TestSubmitOvertime_DuplicatePending_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))
	env.clock.Set(at(10, 45))

	_, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 1, 0, "first")
	require.NoError(t, err)
	_, err = env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 0, 30, "second")
	requireCode(t, err, shift.CodeFailedPrecondition)
}

func TestSubmitOvertime_OtherCaregiver_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))
	env.clock.Set(at(10, 45))

	_, err := env.eng.Requests.SubmitOvertime(context.Background(), other, s.ID, 1, 0, "reason")
	requireCode(t, err, shift.CodePermissionDenied)
}

func TestApproveOvertime_MissingNewEnd_InvalidArgument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))
	env.clock.Set(at(10, 45))
	reqID, err := env.eng.Requests.SubmitOvertime(ctx, caregiver, s.ID, 1, 0, "reason")
	require.NoError(t, err)

	_, err = env.eng.Requests.Approve(ctx, admin, reqID, shift.ReviewDetails{})
	requireCode(t, err, shift.CodeInvalidArgument)

	req, err := env.eng.Requests.Get(ctx, admin, reqID)
	require.NoError(t, err)
	assert.Equal(t, shift.RequestPending, req.Status, "failed approval must not change the request")
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestApproveCancellation_CompensationDerivesHours(t *testing.T) {
	tests := []struct {
		name         string
		compensation *shift.HoursMinutes
		want         string
	}{
		{"1h30m", &shift.HoursMinutes{Hours: 1, Minutes: 30}, "1.5"},
		{"no compensation", nil, "0"},
		{"minutes only", &shift.HoursMinutes{Minutes: 45}, "0.75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			s := env.schedule(t)

			env.clock.Set(at(9, 10))
			reqID, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "Patient in hospital")
			require.NoError(t, err)

			_, err = env.eng.Requests.Review(ctx, admin, reqID, shift.DecisionApproved, shift.ReviewDetails{Compensation: tt.compensation})
			require.NoError(t, err)

			stored := env.get(t, s.ID)
			assert.Equal(t, shift.StatusCancelled, stored.Status)
			require.NotNil(t, stored.TotalHours)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*stored.TotalHours), "got %s", stored.TotalHours)
		})
	}
}

func TestSubmitCancellation_Window(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)

	env.clock.Set(at(8, 59))
	_, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	requireCode(t, err, shift.CodeFailedPrecondition)

	env.clock.Set(at(9, 21))
	_, err = env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	requireCode(t, err, shift.CodeFailedPrecondition)

	env.clock.Set(at(9, 20))
	_, err = env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	require.NoError(t, err)
}

func TestSubmitCancellation_ActiveShift_Allowed(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))

	env.clock.Set(at(9, 5))
	_, err := env.eng.Requests.SubmitCancellation(context.Background(), caregiver, s.ID, "Patient refused care")
	require.NoError(t, err)
}

// =============================================================================
// REVIEW
// =============================================================================

func TestDeny_KeepsShiftUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clock.Set(at(9, 10))
	reqID, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	require.NoError(t, err)

	_, err = env.eng.Requests.Deny(ctx, admin, reqID, "")
	requireCode(t, err, shift.CodeInvalidArgument)

	req, err := env.eng.Requests.Review(ctx, admin, reqID, shift.DecisionDenied, shift.ReviewDetails{DenialReason: "No cover available"})
	require.NoError(t, err)
	assert.Equal(t, shift.RequestDenied, req.Status)
	assert.Equal(t, "No cover available", req.DenialReason)

	assert.Equal(t, shift.StatusPending, env.get(t, s.ID).Status)
}

func TestReview_AlreadyReviewed_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clock.Set(at(9, 10))
	reqID, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	require.NoError(t, err)

	_, err = env.eng.Requests.Deny(ctx, admin, reqID, "no")
	require.NoError(t, err)

	_, err = env.eng.Requests.Deny(ctx, admin, reqID, "no again")
	requireCode(t, err, shift.CodeFailedPrecondition)
	_, err = env.eng.Requests.Approve(ctx, admin, reqID, shift.ReviewDetails{})
	requireCode(t, err, shift.CodeFailedPrecondition)
}

func TestReview_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clock.Set(at(9, 10))
	reqID, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	require.NoError(t, err)

	_, err = env.eng.Requests.Review(ctx, caregiver, reqID, shift.DecisionApproved, shift.ReviewDetails{})
	requireCode(t, err, shift.CodePermissionDenied)

	_, err = env.eng.Requests.Review(ctx, admin, reqID, "maybe", shift.ReviewDetails{})
	requireCode(t, err, shift.CodeInvalidArgument)

	_, err = env.eng.Requests.Review(ctx, admin, "req-missing", shift.DecisionApproved, shift.ReviewDetails{})
	requireCode(t, err, shift.CodeNotFound)

	_, err = env.eng.Requests.Approve(ctx, admin, reqID, shift.ReviewDetails{Compensation: &shift.HoursMinutes{Minutes: 90}})
	requireCode(t, err, shift.CodeInvalidArgument)
}

func TestRequests_ListScopedToCaregiver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clock.Set(at(9, 10))
	reqID, err := env.eng.Requests.SubmitCancellation(ctx, caregiver, s.ID, "sick")
	require.NoError(t, err)

	mine, err := env.eng.Requests.List(ctx, caregiver, shift.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, reqID, mine[0].ID)

	theirs, err := env.eng.Requests.List(ctx, other, shift.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = env.eng.Requests.Get(ctx, other, reqID)
	requireCode(t, err, shift.CodePermissionDenied)

	pending, err := env.eng.Requests.List(ctx, admin, shift.RequestFilter{Status: shift.RequestPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
