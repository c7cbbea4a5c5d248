package shift_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestClockGate_EarlyClockIn_OnTimeClockOut(t *testing.T) {
	// GIVEN: Shift 09:00-11:00
	// WHEN: Caregiver clocks in at 08:56 and out at 11:05, standing at the address
	// THEN: Shift is completed with 2.15 hours

	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)

	env.clock.Set(at(8, 56))
	in, err := env.eng.Gate.ClockIn(ctx, caregiver, s.ID, near(5))
	require.NoError(t, err)
	assert.Equal(t, shift.StatusActive, in.Status)
	assert.Equal(t, shift.NextViewTaskDetail, in.NextView)
	assert.Equal(t, at(8, 56), *in.ClockInTime)

	env.clock.Set(at(11, 5))
	out, err := env.eng.Gate.ClockOut(ctx, caregiver, s.ID, near(5))
	require.NoError(t, err)
	assert.Equal(t, shift.StatusCompleted, out.Status)
	require.NotNil(t, out.TotalHours)
	assert.True(t, decimal.RequireFromString("2.15").Equal(*out.TotalHours), "got %s", out.TotalHours)

	stored := env.get(t, s.ID)
	assert.Equal(t, shift.StatusCompleted, stored.Status)
	assert.Equal(t, at(11, 5), *stored.ClockOutTime)
	assert.NotNil(t, stored.ClockInLocation)
	assert.NotNil(t, stored.ClockOutLocation)
}

func TestClockGate_ClockInTooEarly_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)

	env.clock.Set(at(8, 54))
	_, err := env.eng.Gate.ClockIn(context.Background(), caregiver, s.ID, near(5))
	requireCode(t, err, shift.CodeFailedPrecondition)
	assert.Equal(t, shift.StatusPending, env.get(t, s.ID).Status)
}

func TestClockGate_ClockOutBeforeDelay_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))

	env.clock.Set(at(11, 4))
	_, err := env.eng.Gate.ClockOut(context.Background(), caregiver, s.ID, near(5))
	requireCode(t, err, shift.CodeFailedPrecondition)
	assert.Equal(t, shift.StatusActive, env.get(t, s.ID).Status)
}

// =============================================================================
// PROXIMITY
// =============================================================================

func TestClockGate_Proximity(t *testing.T) {
	tests := []struct {
		name     string
		location *shift.LatLng
		wantErr  bool
	}{
		{"10m away", near(10), false},
		{"200m away", near(200), true},
		{"location unavailable", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			s := env.schedule(t)
			env.clock.Set(at(9, 0))

			_, err := env.eng.Gate.ClockIn(context.Background(), caregiver, s.ID, tt.location)
			if tt.wantErr {
				requireCode(t, err, shift.CodeFailedPrecondition)
				assert.Equal(t, shift.StatusPending, env.get(t, s.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, shift.StatusActive, env.get(t, s.ID).Status)
		})
	}
}

func TestClockGate_PatientNotGeocoded_FailedPrecondition(t *testing.T) {
	env := newTestEnv(t)
	s := env.scheduleFor(t, "pt-nogeo", at(9, 0), at(11, 0))

	env.clock.Set(at(9, 0))
	_, err := env.eng.Gate.ClockIn(context.Background(), caregiver, s.ID, near(0))
	requireCode(t, err, shift.CodeFailedPrecondition)
}

func TestClockGate_InvalidCoordinate_InvalidArgument(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)

	env.clock.Set(at(9, 0))
	_, err := env.eng.Gate.ClockIn(context.Background(), caregiver, s.ID, &shift.LatLng{Lat: 120, Lng: 0})
	requireCode(t, err, shift.CodeInvalidArgument)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestClockGate_OtherCaregiver_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)

	env.clock.Set(at(9, 0))
	_, err := env.eng.Gate.ClockIn(context.Background(), other, s.ID, near(5))
	requireCode(t, err, shift.CodePermissionDenied)
}

func TestClockGate_UnknownShift_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.eng.Gate.ClockIn(context.Background(), caregiver, "shift-missing", near(5))
	requireCode(t, err, shift.CodeNotFound)
}

func TestClockGate_EmptyShiftID_InvalidArgument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.eng.Gate.ClockOut(context.Background(), caregiver, "", near(5))
	requireCode(t, err, shift.CodeInvalidArgument)
}

// =============================================================================
// ADMIN OVERRIDE
// =============================================================================

func TestClockGate_AdminOverride_SkipsWindowAndProximity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)

	env.clock.Set(at(7, 30))
	res, err := env.eng.Gate.AdminClockInOut(ctx, admin, s.ID, shift.ActionClockIn)
	require.NoError(t, err)
	assert.Equal(t, shift.StatusActive, res.Status)

	env.clock.Set(at(9, 30))
	res, err = env.eng.Gate.AdminClockInOut(ctx, admin, s.ID, shift.ActionClockOut)
	require.NoError(t, err)
	assert.Equal(t, shift.StatusCompleted, res.Status)
	assert.True(t, decimal.NewFromInt(2).Equal(*res.TotalHours))

	stored := env.get(t, s.ID)
	assert.Contains(t, stored.Notes, "[Admin Clock-In by admin-1]")
	assert.Contains(t, stored.Notes, "[Admin Clock-Out by admin-1]")
}

func TestClockGate_AdminOverride_StillEnforcesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)

	_, err := env.eng.Gate.AdminClockInOut(ctx, admin, s.ID, shift.ActionClockOut)
	requireCode(t, err, shift.CodeFailedPrecondition)

	env.clockIn(t, s.ID, at(9, 0))
	_, err = env.eng.Gate.AdminClockInOut(ctx, admin, s.ID, shift.ActionClockIn)
	requireCode(t, err, shift.CodeFailedPrecondition)
}

func TestClockGate_AdminOverride_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	s := env.schedule(t)

	_, err := env.eng.Gate.AdminClockInOut(context.Background(), caregiver, s.ID, shift.ActionClockIn)
	requireCode(t, err, shift.CodePermissionDenied)

	_, err = env.eng.Gate.AdminClockInOut(context.Background(), admin, s.ID, "punch")
	requireCode(t, err, shift.CodeInvalidArgument)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestClockGate_ConcurrentClockIn_ExactlyOneWins(t *testing.T) {
	// GIVEN: A pending shift
	// WHEN: The caregiver and an admin race to clock it in
	// THEN: Exactly one attempt succeeds, every other is failed-precondition

	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clock.Set(at(8, 58))

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_, errs[i] = env.eng.Gate.AdminClockInOut(ctx, admin, s.ID, shift.ActionClockIn)
				return
			}
			_, errs[i] = env.eng.Gate.ClockIn(ctx, caregiver, s.ID, near(5))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, shift.CodeFailedPrecondition, shift.CodeOf(err), "error: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, shift.StatusActive, env.get(t, s.ID).Status)
}

func TestClockGate_ConcurrentClockOut_ExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.schedule(t)
	env.clockIn(t, s.ID, at(9, 0))
	env.clock.Set(at(11, 6))

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.eng.Gate.ClockOut(ctx, caregiver, s.ID, near(5))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
