package shift_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angau/shift-engine/shift"
	"github.com/angau/shift-engine/shift/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var day = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

var (
	home      = shift.LatLng{Lat: 40.7128, Lng: -74.0060}
	caregiver = shift.Actor{ID: "cg-1", Name: "Dana Reyes"}
	other     = shift.Actor{ID: "cg-2", Name: "Sam Ortiz"}
	admin     = shift.Actor{ID: "admin-1", Name: "Ops Desk", Admin: true}
)

// near returns a point the given distance due north of home.
func near(meters float64) *shift.LatLng {
	perDegree := shift.EarthRadiusMeters * math.Pi / 180
	return &shift.LatLng{Lat: home.Lat + meters/perDegree, Lng: home.Lng}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []shift.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n shift.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) types() []shift.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shift.NotificationType
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type testEnv struct {
	eng      *shift.Engine
	mem      *store.Memory
	clock    *shift.ManualClock
	notifier *recordingNotifier
}

// newTestEnv seeds two caregivers and a geocoded patient at home.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveCaregiver(ctx, shift.Caregiver{ID: caregiver.ID, Name: caregiver.Name, Active: true}))
	require.NoError(t, mem.SaveCaregiver(ctx, shift.Caregiver{ID: other.ID, Name: other.Name, Active: true}))
	loc := home
	require.NoError(t, mem.SavePatient(ctx, shift.Patient{ID: "pt-1", Name: "Ruth Hale", Address: "1 Main St", Location: &loc}))
	require.NoError(t, mem.SavePatient(ctx, shift.Patient{ID: "pt-nogeo", Name: "No Geo", Address: "unknown"}))

	clock := shift.NewManualClock(at(7, 0))
	notifier := &recordingNotifier{}
	eng := shift.NewEngine(shift.Deps{
		Store:     mem,
		Directory: mem,
		Rules:     shift.DefaultRules(),
		Clock:     clock,
		Notifier:  notifier,
	})
	return &testEnv{eng: eng, mem: mem, clock: clock, notifier: notifier}
}

// schedule creates a 09:00-11:00 shift for caregiver at pt-1.
func (e *testEnv) schedule(t *testing.T) *shift.Shift {
	t.Helper()
	return e.scheduleFor(t, "pt-1", at(9, 0), at(11, 0))
}

func (e *testEnv) scheduleFor(t *testing.T, patient shift.PatientID, start, end time.Time) *shift.Shift {
	t.Helper()
	s, err := e.eng.Schedule.CreateShift(context.Background(), admin, shift.NewShift{
		CaregiverID: caregiver.ID,
		PatientID:   patient,
		Task:        "Morning visit",
		SubTasks:    []string{"Medication", "Breakfast"},
		StartTime:   start,
		EndTime:     end,
	})
	require.NoError(t, err)
	return s
}

// clockIn moves the clock and clocks the caregiver in at home.
func (e *testEnv) clockIn(t *testing.T, id shift.ShiftID, when time.Time) {
	t.Helper()
	e.clock.Set(when)
	_, err := e.eng.Gate.ClockIn(context.Background(), caregiver, id, near(5))
	require.NoError(t, err)
}

func (e *testEnv) get(t *testing.T, id shift.ShiftID) *shift.Shift {
	t.Helper()
	s, err := e.mem.GetShift(context.Background(), id)
	require.NoError(t, err)
	return s
}

func requireCode(t *testing.T, err error, code shift.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, shift.CodeOf(err), "error: %v", err)
}
