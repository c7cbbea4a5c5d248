package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angau/shift-engine/factory"
	"github.com/angau/shift-engine/shift"
)

const roster = `{
  "patients": [
    {"id": "pt-1", "name": "Ruth Hale", "address": "12 Elm St", "lat": 40.7128, "lng": -74.0060},
    {"id": "pt-2", "name": "Walt Ames"}
  ],
  "caregivers": [
    {"id": "cg-1", "name": "Dana Reyes", "email": "dana@example.com"},
    {"id": "cg-2", "name": "Sam Ortiz", "active": false}
  ],
  "shifts": [
    {
      "caregiver_id": "cg-1",
      "patient_id": "pt-1",
      "task": "Morning visit",
      "sub_tasks": ["Medication", "Breakfast"],
      "start": "2026-03-10T09:00:00Z",
      "end": "2026-03-10T11:00:00Z"
    }
  ]
}`

func TestParseSchedule(t *testing.T) {
	f := factory.NewScheduleFactory()

	sched, err := f.ParseSchedule([]byte(roster))
	require.NoError(t, err)

	require.Len(t, sched.Patients, 2)
	assert.Equal(t, &shift.LatLng{Lat: 40.7128, Lng: -74.0060}, sched.Patients[0].Location)
	assert.Nil(t, sched.Patients[1].Location)

	require.Len(t, sched.Caregivers, 2)
	assert.True(t, sched.Caregivers[0].Active, "caregivers default to active")
	assert.False(t, sched.Caregivers[1].Active)

	require.Len(t, sched.Shifts, 1)
	s := sched.Shifts[0]
	assert.Equal(t, shift.ActorID("cg-1"), s.CaregiverID)
	assert.Equal(t, []string{"Medication", "Breakfast"}, s.SubTasks)
	assert.Equal(t, 2*time.Hour, s.EndTime.Sub(s.StartTime))
}

func TestParseSchedule_Invalid(t *testing.T) {
	f := factory.NewScheduleFactory()

	tests := []struct {
		name    string
		json    string
		message string
	}{
		{"malformed", `{"shifts": [`, "failed to parse"},
		{"end before start", `{"shifts": [{"caregiver_id": "cg-1", "patient_id": "pt-1", "task": "x",
			"start": "2026-03-10T11:00:00Z", "end": "2026-03-10T09:00:00Z"}]}`, "shifts[0].end: gtfield"},
		{"missing task", `{"shifts": [{"caregiver_id": "cg-1", "patient_id": "pt-1",
			"start": "2026-03-10T09:00:00Z", "end": "2026-03-10T11:00:00Z"}]}`, "shifts[0].task: required"},
		{"half a coordinate", `{"patients": [{"id": "pt-1", "name": "R", "lat": 40.1}], "shifts": []}`, "patients[0].lng: required_with"},
		{"latitude out of range", `{"patients": [{"id": "pt-1", "name": "R", "lat": 91, "lng": 0}], "shifts": []}`, "patients[0].lat: lte"},
		{"bad email", `{"caregivers": [{"id": "cg-1", "name": "D", "email": "nope"}], "shifts": []}`, "caregivers[0].email: email"},
		{"duplicate patient", `{"patients": [{"id": "pt-1", "name": "A"}, {"id": "pt-1", "name": "B"}], "shifts": []}`, "duplicate patient id pt-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseSchedule([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestToJSON_RoundTripsThroughFactory(t *testing.T) {
	f := factory.NewScheduleFactory()
	start := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	sj := f.ToJSON(shift.Shift{
		CaregiverID: "cg-1",
		PatientID:   "pt-1",
		Task:        "Visit",
		SubTasks:    []shift.SubTask{{ID: "st-1", Description: "Meds", Completed: true}},
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	})
	assert.Equal(t, []string{"Meds"}, sj.SubTasks)

	sched, err := f.FromJSON(factory.ScheduleJSON{Shifts: []factory.ShiftJSON{sj}})
	require.NoError(t, err)
	assert.Equal(t, start, sched.Shifts[0].StartTime)
}
