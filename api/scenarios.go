/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the store with a small agency's day, positioned relative to
	the engine clock so every time window is live the moment it loads.

AVAILABLE SCENARIOS:

	morning-rounds:  Upcoming shifts, one inside its clock-in window
	overdue-visits:  An active shift past its end and a no-show pending
	                 shift, both due for the sweeps
	request-queue:   A pending overtime request and a pending cancellation
	                 request waiting for review

HOW SCENARIOS WORK:
 1. Reset the store
 2. Build a roster (factory.ScheduleJSON) relative to now
 3. Import it through the same path as POST /api/schedules/import
 4. Drive shifts into position with admin clock-ins and caregiver requests

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overdue-visits"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: importSchedule
  - factory/schedule.go: Roster schema
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/angau/shift-engine/factory"
	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "morning-rounds",
		Name:        "Morning Rounds",
		Description: "Three upcoming visits; the first opens for clock-in within minutes",
	},
	{
		ID:          "overdue-visits",
		Name:        "Overdue Visits",
		Description: "An active shift past its end and a no-show, ready for the sweeps",
	},
	{
		ID:          "request-queue",
		Name:        "Request Queue",
		Description: "Pending overtime and cancellation requests awaiting an admin",
	},
}

// demo directory shared by every scenario
var (
	demoPatients = []factory.PatientJSON{
		{ID: "pt-hale", Name: "Ruth Hale", Address: "12 Elm St", Lat: floatPtr(40.7128), Lng: floatPtr(-74.0060)},
		{ID: "pt-ames", Name: "Walter Ames", Address: "48 Harbor Rd", Lat: floatPtr(40.7306), Lng: floatPtr(-73.9866)},
		{ID: "pt-ito", Name: "Keiko Ito", Address: "3 Orchard Ln"},
	}
	demoCaregivers = []factory.CaregiverJSON{
		{ID: "cg-reyes", Name: "Dana Reyes", Email: "dana.reyes@example.com"},
		{ID: "cg-ortiz", Name: "Sam Ortiz", Email: "sam.ortiz@example.com"},
	}
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	if !h.scenariosAllowed(w, actor) {
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	var loader func(context.Context, shift.Actor, time.Time) error
	switch req.ScenarioID {
	case "morning-rounds":
		loader = h.loadMorningRounds
	case "overdue-visits":
		loader = h.loadOverdueVisits
	case "request-queue":
		loader = h.loadRequestQueue
	default:
		writeError(w, http.StatusNotFound, string(shift.CodeNotFound), fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Reset.Reset(ctx); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if err := loader(ctx, actor, h.now()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	shifts, err := h.Engine.Schedule.ListShifts(ctx, actor, shift.ShiftFilter{})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTOs(shifts))
}

// ResetData clears the store.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	if !h.scenariosAllowed(w, mustActor(r)) {
		return
	}
	if err := h.Reset.Reset(r.Context()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) scenariosAllowed(w http.ResponseWriter, actor shift.Actor) bool {
	if !actor.Admin {
		writeError(w, http.StatusForbidden, string(shift.CodePermissionDenied), "admin capability required to load scenarios")
		return false
	}
	if h.Reset == nil {
		writeError(w, http.StatusConflict, string(shift.CodeFailedPrecondition), "scenarios are disabled on this server")
		return false
	}
	return true
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadMorningRounds(ctx context.Context, admin shift.Actor, now time.Time) error {
	_, err := h.importRoster(ctx, admin, []factory.ShiftJSON{
		visit("cg-reyes", "pt-hale", "Morning care", now.Add(3*time.Minute), 2*time.Hour, "Medication", "Breakfast", "Mobility exercises"),
		visit("cg-ortiz", "pt-ames", "Physio follow-up", now.Add(45*time.Minute), time.Hour, "Stretching routine"),
		visit("cg-reyes", "pt-ito", "Afternoon check-in", now.Add(4*time.Hour), time.Hour, "Lunch", "Blood pressure"),
	})
	return err
}

func (h *Handler) loadOverdueVisits(ctx context.Context, admin shift.Actor, now time.Time) error {
	created, err := h.importRoster(ctx, admin, []factory.ShiftJSON{
		// Ended 15 minutes ago and still on the clock.
		visit("cg-reyes", "pt-hale", "Overnight care", now.Add(-3*time.Hour-15*time.Minute), 3*time.Hour, "Medication"),
		// Started 30 minutes ago and nobody clocked in.
		visit("cg-ortiz", "pt-ames", "Morning care", now.Add(-30*time.Minute), 2*time.Hour, "Breakfast"),
	})
	if err != nil {
		return err
	}
	_, err = h.Engine.Gate.AdminClockInOut(ctx, admin, created[0].ID, shift.ActionClockIn)
	return err
}

func (h *Handler) loadRequestQueue(ctx context.Context, admin shift.Actor, now time.Time) error {
	created, err := h.importRoster(ctx, admin, []factory.ShiftJSON{
		// Ends in 10 minutes, inside the overtime window.
		visit("cg-reyes", "pt-hale", "Morning care", now.Add(-110*time.Minute), 2*time.Hour, "Medication", "Breakfast"),
		// Started 5 minutes ago, inside the cancellation window.
		visit("cg-ortiz", "pt-ames", "Physio follow-up", now.Add(-5*time.Minute), time.Hour, "Stretching routine"),
	})
	if err != nil {
		return err
	}

	if _, err := h.Engine.Gate.AdminClockInOut(ctx, admin, created[0].ID, shift.ActionClockIn); err != nil {
		return err
	}
	reyes := shift.Actor{ID: "cg-reyes", Name: "Dana Reyes"}
	if _, err := h.Engine.Requests.SubmitOvertime(ctx, reyes, created[0].ID, 0, 45, "Patient needed help after a fall"); err != nil {
		return err
	}
	ortiz := shift.Actor{ID: "cg-ortiz", Name: "Sam Ortiz"}
	_, err = h.Engine.Requests.SubmitCancellation(ctx, ortiz, created[1].ID, "Patient admitted to hospital overnight")
	return err
}

// importRoster loads the demo directory plus shifts and returns the
// created shifts in input order.
func (h *Handler) importRoster(ctx context.Context, admin shift.Actor, shifts []factory.ShiftJSON) ([]shift.Shift, error) {
	sched, err := h.Factory.FromJSON(factory.ScheduleJSON{
		Patients:   demoPatients,
		Caregivers: demoCaregivers,
		Shifts:     shifts,
	})
	if err != nil {
		return nil, err
	}
	result, err := h.importSchedule(ctx, admin, sched)
	if err != nil {
		return nil, err
	}

	created := make([]shift.Shift, len(result.Shifts))
	for i, dto := range result.Shifts {
		s, err := h.Engine.Schedule.GetShift(ctx, admin, shift.ShiftID(dto.ID))
		if err != nil {
			return nil, err
		}
		created[i] = *s
	}
	return created, nil
}

func visit(caregiver, patient, task string, start time.Time, length time.Duration, subTasks ...string) factory.ShiftJSON {
	start = start.Truncate(time.Second)
	return factory.ShiftJSON{
		CaregiverID: caregiver,
		PatientID:   patient,
		Task:        task,
		SubTasks:    subTasks,
		Start:       start,
		End:         start.Add(length),
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
