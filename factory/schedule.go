/*
Package factory converts JSON roster definitions into engine inputs.

PURPOSE:
  Lets an office load a day's roster (patients, caregivers and the shifts
  between them) from one JSON document instead of many API calls. Used by
  the import endpoint and the demo scenarios.

JSON SCHEMA:
  {
    "patients": [
      {"id": "pt-1", "name": "Ruth Hale", "address": "12 Elm St", "lat": 40.7128, "lng": -74.0060}
    ],
    "caregivers": [
      {"id": "cg-1", "name": "Dana Reyes", "email": "dana@example.com"}
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
  }

VALIDATION:
  Struct tags checked with go-playground/validator. Coordinates come in
  pairs, end must be after start, caregivers default to active.

SEE ALSO:
  - api/handlers.go: ImportSchedule
  - api/scenarios.go: demo rosters built from ScheduleJSON
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ScheduleJSON struct {
	Patients   []PatientJSON   `json:"patients,omitempty" validate:"dive"`
	Caregivers []CaregiverJSON `json:"caregivers,omitempty" validate:"dive"`
	Shifts     []ShiftJSON     `json:"shifts" validate:"dive"`
}

type PatientJSON struct {
	ID      string   `json:"id" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty" validate:"required_with=Lng,omitempty,gte=-90,lte=90"`
	Lng     *float64 `json:"lng,omitempty" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
}

type CaregiverJSON struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Phone  string `json:"phone,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

type ShiftJSON struct {
	CaregiverID string    `json:"caregiver_id" validate:"required"`
	PatientID   string    `json:"patient_id" validate:"required"`
	Task        string    `json:"task" validate:"required"`
	SubTasks    []string  `json:"sub_tasks,omitempty" validate:"dive,required"`
	Notes       string    `json:"notes,omitempty"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
}

// Schedule is a validated roster ready for the engine.
type Schedule struct {
	Patients   []shift.Patient
	Caregivers []shift.Caregiver
	Shifts     []shift.NewShift
}

// =============================================================================
// SCHEDULE FACTORY
// =============================================================================

type ScheduleFactory struct {
	validate *validator.Validate
}

func NewScheduleFactory() *ScheduleFactory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &ScheduleFactory{validate: v}
}

// ParseSchedule parses and validates a JSON roster.
func (f *ScheduleFactory) ParseSchedule(data []byte) (*Schedule, error) {
	var sj ScheduleJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON validates sj and converts it.
func (f *ScheduleFactory) FromJSON(sj ScheduleJSON) (*Schedule, error) {
	if err := f.validate.Struct(sj); err != nil {
		return nil, describeValidation(err)
	}
	if err := checkReferences(sj); err != nil {
		return nil, err
	}

	out := &Schedule{}
	for _, pj := range sj.Patients {
		p := shift.Patient{ID: shift.PatientID(pj.ID), Name: pj.Name, Address: pj.Address}
		if pj.Lat != nil && pj.Lng != nil {
			p.Location = &shift.LatLng{Lat: *pj.Lat, Lng: *pj.Lng}
		}
		out.Patients = append(out.Patients, p)
	}
	for _, cj := range sj.Caregivers {
		active := true
		if cj.Active != nil {
			active = *cj.Active
		}
		out.Caregivers = append(out.Caregivers, shift.Caregiver{
			ID:     shift.ActorID(cj.ID),
			Name:   cj.Name,
			Email:  cj.Email,
			Phone:  cj.Phone,
			Active: active,
		})
	}
	for _, s := range sj.Shifts {
		out.Shifts = append(out.Shifts, shift.NewShift{
			CaregiverID: shift.ActorID(s.CaregiverID),
			PatientID:   shift.PatientID(s.PatientID),
			Task:        s.Task,
			SubTasks:    s.SubTasks,
			Notes:       s.Notes,
			StartTime:   s.Start,
			EndTime:     s.End,
		})
	}
	return out, nil
}

// ToJSON converts a stored shift back into roster form.
func (f *ScheduleFactory) ToJSON(s shift.Shift) ShiftJSON {
	sj := ShiftJSON{
		CaregiverID: string(s.CaregiverID),
		PatientID:   string(s.PatientID),
		Task:        s.Task,
		Notes:       s.Notes,
		Start:       s.StartTime,
		End:         s.EndTime,
	}
	for _, st := range s.SubTasks {
		sj.SubTasks = append(sj.SubTasks, st.Description)
	}
	return sj
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

// checkReferences rejects duplicate ids inside the document. References
// to records outside the document are resolved by the engine.
func checkReferences(sj ScheduleJSON) error {
	seen := make(map[string]bool)
	for _, p := range sj.Patients {
		if seen["p:"+p.ID] {
			return fmt.Errorf("duplicate patient id %s", p.ID)
		}
		seen["p:"+p.ID] = true
	}
	for _, c := range sj.Caregivers {
		if seen["c:"+c.ID] {
			return fmt.Errorf("duplicate caregiver id %s", c.ID)
		}
		seen["c:"+c.ID] = true
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "ScheduleJSON.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid schedule: %s", strings.Join(msgs, "; "))
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
