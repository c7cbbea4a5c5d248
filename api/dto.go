/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, decoupled from the engine types so fields
  can be renamed without touching the domain model.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode()
  in handlers.go before the engine sees the input. Domain rules (windows,
  proximity, state) are enforced by the engine, not here.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/schedule.go: Roster import schema
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ClockRequest is the caregiver's clock-in/out body. A missing location is
// passed through so the engine can report it as unavailable.
type ClockRequest struct {
	Location *LocationDTO `json:"location"`
}

type AdminClockRequest struct {
	Action string `json:"action" validate:"required,oneof=clockIn clockOut"`
}

type CreateShiftRequest struct {
	CaregiverID string    `json:"caregiver_id" validate:"required"`
	PatientID   string    `json:"patient_id" validate:"required"`
	Task        string    `json:"task" validate:"required"`
	SubTasks    []string  `json:"sub_tasks" validate:"dive,required"`
	Notes       string    `json:"notes"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
}

type ProgressRequest struct {
	Completed map[string]bool `json:"completed"`
	Notes     *string         `json:"notes"`
}

type OvertimeRequest struct {
	Hours   int    `json:"hours" validate:"gte=0"`
	Minutes int    `json:"minutes" validate:"gte=0,lte=59"`
	Reason  string `json:"reason" validate:"required"`
}

type CancellationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type CompensationDTO struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type ReviewRequest struct {
	Decision     string           `json:"decision" validate:"required,oneof=approved denied"`
	NewEndTime   *time.Time       `json:"new_end_time"`
	Compensation *CompensationDTO `json:"compensation"`
	DenialReason string           `json:"denial_reason" validate:"required_if=Decision denied"`
}

type PatientRequest struct {
	Name     string       `json:"name" validate:"required"`
	Address  string       `json:"address"`
	Location *LocationDTO `json:"location"`
}

type CaregiverRequest struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone"`
	Active *bool  `json:"active"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type SubTaskDTO struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type ShiftDTO struct {
	ID               string           `json:"id"`
	CaregiverID      string           `json:"caregiver_id"`
	CaregiverName    string           `json:"caregiver_name"`
	PatientID        string           `json:"patient_id"`
	PatientName      string           `json:"patient_name"`
	Task             string           `json:"task"`
	SubTasks         []SubTaskDTO     `json:"sub_tasks"`
	Notes            string           `json:"notes"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Status           string           `json:"status"`
	ClockInTime      *time.Time       `json:"clock_in_time,omitempty"`
	ClockOutTime     *time.Time       `json:"clock_out_time,omitempty"`
	ClockInLocation  *LocationDTO     `json:"clock_in_location,omitempty"`
	ClockOutLocation *LocationDTO     `json:"clock_out_location,omitempty"`
	TotalHours       *decimal.Decimal `json:"total_hours,omitempty"`
	Version          int64            `json:"version"`
}

type ClockResultDTO struct {
	ShiftID      string           `json:"shift_id"`
	Status       string           `json:"status"`
	ClockInTime  *time.Time       `json:"clock_in_time,omitempty"`
	ClockOutTime *time.Time       `json:"clock_out_time,omitempty"`
	TotalHours   *decimal.Decimal `json:"total_hours,omitempty"`
	NextView     string           `json:"next_view,omitempty"`
}

type RequestDTO struct {
	ID              string           `json:"id"`
	ShiftID         string           `json:"shift_id"`
	CaregiverID     string           `json:"caregiver_id"`
	CaregiverName   string           `json:"caregiver_name"`
	PatientID       string           `json:"patient_id"`
	PatientName     string           `json:"patient_name"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	Reason          string           `json:"reason"`
	RequestDate     time.Time        `json:"request_date"`
	Overtime        *CompensationDTO `json:"overtime,omitempty"`
	ApprovedEndTime *time.Time       `json:"approved_end_time,omitempty"`
	Compensation    *CompensationDTO `json:"compensation,omitempty"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	DenialReason    string           `json:"denial_reason,omitempty"`
}

type SubmittedDTO struct {
	RequestID string `json:"request_id"`
}

type SweepResultDTO struct {
	Job     string `json:"job"`
	Mutated int    `json:"mutated"`
}

type ImportResultDTO struct {
	Patients   int        `json:"patients"`
	Caregivers int        `json:"caregivers"`
	Shifts     []ShiftDTO `json:"shifts"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (l *LocationDTO) latLng() *shift.LatLng {
	if l == nil {
		return nil
	}
	return &shift.LatLng{Lat: l.Lat, Lng: l.Lng}
}

func locationDTO(l *shift.LatLng) *LocationDTO {
	if l == nil {
		return nil
	}
	return &LocationDTO{Lat: l.Lat, Lng: l.Lng}
}

func (c *CompensationDTO) hoursMinutes() *shift.HoursMinutes {
	if c == nil {
		return nil
	}
	return &shift.HoursMinutes{Hours: c.Hours, Minutes: c.Minutes}
}

func compensationDTO(hm *shift.HoursMinutes) *CompensationDTO {
	if hm == nil {
		return nil
	}
	return &CompensationDTO{Hours: hm.Hours, Minutes: hm.Minutes}
}

func toShiftDTO(s shift.Shift) ShiftDTO {
	dto := ShiftDTO{
		ID:               string(s.ID),
		CaregiverID:      string(s.CaregiverID),
		CaregiverName:    s.CaregiverName,
		PatientID:        string(s.PatientID),
		PatientName:      s.PatientName,
		Task:             s.Task,
		SubTasks:         make([]SubTaskDTO, len(s.SubTasks)),
		Notes:            s.Notes,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           string(s.Status),
		ClockInTime:      s.ClockInTime,
		ClockOutTime:     s.ClockOutTime,
		ClockInLocation:  locationDTO(s.ClockInLocation),
		ClockOutLocation: locationDTO(s.ClockOutLocation),
		TotalHours:       s.TotalHours,
		Version:          s.Version,
	}
	for i, st := range s.SubTasks {
		dto.SubTasks[i] = SubTaskDTO{ID: st.ID, Description: st.Description, Completed: st.Completed}
	}
	return dto
}

func toShiftDTOs(shifts []shift.Shift) []ShiftDTO {
	dtos := make([]ShiftDTO, len(shifts))
	for i, s := range shifts {
		dtos[i] = toShiftDTO(s)
	}
	return dtos
}

func toClockResultDTO(r shift.ClockResult) ClockResultDTO {
	return ClockResultDTO{
		ShiftID:      string(r.ShiftID),
		Status:       string(r.Status),
		ClockInTime:  r.ClockInTime,
		ClockOutTime: r.ClockOutTime,
		TotalHours:   r.TotalHours,
		NextView:     r.NextView,
	}
}

func toRequestDTO(r shift.Request) RequestDTO {
	return RequestDTO{
		ID:              string(r.ID),
		ShiftID:         string(r.ShiftID),
		CaregiverID:     string(r.CaregiverID),
		CaregiverName:   r.CaregiverName,
		PatientID:       string(r.PatientID),
		PatientName:     r.PatientName,
		Type:            string(r.Type),
		Status:          string(r.Status),
		Reason:          r.Reason,
		RequestDate:     r.RequestDate,
		Overtime:        compensationDTO(r.Overtime),
		ApprovedEndTime: r.ApprovedEndTime,
		Compensation:    compensationDTO(r.Compensation),
		ReviewedBy:      string(r.ReviewedBy),
		ReviewedAt:      r.ReviewedAt,
		DenialReason:    r.DenialReason,
	}
}
