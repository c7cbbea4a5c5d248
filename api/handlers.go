/*
handlers.go - HTTP API handlers for the shift engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the shift package.

ENDPOINTS:
  Shifts:
    POST   /api/shifts                          Create shift (admin)
    GET    /api/shifts                          List (caregivers see their own)
    GET    /api/shifts/{id}                     Get
    DELETE /api/shifts/{id}                     Delete (admin)
    PUT    /api/shifts/{id}/progress            Save checklist and notes
    POST   /api/shifts/{id}/clock-in            Caregiver clock-in
    POST   /api/shifts/{id}/clock-out           Caregiver clock-out
    POST   /api/shifts/{id}/admin-clock         Admin override {"action": "clockIn"}
    POST   /api/shifts/{id}/expire              Force-expire (admin)
    POST   /api/shifts/{id}/requests/overtime
    POST   /api/shifts/{id}/requests/cancellation

  Requests:
    GET    /api/requests                        List (status, type, shift_id)
    GET    /api/requests/{id}                   Get
    POST   /api/requests/{id}/review            Approve or deny (admin)

  Directory and admin:
    PUT    /api/patients/{id}
    PUT    /api/caregivers/{id}
    POST   /api/schedules/import                Roster JSON (factory schema)
    POST   /api/admin/sweeps/expire-pending
    POST   /api/admin/sweeps/auto-clock-out

ERROR HANDLING:
  Engine error codes map to HTTP status:
  - 400: invalid-argument, malformed body
  - 401: unauthenticated
  - 403: permission-denied
  - 404: not-found
  - 409: failed-precondition
  - 500: internal
  Body: {"error": "<code>", "message": "<text>"}

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/angau/shift-engine/factory"
	"github.com/angau/shift-engine/shift"
)

const codeUnauthenticated = "unauthenticated"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every record. Only demo scenarios use it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *shift.Engine
	Factory *factory.ScheduleFactory
	// Sweeps runs manual sweeps under the same locks as the timers. When
	// nil the engine sweeper is called directly.
	Sweeps *SweepScheduler
	// Reset backs the scenario loader. Scenarios are disabled when nil.
	Reset  Resetter
	Logger *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(engine *shift.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Factory:  factory.NewScheduleFactory(),
		Logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) now() time.Time {
	return h.Engine.Schedule.Clock.Now()
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// CreateShift schedules a pending shift.
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	var req CreateShiftRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	s, err := h.Engine.Schedule.CreateShift(r.Context(), actor, shift.NewShift{
		CaregiverID: shift.ActorID(req.CaregiverID),
		PatientID:   shift.PatientID(req.PatientID),
		Task:        req.Task,
		SubTasks:    req.SubTasks,
		Notes:       req.Notes,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(*s))
}

// ListShifts returns shifts matching the query filters.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	q := r.URL.Query()

	filter := shift.ShiftFilter{
		Status:      shift.Status(q.Get("status")),
		CaregiverID: shift.ActorID(q.Get("caregiver_id")),
		PatientID:   shift.PatientID(q.Get("patient_id")),
	}
	var ok bool
	if filter.From, ok = parseTimeParam(w, q.Get("from"), "from"); !ok {
		return
	}
	if filter.To, ok = parseTimeParam(w, q.Get("to"), "to"); !ok {
		return
	}

	shifts, err := h.Engine.Schedule.ListShifts(r.Context(), actor, filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTOs(shifts))
}

// GetShift returns one shift.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Schedule.GetShift(r.Context(), mustActor(r), shiftID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*s))
}

// DeleteShift removes a shift that is not in progress.
func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Schedule.DeleteShift(r.Context(), mustActor(r), shiftID(r)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProgress saves the caregiver's checklist.
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	s, err := h.Engine.Schedule.UpdateProgress(r.Context(), mustActor(r), shiftID(r), shift.Progress{
		Completed: req.Completed,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*s))
}

// ForceExpire expires a pending shift past its expiry threshold.
func (h *Handler) ForceExpire(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Schedule.ForceExpire(r.Context(), mustActor(r), shiftID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*s))
}

// =============================================================================
// CLOCK HANDLERS
// =============================================================================

// ClockIn is the caregiver's proximity-gated clock-in.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	res, err := h.Engine.Gate.ClockIn(r.Context(), mustActor(r), shiftID(r), req.Location.latLng())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClockResultDTO(res))
}

// ClockOut is the caregiver's proximity-gated clock-out.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	res, err := h.Engine.Gate.ClockOut(r.Context(), mustActor(r), shiftID(r), req.Location.latLng())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClockResultDTO(res))
}

// AdminClock clocks a shift in or out on the caregiver's behalf.
func (h *Handler) AdminClock(w http.ResponseWriter, r *http.Request) {
	var req AdminClockRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	res, err := h.Engine.Gate.AdminClockInOut(r.Context(), mustActor(r), shiftID(r), shift.ClockAction(req.Action))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClockResultDTO(res))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitOvertime files an overtime request for the caller's shift.
func (h *Handler) SubmitOvertime(w http.ResponseWriter, r *http.Request) {
	var req OvertimeRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	id, err := h.Engine.Requests.SubmitOvertime(r.Context(), mustActor(r), shiftID(r), req.Hours, req.Minutes, req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmittedDTO{RequestID: string(id)})
}

// SubmitCancellation files a cancellation request for the caller's shift.
func (h *Handler) SubmitCancellation(w http.ResponseWriter, r *http.Request) {
	var req CancellationRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	id, err := h.Engine.Requests.SubmitCancellation(r.Context(), mustActor(r), shiftID(r), req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmittedDTO{RequestID: string(id)})
}

// ListRequests returns requests matching the query filters.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := h.Engine.Requests.List(r.Context(), mustActor(r), shift.RequestFilter{
		Status:  shift.RequestStatus(q.Get("status")),
		Type:    shift.RequestType(q.Get("type")),
		ShiftID: shift.ShiftID(q.Get("shift_id")),
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRequest returns one request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Engine.Requests.Get(r.Context(), mustActor(r), requestID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ReviewRequest approves or denies a pending request.
func (h *Handler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	reviewed, err := h.Engine.Requests.Review(r.Context(), mustActor(r), requestID(r), shift.Decision(req.Decision), shift.ReviewDetails{
		NewEndTime:   req.NewEndTime,
		Compensation: req.Compensation.hoursMinutes(),
		DenialReason: req.DenialReason,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*reviewed))
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// PutPatient creates or replaces a patient.
func (h *Handler) PutPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	p := shift.Patient{
		ID:       shift.PatientID(chi.URLParam(r, "id")),
		Name:     req.Name,
		Address:  req.Address,
		Location: req.Location.latLng(),
	}
	if err := h.Engine.Schedule.SavePatient(r.Context(), mustActor(r), p); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": string(p.ID)})
}

// PutCaregiver creates or replaces a caregiver.
func (h *Handler) PutCaregiver(w http.ResponseWriter, r *http.Request) {
	var req CaregiverRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	c := shift.Caregiver{
		ID:     shift.ActorID(chi.URLParam(r, "id")),
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Active: active,
	}
	if err := h.Engine.Schedule.SaveCaregiver(r.Context(), mustActor(r), c); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": string(c.ID)})
}

// ImportSchedule loads a roster document: directory records first, then
// shifts. Import stops at the first failing record.
func (h *Handler) ImportSchedule(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	if !actor.Admin {
		writeError(w, http.StatusForbidden, string(shift.CodePermissionDenied), "admin capability required to import schedules")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(shift.CodeInvalidArgument), "failed to read request body")
		return
	}
	sched, err := h.Factory.ParseSchedule(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(shift.CodeInvalidArgument), err.Error())
		return
	}

	result, err := h.importSchedule(r.Context(), actor, sched)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) importSchedule(ctx context.Context, actor shift.Actor, sched *factory.Schedule) (ImportResultDTO, error) {
	result := ImportResultDTO{Shifts: []ShiftDTO{}}
	for _, p := range sched.Patients {
		if err := h.Engine.Schedule.SavePatient(ctx, actor, p); err != nil {
			return result, err
		}
		result.Patients++
	}
	for _, c := range sched.Caregivers {
		if err := h.Engine.Schedule.SaveCaregiver(ctx, actor, c); err != nil {
			return result, err
		}
		result.Caregivers++
	}
	for _, ns := range sched.Shifts {
		s, err := h.Engine.Schedule.CreateShift(ctx, actor, ns)
		if err != nil {
			return result, err
		}
		result.Shifts = append(result.Shifts, toShiftDTO(*s))
	}
	return result, nil
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// RunExpireSweep runs the expiry sweep now.
func (h *Handler) RunExpireSweep(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, shift.JobExpirePending)
}

// RunAutoClockOutSweep runs the auto-clock-out sweep now.
func (h *Handler) RunAutoClockOutSweep(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, shift.JobAutoClockOut)
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request, job string) {
	if !mustActor(r).Admin {
		writeError(w, http.StatusForbidden, string(shift.CodePermissionDenied), "admin capability required to run sweeps")
		return
	}

	var (
		n   int
		err error
	)
	switch {
	case h.Sweeps != nil:
		n, err = h.Sweeps.RunNow(r.Context(), job)
	case job == shift.JobExpirePending:
		n, err = h.Engine.Sweeper.ExpirePending(r.Context())
	default:
		n, err = h.Engine.Sweeper.AutoClockOut(r.Context())
	}
	if errors.Is(err, ErrSweepBusy) {
		writeError(w, http.StatusConflict, string(shift.CodeFailedPrecondition), err.Error())
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{Job: job, Mutated: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// statusFor maps an engine error code to its HTTP status.
func statusFor(code shift.Code) int {
	switch code {
	case shift.CodeInvalidArgument:
		return http.StatusBadRequest
	case shift.CodeNotFound:
		return http.StatusNotFound
	case shift.CodePermissionDenied:
		return http.StatusForbidden
	case shift.CodeFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := shift.CodeOf(err)
	status := statusFor(code)
	message := shift.MessageOf(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal error"
	}
	writeError(w, status, string(code), message)
}

// decode reads a JSON body into dst and validates it. With allowEmpty an
// empty body leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, string(shift.CodeInvalidArgument), "invalid request body: "+err.Error())
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(shift.CodeInvalidArgument), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return "invalid " + fe.Field() + ": " + fe.Tag() + "=" + fe.Param()
	}
	return "invalid " + fe.Field() + ": " + fe.Tag()
}

func parseTimeParam(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(shift.CodeInvalidArgument), "invalid "+name+" (use RFC 3339)")
		return nil, false
	}
	return &t, true
}

func mustActor(r *http.Request) shift.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}

func shiftID(r *http.Request) shift.ShiftID {
	return shift.ShiftID(chi.URLParam(r, "id"))
}

func requestID(r *http.Request) shift.RequestID {
	return shift.RequestID(chi.URLParam(r, "id"))
}
