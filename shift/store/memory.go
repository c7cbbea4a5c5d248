// Package store provides in-process shift.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/angau/shift-engine/shift"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements shift.TxStore and shift.DirectoryStore.
type Memory struct {
	mu       sync.RWMutex
	shifts   map[shift.ShiftID]shift.Shift
	requests map[shift.RequestID]shift.Request

	// Directory records have their own lock so lookups never wait on a
	// running transaction.
	dirMu      sync.RWMutex
	patients   map[shift.PatientID]shift.Patient
	caregivers map[shift.ActorID]shift.Caregiver
}

func NewMemory() *Memory {
	return &Memory{
		shifts:     make(map[shift.ShiftID]shift.Shift),
		requests:   make(map[shift.RequestID]shift.Request),
		patients:   make(map[shift.PatientID]shift.Patient),
		caregivers: make(map[shift.ActorID]shift.Caregiver),
	}
}

var (
	_ shift.TxStore        = (*Memory)(nil)
	_ shift.DirectoryStore = (*Memory)(nil)
)

func (m *Memory) CreateShift(_ context.Context, s *shift.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createShiftLocked(s)
}

func (m *Memory) GetShift(_ context.Context, id shift.ShiftID) (*shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShiftLocked(id)
}

func (m *Memory) ListShifts(_ context.Context, filter shift.ShiftFilter) ([]shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listShiftsLocked(filter), nil
}

func (m *Memory) UpdateShift(_ context.Context, s *shift.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShiftsLocked([]*shift.Shift{s})
}

// UpdateShifts checks every version before writing any shift.
func (m *Memory) UpdateShifts(_ context.Context, shifts []*shift.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShiftsLocked(shifts)
}

func (m *Memory) DeleteShift(_ context.Context, id shift.ShiftID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteShiftLocked(id)
}

func (m *Memory) CreateRequest(_ context.Context, r *shift.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequestLocked(r)
}

func (m *Memory) GetRequest(_ context.Context, id shift.RequestID) (*shift.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) ListRequests(_ context.Context, filter shift.RequestFilter) ([]shift.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(filter), nil
}

func (m *Memory) UpdateRequest(_ context.Context, r *shift.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(r)
}

// =============================================================================
// LOCKED HELPERS - Caller holds mu
// =============================================================================

func (m *Memory) createShiftLocked(s *shift.Shift) error {
	if _, exists := m.shifts[s.ID]; exists {
		return fmt.Errorf("shift %s already exists", s.ID)
	}
	s.Version = 1
	m.shifts[s.ID] = copyShift(*s)
	return nil
}

func (m *Memory) getShiftLocked(id shift.ShiftID) (*shift.Shift, error) {
	s, ok := m.shifts[id]
	if !ok {
		return nil, fmt.Errorf("shift %s: %w", id, shift.ErrNotFound)
	}
	c := copyShift(s)
	return &c, nil
}

func (m *Memory) listShiftsLocked(filter shift.ShiftFilter) []shift.Shift {
	var result []shift.Shift
	for _, s := range m.shifts {
		if filter.Matches(s) {
			result = append(result, copyShift(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) updateShiftsLocked(shifts []*shift.Shift) error {
	// Check all versions first (atomic check)
	for _, s := range shifts {
		stored, ok := m.shifts[s.ID]
		if !ok {
			return fmt.Errorf("shift %s: %w", s.ID, shift.ErrNotFound)
		}
		if stored.Version != s.Version {
			return fmt.Errorf("shift %s at version %d, got %d: %w",
				s.ID, stored.Version, s.Version, shift.ErrConcurrentModification)
		}
	}

	// Write all (atomic write)
	for _, s := range shifts {
		s.Version++
		m.shifts[s.ID] = copyShift(*s)
	}
	return nil
}

func (m *Memory) deleteShiftLocked(id shift.ShiftID) error {
	if _, ok := m.shifts[id]; !ok {
		return fmt.Errorf("shift %s: %w", id, shift.ErrNotFound)
	}
	delete(m.shifts, id)
	return nil
}

func (m *Memory) createRequestLocked(r *shift.Request) error {
	if _, exists := m.requests[r.ID]; exists {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	if r.Status == shift.RequestPending {
		for _, existing := range m.requests {
			if existing.ShiftID == r.ShiftID && existing.Type == r.Type && existing.Status == shift.RequestPending {
				return fmt.Errorf("shift %s %s request: %w", r.ShiftID, r.Type, shift.ErrDuplicatePending)
			}
		}
	}
	r.Version = 1
	m.requests[r.ID] = copyRequest(*r)
	return nil
}

func (m *Memory) getRequestLocked(id shift.RequestID) (*shift.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, shift.ErrNotFound)
	}
	c := copyRequest(r)
	return &c, nil
}

func (m *Memory) listRequestsLocked(filter shift.RequestFilter) []shift.Request {
	var result []shift.Request
	for _, r := range m.requests {
		if filter.Matches(r) {
			result = append(result, copyRequest(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestDate.Equal(result[j].RequestDate) {
			return result[i].RequestDate.Before(result[j].RequestDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) updateRequestLocked(r *shift.Request) error {
	stored, ok := m.requests[r.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", r.ID, shift.ErrNotFound)
	}
	if stored.Version != r.Version {
		return fmt.Errorf("request %s at version %d, got %d: %w",
			r.ID, stored.Version, r.Version, shift.ErrConcurrentModification)
	}
	r.Version++
	m.requests[r.ID] = copyRequest(*r)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(shift.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	shifts   map[shift.ShiftID]shift.Shift
	requests map[shift.RequestID]shift.Request
}

func (m *Memory) snapshot() memorySnapshot {
	snap := memorySnapshot{
		shifts:   make(map[shift.ShiftID]shift.Shift, len(m.shifts)),
		requests: make(map[shift.RequestID]shift.Request, len(m.requests)),
	}
	for k, v := range m.shifts {
		snap.shifts[k] = v
	}
	for k, v := range m.requests {
		snap.requests[k] = v
	}
	return snap
}

func (m *Memory) restore(s memorySnapshot) {
	m.shifts = s.shifts
	m.requests = s.requests
}

// txView runs inside WithTx, so the parent lock is already held.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateShift(_ context.Context, s *shift.Shift) error {
	return tv.parent.createShiftLocked(s)
}

func (tv *txView) GetShift(_ context.Context, id shift.ShiftID) (*shift.Shift, error) {
	return tv.parent.getShiftLocked(id)
}

func (tv *txView) ListShifts(_ context.Context, filter shift.ShiftFilter) ([]shift.Shift, error) {
	return tv.parent.listShiftsLocked(filter), nil
}

func (tv *txView) UpdateShift(_ context.Context, s *shift.Shift) error {
	return tv.parent.updateShiftsLocked([]*shift.Shift{s})
}

func (tv *txView) UpdateShifts(_ context.Context, shifts []*shift.Shift) error {
	return tv.parent.updateShiftsLocked(shifts)
}

func (tv *txView) DeleteShift(_ context.Context, id shift.ShiftID) error {
	return tv.parent.deleteShiftLocked(id)
}

func (tv *txView) CreateRequest(_ context.Context, r *shift.Request) error {
	return tv.parent.createRequestLocked(r)
}

func (tv *txView) GetRequest(_ context.Context, id shift.RequestID) (*shift.Request, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txView) ListRequests(_ context.Context, filter shift.RequestFilter) ([]shift.Request, error) {
	return tv.parent.listRequestsLocked(filter), nil
}

func (tv *txView) UpdateRequest(_ context.Context, r *shift.Request) error {
	return tv.parent.updateRequestLocked(r)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) GetPatient(_ context.Context, id shift.PatientID) (*shift.Patient, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, shift.ErrNotFound)
	}
	p.Location = copyPtr(p.Location)
	return &p, nil
}

func (m *Memory) GetCaregiver(_ context.Context, id shift.ActorID) (*shift.Caregiver, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	c, ok := m.caregivers[id]
	if !ok {
		return nil, fmt.Errorf("caregiver %s: %w", id, shift.ErrNotFound)
	}
	return &c, nil
}

func (m *Memory) SavePatient(_ context.Context, p shift.Patient) error {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	p.Location = copyPtr(p.Location)
	m.patients[p.ID] = p
	return nil
}

func (m *Memory) SaveCaregiver(_ context.Context, c shift.Caregiver) error {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	m.caregivers[c.ID] = c
	return nil
}

func (m *Memory) ListPatients(_ context.Context) ([]shift.Patient, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	result := make([]shift.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		p.Location = copyPtr(p.Location)
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ListCaregivers(_ context.Context) ([]shift.Caregiver, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	result := make([]shift.Caregiver, 0, len(m.caregivers))
	for _, c := range m.caregivers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.shifts = make(map[shift.ShiftID]shift.Shift)
	m.requests = make(map[shift.RequestID]shift.Request)
	m.mu.Unlock()

	m.dirMu.Lock()
	m.patients = make(map[shift.PatientID]shift.Patient)
	m.caregivers = make(map[shift.ActorID]shift.Caregiver)
	m.dirMu.Unlock()
	return nil
}

// =============================================================================
// COPIES - Stored records never alias caller memory
// =============================================================================

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyShift(s shift.Shift) shift.Shift {
	if s.SubTasks != nil {
		s.SubTasks = append([]shift.SubTask(nil), s.SubTasks...)
	}
	s.ClockInTime = copyPtr(s.ClockInTime)
	s.ClockOutTime = copyPtr(s.ClockOutTime)
	s.ClockInLocation = copyPtr(s.ClockInLocation)
	s.ClockOutLocation = copyPtr(s.ClockOutLocation)
	s.TotalHours = copyPtr(s.TotalHours)
	return s
}

func copyRequest(r shift.Request) shift.Request {
	r.Overtime = copyPtr(r.Overtime)
	r.ApprovedEndTime = copyPtr(r.ApprovedEndTime)
	r.Compensation = copyPtr(r.Compensation)
	r.ReviewedAt = copyPtr(r.ReviewedAt)
	return r
}
