/*
store.go - Persistence interface for shifts and requests

PURPOSE:
  Defines the boundary between the engine and the backing document store.
  The engine never writes unconditionally: every update is a compare-and-
  swap on Version, so two actors racing on the same shift cannot both win.

KEY INTERFACES:
  Store:          Shift and request persistence with conditional updates
  TxStore:        Store plus WithTx for read-check-write sequences
  DirectoryStore: Patient/caregiver records (read by the engine, written by admins)

CONDITIONAL UPDATES:
  UpdateShift / UpdateRequest succeed only if the stored Version equals
  the Version on the record passed in. On success the store bumps the
  stored Version and writes the new value back into the caller's record.
  On mismatch they return ErrConcurrentModification and write nothing.

ATOMIC BATCHES:
  UpdateShifts applies every conditional update or none of them. The
  sweeps use it to commit a tick's worth of transitions in one call.

IMPLEMENTATIONS:
  - shift/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - gate.go, request.go, sweeper.go: Callers
*/
package shift

import (
	"context"
	"errors"
)

// Store persists shifts and requests.
type Store interface {
	// CreateShift inserts a new shift. The stored Version starts at 1.
	CreateShift(ctx context.Context, s *Shift) error

	// GetShift returns ErrNotFound (wrapped) when the id is unknown.
	GetShift(ctx context.Context, id ShiftID) (*Shift, error)

	// ListShifts returns matching shifts ordered by StartTime.
	ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error)

	// UpdateShift is a conditional write on s.Version.
	UpdateShift(ctx context.Context, s *Shift) error

	// UpdateShifts applies conditional writes atomically: all or none.
	UpdateShifts(ctx context.Context, shifts []*Shift) error

	// DeleteShift removes a shift. Returns ErrNotFound if absent.
	DeleteShift(ctx context.Context, id ShiftID) error

	// CreateRequest inserts a request. Returns ErrDuplicatePending when a
	// pending request of the same type already exists for the shift.
	CreateRequest(ctx context.Context, r *Request) error

	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// ListRequests returns matching requests ordered by RequestDate.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)

	// UpdateRequest is a conditional write on r.Version.
	UpdateRequest(ctx context.Context, r *Request) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is
	// rolled back. If fn returns nil, they are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}

func loadShift(ctx context.Context, st Store, id ShiftID) (*Shift, error) {
	if id == "" {
		return nil, invalidArgument("shift id is required")
	}
	s, err := st.GetShift(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("shift %s not found", id)
	}
	if err != nil {
		return nil, classify(err, "load shift")
	}
	return s, nil
}

func loadRequest(ctx context.Context, st Store, id RequestID) (*Request, error) {
	if id == "" {
		return nil, invalidArgument("request id is required")
	}
	r, err := st.GetRequest(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("request %s not found", id)
	}
	if err != nil {
		return nil, classify(err, "load request")
	}
	return r, nil
}
