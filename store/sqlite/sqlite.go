/*
Package sqlite provides a SQLite-backed implementation of the shift storage interfaces.

PURPOSE:
  Implements shift.TxStore and shift.DirectoryStore using SQLite. The
  same patterns apply to PostgreSQL with only minor dialect differences.

INTERFACES IMPLEMENTED:
  shift.Store:          Shift and request persistence
  shift.TxStore:        Read-check-write transactions
  shift.DirectoryStore: Patients and caregivers

CONDITIONAL UPDATES:
  Every shift/request UPDATE carries "WHERE id = ? AND version = ?" and
  bumps version in the same statement. Zero affected rows means either
  the record is gone (ErrNotFound) or someone else wrote first
  (ErrConcurrentModification).

KEY TABLES:
  shifts:      Scheduled visits with clock stamps and status
  requests:    Overtime / cancellation requests
  patients:    Address and geocoded coordinates
  caregivers:  Names snapshotted onto shifts

INDEXES:
  - idx_shifts_status: Sweep scans (hot path, every minute)
  - idx_shifts_caregiver_start: Caregiver schedule
  - idx_requests_one_pending: At most one pending request per (shift, type)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so every
  statement inside WithTx runs on the transaction. In production with
  PostgreSQL, database-level concurrency control handles this instead.

TIME FORMAT:
  Instants are stored as fixed-width UTC strings so ORDER BY on the text
  column is chronological.

USAGE:
  store, err := sqlite.New("./data/shifts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := shift.NewEngine(shift.Deps{Store: store, Directory: store})

SEE ALSO:
  - shift/store.go: Interface definitions
  - shift/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/angau/shift-engine/shift"
)

// timeLayout is RFC3339 with fixed nanosecond width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ shift.TxStore        = (*Store)(nil)
	_ shift.DirectoryStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and WithTx
	// relies on holding the only writer.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		caregiver_id TEXT NOT NULL,
		caregiver_name TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		task TEXT NOT NULL,
		subtasks_json TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		clock_in_time TEXT,
		clock_out_time TEXT,
		clock_in_lat REAL,
		clock_in_lng REAL,
		clock_out_lat REAL,
		clock_out_lng REAL,
		status TEXT NOT NULL,
		total_hours TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Sweeps select by status every minute
	CREATE INDEX IF NOT EXISTS idx_shifts_status
		ON shifts(status, start_time);
	CREATE INDEX IF NOT EXISTS idx_shifts_caregiver_start
		ON shifts(caregiver_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_shifts_patient
		ON shifts(patient_id);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id) ON DELETE CASCADE,
		caregiver_id TEXT NOT NULL,
		caregiver_name TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL,
		request_date TEXT NOT NULL,
		overtime_hours INTEGER,
		overtime_minutes INTEGER,
		approved_end_time TEXT,
		compensation_hours INTEGER,
		compensation_minutes INTEGER,
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at TEXT,
		denial_reason TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	);

	-- CRITICAL: At most one pending request of each type per shift
	CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_one_pending
		ON requests(shift_id, type)
		WHERE status = 'pending';

	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status, request_date);
	CREATE INDEX IF NOT EXISTS idx_requests_caregiver
		ON requests(caregiver_id);

	CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		lat REAL,
		lng REAL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS caregivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"requests", "shifts", "patients", "caregivers"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// STORE - Locking wrappers over queries
// =============================================================================

func (s *Store) CreateShift(ctx context.Context, sh *shift.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.createShift(ctx, sh)
}

func (s *Store) GetShift(ctx context.Context, id shift.ShiftID) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getShift(ctx, id)
}

func (s *Store) ListShifts(ctx context.Context, filter shift.ShiftFilter) ([]shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.listShifts(ctx, filter)
}

func (s *Store) UpdateShift(ctx context.Context, sh *shift.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := (queries{s.db}).updateShift(ctx, sh); err != nil {
		return err
	}
	sh.Version++
	return nil
}

// UpdateShifts applies every conditional update in one SQL transaction.
func (s *Store) UpdateShifts(ctx context.Context, shifts []*shift.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	q := queries{sqlTx}
	for _, sh := range shifts {
		if err := q.updateShift(ctx, sh); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	for _, sh := range shifts {
		sh.Version++
	}
	return nil
}

func (s *Store) DeleteShift(ctx context.Context, id shift.ShiftID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.deleteShift(ctx, id)
}

func (s *Store) CreateRequest(ctx context.Context, r *shift.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.createRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id shift.RequestID) (*shift.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, filter shift.RequestFilter) ([]shift.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.listRequests(ctx, filter)
}

func (s *Store) UpdateRequest(ctx context.Context, r *shift.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := (queries{s.db}).updateRequest(ctx, r); err != nil {
		return err
	}
	r.Version++
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store shift.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	ts := &txStore{q: queries{sqlTx}, tx: sqlTx}
	if err := fn(ts); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every statement on the open transaction. It never touches
// Store.mu, which WithTx already holds.
type txStore struct {
	q  queries
	tx *sql.Tx
}

func (ts *txStore) CreateShift(ctx context.Context, sh *shift.Shift) error {
	return ts.q.createShift(ctx, sh)
}

func (ts *txStore) GetShift(ctx context.Context, id shift.ShiftID) (*shift.Shift, error) {
	return ts.q.getShift(ctx, id)
}

func (ts *txStore) ListShifts(ctx context.Context, filter shift.ShiftFilter) ([]shift.Shift, error) {
	return ts.q.listShifts(ctx, filter)
}

func (ts *txStore) UpdateShift(ctx context.Context, sh *shift.Shift) error {
	if err := ts.q.updateShift(ctx, sh); err != nil {
		return err
	}
	sh.Version++
	return nil
}

// UpdateShifts uses a savepoint so a conflict leaves earlier statements
// of the surrounding transaction intact.
func (ts *txStore) UpdateShifts(ctx context.Context, shifts []*shift.Shift) error {
	if _, err := ts.tx.ExecContext(ctx, "SAVEPOINT update_shifts"); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	for _, sh := range shifts {
		if err := ts.q.updateShift(ctx, sh); err != nil {
			ts.tx.ExecContext(ctx, "ROLLBACK TO update_shifts")
			ts.tx.ExecContext(ctx, "RELEASE update_shifts")
			return err
		}
	}
	if _, err := ts.tx.ExecContext(ctx, "RELEASE update_shifts"); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	for _, sh := range shifts {
		sh.Version++
	}
	return nil
}

func (ts *txStore) DeleteShift(ctx context.Context, id shift.ShiftID) error {
	return ts.q.deleteShift(ctx, id)
}

func (ts *txStore) CreateRequest(ctx context.Context, r *shift.Request) error {
	return ts.q.createRequest(ctx, r)
}

func (ts *txStore) GetRequest(ctx context.Context, id shift.RequestID) (*shift.Request, error) {
	return ts.q.getRequest(ctx, id)
}

func (ts *txStore) ListRequests(ctx context.Context, filter shift.RequestFilter) ([]shift.Request, error) {
	return ts.q.listRequests(ctx, filter)
}

func (ts *txStore) UpdateRequest(ctx context.Context, r *shift.Request) error {
	if err := ts.q.updateRequest(ctx, r); err != nil {
		return err
	}
	r.Version++
	return nil
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

const shiftColumns = `id, caregiver_id, caregiver_name, patient_id, patient_name, task,
	subtasks_json, notes, start_time, end_time, clock_in_time, clock_out_time,
	clock_in_lat, clock_in_lng, clock_out_lat, clock_out_lng, status, total_hours,
	version, created_at, updated_at`

func (q queries) createShift(ctx context.Context, sh *shift.Shift) error {
	subtasks, err := json.Marshal(subTasksOrEmpty(sh.SubTasks))
	if err != nil {
		return fmt.Errorf("failed to encode subtasks: %w", err)
	}
	inLat, inLng := nullLocation(sh.ClockInLocation)
	outLat, outLng := nullLocation(sh.ClockOutLocation)

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		sh.ID, sh.CaregiverID, sh.CaregiverName, sh.PatientID, sh.PatientName, sh.Task,
		string(subtasks), sh.Notes, formatTime(sh.StartTime), formatTime(sh.EndTime),
		nullTime(sh.ClockInTime), nullTime(sh.ClockOutTime),
		inLat, inLng, outLat, outLng, sh.Status, nullDecimal(sh.TotalHours),
		formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create shift %s: %w", sh.ID, err)
	}
	sh.Version = 1
	return nil
}

func (q queries) getShift(ctx context.Context, id shift.ShiftID) (*shift.Shift, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+shiftColumns+" FROM shifts WHERE id = ?", id)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, shift.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shift %s: %w", id, err)
	}
	return sh, nil
}

func (q queries) listShifts(ctx context.Context, f shift.ShiftFilter) ([]shift.Shift, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.CaregiverID != "" {
		where = append(where, "caregiver_id = ?")
		args = append(args, f.CaregiverID)
	}
	if f.PatientID != "" {
		where = append(where, "patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.From != nil {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(*f.To))
	}

	query := "SELECT " + shiftColumns + " FROM shifts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []shift.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

// updateShift writes sh if the stored version matches. It does not bump
// sh.Version; callers do that once the write is durable.
func (q queries) updateShift(ctx context.Context, sh *shift.Shift) error {
	subtasks, err := json.Marshal(subTasksOrEmpty(sh.SubTasks))
	if err != nil {
		return fmt.Errorf("failed to encode subtasks: %w", err)
	}
	inLat, inLng := nullLocation(sh.ClockInLocation)
	outLat, outLng := nullLocation(sh.ClockOutLocation)

	res, err := q.db.ExecContext(ctx, `
		UPDATE shifts SET
			task = ?, subtasks_json = ?, notes = ?,
			start_time = ?, end_time = ?,
			clock_in_time = ?, clock_out_time = ?,
			clock_in_lat = ?, clock_in_lng = ?, clock_out_lat = ?, clock_out_lng = ?,
			status = ?, total_hours = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		sh.Task, string(subtasks), sh.Notes,
		formatTime(sh.StartTime), formatTime(sh.EndTime),
		nullTime(sh.ClockInTime), nullTime(sh.ClockOutTime),
		inLat, inLng, outLat, outLng,
		sh.Status, nullDecimal(sh.TotalHours), formatTime(sh.UpdatedAt),
		sh.ID, sh.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update shift %s: %w", sh.ID, err)
	}
	return q.checkConditional(ctx, res, "shifts", string(sh.ID), sh.Version)
}

func (q queries) deleteShift(ctx context.Context, id shift.ShiftID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM shifts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete shift %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shift %s: %w", id, shift.ErrNotFound)
	}
	return nil
}

const requestColumns = `id, shift_id, caregiver_id, caregiver_name, patient_id, patient_name,
	type, status, reason, request_date, overtime_hours, overtime_minutes,
	approved_end_time, compensation_hours, compensation_minutes,
	reviewed_by, reviewed_at, denial_reason, version`

func (q queries) createRequest(ctx context.Context, r *shift.Request) error {
	otH, otM := nullHoursMinutes(r.Overtime)
	compH, compM := nullHoursMinutes(r.Compensation)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`,
		r.ID, r.ShiftID, r.CaregiverID, r.CaregiverName, r.PatientID, r.PatientName,
		r.Type, r.Status, r.Reason, formatTime(r.RequestDate), otH, otM,
		nullTime(r.ApprovedEndTime), compH, compM,
		r.ReviewedBy, nullTime(r.ReviewedAt), r.DenialReason,
	)
	if err != nil {
		if isPendingUniquenessError(err) {
			return fmt.Errorf("shift %s %s request: %w", r.ShiftID, r.Type, shift.ErrDuplicatePending)
		}
		return fmt.Errorf("failed to create request %s: %w", r.ID, err)
	}
	r.Version = 1
	return nil
}

func (q queries) getRequest(ctx context.Context, id shift.RequestID) (*shift.Request, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, shift.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", id, err)
	}
	return r, nil
}

func (q queries) listRequests(ctx context.Context, f shift.RequestFilter) ([]shift.Request, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.ShiftID != "" {
		where = append(where, "shift_id = ?")
		args = append(args, f.ShiftID)
	}
	if f.CaregiverID != "" {
		where = append(where, "caregiver_id = ?")
		args = append(args, f.CaregiverID)
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY request_date, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []shift.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func (q queries) updateRequest(ctx context.Context, r *shift.Request) error {
	otH, otM := nullHoursMinutes(r.Overtime)
	compH, compM := nullHoursMinutes(r.Compensation)

	res, err := q.db.ExecContext(ctx, `
		UPDATE requests SET
			status = ?, reason = ?, overtime_hours = ?, overtime_minutes = ?,
			approved_end_time = ?, compensation_hours = ?, compensation_minutes = ?,
			reviewed_by = ?, reviewed_at = ?, denial_reason = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		r.Status, r.Reason, otH, otM,
		nullTime(r.ApprovedEndTime), compH, compM,
		r.ReviewedBy, nullTime(r.ReviewedAt), r.DenialReason,
		r.ID, r.Version,
	)
	if err != nil {
		if isPendingUniquenessError(err) {
			return fmt.Errorf("shift %s %s request: %w", r.ShiftID, r.Type, shift.ErrDuplicatePending)
		}
		return fmt.Errorf("failed to update request %s: %w", r.ID, err)
	}
	return q.checkConditional(ctx, res, "requests", string(r.ID), r.Version)
}

// checkConditional turns zero affected rows into ErrNotFound or
// ErrConcurrentModification.
func (q queries) checkConditional(ctx context.Context, res sql.Result, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var stored int64
	err = q.db.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE id = ?", id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, shift.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", table, err)
	}
	return fmt.Errorf("%s %s at version %d, got %d: %w", table, id, stored, version, shift.ErrConcurrentModification)
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanShift(row scanner) (*shift.Shift, error) {
	var (
		sh                           shift.Shift
		subtasks, start, end         string
		createdAt, updatedAt         string
		clockIn, clockOut            sql.NullString
		inLat, inLng, outLat, outLng sql.NullFloat64
		totalHours                   decimal.NullDecimal
	)
	err := row.Scan(
		&sh.ID, &sh.CaregiverID, &sh.CaregiverName, &sh.PatientID, &sh.PatientName, &sh.Task,
		&subtasks, &sh.Notes, &start, &end, &clockIn, &clockOut,
		&inLat, &inLng, &outLat, &outLng, &sh.Status, &totalHours,
		&sh.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(subtasks), &sh.SubTasks); err != nil {
		return nil, fmt.Errorf("shift %s: bad subtasks: %w", sh.ID, err)
	}
	if len(sh.SubTasks) == 0 {
		sh.SubTasks = nil
	}
	if sh.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if sh.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if sh.ClockInTime, err = parseNullTime(clockIn); err != nil {
		return nil, err
	}
	if sh.ClockOutTime, err = parseNullTime(clockOut); err != nil {
		return nil, err
	}
	sh.ClockInLocation = location(inLat, inLng)
	sh.ClockOutLocation = location(outLat, outLng)
	if totalHours.Valid {
		h := totalHours.Decimal
		sh.TotalHours = &h
	}
	sh.CreatedAt, _ = parseTime(createdAt)
	sh.UpdatedAt, _ = parseTime(updatedAt)
	return &sh, nil
}

func scanRequest(row scanner) (*shift.Request, error) {
	var (
		r                      shift.Request
		requestDate            string
		approvedEnd, reviewed  sql.NullString
		otH, otM, compH, compM sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.ShiftID, &r.CaregiverID, &r.CaregiverName, &r.PatientID, &r.PatientName,
		&r.Type, &r.Status, &r.Reason, &requestDate, &otH, &otM,
		&approvedEnd, &compH, &compM,
		&r.ReviewedBy, &reviewed, &r.DenialReason, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	if r.RequestDate, err = parseTime(requestDate); err != nil {
		return nil, err
	}
	if r.ApprovedEndTime, err = parseNullTime(approvedEnd); err != nil {
		return nil, err
	}
	if r.ReviewedAt, err = parseNullTime(reviewed); err != nil {
		return nil, err
	}
	r.Overtime = hoursMinutes(otH, otM)
	r.Compensation = hoursMinutes(compH, compM)
	return &r, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SavePatient(ctx context.Context, p shift.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lat, lng := nullLocation(p.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, name, address, lat, lng, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Address, lat, lng, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save patient %s: %w", p.ID, err)
	}
	return nil
}

// GetPatient retrieves a patient by ID.
func (s *Store) GetPatient(ctx context.Context, id shift.PatientID) (*shift.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p shift.Patient
	var lat, lng sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, address, lat, lng FROM patients WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Address, &lat, &lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, shift.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load patient %s: %w", id, err)
	}
	p.Location = location(lat, lng)
	return &p, nil
}

// ListPatients returns all patients.
func (s *Store) ListPatients(ctx context.Context) ([]shift.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address, lat, lng FROM patients ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []shift.Patient
	for rows.Next() {
		var p shift.Patient
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &lat, &lng); err != nil {
			return nil, err
		}
		p.Location = location(lat, lng)
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *Store) SaveCaregiver(ctx context.Context, c shift.Caregiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caregivers (id, name, email, phone, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, c.Email, c.Phone, c.Active, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save caregiver %s: %w", c.ID, err)
	}
	return nil
}

// GetCaregiver retrieves a caregiver by ID.
func (s *Store) GetCaregiver(ctx context.Context, id shift.ActorID) (*shift.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c shift.Caregiver
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, phone, active FROM caregivers WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("caregiver %s: %w", id, shift.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load caregiver %s: %w", id, err)
	}
	return &c, nil
}

// ListCaregivers returns all caregivers ordered by name.
func (s *Store) ListCaregivers(ctx context.Context) ([]shift.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, phone, active FROM caregivers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caregivers []shift.Caregiver
	for rows.Next() {
		var c shift.Caregiver
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Active); err != nil {
			return nil, err
		}
		caregivers = append(caregivers, c)
	}
	return caregivers, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullLocation(l *shift.LatLng) (sql.NullFloat64, sql.NullFloat64) {
	if l == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: l.Lat, Valid: true}, sql.NullFloat64{Float64: l.Lng, Valid: true}
}

func location(lat, lng sql.NullFloat64) *shift.LatLng {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &shift.LatLng{Lat: lat.Float64, Lng: lng.Float64}
}

func nullHoursMinutes(hm *shift.HoursMinutes) (sql.NullInt64, sql.NullInt64) {
	if hm == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(hm.Hours), Valid: true}, sql.NullInt64{Int64: int64(hm.Minutes), Valid: true}
}

func hoursMinutes(h, m sql.NullInt64) *shift.HoursMinutes {
	if !h.Valid {
		return nil
	}
	return &shift.HoursMinutes{Hours: int(h.Int64), Minutes: int(m.Int64)}
}

func subTasksOrEmpty(st []shift.SubTask) []shift.SubTask {
	if st == nil {
		return []shift.SubTask{}
	}
	return st
}

func isPendingUniquenessError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(se.Error(), "requests.shift_id")
}
