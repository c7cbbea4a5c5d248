/*
request.go - Overtime and cancellation request workflow

PURPOSE:
  Caregivers amend a shift by submitting a request; an admin approves or
  denies it. Approval feeds back into the state machine, denial has no
  shift side effect.

REQUEST FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │  caregiver submits ──▶ pending ──┬──▶ approved ──▶ shift      │
  │  (inside window)                 │    (admin)       transition │
  │                                  │                             │
  │                                  └──▶ denied (reason kept)     │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

WINDOWS:
  overtime      now in [end - 20min, end]      shift active/overtime, clocked in
  cancellation  now in [start, start + 20min]  shift pending/active

APPROVAL EFFECTS:
  overtime      endTime = details.NewEndTime (must be after current end),
                status = overtime
  cancellation  totalHours = compensation hours + minutes/60 (default 0),
                status = cancelled

  Request and shift are written in one transaction. Reviewing a request
  that is no longer pending is failed-precondition, never a silent no-op.

SEE ALSO:
  - machine.go: ApproveOvertime, ApproveCancellation
  - notify.go: Post-commit notifications
*/
package shift

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewDetails carries the admin's input for a review.
type ReviewDetails struct {
	// Overtime approval: the new scheduled end.
	NewEndTime *time.Time
	// Cancellation approval: credited time. Nil means none.
	Compensation *HoursMinutes
	// Denial: why. Required.
	DenialReason string
}

// RequestWorkflow handles request submission and review.
type RequestWorkflow struct {
	Store    TxStore
	Machine  *Machine
	Clock    Clock
	Notifier Notifier
	Logger   *zap.Logger
}

func NewRequestWorkflow(store TxStore, machine *Machine, clock Clock, notifier Notifier, logger *zap.Logger) *RequestWorkflow {
	if machine == nil {
		machine = NewMachine(DefaultRules())
	}
	return &RequestWorkflow{
		Store:    store,
		Machine:  machine,
		Clock:    clockOrSystem(clock),
		Notifier: notifier,
		Logger:   loggerOrNop(logger),
	}
}

func newRequestID() RequestID {
	return RequestID("req-" + uuid.NewString())
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitOvertime asks for the shift end to be extended by hours+minutes.
func (w *RequestWorkflow) SubmitOvertime(ctx context.Context, actor Actor, id ShiftID, hours, minutes int, reason string) (RequestID, error) {
	extra := HoursMinutes{Hours: hours, Minutes: minutes}
	if err := extra.Validate(); err != nil {
		return "", err
	}
	if extra.IsZero() {
		return "", invalidArgument("overtime of at least one minute is required")
	}

	return w.submit(ctx, actor, id, RequestOvertime, reason, func(s *Shift, now time.Time) (*Request, error) {
		if !s.Status.InProgress() || !s.ClockedIn() {
			return nil, failedPrecondition("overtime can only be requested while clocked in (shift %s is %s)", s.ID, s.Status)
		}
		from, to := w.Machine.OvertimeWindow(*s)
		if !inWindow(now, from, to) {
			return nil, failedPrecondition("overtime can only be requested between %s and %s",
				from.Format(time.RFC3339), to.Format(time.RFC3339))
		}
		return &Request{Overtime: &extra}, nil
	})
}

// SubmitCancellation asks for the shift to be cancelled.
func (w *RequestWorkflow) SubmitCancellation(ctx context.Context, actor Actor, id ShiftID, reason string) (RequestID, error) {
	return w.submit(ctx, actor, id, RequestCancellation, reason, func(s *Shift, now time.Time) (*Request, error) {
		if !CanTransition(s.Status, EventCancellationApproved) {
			return nil, failedPrecondition("shift %s in status %s cannot be cancelled", s.ID, s.Status)
		}
		from, to := w.Machine.CancellationWindow(*s)
		if !inWindow(now, from, to) {
			return nil, failedPrecondition("cancellation can only be requested between %s and %s",
				from.Format(time.RFC3339), to.Format(time.RFC3339))
		}
		return &Request{}, nil
	})
}

type submitCheck func(s *Shift, now time.Time) (*Request, error)

func (w *RequestWorkflow) submit(ctx context.Context, actor Actor, id ShiftID, typ RequestType, reason string, check submitCheck) (RequestID, error) {
	reason = strings.TrimSpace(reason)
	if actor.ID == "" {
		return "", invalidArgument("actor id is required")
	}
	if reason == "" {
		return "", invalidArgument("a reason is required")
	}

	var created *Request
	err := w.Store.WithTx(ctx, func(tx Store) error {
		s, err := loadShift(ctx, tx, id)
		if err != nil {
			return err
		}
		if s.CaregiverID != actor.ID {
			return permissionDenied("shift %s is not assigned to %s", id, actor.ID)
		}

		now := w.Clock.Now()
		req, err := check(s, now)
		if err != nil {
			return err
		}

		pending, err := tx.ListRequests(ctx, RequestFilter{ShiftID: id, Type: typ, Status: RequestPending})
		if err != nil {
			return classify(err, "list requests")
		}
		if len(pending) > 0 {
			return failedPrecondition("a pending %s request already exists for shift %s", typ, id)
		}

		req.ID = newRequestID()
		req.ShiftID = s.ID
		req.CaregiverID = s.CaregiverID
		req.CaregiverName = s.CaregiverName
		req.PatientID = s.PatientID
		req.PatientName = s.PatientName
		req.Type = typ
		req.Status = RequestPending
		req.Reason = reason
		req.RequestDate = now
		if err := tx.CreateRequest(ctx, req); err != nil {
			return classify(err, "create request")
		}
		created = req
		return nil
	})
	if err != nil {
		return "", err
	}

	w.Logger.Info("request submitted",
		zap.String("request_id", string(created.ID)),
		zap.String("shift_id", string(id)),
		zap.String("type", string(typ)),
	)
	notify(ctx, w.Notifier, w.Logger, Notification{
		SenderID:   actor.ID,
		SenderName: created.CaregiverName,
		Type:       NotifyRequestSubmitted,
		ResourceID: string(created.ID),
		Content:    fmt.Sprintf("%s requested %s for shift with %s", created.CaregiverName, typ, created.PatientName),
		At:         created.RequestDate,
	})
	return created.ID, nil
}

// =============================================================================
// REVIEW
// =============================================================================

// Review dispatches an admin decision to Approve or Deny.
func (w *RequestWorkflow) Review(ctx context.Context, actor Actor, id RequestID, decision Decision, details ReviewDetails) (*Request, error) {
	switch decision {
	case DecisionApproved:
		return w.Approve(ctx, actor, id, details)
	case DecisionDenied:
		return w.Deny(ctx, actor, id, details.DenialReason)
	}
	return nil, invalidArgument("decision must be %q or %q, got %q", DecisionApproved, DecisionDenied, decision)
}

// Approve applies the request to its shift.
func (w *RequestWorkflow) Approve(ctx context.Context, actor Actor, id RequestID, details ReviewDetails) (*Request, error) {
	if !actor.Admin {
		return nil, permissionDenied("admin capability required to review requests")
	}
	if details.Compensation != nil {
		if err := details.Compensation.Validate(); err != nil {
			return nil, err
		}
	}

	var reviewed *Request
	err := w.Store.WithTx(ctx, func(tx Store) error {
		req, err := loadPendingRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		s, err := loadShift(ctx, tx, req.ShiftID)
		if err != nil {
			return err
		}

		now := w.Clock.Now()
		var next Shift
		switch req.Type {
		case RequestOvertime:
			if details.NewEndTime == nil {
				return invalidArgument("new end time is required to approve overtime")
			}
			next, err = w.Machine.ApproveOvertime(*s, *details.NewEndTime, now)
			if err != nil {
				return err
			}
			end := next.EndTime
			req.ApprovedEndTime = &end
		case RequestCancellation:
			granted := HoursMinutes{}
			if details.Compensation != nil {
				granted = *details.Compensation
			}
			next, err = w.Machine.ApproveCancellation(*s, &granted, actor, now)
			if err != nil {
				return err
			}
			req.Compensation = &granted
		default:
			return internal(nil, "request %s has unknown type %q", req.ID, req.Type)
		}

		req.Status = RequestApproved
		req.ReviewedBy = actor.ID
		req.ReviewedAt = &now
		if err := tx.UpdateShift(ctx, &next); err != nil {
			return classify(err, "save shift")
		}
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return classify(err, "save request")
		}
		reviewed = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.afterReview(ctx, actor, reviewed)
	return reviewed, nil
}

// Deny rejects the request. The shift is not touched.
func (w *RequestWorkflow) Deny(ctx context.Context, actor Actor, id RequestID, reason string) (*Request, error) {
	if !actor.Admin {
		return nil, permissionDenied("admin capability required to review requests")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidArgument("a denial reason is required")
	}

	var reviewed *Request
	err := w.Store.WithTx(ctx, func(tx Store) error {
		req, err := loadPendingRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		now := w.Clock.Now()
		req.Status = RequestDenied
		req.DenialReason = reason
		req.ReviewedBy = actor.ID
		req.ReviewedAt = &now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return classify(err, "save request")
		}
		reviewed = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.afterReview(ctx, actor, reviewed)
	return reviewed, nil
}

func loadPendingRequest(ctx context.Context, st Store, id RequestID) (*Request, error) {
	req, err := loadRequest(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, failedPrecondition("request %s has already been %s", id, req.Status)
	}
	return req, nil
}

func (w *RequestWorkflow) afterReview(ctx context.Context, actor Actor, req *Request) {
	w.Logger.Info("request reviewed",
		zap.String("request_id", string(req.ID)),
		zap.String("shift_id", string(req.ShiftID)),
		zap.String("status", string(req.Status)),
		zap.String("admin_id", string(actor.ID)),
	)
	content := fmt.Sprintf("Your %s request was %s", req.Type, req.Status)
	if req.Status == RequestDenied {
		content += ": " + req.DenialReason
	}
	notify(ctx, w.Notifier, w.Logger, Notification{
		RecipientID: req.CaregiverID,
		SenderID:    actor.ID,
		SenderName:  actor.Name,
		Type:        NotifyRequestReviewed,
		ResourceID:  string(req.ID),
		Content:     content,
		At:          *req.ReviewedAt,
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a request. Caregivers only see their own.
func (w *RequestWorkflow) Get(ctx context.Context, actor Actor, id RequestID) (*Request, error) {
	req, err := loadRequest(ctx, w.Store, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && req.CaregiverID != actor.ID {
		return nil, permissionDenied("request %s belongs to another caregiver", id)
	}
	return req, nil
}

// List returns matching requests. Caregivers are restricted to their own.
func (w *RequestWorkflow) List(ctx context.Context, actor Actor, filter RequestFilter) ([]Request, error) {
	if !actor.Admin {
		filter.CaregiverID = actor.ID
	}
	reqs, err := w.Store.ListRequests(ctx, filter)
	if err != nil {
		return nil, classify(err, "list requests")
	}
	return reqs, nil
}
