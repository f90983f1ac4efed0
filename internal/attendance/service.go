package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"classtrack/internal/engine"
	"classtrack/internal/metrics"
	"classtrack/internal/model"
	"classtrack/internal/queue"
)

// ErrSessionNotFound is returned when the target session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrRecordNotFound is returned by undo operations aimed at a student who
// never checked in.
var ErrRecordNotFound = errors.New("attendance record not found")

// Sessions is the session lookup the service needs.
type Sessions interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// Store is the attendance persistence surface. Implementations must make
// SetCheckin/SetCheckout conditional writes that fail with the engine's
// idempotent rejections when the guarded field is already set.
type Store interface {
	GetRecord(ctx context.Context, sessionID, studentID string) (*model.AttendanceRecord, error)
	SetCheckin(ctx context.Context, sessionID, studentID string, at time.Time, method model.Method) error
	SetCheckout(ctx context.Context, sessionID, studentID string, at time.Time, method model.Method) error
	ClearCheckin(ctx context.Context, sessionID, studentID string) error
	ClearCheckout(ctx context.Context, sessionID, studentID string) error
	ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
}

// Service runs scans, manual overrides, and undo operations through the
// validation and transition engine, then commits with conditional writes.
type Service struct {
	sessions  Sessions
	store     Store
	validator *engine.Validator
	events    queue.Queue
}

// NewService wires the service. roster backs the scan-path membership test.
func NewService(sessions Sessions, store Store, roster engine.Roster, policy engine.WindowPolicy, events queue.Queue) *Service {
	return &Service{
		sessions:  sessions,
		store:     store,
		validator: engine.NewValidator(policy, roster),
		events:    events,
	}
}

// Scan processes a decoded QR string submitted by studentID for sessionID.
func (s *Service) Scan(ctx context.Context, sessionID, raw, studentID string, now time.Time) (*model.AttendanceRecord, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	validated, err := s.validator.ValidateScan(ctx, now, sess, raw, studentID)
	if err != nil {
		metrics.Observe("scan", err)
		return nil, err
	}
	rec, err := s.commit(ctx, validated, now)
	metrics.Observe(string(validated.Action), err)
	return rec, err
}

// Manual processes an admin override for a named student. The admin
// capability is enforced by the caller; window and roster checks are
// bypassed here on purpose.
func (s *Service) Manual(ctx context.Context, sessionID string, action model.Action, studentID string, now time.Time) (*model.AttendanceRecord, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	validated, err := s.validator.ValidateManual(sess, sessionID, action, studentID)
	if err != nil {
		return nil, err
	}
	rec, err := s.commit(ctx, validated, now)
	metrics.Observe(string(action), err)
	return rec, err
}

// UndoCheckin clears a student's check-in and, because a check-out cannot
// stand without it, any check-out as well.
func (s *Service) UndoCheckin(ctx context.Context, sessionID, studentID string, now time.Time) error {
	return s.undo(ctx, sessionID, studentID, queue.EventUndoCheckin, now, s.store.ClearCheckin)
}

// UndoCheckout reverts a checked-out student to checked-in.
func (s *Service) UndoCheckout(ctx context.Context, sessionID, studentID string, now time.Time) error {
	return s.undo(ctx, sessionID, studentID, queue.EventUndoCheckout, now, s.store.ClearCheckout)
}

// Report lists a session's attendance records.
func (s *Service) Report(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListBySession(ctx, sessionID)
}

func (s *Service) getSession(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// commit runs the pure transition against the current record, then writes
// conditionally. The pre-commit Apply gives the precise rejection; the
// guarded write closes the race between two submissions that both read the
// same current record.
func (s *Service) commit(ctx context.Context, validated *engine.ValidatedAction, now time.Time) (*model.AttendanceRecord, error) {
	current, err := s.store.GetRecord(ctx, validated.SessionID, validated.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	next, err := engine.Apply(current, validated, now)
	if err != nil {
		return nil, err
	}

	switch validated.Action {
	case model.ActionCheckin:
		err = s.store.SetCheckin(ctx, validated.SessionID, validated.StudentID, now, validated.Method)
	case model.ActionCheckout:
		err = s.store.SetCheckout(ctx, validated.SessionID, validated.StudentID, now, validated.Method)
	default:
		err = engine.ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, queue.Event{
		Type:      string(validated.Action),
		SessionID: validated.SessionID,
		StudentID: validated.StudentID,
		Method:    string(validated.Method),
		At:        now,
	})
	return next, nil
}

func (s *Service) undo(ctx context.Context, sessionID, studentID, eventType string, now time.Time, clear func(context.Context, string, string) error) error {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return err
	}
	studentID = model.NormalizeStudentID(studentID)
	record, err := s.store.GetRecord(ctx, sessionID, studentID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if record == nil {
		return ErrRecordNotFound
	}
	if err := clear(ctx, sessionID, studentID); err != nil {
		return err
	}
	// The cascade on undo-checkin removes a counted checkout too; tell the
	// tally worker about both.
	if eventType == queue.EventUndoCheckin && record.CheckoutAt != nil {
		s.publish(ctx, queue.Event{
			Type:      queue.EventUndoCheckout,
			SessionID: sessionID,
			StudentID: studentID,
			At:        now,
		})
	}
	if eventType == queue.EventUndoCheckin && record.CheckinAt == nil {
		return nil
	}
	if eventType == queue.EventUndoCheckout && record.CheckoutAt == nil {
		return nil
	}
	s.publish(ctx, queue.Event{
		Type:      eventType,
		SessionID: sessionID,
		StudentID: studentID,
		At:        now,
	})
	return nil
}

func (s *Service) publish(ctx context.Context, evt queue.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
