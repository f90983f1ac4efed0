package engine

import (
	"context"
	"fmt"
	"time"

	"classtrack/internal/model"
)

// Roster answers session membership. Implemented by the persistence layer.
type Roster interface {
	IsOnRoster(ctx context.Context, sessionID, studentID string) (bool, error)
}

// ValidatedAction is a scan or manual action that passed every check and is
// ready to be applied to the student's attendance record.
type ValidatedAction struct {
	Action    model.Action
	SessionID string
	StudentID string
	Method    model.Method
}

// Validator checks incoming actions against the active session. It holds no
// state beyond its collaborators and never touches the clock; callers pass now.
type Validator struct {
	policy WindowPolicy
	roster Roster
}

// NewValidator builds a validator. policy may be nil for the current rule.
func NewValidator(policy WindowPolicy, roster Roster) *Validator {
	if policy == nil {
		policy = OffsetPolicy
	}
	return &Validator{policy: policy, roster: roster}
}

// ValidateScan checks a decoded QR string scanned by studentID against the
// active session. Rules run in order and the first failure wins.
func (v *Validator) ValidateScan(ctx context.Context, now time.Time, session *model.Session, raw, studentID string) (*ValidatedAction, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}
	if payload.SessionID != session.ID {
		return nil, ErrWrongSession
	}
	if payload.Action != model.ActionCheckin && payload.Action != model.ActionCheckout {
		return nil, ErrUnknownAction
	}

	expected := session.CheckinCode
	if payload.Action == model.ActionCheckout {
		expected = session.CheckoutCode
	}
	if payload.Code != expected {
		return nil, ErrInvalidCode
	}

	if now.After(payload.ExpiresAt) {
		return nil, ErrCodeExpired
	}
	windows, err := ComputeWindows(v.policy, session.StartsAt, session.EndsAt)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(now, payload.Action, windows); err != nil {
		return nil, err
	}

	studentID = model.NormalizeStudentID(studentID)
	onRoster, err := v.roster.IsOnRoster(ctx, session.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("roster lookup: %w", err)
	}
	if !onRoster {
		return nil, ErrNotOnRoster
	}

	return &ValidatedAction{
		Action:    payload.Action,
		SessionID: session.ID,
		StudentID: studentID,
		Method:    model.MethodScan,
	}, nil
}

// ValidateManual checks an explicit admin action. It deliberately skips the
// code, window, and roster checks: this is the escape hatch for students
// whose phone will not scan and for walk-ins missing from the roster. The
// caller enforces the admin capability before getting here.
func (v *Validator) ValidateManual(session *model.Session, targetSessionID string, action model.Action, studentID string) (*ValidatedAction, error) {
	if targetSessionID != session.ID {
		return nil, ErrWrongSession
	}
	if action != model.ActionCheckin && action != model.ActionCheckout {
		return nil, ErrUnknownAction
	}
	return &ValidatedAction{
		Action:    action,
		SessionID: session.ID,
		StudentID: model.NormalizeStudentID(studentID),
		Method:    model.MethodManual,
	}, nil
}

func checkWindow(now time.Time, action model.Action, w Windows) error {
	opensAt, closesAt := w.CheckinOpensAt, w.CheckinClosesAt
	notOpen, closed := ErrCheckinNotOpen, ErrCheckinClosed
	if action == model.ActionCheckout {
		opensAt, closesAt = w.CheckoutOpensAt, w.CheckoutClosesAt
		notOpen, closed = ErrCheckoutNotOpen, ErrCheckoutClosed
	}
	if now.Before(opensAt) {
		return notOpen
	}
	if now.After(closesAt) {
		return closed
	}
	return nil
}
