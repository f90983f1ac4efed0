package engine

import (
	"time"

	"classtrack/internal/model"
)

// Apply computes the next attendance record for a validated action. current
// may be nil when the student has never checked in. Apply is pure: the
// caller persists the result with a conditional write so that two
// near-simultaneous submissions cannot both set the same timestamp.
func Apply(current *model.AttendanceRecord, validated *ValidatedAction, now time.Time) (*model.AttendanceRecord, error) {
	next := model.AttendanceRecord{
		SessionID: validated.SessionID,
		StudentID: validated.StudentID,
	}
	if current != nil {
		next = *current
	}

	switch validated.Action {
	case model.ActionCheckin:
		if current.State() != model.StateNotCheckedIn {
			return nil, ErrAlreadyCheckedIn
		}
		at := now
		next.CheckinAt = &at
		next.MethodCheckin = validated.Method

	case model.ActionCheckout:
		switch current.State() {
		case model.StateNotCheckedIn:
			return nil, ErrCheckinRequired
		case model.StateCheckedOut:
			return nil, ErrAlreadyCheckedOut
		}
		at := now
		next.CheckoutAt = &at
		next.MethodCheckout = validated.Method

	default:
		return nil, ErrUnknownAction
	}
	return &next, nil
}

// UndoCheckin clears the check-in timestamp. Privileged and unconditional.
// Because a checkout cannot stand without the check-in it presupposes, the
// checkout is cleared with it.
func UndoCheckin(current model.AttendanceRecord) model.AttendanceRecord {
	current.CheckinAt = nil
	current.MethodCheckin = ""
	current.CheckoutAt = nil
	current.MethodCheckout = ""
	return current
}

// UndoCheckout clears the check-out timestamp, moving the record back to
// CheckedIn. Privileged and unconditional.
func UndoCheckout(current model.AttendanceRecord) model.AttendanceRecord {
	current.CheckoutAt = nil
	current.MethodCheckout = ""
	return current
}
