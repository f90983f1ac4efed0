package engine

// Code identifies a validation or transition failure.
type Code string

const (
	CodeInvalidSessionWindow Code = "invalid_session_window"
	CodeMalformedPayload     Code = "malformed_payload"
	CodeWrongSession         Code = "wrong_session"
	CodeUnknownAction        Code = "unknown_action"
	CodeInvalidCode          Code = "invalid_code"
	CodeTooEarly             Code = "too_early"
	CodeTooLate              Code = "too_late"
	CodeExpired              Code = "code_expired"
	CodeNotOnRoster          Code = "not_on_roster"
	CodeAlreadyCheckedIn     Code = "already_checked_in"
	CodeAlreadyCheckedOut    Code = "already_checked_out"
	CodeCheckinRequired      Code = "checkin_required"
)

// Error is a user-facing validation outcome. Message is exactly what the
// presentation layer shows; the engine never logs, retries, or suppresses.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on code so errors.Is works against the predeclared values
// regardless of which message variant was returned.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidSessionWindow = &Error{CodeInvalidSessionWindow, "Session end must be after its start"}
	ErrMalformedPayload     = &Error{CodeMalformedPayload, "That QR code could not be read"}
	ErrWrongSession         = &Error{CodeWrongSession, "That code belongs to a different session"}
	ErrUnknownAction        = &Error{CodeUnknownAction, "Unknown attendance action"}
	ErrInvalidCode          = &Error{CodeInvalidCode, "That code is not valid for this session"}
	ErrCodeExpired          = &Error{CodeExpired, "That code has expired for today"}
	ErrNotOnRoster          = &Error{CodeNotOnRoster, "You are not on the roster for this session"}
	ErrAlreadyCheckedIn     = &Error{CodeAlreadyCheckedIn, "You are already checked in for this session"}
	ErrAlreadyCheckedOut    = &Error{CodeAlreadyCheckedOut, "You are already checked out of this session"}
	ErrCheckinRequired      = &Error{CodeCheckinRequired, "You must check in before you can check out"}

	// Window failures keep distinct per-action messages.
	ErrCheckinNotOpen  = &Error{CodeTooEarly, "Check-in is not open yet"}
	ErrCheckinClosed   = &Error{CodeTooLate, "Check-in has closed for today"}
	ErrCheckoutNotOpen = &Error{CodeTooEarly, "Check-out is not open yet"}
	ErrCheckoutClosed  = &Error{CodeTooLate, "Check-out has closed for today"}
)
