package model

import (
	"strings"
	"time"
)

// Method tags how an attendance timestamp was recorded.
type Method string

const (
	MethodScan   Method = "scan"
	MethodManual Method = "manual"
)

// Action is the attendance operation a student or admin is performing.
type Action string

const (
	ActionCheckin  Action = "checkin"
	ActionCheckout Action = "checkout"
)

// Session is a scheduled class. Codes and times are fixed at creation.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	CheckinCode  string    `json:"checkin_code"`
	CheckoutCode string    `json:"checkout_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttendanceRecord is one student's attendance for one session.
// The (SessionID, StudentID) pair is the composite key.
type AttendanceRecord struct {
	SessionID      string     `json:"session_id"`
	StudentID      string     `json:"student_id"`
	CheckinAt      *time.Time `json:"checkin_at,omitempty"`
	CheckoutAt     *time.Time `json:"checkout_at,omitempty"`
	MethodCheckin  Method     `json:"method_checkin,omitempty"`
	MethodCheckout Method     `json:"method_checkout,omitempty"`
}

// AttendanceState is the derived position in the check-in lifecycle.
type AttendanceState string

const (
	StateNotCheckedIn AttendanceState = "not_checked_in"
	StateCheckedIn    AttendanceState = "checked_in"
	StateCheckedOut   AttendanceState = "checked_out"
)

// State derives the lifecycle state from which timestamps are set.
// A nil record means the student has never checked in.
func (r *AttendanceRecord) State() AttendanceState {
	switch {
	case r == nil || r.CheckinAt == nil:
		return StateNotCheckedIn
	case r.CheckoutAt == nil:
		return StateCheckedIn
	default:
		return StateCheckedOut
	}
}

// RosterEntry is one student on a session's roster. StudentID is the
// identifier the student authenticates as; the license number rides along
// for the state's completion report.
type RosterEntry struct {
	SessionID     string `json:"session_id"`
	StudentID     string `json:"student_id"`
	LicenseNumber string `json:"license_number,omitempty"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Role is the capability a principal carries.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one the system grants.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User is an authenticated principal. Role decides the admin capability.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// NormalizeStudentID canonicalizes a student identifier so that scans,
// roster rows and manual entries key the same record. Emails lowercase,
// license numbers uppercase.
func NormalizeStudentID(raw string) string {
	id := strings.TrimSpace(raw)
	if strings.Contains(id, "@") {
		return strings.ToLower(id)
	}
	return strings.ToUpper(id)
}
