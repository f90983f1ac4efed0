package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classtrack/internal/engine"
	"classtrack/internal/model"
)

// Repository persists attendance records in Postgres. Every write that sets
// a timestamp is conditional on the field still being empty, so two
// near-simultaneous submissions for the same (session, student) cannot both
// succeed; the loser gets the same idempotent rejection the engine computes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetRecord returns nil when the student has no record for the session.
func (r *Repository) GetRecord(ctx context.Context, sessionID, studentID string) (*model.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT session_id, student_id, checkin_at, checkout_at, method_checkin, method_checkout
		FROM attendance WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// SetCheckin records the check-in, guarded on no check-in existing yet.
func (r *Repository) SetCheckin(ctx context.Context, sessionID, studentID string, at time.Time, method model.Method) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (session_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, sessionID, studentID)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET checkin_at = $3, method_checkin = $4
		WHERE session_id = $1 AND student_id = $2 AND checkin_at IS NULL
	`, sessionID, studentID, at, string(method))
	if err != nil {
		return err
	}
	return r.mapNoRows(res, engine.ErrAlreadyCheckedIn)
}

// SetCheckout records the check-out, guarded on an existing check-in and no
// check-out. Zero rows affected means the record was not in CheckedIn state;
// re-read to report which rule was violated.
func (r *Repository) SetCheckout(ctx context.Context, sessionID, studentID string, at time.Time, method model.Method) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET checkout_at = $3, method_checkout = $4
		WHERE session_id = $1 AND student_id = $2
		  AND checkin_at IS NOT NULL AND checkout_at IS NULL
	`, sessionID, studentID, at, string(method))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	rec, err := r.GetRecord(ctx, sessionID, studentID)
	if err != nil {
		return err
	}
	if rec.State() == model.StateCheckedOut {
		return engine.ErrAlreadyCheckedOut
	}
	return engine.ErrCheckinRequired
}

// ClearCheckin implements the privileged undo. Clearing the check-in also
// clears the check-out so the record can never show a check-out with no
// check-in behind it.
func (r *Repository) ClearCheckin(ctx context.Context, sessionID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET checkin_at = NULL, method_checkin = NULL,
		    checkout_at = NULL, method_checkout = NULL
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	if err != nil {
		return err
	}
	return r.mapNoRows(res, ErrRecordNotFound)
}

// ClearCheckout reverts a checked-out record to CheckedIn.
func (r *Repository) ClearCheckout(ctx context.Context, sessionID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET checkout_at = NULL, method_checkout = NULL
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	if err != nil {
		return err
	}
	return r.mapNoRows(res, ErrRecordNotFound)
}

// ListBySession returns the session's records ordered by check-in time.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, student_id, checkin_at, checkout_at, method_checkin, method_checkout
		FROM attendance WHERE session_id = $1
		ORDER BY checkin_at NULLS LAST, student_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *Repository) mapNoRows(res sql.Result, sentinel error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	var methodIn, methodOut sql.NullString
	if err := row.Scan(&rec.SessionID, &rec.StudentID, &rec.CheckinAt, &rec.CheckoutAt, &methodIn, &methodOut); err != nil {
		return nil, fmt.Errorf("scan attendance: %w", err)
	}
	rec.MethodCheckin = model.Method(methodIn.String)
	rec.MethodCheckout = model.Method(methodOut.String)
	return &rec, nil
}
