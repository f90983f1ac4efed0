package session

import (
	"context"
	"database/sql"
	"errors"

	"classtrack/internal/model"
)

// Repository persists sessions and rosters in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts a fully-populated session. Sessions are immutable
// after creation, so there is no update path.
func (r *Repository) CreateSession(ctx context.Context, s model.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, starts_at, ends_at, checkin_code, checkout_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Title, s.StartsAt, s.EndsAt, s.CheckinCode, s.CheckoutCode, s.CreatedAt)
	return err
}

// GetSession returns nil when the session does not exist.
func (r *Repository) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, starts_at, ends_at, checkin_code, checkout_code, created_at
		FROM sessions WHERE id = $1
	`, id)
	var s model.Session
	if err := row.Scan(&s.ID, &s.Title, &s.StartsAt, &s.EndsAt, &s.CheckinCode, &s.CheckoutCode, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions newest-start first.
func (r *Repository) ListSessions(ctx context.Context, limit, offset int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, starts_at, ends_at, checkin_code, checkout_code, created_at
		FROM sessions
		ORDER BY starts_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Title, &s.StartsAt, &s.EndsAt, &s.CheckinCode, &s.CheckoutCode, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AddRosterEntry creates or refreshes a roster row.
func (r *Repository) AddRosterEntry(ctx context.Context, e model.RosterEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roster (session_id, student_id, license_number, name, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			license_number = EXCLUDED.license_number,
			name = EXCLUDED.name,
			email = EXCLUDED.email
	`, e.SessionID, e.StudentID, e.LicenseNumber, e.Name, e.Email)
	return err
}

// RemoveRosterEntry deletes a roster row.
func (r *Repository) RemoveRosterEntry(ctx context.Context, sessionID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM roster WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	return err
}

// ListRoster returns the roster ordered by student identifier.
func (r *Repository) ListRoster(ctx context.Context, sessionID string) ([]model.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, student_id, license_number, name, email
		FROM roster WHERE session_id = $1
		ORDER BY student_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RosterEntry
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.SessionID, &e.StudentID, &e.LicenseNumber, &e.Name, &e.Email); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsOnRoster is the membership test scans use. The scan identifier is the
// token subject, so a match on either the roster key or the recorded email
// admits the student; an entry keyed by license number with the email filled
// in still passes.
func (r *Repository) IsOnRoster(ctx context.Context, sessionID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roster
			WHERE session_id = $1 AND (student_id = $2 OR email = $2)
		)
	`, sessionID, studentID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
