package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and ensures the
// schema exists.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'student',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		starts_at     TIMESTAMPTZ NOT NULL,
		ends_at       TIMESTAMPTZ NOT NULL,
		checkin_code  TEXT NOT NULL,
		checkout_code TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (ends_at > starts_at)
	);

	CREATE TABLE IF NOT EXISTS roster (
		session_id     TEXT NOT NULL REFERENCES sessions(id),
		student_id     TEXT NOT NULL,
		license_number TEXT NOT NULL DEFAULT '',
		name           TEXT NOT NULL DEFAULT '',
		email          TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		session_id      TEXT NOT NULL REFERENCES sessions(id),
		student_id      TEXT NOT NULL,
		checkin_at      TIMESTAMPTZ,
		checkout_at     TIMESTAMPTZ,
		method_checkin  TEXT,
		method_checkout TEXT,
		PRIMARY KEY (session_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_starts_at ON sessions(starts_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
