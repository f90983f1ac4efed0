package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/engine"
	"classtrack/internal/model"
	"classtrack/internal/qr"
)

// ErrNotFound is returned for operations on a session id that never existed.
var ErrNotFound = errors.New("session not found")

// Store is the persistence surface the service needs.
type Store interface {
	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]model.Session, error)
	AddRosterEntry(ctx context.Context, e model.RosterEntry) error
	RemoveRosterEntry(ctx context.Context, sessionID, studentID string) error
	ListRoster(ctx context.Context, sessionID string) ([]model.RosterEntry, error)
}

// Service creates sessions and produces their QR material.
type Service struct {
	store  Store
	policy engine.WindowPolicy
	qrSize int
}

// NewService creates a service. policy may be nil for the current window rule.
func NewService(store Store, policy engine.WindowPolicy, qrSize int) *Service {
	if policy == nil {
		policy = engine.OffsetPolicy
	}
	if qrSize <= 0 {
		qrSize = 512
	}
	return &Service{store: store, policy: policy, qrSize: qrSize}
}

// Create validates the time window, assigns the id and both codes, and
// persists the session. Everything about the session is fixed from here on.
func (s *Service) Create(ctx context.Context, title string, startsAt, endsAt time.Time) (*model.Session, error) {
	if _, err := engine.ComputeWindows(s.policy, startsAt, endsAt); err != nil {
		return nil, err
	}
	checkinCode, err := qr.NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate checkin code: %w", err)
	}
	checkoutCode, err := qr.NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate checkout code: %w", err)
	}
	sess := model.Session{
		ID:           uuid.NewString(),
		Title:        title,
		StartsAt:     startsAt.UTC(),
		EndsAt:       endsAt.UTC(),
		CheckinCode:  checkinCode,
		CheckoutCode: checkoutCode,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return &sess, nil
}

// Get returns the session or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns sessions newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Session, error) {
	return s.store.ListSessions(ctx, limit, offset)
}

// Windows derives the session's boundaries under the configured policy.
func (s *Service) Windows(sess *model.Session) (engine.Windows, error) {
	return engine.ComputeWindows(s.policy, sess.StartsAt, sess.EndsAt)
}

// Payload builds the QR wire payload for one action. The embedded expiry is
// the window close under the configured policy, so a displayed code stops
// scanning at the same instant the validator would reject it.
func (s *Service) Payload(sess *model.Session, action model.Action) (string, error) {
	windows, err := s.Windows(sess)
	if err != nil {
		return "", err
	}
	p := engine.ScanPayload{
		Action:    action,
		SessionID: sess.ID,
		Code:      sess.CheckinCode,
		ExpiresAt: windows.CheckinClosesAt,
	}
	switch action {
	case model.ActionCheckin:
	case model.ActionCheckout:
		p.Code = sess.CheckoutCode
		p.ExpiresAt = windows.CheckoutClosesAt
	default:
		return "", engine.ErrUnknownAction
	}
	return p.Encode()
}

// QRImage renders the payload for one action as a PNG.
func (s *Service) QRImage(sess *model.Session, action model.Action) ([]byte, error) {
	payload, err := s.Payload(sess, action)
	if err != nil {
		return nil, err
	}
	return qr.RenderPNG(payload, s.qrSize)
}

// AddToRoster normalizes the identifier and upserts the roster entry.
func (s *Service) AddToRoster(ctx context.Context, sessionID, studentID, name, email string) error {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	entry := model.RosterEntry{
		SessionID: sessionID,
		StudentID: model.NormalizeStudentID(studentID),
		Name:      name,
		Email:     strings.TrimSpace(strings.ToLower(email)),
	}
	if !strings.Contains(entry.StudentID, "@") {
		entry.LicenseNumber = entry.StudentID
	}
	return s.store.AddRosterEntry(ctx, entry)
}

// RemoveFromRoster deletes one roster entry.
func (s *Service) RemoveFromRoster(ctx context.Context, sessionID, studentID string) error {
	return s.store.RemoveRosterEntry(ctx, sessionID, model.NormalizeStudentID(studentID))
}

// Roster lists the session's roster.
func (s *Service) Roster(ctx context.Context, sessionID string) ([]model.RosterEntry, error) {
	return s.store.ListRoster(ctx, sessionID)
}
