package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/model"
)

type rosterStub map[string]bool

func (r rosterStub) IsOnRoster(_ context.Context, _, studentID string) (bool, error) {
	return r[studentID], nil
}

func testSession() *model.Session {
	return &model.Session{
		ID:           "sess-1",
		Title:        "Contract Law Refresher",
		StartsAt:     classStart,
		EndsAt:       classEnd,
		CheckinCode:  "ABCDEFGHJK",
		CheckoutCode: "LMNPQRSTUV",
	}
}

func scanPayload(t *testing.T, action model.Action, sessionID, code string, expiresAt time.Time) string {
	t.Helper()
	p := ScanPayload{Action: action, SessionID: sessionID, Code: code, ExpiresAt: expiresAt}
	raw, err := p.Encode()
	require.NoError(t, err)
	return raw
}

func TestValidateScanHappyPath(t *testing.T) {
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	raw := scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckinCode, classStart.Add(30*time.Minute))

	at := time.Date(2026, 2, 1, 8, 45, 0, 0, time.UTC)
	got, err := v.ValidateScan(context.Background(), at, sess, raw, "lic-100")
	require.NoError(t, err)
	assert.Equal(t, model.ActionCheckin, got.Action)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "LIC-100", got.StudentID)
	assert.Equal(t, model.MethodScan, got.Method)
}

func TestValidateScanWindowBoundaries(t *testing.T) {
	// Scenario A: 5 minutes before the window opens the scan is too early;
	// inside the window the same scan passes.
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	expiry := classStart.Add(30 * time.Minute)
	raw := scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckinCode, expiry)

	_, err := v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 8, 25, 0, 0, time.UTC), sess, raw, "lic-100")
	require.True(t, errors.Is(err, ErrCheckinNotOpen))
	assert.Equal(t, "Check-in is not open yet", err.Error())

	_, err = v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 8, 45, 0, 0, time.UTC), sess, raw, "lic-100")
	assert.NoError(t, err)
}

func TestValidateScanTooLate(t *testing.T) {
	// Scenario B: at 09:45 check-in closed at 09:30. A payload carrying a
	// later printed expiry is still rejected by the window.
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	raw := scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckinCode, classEnd)

	_, err := v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 9, 45, 0, 0, time.UTC), sess, raw, "lic-100")
	require.True(t, errors.Is(err, ErrCheckinClosed))
	assert.Equal(t, "Check-in has closed for today", err.Error())
}

func TestValidateScanExpiredPayload(t *testing.T) {
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	raw := scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckinCode, classStart.Add(-40*time.Minute))

	_, err := v.ValidateScan(context.Background(), classStart, sess, raw, "lic-100")
	require.True(t, errors.Is(err, ErrCodeExpired))
	assert.Equal(t, "That code has expired for today", err.Error())
}

func TestValidateScanRuleOrder(t *testing.T) {
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	inWindow := time.Date(2026, 2, 1, 8, 45, 0, 0, time.UTC)
	expiry := classStart.Add(30 * time.Minute)

	cases := []struct {
		name    string
		raw     string
		student string
		want    *Error
	}{
		{
			// Scenario E: wrong session wins regardless of code validity.
			name:    "wrong session",
			raw:     scanPayload(t, model.ActionCheckin, "other-session", sess.CheckinCode, expiry),
			student: "lic-100",
			want:    ErrWrongSession,
		},
		{
			name:    "unknown action",
			raw:     scanPayload(t, model.Action("loiter"), sess.ID, sess.CheckinCode, expiry),
			student: "lic-100",
			want:    ErrUnknownAction,
		},
		{
			name:    "checkout code on checkin action",
			raw:     scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckoutCode, expiry),
			student: "lic-100",
			want:    ErrInvalidCode,
		},
		{
			// Scenario C: valid scan, student missing from the roster.
			name:    "not on roster",
			raw:     scanPayload(t, model.ActionCheckin, sess.ID, sess.CheckinCode, expiry),
			student: "lic-999",
			want:    ErrNotOnRoster,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidateScan(context.Background(), inWindow, sess, tc.raw, tc.student)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestValidateScanCheckoutWindow(t *testing.T) {
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{"LIC-100": true})
	raw := scanPayload(t, model.ActionCheckout, sess.ID, sess.CheckoutCode, classEnd.Add(60*time.Minute))

	_, err := v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), sess, raw, "lic-100")
	require.True(t, errors.Is(err, ErrCheckoutNotOpen))
	assert.Equal(t, "Check-out is not open yet", err.Error())

	_, err = v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 16, 30, 0, 0, time.UTC), sess, raw, "lic-100")
	assert.NoError(t, err)

	_, err = v.ValidateScan(context.Background(), time.Date(2026, 2, 1, 18, 30, 0, 0, time.UTC), sess, raw, "lic-100")
	require.True(t, errors.Is(err, ErrCodeExpired))
}

func TestValidateManualBypassesScanChecks(t *testing.T) {
	// Scenarios B and C, manual half: outside the window and off the
	// roster, the admin override still validates.
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{})

	got, err := v.ValidateManual(sess, sess.ID, model.ActionCheckin, "walkin@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.MethodManual, got.Method)
	assert.Equal(t, "walkin@example.com", got.StudentID)
}

func TestValidateManualStillChecksTarget(t *testing.T) {
	sess := testSession()
	v := NewValidator(OffsetPolicy, rosterStub{})

	_, err := v.ValidateManual(sess, "other-session", model.ActionCheckin, "lic-100")
	assert.True(t, errors.Is(err, ErrWrongSession))

	_, err = v.ValidateManual(sess, sess.ID, model.Action("promote"), "lic-100")
	assert.True(t, errors.Is(err, ErrUnknownAction))
}
