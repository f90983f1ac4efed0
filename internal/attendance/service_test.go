package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/engine"
	"classtrack/internal/model"
	"classtrack/internal/queue"
)

var (
	classStart = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	classEnd   = time.Date(2026, 2, 1, 17, 0, 0, 0, time.UTC)
)

type fakeSessions map[string]*model.Session

func (f fakeSessions) GetSession(_ context.Context, id string) (*model.Session, error) {
	return f[id], nil
}

type fakeRoster map[string]bool

func (f fakeRoster) IsOnRoster(_ context.Context, _, studentID string) (bool, error) {
	return f[studentID], nil
}

// fakeStore mimics the conditional-write contract of the Postgres repo.
type fakeStore struct {
	recs map[string]*model.AttendanceRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*model.AttendanceRecord)}
}

func key(sessionID, studentID string) string { return sessionID + "|" + studentID }

func (f *fakeStore) GetRecord(_ context.Context, sessionID, studentID string) (*model.AttendanceRecord, error) {
	rec, ok := f.recs[key(sessionID, studentID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) SetCheckin(_ context.Context, sessionID, studentID string, at time.Time, method model.Method) error {
	k := key(sessionID, studentID)
	rec, ok := f.recs[k]
	if !ok {
		rec = &model.AttendanceRecord{SessionID: sessionID, StudentID: studentID}
		f.recs[k] = rec
	}
	if rec.CheckinAt != nil {
		return engine.ErrAlreadyCheckedIn
	}
	rec.CheckinAt = &at
	rec.MethodCheckin = method
	return nil
}

func (f *fakeStore) SetCheckout(_ context.Context, sessionID, studentID string, at time.Time, method model.Method) error {
	rec, ok := f.recs[key(sessionID, studentID)]
	if !ok || rec.CheckinAt == nil {
		return engine.ErrCheckinRequired
	}
	if rec.CheckoutAt != nil {
		return engine.ErrAlreadyCheckedOut
	}
	rec.CheckoutAt = &at
	rec.MethodCheckout = method
	return nil
}

func (f *fakeStore) ClearCheckin(_ context.Context, sessionID, studentID string) error {
	rec, ok := f.recs[key(sessionID, studentID)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.CheckinAt, rec.MethodCheckin = nil, ""
	rec.CheckoutAt, rec.MethodCheckout = nil, ""
	return nil
}

func (f *fakeStore) ClearCheckout(_ context.Context, sessionID, studentID string) error {
	rec, ok := f.recs[key(sessionID, studentID)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.CheckoutAt, rec.MethodCheckout = nil, ""
	return nil
}

func (f *fakeStore) ListBySession(_ context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, rec := range f.recs {
		if rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func newTestService(store *fakeStore, roster fakeRoster, q queue.Queue) *Service {
	sess := fakeSessions{
		"sess-1": {
			ID:           "sess-1",
			Title:        "Fair Housing Update",
			StartsAt:     classStart,
			EndsAt:       classEnd,
			CheckinCode:  "ABCDEFGHJK",
			CheckoutCode: "LMNPQRSTUV",
		},
	}
	return NewService(sess, store, roster, engine.OffsetPolicy, q)
}

func checkinPayload(t *testing.T) string {
	t.Helper()
	p := engine.ScanPayload{
		Action:    model.ActionCheckin,
		SessionID: "sess-1",
		Code:      "ABCDEFGHJK",
		ExpiresAt: classStart.Add(30 * time.Minute),
	}
	raw, err := p.Encode()
	require.NoError(t, err)
	return raw
}

func drain(q *queue.InMemory) []queue.Event {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := q.Consume(ctx)
	var out []queue.Event
	for {
		select {
		case evt := <-events:
			out = append(out, evt)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestScanCheckinPublishesEvent(t *testing.T) {
	store := newFakeStore()
	q := queue.NewInMemory(8)
	svc := newTestService(store, fakeRoster{"LIC-100": true}, q)

	now := time.Date(2026, 2, 1, 8, 45, 0, 0, time.UTC)
	rec, err := svc.Scan(context.Background(), "sess-1", checkinPayload(t), "lic-100", now)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckedIn, rec.State())
	assert.Equal(t, "LIC-100", rec.StudentID)

	events := drain(q)
	require.Len(t, events, 1)
	assert.Equal(t, queue.EventCheckin, events[0].Type)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, "LIC-100", events[0].StudentID)
	assert.Equal(t, string(model.MethodScan), events[0].Method)
}

func TestScanSecondCheckinRejectedWithoutMutation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, fakeRoster{"LIC-100": true}, queue.NewInMemory(8))

	now := time.Date(2026, 2, 1, 8, 45, 0, 0, time.UTC)
	_, err := svc.Scan(context.Background(), "sess-1", checkinPayload(t), "lic-100", now)
	require.NoError(t, err)

	_, err = svc.Scan(context.Background(), "sess-1", checkinPayload(t), "lic-100", now.Add(time.Minute))
	assert.True(t, errors.Is(err, engine.ErrAlreadyCheckedIn))

	rec, err := store.GetRecord(context.Background(), "sess-1", "LIC-100")
	require.NoError(t, err)
	assert.Equal(t, now, *rec.CheckinAt)
}

func TestScanUnknownSession(t *testing.T) {
	svc := newTestService(newFakeStore(), fakeRoster{}, queue.NewInMemory(8))
	_, err := svc.Scan(context.Background(), "no-such", checkinPayload(t), "lic-100", classStart)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestManualCheckinBypassesWindowAndRoster(t *testing.T) {
	// Scenario B and C, admin half: 09:45 is past the scan window and the
	// student is not on the roster; the override succeeds anyway.
	store := newFakeStore()
	svc := newTestService(store, fakeRoster{}, queue.NewInMemory(8))

	late := time.Date(2026, 2, 1, 9, 45, 0, 0, time.UTC)
	rec, err := svc.Manual(context.Background(), "sess-1", model.ActionCheckin, "walkin@example.com", late)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckedIn, rec.State())
	assert.Equal(t, model.MethodManual, rec.MethodCheckin)
}

func TestManualCheckoutBeforeCheckin(t *testing.T) {
	svc := newTestService(newFakeStore(), fakeRoster{}, queue.NewInMemory(8))
	_, err := svc.Manual(context.Background(), "sess-1", model.ActionCheckout, "lic-100", classEnd)
	assert.True(t, errors.Is(err, engine.ErrCheckinRequired))
}

func TestUndoCheckinCascadesAndPublishesBoth(t *testing.T) {
	store := newFakeStore()
	q := queue.NewInMemory(8)
	svc := newTestService(store, fakeRoster{}, q)
	ctx := context.Background()

	_, err := svc.Manual(ctx, "sess-1", model.ActionCheckin, "lic-100", classStart)
	require.NoError(t, err)
	_, err = svc.Manual(ctx, "sess-1", model.ActionCheckout, "lic-100", classEnd)
	require.NoError(t, err)

	require.NoError(t, svc.UndoCheckin(ctx, "sess-1", "lic-100", classEnd.Add(time.Minute)))

	rec, err := store.GetRecord(ctx, "sess-1", "LIC-100")
	require.NoError(t, err)
	assert.Equal(t, model.StateNotCheckedIn, rec.State())

	var types []string
	for _, evt := range drain(q) {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []string{queue.EventCheckin, queue.EventCheckout, queue.EventUndoCheckout, queue.EventUndoCheckin}, types)
}

func TestUndoWithoutRecord(t *testing.T) {
	svc := newTestService(newFakeStore(), fakeRoster{}, queue.NewInMemory(8))
	err := svc.UndoCheckin(context.Background(), "sess-1", "lic-100", classEnd)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestUndoCheckoutRestoresCheckedIn(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, fakeRoster{}, queue.NewInMemory(8))
	ctx := context.Background()

	_, err := svc.Manual(ctx, "sess-1", model.ActionCheckin, "lic-100", classStart)
	require.NoError(t, err)
	_, err = svc.Manual(ctx, "sess-1", model.ActionCheckout, "lic-100", classEnd)
	require.NoError(t, err)

	require.NoError(t, svc.UndoCheckout(ctx, "sess-1", "lic-100", classEnd.Add(time.Minute)))
	rec, err := store.GetRecord(ctx, "sess-1", "LIC-100")
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckedIn, rec.State())
}

func TestReport(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, fakeRoster{}, queue.NewInMemory(8))
	ctx := context.Background()

	_, err := svc.Manual(ctx, "sess-1", model.ActionCheckin, "lic-100", classStart)
	require.NoError(t, err)
	_, err = svc.Manual(ctx, "sess-1", model.ActionCheckin, "lic-200", classStart)
	require.NoError(t, err)

	records, err := svc.Report(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
