package tally

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"classtrack/internal/queue"
)

const keyPrefix = "classtrack:tally:"

// Tally is the live head-count for one session.
type Tally struct {
	Checkins  int64 `json:"checkins"`
	Checkouts int64 `json:"checkouts"`
}

// Tracker maintains per-session check-in/check-out counts in Redis hashes.
// The worker feeds it from the event queue; the API reads it for the
// instructor dashboard. Counts are advisory; the Postgres records are the
// source of truth.
type Tracker struct {
	client *redis.Client
}

// New creates a tracker.
func New(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

// Record applies one event to the session's tally. Unknown event types are
// ignored so new event kinds do not break deployed workers.
func (t *Tracker) Record(ctx context.Context, evt queue.Event) error {
	var field string
	var delta int64
	switch evt.Type {
	case queue.EventCheckin:
		field, delta = "checkins", 1
	case queue.EventCheckout:
		field, delta = "checkouts", 1
	case queue.EventUndoCheckin:
		field, delta = "checkins", -1
	case queue.EventUndoCheckout:
		field, delta = "checkouts", -1
	default:
		return nil
	}
	if err := t.client.HIncrBy(ctx, keyPrefix+evt.SessionID, field, delta).Err(); err != nil {
		return fmt.Errorf("tally %s: %w", evt.Type, err)
	}
	return nil
}

// Counts returns the session's current tally. Missing keys read as zero.
func (t *Tracker) Counts(ctx context.Context, sessionID string) (Tally, error) {
	vals, err := t.client.HGetAll(ctx, keyPrefix+sessionID).Result()
	if err != nil {
		return Tally{}, fmt.Errorf("tally read: %w", err)
	}
	return Tally{
		Checkins:  counterField(vals, "checkins"),
		Checkouts: counterField(vals, "checkouts"),
	}, nil
}

// counterField decodes one hash field. Missing, corrupt or negative values
// read as zero; undo events can legitimately drive a field below zero.
func counterField(vals map[string]string, field string) int64 {
	raw, ok := vals[field]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
