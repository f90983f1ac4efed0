package engine

import "time"

// Windows are the open/close boundaries for a session's two actions.
// Check-in and check-out windows may overlap; only startsAt < endsAt is
// guaranteed about their relative position.
type Windows struct {
	CheckinOpensAt   time.Time
	CheckinClosesAt  time.Time
	CheckoutOpensAt  time.Time
	CheckoutClosesAt time.Time
}

// WindowPolicy derives the windows from a session's start and end. The
// school has already changed these offsets once, so the rule is pluggable
// and the validation/transition logic never hardcodes it.
type WindowPolicy func(startsAt, endsAt time.Time) Windows

// OffsetPolicy is the current rule: check-in runs from 30 minutes before
// start to 30 minutes after, check-out from 60 minutes before end to 60
// minutes after.
func OffsetPolicy(startsAt, endsAt time.Time) Windows {
	return Windows{
		CheckinOpensAt:   startsAt.Add(-30 * time.Minute),
		CheckinClosesAt:  startsAt.Add(30 * time.Minute),
		CheckoutOpensAt:  endsAt.Add(-60 * time.Minute),
		CheckoutClosesAt: endsAt.Add(60 * time.Minute),
	}
}

// StaticExpiryPolicy is the older rule that some printed QR sheets still
// encode: the same opening boundaries, but check-in stays valid until 90
// minutes after start and check-out until 10 minutes after end.
func StaticExpiryPolicy(startsAt, endsAt time.Time) Windows {
	return Windows{
		CheckinOpensAt:   startsAt.Add(-30 * time.Minute),
		CheckinClosesAt:  startsAt.Add(90 * time.Minute),
		CheckoutOpensAt:  endsAt.Add(-60 * time.Minute),
		CheckoutClosesAt: endsAt.Add(10 * time.Minute),
	}
}

// ComputeWindows applies policy after checking the one precondition every
// session must satisfy. A nil policy means OffsetPolicy.
func ComputeWindows(policy WindowPolicy, startsAt, endsAt time.Time) (Windows, error) {
	if !endsAt.After(startsAt) {
		return Windows{}, ErrInvalidSessionWindow
	}
	if policy == nil {
		policy = OffsetPolicy
	}
	return policy(startsAt, endsAt), nil
}
