package engine

import (
	"encoding/json"
	"strings"
	"time"

	"classtrack/internal/model"
)

// ScanPayload is the QR wire format. Printed and displayed codes already
// carry exactly this JSON shape, so the field names and the RFC 3339
// timestamp encoding must not change.
type ScanPayload struct {
	Action    model.Action
	SessionID string
	Code      string
	ExpiresAt time.Time
}

type wirePayload struct {
	Action    *string `json:"action"`
	SessionID *string `json:"sessionId"`
	Code      *string `json:"code"`
	ExpiresAt *string `json:"expiresAt"`
}

// ParsePayload deserializes a decoded QR string. It fails closed: any
// missing, extra, or mistyped field rejects the whole payload rather than
// falling through to a partially-populated action.
func ParsePayload(raw string) (*ScanPayload, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var wire wirePayload
	if err := dec.Decode(&wire); err != nil {
		return nil, ErrMalformedPayload
	}
	if dec.More() {
		return nil, ErrMalformedPayload
	}
	if wire.Action == nil || wire.SessionID == nil || wire.Code == nil || wire.ExpiresAt == nil {
		return nil, ErrMalformedPayload
	}
	expiresAt, err := time.Parse(time.RFC3339, *wire.ExpiresAt)
	if err != nil {
		return nil, ErrMalformedPayload
	}
	return &ScanPayload{
		Action:    model.Action(*wire.Action),
		SessionID: *wire.SessionID,
		Code:      *wire.Code,
		ExpiresAt: expiresAt,
	}, nil
}

// Encode serializes the payload for QR rendering.
func (p *ScanPayload) Encode() (string, error) {
	action := string(p.Action)
	sessionID := p.SessionID
	code := p.Code
	expiresAt := p.ExpiresAt.UTC().Format(time.RFC3339)
	out, err := json.Marshal(wirePayload{
		Action:    &action,
		SessionID: &sessionID,
		Code:      &code,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
