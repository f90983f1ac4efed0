package qr

import (
	"crypto/rand"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Alphabet deliberately drops I, O, 0 and 1 so codes read back from a
// printed sheet or over the phone cannot be mistyped.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is fixed; codes are generated once at session creation and
// never rotated.
const CodeLength = 10

// NewCode returns a random session code. The alphabet has 32 symbols, so
// masking a random byte to 5 bits stays uniform.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = Alphabet[b&31]
	}
	return string(out), nil
}

// RenderPNG renders an encoded payload as a square PNG of the given pixel
// size.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
