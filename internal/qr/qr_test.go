package qr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, c := range code {
			assert.Contains(t, Alphabet, string(c))
		}
		seen[code] = true
	}
	// 32^10 values; 50 draws colliding would mean the generator is broken.
	assert.Len(t, seen, 50)
}

func TestAlphabetExcludesAmbiguousSymbols(t *testing.T) {
	for _, banned := range []string{"I", "O", "0", "1"} {
		assert.NotContains(t, Alphabet, banned)
	}
	assert.Len(t, Alphabet, 32)
}

func TestRenderPNG(t *testing.T) {
	png, err := RenderPNG(`{"action":"checkin","sessionId":"s","code":"ABCDEFGHJK","expiresAt":"2026-02-01T09:30:00Z"}`, 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	// Zero size falls back to a renderable default.
	png, err = RenderPNG("x", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
