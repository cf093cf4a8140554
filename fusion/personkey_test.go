package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePersonKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Bryan", "bryan"},
		{"spaces collapse", "Bryan  Sray", "bryan-sray"},
		{"punctuation collapses", "O'Brien, Jr.", "o-brien-jr"},
		{"leading trailing stripped", "  --Dave--  ", "dave"},
		{"digits kept", "Player 2", "player-2"},
		{"empty", "", UnknownPersonKey},
		{"whitespace only", "   ", UnknownPersonKey},
		{"punctuation only", "!!!", UnknownPersonKey},
		{"mixed unicode stripped", "Zoë", "zo"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				assert.Equal(t, tt.expected, NormalizePersonKey(tt.input))
			},
		)
	}
}

func TestNormalizePersonKeyIdempotent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"Bryan Sray", "a--b", "Player 2", "!!!"} {
		once := NormalizePersonKey(input)
		assert.Equal(t, once, NormalizePersonKey(once))
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "area-52", slugify("Area 52"))
	assert.Equal(t, "stormrage", slugify("Stormrage"))
	assert.Equal(t, "khazgoroth", slugify("Khaz'goroth"))
}
