package fusion

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// shortIDAlphabet is the set of symbols short identifiers are drawn
	// from: uppercase letters and digits, minus I, O, 0 and 1, which are
	// easily confused when read back or typed.
	shortIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// DefaultShortIDLength is the length of generated quote identifiers.
	DefaultShortIDLength = 8

	minShortIDLength = 4
)

// NewShortID returns a random identifier of the given length, drawn
// from [shortIDAlphabet] via a cryptographically secure source.
//
// The result is not guaranteed to be globally unique - uniqueness is
// enforced by the unique index on [Quote.ShortID] at insert time, and
// a collision surfaces as [ErrShortIDConflict], which callers handle
// by regenerating and retrying.
func NewShortID(length int) (string, error) {
	if length < minShortIDLength {
		return "", fmt.Errorf(
			"%w: short id length must be at least %d (got %d)",
			ErrInvalidArgument,
			minShortIDLength,
			length,
		)
	}

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}

	buf := make([]byte, length)
	for i, b := range randomBytes {
		buf[i] = shortIDAlphabet[int(b)%len(shortIDAlphabet)]
	}
	return string(buf), nil
}

// NormalizeShortID trims and uppercases a short identifier as provided
// by a user. Every lookup/delete/restore path normalizes its input
// with this before comparison.
func NormalizeShortID(shortID string) string {
	return strings.ToUpper(strings.TrimSpace(shortID))
}
