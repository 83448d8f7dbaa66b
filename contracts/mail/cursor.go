package mail

import (
	"fmt"
	"math/big"
	"strings"
)

// Cursor is an opaque, monotonically non-decreasing change pointer for a
// mailbox. It is stored and compared as a textual arbitrary-precision
// integer: provider history ids exceed 2^53, so the value must never pass
// through a float64.
type Cursor string

// ParseCursor validates the textual form without losing precision.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("cursor is empty")
	}
	if _, ok := new(big.Int).SetString(s, 10); !ok {
		return "", fmt.Errorf("cursor %q is not a base-10 integer", s)
	}
	return Cursor(s), nil
}

func (c Cursor) String() string { return string(c) }

// IsZero reports whether no cursor is stored.
func (c Cursor) IsZero() bool { return c == "" }

// Cmp compares two cursors as arbitrary-precision integers.
// An empty cursor sorts before any stored one.
func (c Cursor) Cmp(other Cursor) int {
	if c == other {
		return 0
	}
	if c.IsZero() {
		return -1
	}
	if other.IsZero() {
		return 1
	}
	a, aok := new(big.Int).SetString(string(c), 10)
	b, bok := new(big.Int).SetString(string(other), 10)
	if !aok || !bok {
		// Malformed cursors never come from ParseCursor; fall back to
		// a stable textual comparison rather than panic.
		return strings.Compare(string(c), string(other))
	}
	return a.Cmp(b)
}

// MaxCursor returns the greater of two cursors.
func MaxCursor(a, b Cursor) Cursor {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
