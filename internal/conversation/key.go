// Package conversation derives the stable addressing key shared by the two
// participants of a direct conversation.
package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the two participant identifiers in the external key format.
const Separator = "_"

var (
	// ErrInvalidParticipants is returned when a key cannot be formed from the given users.
	ErrInvalidParticipants = errors.New("invalid participants")
	// ErrMalformedKey is returned when a string is not a canonical conversation key.
	ErrMalformedKey = errors.New("malformed conversation key")
)

// Key is the ordered participant pair of a conversation. Low sorts before High.
type Key struct {
	Low  string
	High string
}

// Derive builds the key for a and b. The result is the same for (a, b) and (b, a).
func Derive(a, b string) (Key, error) {
	if a == "" || b == "" {
		return Key{}, fmt.Errorf("%w: participant id is empty", ErrInvalidParticipants)
	}
	if a == b {
		return Key{}, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidParticipants)
	}
	if strings.Contains(a, Separator) || strings.Contains(b, Separator) {
		return Key{}, fmt.Errorf("%w: participant id contains %q", ErrInvalidParticipants, Separator)
	}
	if a > b {
		a, b = b, a
	}
	return Key{Low: a, High: b}, nil
}

// Parse reads a key in its external "low_high" form. Only canonical keys are accepted:
// exactly two distinct non-empty ids in sorted order.
func Parse(s string) (Key, error) {
	low, high, ok := strings.Cut(s, Separator)
	if !ok || low == "" || high == "" || strings.Contains(high, Separator) {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	if low >= high {
		return Key{}, fmt.Errorf("%w: %q is not in canonical order", ErrMalformedKey, s)
	}
	return Key{Low: low, High: high}, nil
}

// String returns the external key format.
func (k Key) String() string {
	return k.Low + Separator + k.High
}

// IsZero reports whether k is the empty key.
func (k Key) IsZero() bool {
	return k.Low == "" && k.High == ""
}

// Has reports whether userID is one of the two participants.
func (k Key) Has(userID string) bool {
	return userID != "" && (userID == k.Low || userID == k.High)
}

// Other returns the participant that is not userID.
func (k Key) Other(userID string) (string, bool) {
	switch userID {
	case k.Low:
		return k.High, true
	case k.High:
		return k.Low, true
	default:
		return "", false
	}
}

// Participants returns both ids in key order.
func (k Key) Participants() []string {
	return []string{k.Low, k.High}
}
