// Package delivery implements the sent -> delivered -> read lifecycle of a
// message and the policy that decides when "delivered" is confirmed.
package delivery

import (
	"errors"
	"fmt"
	"time"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// ErrNotRecipient is returned when someone other than the recipient tries to
// confirm delivery or reading.
var ErrNotRecipient = errors.New("only the recipient can change delivery status")

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// Before reports whether s is strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

// ParseStatus converts a wire value to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown delivery status %q", v)
	}
	return s, nil
}

// State is the persisted delivery portion of a message.
type State struct {
	Status      Status     `json:"status"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// NewState returns the state of a freshly sent message.
func NewState() State {
	return State{Status: StatusSent}
}

// Advance moves the state forward to target and reports whether anything changed.
// Moving backwards or sideways is a no-op. Jumping from sent straight to read also
// stamps DeliveredAt, so a read message is always a delivered one.
func (s *State) Advance(target Status, at time.Time) bool {
	if !target.Valid() || !s.Status.Before(target) {
		return false
	}
	if target.rank() >= StatusDelivered.rank() && s.DeliveredAt == nil {
		t := at
		s.DeliveredAt = &t
	}
	if target == StatusRead && s.ReadAt == nil {
		t := at
		s.ReadAt = &t
	}
	s.Status = target
	return true
}

// Authorize checks that actor may move a message addressed to recipient.
func Authorize(actor, recipient string) error {
	if actor == "" || actor != recipient {
		return ErrNotRecipient
	}
	return nil
}
