package chat

import (
	"errors"
	"fmt"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/conversation"
)

// Error kinds. Every error returned by Service for a caller mistake wraps one of them.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidParticipants = conversation.ErrInvalidParticipants
)

var (
	ErrRecipientRequired  = fmt.Errorf("%w: recipient is required", ErrValidation)
	ErrEmptyContent       = fmt.Errorf("%w: content is required", ErrValidation)
	ErrContentTooLong     = fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	ErrInvalidMessageType = fmt.Errorf("%w: unknown message type", ErrValidation)
	ErrPayloadMismatch    = fmt.Errorf("%w: payload does not match message type", ErrValidation)
	ErrReplyOutside       = fmt.Errorf("%w: reply target is not in this conversation", ErrValidation)
	ErrEmptyQuery         = fmt.Errorf("%w: search query is required", ErrValidation)
	ErrEmptyCart          = fmt.Errorf("%w: no cart found or cart is empty", ErrValidation)
	ErrProductRequired    = fmt.Errorf("%w: product is required", ErrValidation)
	ErrInvalidEmoji       = fmt.Errorf("%w: invalid emoji", ErrValidation)

	ErrRecipientNotFound = fmt.Errorf("%w: recipient not found", ErrNotFound)
	ErrMessageNotFound   = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("%w: product not found", ErrNotFound)

	ErrNotParticipant = fmt.Errorf("%w: access denied to this conversation", ErrForbidden)
	ErrNotSender      = fmt.Errorf("%w: only the sender can change this message", ErrForbidden)
)

// Wire codes for errors reported over the real-time channel.
const (
	CodeBadRequest          = "bad_request"
	CodeNotFound            = "not_found"
	CodeForbidden           = "forbidden"
	CodeInvalidParticipants = "invalid_participants"
	CodeInternal            = "internal"
)

// Code maps err to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParticipants):
		return CodeInvalidParticipants
	case errors.Is(err, ErrValidation):
		return CodeBadRequest
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}

// IsCallerError reports whether err is one of the caller-visible kinds.
func IsCallerError(err error) bool {
	return Code(err) != CodeInternal
}
