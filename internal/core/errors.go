package core

import (
	"errors"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
)

// Error codes for connection-level errors. Domain failures use the chat codes.
const (
	ErrCodeBadRequest        = chat.CodeBadRequest
	ErrCodeForbidden         = chat.CodeForbidden
	ErrCodeInternal          = chat.CodeInternal
	ErrCodeNotJoined         = "not_joined"
	ErrCodeAlreadyJoined     = "already_joined"
	ErrCodeNotInConversation = "not_in_conversation"
	ErrCodeRateLimited       = "rate_limited"
)

var (
	ErrNotJoined     = errors.New("join first")
	ErrAlreadyJoined = errors.New("already joined")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// fromError maps a service error to its wire form. Internal details stay in the log.
func fromError(err error) *CoreError {
	code := chat.Code(err)
	if code == chat.CodeInternal {
		return coreError(code, "internal error")
	}
	return coreError(code, err.Error())
}
