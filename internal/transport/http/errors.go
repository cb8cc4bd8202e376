package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the acknowledgement shape shared by mutating endpoints.
type MessageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func statusFor(err error) int {
	switch chat.Code(err) {
	case chat.CodeBadRequest, chat.CodeInvalidParticipants:
		return http.StatusBadRequest
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status matching err. Internal errors are logged and
// reported without detail.
func writeError(c *gin.Context, logger *zerolog.Logger, err error, op string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	logger.Debug().Err(err).Str("op", op).Int("status", status).Msg("request rejected")
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
