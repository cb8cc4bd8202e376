package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// UserHandlers provides HTTP handlers for user lookups.
type UserHandlers struct {
	store    store.UserStore
	presence presence.Registry
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(users store.UserStore, registry presence.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    users,
		presence: registry,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsVerified  bool   `json:"isVerified"`
	Online      bool   `json:"online"`
}

// GetUser returns a user profile with its presence.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	if _, ok := requireUser(c, h.log); !ok {
		return
	}

	id := c.Param("id")
	user, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", id).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	online, err := h.presence.IsOnline(c.Request.Context(), user.ID)
	if err != nil {
		// presence is advisory here
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("presence lookup")
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
		IsVerified:  user.IsVerified,
		Online:      online,
	})
}
