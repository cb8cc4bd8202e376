package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/auth"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/config"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/core"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

// Dependencies are the collaborators the HTTP layer serves.
type Dependencies struct {
	Hub      *core.Hub
	Chat     *chat.Service
	Auth     *auth.Service
	Users    store.UserStore
	Presence presence.Registry
	// Metrics is mounted at cfg.Metrics.Path when set and enabled.
	Metrics stdhttp.Handler
}

// NewServer builds an HTTP server with the REST, websocket and ops routes. /ws
// stays outside gin: its writer cannot be hijacked once the 101 header is out.
func NewServer(deps Dependencies, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), CORSMiddleware(cfg.Server.CORSOrigins))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api", AuthMiddleware(deps.Auth, logger))

	messages := NewMessageHandlers(deps.Chat, logger)
	m := api.Group("/messages")
	m.GET("/conversations", messages.ListConversations)
	m.GET("/conversations/:conversationId", messages.ListConversation)
	m.POST("/conversations/:conversationId/read", messages.MarkRead)
	m.POST("/send", messages.Send)
	m.POST("/share-cart", messages.ShareCart)
	m.POST("/share-product", messages.ShareProduct)
	m.GET("/search", messages.Search)
	m.POST("/:id/reactions", messages.ToggleReaction)
	m.PUT("/:id", messages.Edit)
	m.DELETE("/:id", messages.Delete)
	m.GET("/:id", messages.GetMessage)

	users := NewUserHandlers(deps.Users, deps.Presence, logger)
	api.GET("/users/:id", users.GetUser)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, cfg.Server, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
