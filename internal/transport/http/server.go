package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Backend bundles the collaborators served over HTTP.
type Backend struct {
	// Chat is the in-process driver every WebSocket connection binds to.
	Chat *memory.Store
	// Archive serves room history; nil falls back to the messages held by Chat.
	Archive store.Archive
}

// NewServer builds the HTTP server: health check, WebSocket endpoint and room admin API.
// The WebSocket endpoint sits on a plain mux in front of gin so the upgrade gets the raw
// response writer. The admin API exists only when a JWT secret is configured and answers
// admin tokens only.
func NewServer(b Backend, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	jwtCfg := jwtConfigFrom(cfg)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	if jwtCfg != nil {
		rooms := NewRoomHandlers(b.Chat, b.Archive, logger)
		api := router.Group("/api")
		api.Use(AuthMiddleware(jwtCfg, logger), AdminMiddleware(logger))
		api.GET("/rooms/:id/permissions", rooms.ListPermissions)
		api.POST("/rooms/:id/permissions", rooms.GrantPermission)
		api.DELETE("/rooms/:id/permissions/:user", rooms.RevokePermission)
		api.GET("/rooms/:id/users", rooms.ListUsers)
		api.GET("/rooms/:id/messages", rooms.ListMessages)
	} else {
		logger.Warn().Msg("jwt_secret is empty, admin api disabled")
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(b.Chat, cfg, jwtCfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func jwtConfigFrom(cfg *config.Config) *auth.JWTConfig {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}
}
