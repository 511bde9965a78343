package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	auth := middleware.Auth(s.userStore)
	rateLimiter := middleware.RateLimiter()

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	s.E.POST("/api/auth/login", s.authHandler.Login, rateLimiter)
	s.E.POST("/api/auth/logout", s.authHandler.Logout)

	api := s.E.Group("/api", auth)
	{
		api.GET("/users", s.messageHandler.Users)
		api.GET("/messages/:peerID", s.messageHandler.List)
		api.POST("/messages/:peerID", s.messageHandler.Send, rateLimiter)
		api.POST("/messages/:id/reactions", s.messageHandler.React, rateLimiter)
		api.DELETE("/messages/:id", s.messageHandler.Delete)
	}

	// The upgrade runs behind the same auth middleware as the API, so the
	// connection is bound to a verified identity, never a claimed one.
	s.E.GET("/ws", s.Bridge.Handler(), auth)

	s.E.GET("/media/:name", s.mediaHandler.Get)
}
