package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the agent's local control API. It plays the part of the host
// dispatch runtime: each content call gets a pending marker and its
// request context doubles as the cancellation signal.
type Server struct {
	http *http.Server
}

func New(addr, secret, pendingDir string, h *Handler, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))
	router.Use(AuthMiddleware(secret, "/ping"))

	router.GET("/ping", h.Ping)
	router.GET("/status", h.Status)
	router.POST("/settings/refresh", h.RefreshSettings)
	router.POST("/agent/restart", h.RequestRestart)

	content := router.Group("/content", PendingMiddleware(pendingDir, logger))
	content.POST("/:op", h.Content)

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
