package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SecretHeader carries the local API secret.
const SecretHeader = "X-Katello-Agent-Secret"

// AuthMiddleware validates SecretHeader against secret. Requests for the
// public paths pass through.
func AuthMiddleware(secret string, public ...string) gin.HandlerFunc {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := open[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		provided := c.GetHeader(SecretHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ok":    false,
				"error": "missing " + SecretHeader + " header",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":    false,
				"error": "invalid secret",
			})
			return
		}

		c.Next()
	}
}

// PendingMiddleware marks the call as in flight by creating a uniquely
// named file in dir for the duration of the request. The restart
// coordinator treats a non-empty dir as busy.
func PendingMiddleware(dir string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create pending dir", "dir", dir, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"ok":    false,
				"error": "agent cannot track pending calls",
			})
			return
		}

		marker := filepath.Join(dir, uuid.New().String())
		if err := os.WriteFile(marker, []byte(c.Request.URL.Path), 0o644); err != nil {
			logger.Error("create pending marker", "path", marker, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"ok":    false,
				"error": "agent cannot track pending calls",
			})
			return
		}
		defer func() {
			if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
				logger.Warn("remove pending marker", "path", marker, "err", err)
			}
		}()

		c.Next()
	}
}

// LoggingMiddleware logs each call once it completes. Failed calls are
// logged at warn level.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "api call",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
		)
	}
}

// RecoveryMiddleware turns a panic in a handler into a 500 reply.
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("api call panicked",
					"panic", r,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"ok":    false,
					"error": "internal agent error",
				})
			}
		}()
		c.Next()
	}
}
