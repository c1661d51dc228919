package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/magicaleks/katello-agent/internal/domain"
)

type ContentService interface {
	Install(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error)
	Update(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error)
	Uninstall(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error)
}

type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type RegistrationSource interface {
	Registered() bool
}

type SettingsSource interface {
	Settings() domain.MessagingSettings
}

type RestartRequester interface {
	Request() error
	Requested() bool
}

type Handler struct {
	content      ContentService
	refresher    Refresher
	registration RegistrationSource
	settings     SettingsSource
	restart      RestartRequester
	logger       *slog.Logger
}

func NewHandler(
	content ContentService,
	refresher Refresher,
	registration RegistrationSource,
	settings SettingsSource,
	restart RestartRequester,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		content:      content,
		refresher:    refresher,
		registration: registration,
		settings:     settings,
		restart:      restart,
		logger:       logger,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type statusResponse struct {
	Registered       bool                     `json:"registered"`
	Messaging        domain.MessagingSettings `json:"messaging"`
	RestartRequested bool                     `json:"restart_requested"`
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"data": statusResponse{
			Registered:       h.registration.Registered(),
			Messaging:        h.settings.Settings(),
			RestartRequested: h.restart.Requested(),
		},
	})
}

type contentRequest struct {
	Units   []domain.Unit  `json:"units" binding:"required"`
	Options domain.Options `json:"options"`
}

type contentOp func(ContentService, context.Context, []domain.Unit, domain.Options) (map[string]any, error)

var contentOps = map[string]contentOp{
	"install":   ContentService.Install,
	"update":    ContentService.Update,
	"uninstall": ContentService.Uninstall,
}

// Content runs install, update or uninstall. The request context is the
// call's cancellation signal.
func (h *Handler) Content(c *gin.Context) {
	name := c.Param("op")
	op, ok := contentOps[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown content operation: " + name})
		return
	}

	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if req.Options == nil {
		req.Options = domain.Options{}
	}

	report, err := op(h.content, c.Request.Context(), req.Units, req.Options)
	if err != nil {
		h.logger.Error("content operation failed", "op", name, "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotRegistered) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": report})
}

func (h *Handler) RefreshSettings(c *gin.Context) {
	registered, err := h.refresher.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("settings refresh failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"data": gin.H{"registered": registered, "messaging": h.settings.Settings()},
	})
}

func (h *Handler) RequestRestart(c *gin.Context) {
	if err := h.restart.Request(); err != nil {
		h.logger.Error("restart request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
