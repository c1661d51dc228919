package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/magicaleks/katello-agent/internal/domain"
)

var ErrIncompleteSettings = errors.New("messaging settings incomplete")

// Connection tracks whether the agent is attached to the broker and which
// settings the current attachment uses.
type Connection struct {
	cfg    *Config
	logger *slog.Logger

	mu       sync.Mutex
	attached bool
	active   domain.MessagingSettings
}

func NewConnection(cfg *Config, logger *slog.Logger) *Connection {
	return &Connection{cfg: cfg, logger: logger}
}

// Attach establishes the link using the current Config, or refreshes it
// when the settings changed since the last attach. Attaching again with
// unchanged settings is a no-op.
func (c *Connection) Attach(_ context.Context) error {
	s := c.cfg.Settings()
	if s.URL == "" || s.UUID == "" {
		return ErrIncompleteSettings
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attached && c.active == s {
		c.logger.Debug("messaging already attached", "url", s.URL, "uuid", s.UUID)
		return nil
	}
	if c.attached {
		c.logger.Info("messaging reattaching", "url", s.URL, "uuid", s.UUID)
	} else {
		c.logger.Info("messaging attached", "url", s.URL, "uuid", s.UUID, "cacert", s.CACert)
	}
	c.attached = true
	c.active = s
	return nil
}

// Detach tears the link down. Detaching while detached is a no-op.
func (c *Connection) Detach(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.attached {
		return nil
	}
	c.logger.Info("messaging detached", "url", c.active.URL, "uuid", c.active.UUID)
	c.attached = false
	c.active = domain.MessagingSettings{}
	return nil
}

func (c *Connection) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}
