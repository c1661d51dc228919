// Package messaging holds the live connection settings of the agent's
// message broker link and its attach/detach lifecycle. The wire protocol
// itself belongs to the host messaging runtime.
package messaging

import (
	"sync"

	"github.com/magicaleks/katello-agent/internal/domain"
)

// Config is the live messaging configuration. The settings synchronizer is
// its only writer; the connection reads it when attaching.
type Config struct {
	mu       sync.RWMutex
	settings domain.MessagingSettings
}

// Apply replaces url, cacert and uuid together.
func (c *Config) Apply(s domain.MessagingSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
}

// Settings returns a copy of the current values.
func (c *Config) Settings() domain.MessagingSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}
