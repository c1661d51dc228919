// Package monitor reacts to changes of the consumer identity certificate.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultBackoff is the pause before the single validation retry.
const DefaultBackoff = 60 * time.Second

// Callback is invoked with the path that changed.
type Callback func(ctx context.Context, path string)

// PathWatcher notifies registered callbacks when a watched file changes.
type PathWatcher interface {
	Add(path string, fn Callback) error
	Start(ctx context.Context) error
}

type Validator interface {
	Validate(ctx context.Context) (bool, error)
}

type Synchronizer interface {
	Update(ctx context.Context) error
}

// Link is the messaging connection lifecycle.
type Link interface {
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
}

// Monitor keeps the messaging link in line with the registration state.
type Monitor struct {
	certPath  string
	paths     PathWatcher
	validator Validator
	settings  Synchronizer
	link      Link
	backoff   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger

	// mu serializes refreshes and change handling; both write the
	// registration state and the messaging settings.
	mu sync.Mutex
}

func New(certPath string, paths PathWatcher, validator Validator, settings Synchronizer, link Link, logger *slog.Logger) *Monitor {
	return &Monitor{
		certPath:  certPath,
		paths:     paths,
		validator: validator,
		settings:  settings,
		link:      link,
		backoff:   DefaultBackoff,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// WithBackoff overrides the retry pause.
func (m *Monitor) WithBackoff(d time.Duration) *Monitor {
	m.backoff = d
	return m
}

// Init registers the certificate watch, starts the watcher and runs the
// initial refresh. It never attaches the messaging link. A failed
// refresh leaves the host unregistered until the next certificate change.
func (m *Monitor) Init(ctx context.Context) error {
	if err := m.paths.Add(m.certPath, m.changed); err != nil {
		return fmt.Errorf("watch %s: %w", m.certPath, err)
	}
	if err := m.paths.Start(ctx); err != nil {
		return fmt.Errorf("start path monitor: %w", err)
	}
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Error("initial registration check failed", "err", err)
	}
	return nil
}

// Refresh validates the registration and, when registered, updates the
// messaging settings. The connection is left alone.
func (m *Monitor) Refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	registered, err := m.validate(ctx)
	if err != nil {
		return false, err
	}
	if !registered {
		return false, nil
	}
	if err := m.settings.Update(ctx); err != nil {
		return true, fmt.Errorf("update settings: %w", err)
	}
	return true, nil
}

// CertificateChanged handles one change of the identity certificate:
// registered hosts get fresh settings and an attached link, others are
// detached.
func (m *Monitor) CertificateChanged(ctx context.Context, path string) error {
	m.logger.Info("consumer certificate changed", "path", path)

	m.mu.Lock()
	defer m.mu.Unlock()

	registered, err := m.validate(ctx)
	if err != nil {
		return err
	}
	if !registered {
		if err := m.link.Detach(ctx); err != nil {
			return fmt.Errorf("detach: %w", err)
		}
		return nil
	}

	if err := m.settings.Update(ctx); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if err := m.link.Attach(ctx); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

func (m *Monitor) changed(ctx context.Context, path string) {
	if err := m.CertificateChanged(ctx, path); err != nil {
		m.logger.Error("certificate change not applied", "path", path, "err", err)
	}
}

// validate calls the validator, retrying exactly once after the backoff.
func (m *Monitor) validate(ctx context.Context) (bool, error) {
	registered, err := m.validator.Validate(ctx)
	if err == nil {
		return registered, nil
	}

	m.logger.Warn("registration validation failed, retrying",
		"backoff", m.backoff.String(),
		"err", err,
	)
	if err := m.sleep(ctx, m.backoff); err != nil {
		return false, err
	}

	registered, err = m.validator.Validate(ctx)
	if err != nil {
		return false, fmt.Errorf("validate registration: %w", err)
	}
	return registered, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
