// Package restart restarts the agent service once it is idle.
package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	DefaultMarker  = "/tmp/katello-agent-restart"
	DefaultCommand = "service goferd restart"
)

// CommandRunner runs a shell command and returns its exit status.
type CommandRunner func(ctx context.Context, command string) (int, error)

// Coordinator restarts the agent when a restart has been requested (the
// marker file exists) and no call is pending. The busy check and the
// restart are not atomic: a call arriving in between is not protected.
type Coordinator struct {
	marker     string
	pendingDir string
	command    string
	run        CommandRunner
	logger     *slog.Logger
}

// PendingDir returns the directory holding in-flight call markers for stream.
func PendingDir(root, stream string) string {
	return filepath.Join(root, stream)
}

func New(marker, pendingDir, command string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		marker:     marker,
		pendingDir: pendingDir,
		command:    command,
		run:        shell,
		logger:     logger,
	}
}

// Requested reports whether the restart marker exists.
func (c *Coordinator) Requested() bool {
	_, err := os.Stat(c.marker)
	return err == nil
}

// Request creates the restart marker.
func (c *Coordinator) Request() error {
	f, err := os.OpenFile(c.marker, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create restart marker: %w", err)
	}
	c.logger.Info("agent restart requested", "marker", c.marker)
	return f.Close()
}

// IsBusy reports whether any call is pending. A missing pending directory
// means idle.
func (c *Coordinator) IsBusy() (bool, error) {
	entries, err := os.ReadDir(c.pendingDir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("list pending calls: %w", err)
	}
	return len(entries) > 0, nil
}

// Restart removes the marker and then runs the restart command, returning
// its exit status. The marker goes first so a restart that kills this
// process cannot leave it behind to trigger another restart on boot.
func (c *Coordinator) Restart(ctx context.Context) (int, error) {
	if err := os.Remove(c.marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return -1, fmt.Errorf("remove restart marker: %w", err)
	}
	c.logger.Info("restarting agent", "command", c.command)

	status, err := c.run(ctx, c.command)
	if err != nil {
		return status, fmt.Errorf("run %q: %w", c.command, err)
	}
	if status != 0 {
		c.logger.Warn("restart command failed", "exit_code", status)
	}
	return status, nil
}

// Apply restarts the agent if a restart is requested and nothing is
// pending. It reports whether the restart command was issued.
func (c *Coordinator) Apply(ctx context.Context) (bool, error) {
	if !c.Requested() {
		return false, nil
	}
	busy, err := c.IsBusy()
	if err != nil {
		return false, err
	}
	if busy {
		c.logger.Debug("restart deferred, agent busy", "pending", c.pendingDir)
		return false, nil
	}
	if _, err := c.Restart(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Run polls Apply every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Apply(ctx); err != nil {
				c.logger.Error("agent restart failed", "err", err)
			}
		}
	}
}

// shell runs command in its own session, detached from ctx: restarting
// the service stops this process, and the command has to survive that.
func shell(_ context.Context, command string) (int, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, err
	}
}
