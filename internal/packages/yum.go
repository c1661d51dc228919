// Package packages implements the content backend on top of the system
// package manager (yum or dnf).
package packages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/magicaleks/katello-agent/internal/content"
	"github.com/magicaleks/katello-agent/internal/domain"
)

const TypeRPM = "rpm"

var ErrInvalidUnit = errors.New("content unit has no name")

// Runner executes the package manager and returns its combined output.
// The process is killed when ctx is done.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Report is the outcome of one package operation, shaped like a pulp
// handler report.
type Report struct {
	Succeeded       bool
	Details         map[string]any
	NumChanges      int
	RebootScheduled bool
}

func (r *Report) Map() map[string]any {
	return map[string]any{
		"succeeded":        r.Succeeded,
		"details":          r.Details,
		"num_changes":      r.NumChanges,
		"reboot_scheduled": r.RebootScheduled,
	}
}

// Yum drives yum or dnf in non-interactive mode.
type Yum struct {
	binary string
	runner Runner
	logger *slog.Logger
}

func NewYum(binary string, logger *slog.Logger) *Yum {
	if binary == "" {
		binary = "yum"
	}
	return &Yum{binary: binary, runner: execRunner{}, logger: logger}
}

func (y *Yum) Install(c *content.Conduit, units []domain.Unit, options domain.Options) (content.Report, error) {
	if len(units) == 0 {
		return emptyReport(), nil
	}
	return y.run(c, "install", units)
}

// Update updates the given units, or every installed package when no
// units are given and the "all" option is set.
func (y *Yum) Update(c *content.Conduit, units []domain.Unit, options domain.Options) (content.Report, error) {
	if len(units) == 0 && !options.Bool("all", false) {
		return emptyReport(), nil
	}
	return y.run(c, "update", units)
}

func (y *Yum) Uninstall(c *content.Conduit, units []domain.Unit, options domain.Options) (content.Report, error) {
	if len(units) == 0 {
		return emptyReport(), nil
	}
	return y.run(c, "remove", units)
}

func (y *Yum) run(c *content.Conduit, command string, units []domain.Unit) (content.Report, error) {
	specs := make([]string, 0, len(units))
	for _, u := range units {
		spec, err := nevra(u)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if c.Cancelled() {
		return nil, fmt.Errorf("%s %s: %w", y.binary, command, c.Context().Err())
	}

	args := append([]string{"-y", command}, specs...)
	y.logger.Info("running package manager",
		"cmd", y.binary,
		"op", command,
		"packages", strings.Join(specs, " "),
		"consumer_id", c.ConsumerID(),
	)

	output, err := y.runner.Run(c.Context(), y.binary, args...)
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case c.Cancelled():
		y.logger.Warn("package manager cancelled", "op", command)
		return nil, fmt.Errorf("%s %s: %w", y.binary, command, c.Context().Err())
	case errors.As(err, &exitErr):
		y.logger.Warn("package manager failed", "op", command, "exit_code", exitErr.ExitCode())
		return &Report{
			Succeeded: false,
			Details: map[string]any{
				TypeRPM: map[string]any{
					"succeeded": false,
					"details": map[string]any{
						"message":   output,
						"exit_code": exitErr.ExitCode(),
					},
				},
			},
		}, nil
	default:
		return nil, fmt.Errorf("%s %s: %w", y.binary, command, err)
	}

	return &Report{
		Succeeded: true,
		Details: map[string]any{
			TypeRPM: map[string]any{
				"succeeded": true,
				"details": map[string]any{
					"resolved": specs,
					"output":   output,
				},
			},
		},
		NumChanges: len(specs),
	}, nil
}

func emptyReport() *Report {
	return &Report{Succeeded: true, Details: map[string]any{}}
}

// nevra renders a unit as name[-[epoch:]version[-release]][.arch].
func nevra(u domain.Unit) (string, error) {
	name := u.String("name")
	if name == "" {
		return "", ErrInvalidUnit
	}

	var b strings.Builder
	b.WriteString(name)
	if version := u.String("version"); version != "" {
		b.WriteByte('-')
		if epoch := u.String("epoch"); epoch != "" && epoch != "0" {
			b.WriteString(epoch)
			b.WriteByte(':')
		}
		b.WriteString(version)
		if release := u.String("release"); release != "" {
			b.WriteByte('-')
			b.WriteString(release)
		}
	}
	if arch := u.String("arch"); arch != "" {
		b.WriteByte('.')
		b.WriteString(arch)
	}
	return b.String(), nil
}
