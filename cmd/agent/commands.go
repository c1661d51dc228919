package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/magicaleks/katello-agent/internal/agent"
	"github.com/magicaleks/katello-agent/internal/config"
	"github.com/magicaleks/katello-agent/internal/restart"
	"github.com/spf13/cobra"
)

// setup loads the configuration and a logger writing to <LogDir>/<name>.log.
func setup(name string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	logger, err := config.NewLogger(cfg, name)
	if err != nil {
		return nil, nil, fmt.Errorf("logger error: %w", err)
	}
	return cfg, logger, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup("agent")
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			logger.Info("starting katello-agent",
				"version", config.Version,
				"build_time", config.BuildTime,
				"debug", cfg.Debug,
			)

			ctx, cancel := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM,
			)
			defer cancel()

			a, err := agent.New(cfg, logger)
			if err != nil {
				logger.Error("failed to create agent", "err", err)
				return err
			}

			if err := a.Run(ctx); err != nil {
				logger.Error("agent exited with error", "err", err)
				return err
			}

			logger.Info("agent stopped cleanly")
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the host registration against the subscription service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup("cli")
			if err != nil {
				return err
			}

			a, err := agent.New(cfg, logger)
			if err != nil {
				return err
			}

			registered, err := a.Validate(cmd.Context())
			if err != nil {
				return fmt.Errorf("registration check failed: %w", err)
			}
			if !registered {
				return fmt.Errorf("host is not registered")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registered")
			return nil
		},
	}
}

func restartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Request or apply an agent restart",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "request",
		Short: "Ask the running agent to restart once idle",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c, err := newCoordinator()
			if err != nil {
				return err
			}
			return c.Request()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Restart now if requested and no call is pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newCoordinator()
			if err != nil {
				return err
			}
			restarted, err := c.Apply(cmd.Context())
			if err != nil {
				return err
			}
			if !restarted {
				fmt.Fprintln(cmd.OutOrStdout(), "no restart issued")
			}
			return nil
		},
	})
	return cmd
}

func newCoordinator() (*restart.Coordinator, error) {
	cfg, logger, err := setup("cli")
	if err != nil {
		return nil, err
	}
	return restart.New(
		cfg.RestartMarker,
		restart.PendingDir(cfg.PendingRoot, cfg.Stream),
		cfg.RestartCommand,
		logger,
	), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (built %s)\n", config.Version, config.BuildTime)
		},
	}
}

