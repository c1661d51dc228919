package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const envFileVar = "KATELLO_AGENT_ENV_FILE"

// Config holds all agent configuration loaded from environment variables.
type Config struct {
	// Debug enables verbose logging.
	Debug bool

	// DataDir is the root directory for persistent agent data.
	DataDir string

	// LogDir is the directory for log files.
	LogDir string

	// IdentityDir holds the consumer cert.pem/key.pem and the generated bundle.pem.
	IdentityDir string

	// RHSMConfig is the path of the subscription-manager configuration.
	RHSMConfig string

	// PendingRoot and Stream locate the in-flight call markers (<PendingRoot>/<Stream>).
	PendingRoot string
	Stream      string

	// RestartMarker is the file whose presence requests an agent restart.
	RestartMarker string

	// RestartCommand is run through the shell to restart the agent service.
	RestartCommand string

	// RestartInterval is how often a pending restart request is checked.
	RestartInterval time.Duration

	// RetryBackoff is the pause before retrying a failed registration check.
	RetryBackoff time.Duration

	// ListenAddr is the address of the local control API.
	ListenAddr string

	// Secret authenticates callers of the local control API. Generated and
	// persisted under DataDir when empty.
	Secret string

	// PackageManager is the yum-compatible binary used for content operations.
	PackageManager string
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:         "/var/lib/katello-agent",
		LogDir:          "/var/log/katello-agent",
		IdentityDir:     "/etc/pki/consumer",
		RHSMConfig:      "/etc/rhsm/rhsm.conf",
		PendingRoot:     "/var/lib/katello-agent/pending",
		Stream:          "katello",
		RestartMarker:   "/tmp/katello-agent-restart",
		RestartCommand:  "service goferd restart",
		RestartInterval: 10 * time.Second,
		RetryBackoff:    60 * time.Second,
		ListenAddr:      "127.0.0.1:5648",
		PackageManager:  "yum",
	}
}

// Load reads configuration from environment variables, applying defaults
// for anything not explicitly set. Variables from the env file (if it
// exists) fill in anything not already present in the environment.
func Load() (*Config, error) {
	envFile := os.Getenv(envFileVar)
	if envFile == "" {
		envFile = "/etc/sysconfig/katello-agent"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := DefaultConfig()

	cfg.Debug = os.Getenv("KATELLO_AGENT_DEBUG") == "true"

	strVars := map[string]*string{
		"KATELLO_AGENT_DATA_DIR":        &cfg.DataDir,
		"KATELLO_AGENT_LOG_DIR":         &cfg.LogDir,
		"KATELLO_AGENT_IDENTITY_DIR":    &cfg.IdentityDir,
		"KATELLO_AGENT_RHSM_CONFIG":     &cfg.RHSMConfig,
		"KATELLO_AGENT_PENDING_ROOT":    &cfg.PendingRoot,
		"KATELLO_AGENT_STREAM":          &cfg.Stream,
		"KATELLO_AGENT_RESTART_MARKER":  &cfg.RestartMarker,
		"KATELLO_AGENT_RESTART_COMMAND": &cfg.RestartCommand,
		"KATELLO_AGENT_LISTEN_ADDR":     &cfg.ListenAddr,
		"KATELLO_AGENT_SECRET":          &cfg.Secret,
		"KATELLO_AGENT_PACKAGE_MANAGER": &cfg.PackageManager,
	}
	for name, dst := range strVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	durVars := map[string]*time.Duration{
		"KATELLO_AGENT_RESTART_INTERVAL": &cfg.RestartInterval,
		"KATELLO_AGENT_RETRY_BACKOFF":    &cfg.RetryBackoff,
	}
	for name, dst := range durVars {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
		*dst = d
	}

	if cfg.Stream == "" || strings.ContainsRune(cfg.Stream, os.PathSeparator) {
		return nil, fmt.Errorf("KATELLO_AGENT_STREAM must be a plain name")
	}

	return cfg, nil
}
