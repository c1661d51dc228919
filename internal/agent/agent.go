package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magicaleks/katello-agent/internal/config"
	"github.com/magicaleks/katello-agent/internal/content"
	"github.com/magicaleks/katello-agent/internal/identity"
	"github.com/magicaleks/katello-agent/internal/messaging"
	"github.com/magicaleks/katello-agent/internal/monitor"
	"github.com/magicaleks/katello-agent/internal/packages"
	"github.com/magicaleks/katello-agent/internal/registration"
	"github.com/magicaleks/katello-agent/internal/restart"
	"github.com/magicaleks/katello-agent/internal/rhsm"
	"github.com/magicaleks/katello-agent/internal/server"
	"github.com/magicaleks/katello-agent/internal/settings"
	"github.com/magicaleks/katello-agent/internal/storage"
	"github.com/magicaleks/katello-agent/internal/subscription"
)

const (
	subscriptionRetries = 2
	subscriptionTimeout = 30 * time.Second
)

// Agent is the top-level application that orchestrates all subsystems.
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	store      *storage.Store
	identity   *identity.Store
	validator  *registration.Validator
	messaging  *messaging.Config
	link       *messaging.Connection
	settings   *settings.Synchronizer
	paths      *monitor.PathMonitor
	monitor    *monitor.Monitor
	dispatcher *content.Dispatcher
	restart    *restart.Coordinator

	httpServer *server.Server
}

// New creates and wires all agent subsystems. The subscription service
// location is taken from the rhsm configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	id := identity.NewStore(cfg.IdentityDir)
	loader := rhsm.Loader{Path: cfg.RHSMConfig}

	consumers, err := newSubscriptionClient(cfg, id, loader, logger)
	if err != nil {
		return nil, fmt.Errorf("init subscription client: %w", err)
	}

	validator := registration.NewValidator(id, consumers, logger)
	msgCfg := &messaging.Config{}
	link := messaging.NewConnection(msgCfg, logger)
	sync := settings.NewSynchronizer(id, loader, msgCfg, logger)
	paths := monitor.NewPathMonitor(logger)
	mon := monitor.New(id.CertPath(), paths, validator, sync, link, logger).
		WithBackoff(cfg.RetryBackoff)

	yum := packages.NewYum(cfg.PackageManager, logger)
	dispatcher := content.NewDispatcher(yum, id, logger)

	coordinator := restart.New(
		cfg.RestartMarker,
		restart.PendingDir(cfg.PendingRoot, cfg.Stream),
		cfg.RestartCommand,
		logger,
	)

	return &Agent{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		identity:   id,
		validator:  validator,
		messaging:  msgCfg,
		link:       link,
		settings:   sync,
		paths:      paths,
		monitor:    mon,
		dispatcher: dispatcher,
		restart:    coordinator,
	}, nil
}

func newSubscriptionClient(cfg *config.Config, id *identity.Store, loader rhsm.Loader, logger *slog.Logger) (*subscription.Client, error) {
	rc, err := loader.Load()
	if err != nil {
		return nil, err
	}
	baseURL, err := rc.ServerURL()
	if err != nil {
		return nil, err
	}
	caDir, err := rc.CACertDir()
	if err != nil {
		logger.Warn("no ca dir configured, using system roots", "config", rc.Path(), "err", err)
		caDir = ""
	}
	return subscription.NewClient(subscription.Options{
		BaseURL:  baseURL,
		CertPath: id.CertPath(),
		KeyPath:  id.KeyPath(),
		CADir:    caDir,
		Insecure: rc.Insecure(),
		RetryMax: subscriptionRetries,
		Timeout:  subscriptionTimeout,
	}, logger)
}

// Validate runs a single registration check.
func (a *Agent) Validate(ctx context.Context) (bool, error) {
	return a.validator.Validate(ctx)
}

// Run starts certificate monitoring, attaches the messaging link when the
// host is registered, then serves the local API and the restart loop.
// It blocks until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.monitor.Init(ctx); err != nil {
		return fmt.Errorf("init certificate monitor: %w", err)
	}

	if a.validator.Registered() {
		if err := a.link.Attach(ctx); err != nil {
			a.logger.Error("attach messaging link", "err", err)
		}
	} else {
		a.logger.Warn("host is not registered, messaging link stays detached",
			"identity", a.identity.CertPath(),
		)
	}

	go a.restart.Run(ctx, a.cfg.RestartInterval)

	secret := a.cfg.Secret
	if secret == "" {
		var err error
		if secret, err = a.store.Secret(); err != nil {
			return fmt.Errorf("api secret: %w", err)
		}
	}

	handler := server.NewHandler(a.dispatcher, a.monitor, a.validator, a.messaging, a.restart, a.logger)
	a.httpServer = server.New(
		a.cfg.ListenAddr,
		secret,
		restart.PendingDir(a.cfg.PendingRoot, a.cfg.Stream),
		handler,
		a.logger,
	)

	a.logger.Info("agent ready",
		"version", config.Version,
		"registered", a.validator.Registered(),
		"listen", a.cfg.ListenAddr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down agent")
		return a.shutdown()
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (a *Agent) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("http server shutdown error", "err", err)
		}
	}

	if err := a.link.Detach(ctx); err != nil {
		a.logger.Error("detach messaging link", "err", err)
	}

	a.logger.Info("agent stopped")
	return nil
}
