package content

import (
	"context"
	"log/slog"

	"github.com/magicaleks/katello-agent/internal/domain"
)

// Report is a backend result that can be rendered for the caller.
type Report interface {
	Map() map[string]any
}

// Backend performs the package operations.
type Backend interface {
	Install(c *Conduit, units []domain.Unit, options domain.Options) (Report, error)
	Update(c *Conduit, units []domain.Unit, options domain.Options) (Report, error)
	Uninstall(c *Conduit, units []domain.Unit, options domain.Options) (Report, error)
}

type operation func(Backend, *Conduit, []domain.Unit, domain.Options) (Report, error)

// Dispatcher maps content requests onto the backend. Backend errors are
// returned unchanged.
type Dispatcher struct {
	backend  Backend
	identity IdentityReader
	logger   *slog.Logger
}

func NewDispatcher(backend Backend, id IdentityReader, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{backend: backend, identity: id, logger: logger}
}

func (d *Dispatcher) Install(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error) {
	return d.dispatch(ctx, "install", Backend.Install, units, options)
}

func (d *Dispatcher) Update(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error) {
	return d.dispatch(ctx, "update", Backend.Update, units, options)
}

func (d *Dispatcher) Uninstall(ctx context.Context, units []domain.Unit, options domain.Options) (map[string]any, error) {
	return d.dispatch(ctx, "uninstall", Backend.Uninstall, units, options)
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, op operation, units []domain.Unit, options domain.Options) (map[string]any, error) {
	conduit, err := NewConduit(ctx, d.identity)
	if err != nil {
		return nil, err
	}

	d.logger.Info("content request",
		"op", name,
		"units", len(units),
		"consumer_id", conduit.ConsumerID(),
	)

	report, err := op(d.backend, conduit, units, options)
	if err != nil {
		return nil, err
	}
	return report.Map(), nil
}
