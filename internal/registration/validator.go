// Package registration decides whether this host is registered with the
// fleet management service.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/magicaleks/katello-agent/internal/domain"
	"github.com/magicaleks/katello-agent/internal/identity"
)

// IdentityReader gives access to the locally installed consumer identity.
type IdentityReader interface {
	ExistsAndValid() bool
	Read() (*identity.Certificate, error)
}

// ConsumerChecker confirms a consumer id with the subscription service.
type ConsumerChecker interface {
	GetConsumer(ctx context.Context, consumerID string) error
}

// Validator owns the process-wide registration state. Validate is the
// only writer.
type Validator struct {
	identity   IdentityReader
	consumers  ConsumerChecker
	logger     *slog.Logger
	registered atomic.Bool
}

func NewValidator(identity IdentityReader, consumers ConsumerChecker, logger *slog.Logger) *Validator {
	return &Validator{
		identity:  identity,
		consumers: consumers,
		logger:    logger,
	}
}

// Registered returns the outcome of the last Validate call.
func (v *Validator) Registered() bool {
	return v.registered.Load()
}

// Validate refreshes the registration state. Without a valid local
// certificate no remote call is made. A consumer the service reports as
// gone downgrades the state to unregistered. Any other failure leaves the
// state unregistered and is returned to the caller.
func (v *Validator) Validate(ctx context.Context) (bool, error) {
	v.registered.Store(false)

	if !v.identity.ExistsAndValid() {
		v.logger.Info("no valid consumer certificate, not registered")
		return false, nil
	}

	cert, err := v.identity.Read()
	if err != nil {
		return false, fmt.Errorf("read consumer identity: %w", err)
	}

	err = v.consumers.GetConsumer(ctx, cert.ConsumerID)
	switch {
	case err == nil:
		v.registered.Store(true)
		v.logger.Info("registration confirmed", "consumer_id", cert.ConsumerID)
		return true, nil
	case errors.Is(err, domain.ErrRemoteNotFound):
		v.logger.Warn("consumer deleted by subscription service", "consumer_id", cert.ConsumerID)
		return false, nil
	default:
		return false, fmt.Errorf("confirm consumer %s: %w", cert.ConsumerID, err)
	}
}
