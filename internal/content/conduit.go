// Package content dispatches install, update and uninstall requests for
// content units to the package backend.
package content

import (
	"context"
	"fmt"

	"github.com/magicaleks/katello-agent/internal/identity"
)

type IdentityReader interface {
	Read() (*identity.Certificate, error)
}

// Conduit is the backend's view of the call it is serving.
type Conduit struct {
	ctx        context.Context
	consumerID string
}

// NewConduit binds a conduit to the call context. The consumer id is
// resolved once, from the certificate installed now.
func NewConduit(ctx context.Context, id IdentityReader) (*Conduit, error) {
	cert, err := id.Read()
	if err != nil {
		return nil, fmt.Errorf("resolve consumer id: %w", err)
	}
	return &Conduit{ctx: ctx, consumerID: cert.ConsumerID}, nil
}

func (c *Conduit) ConsumerID() string {
	return c.consumerID
}

// Context returns the call context the conduit is bound to.
func (c *Conduit) Context() context.Context {
	return c.ctx
}

// Cancelled reports whether the caller asked to cancel. Backends poll it
// between steps.
func (c *Conduit) Cancelled() bool {
	return c.ctx.Err() != nil
}

// UpdateProgress is intentionally a no-op: progress is not reported back
// at this layer.
func (c *Conduit) UpdateProgress(any) {}
