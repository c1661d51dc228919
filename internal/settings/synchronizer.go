// Package settings derives the messaging connection settings from the
// consumer identity and rhsm.conf.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/magicaleks/katello-agent/internal/domain"
	"github.com/magicaleks/katello-agent/internal/identity"
	"github.com/magicaleks/katello-agent/internal/messaging"
	"github.com/magicaleks/katello-agent/internal/rhsm"
)

const (
	BrokerPort    = 5647
	BrokerScheme  = "proton+amqps"
	DefaultCACert = "katello-default-ca.pem"
	UUIDPrefix    = "pulp.agent."
)

type IdentityReader interface {
	Read() (*identity.Certificate, error)
}

type ConfigLoader interface {
	Load() (*rhsm.Config, error)
}

// Synchronizer writes the credential bundle and applies the derived
// settings to the live messaging config. It never attaches or detaches.
type Synchronizer struct {
	identity    IdentityReader
	rhsm        ConfigLoader
	target      *messaging.Config
	writeBundle func(*identity.Certificate) error
	logger      *slog.Logger
}

func NewSynchronizer(id IdentityReader, loader ConfigLoader, target *messaging.Config, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		identity:    id,
		rhsm:        loader,
		target:      target,
		writeBundle: identity.WriteBundle,
		logger:      logger,
	}
}

// BrokerURL returns the messaging URL for the given server host.
func BrokerURL(host string) string {
	return fmt.Sprintf("%s://%s:%d", BrokerScheme, host, BrokerPort)
}

// ConsumerUUID returns the messaging queue identity for a consumer.
func ConsumerUUID(consumerID string) string {
	return UUIDPrefix + consumerID
}

// Update recomputes url, cacert and uuid. Configuration errors are returned
// as is; nothing is defaulted.
func (s *Synchronizer) Update(_ context.Context) error {
	cert, err := s.identity.Read()
	if err != nil {
		return fmt.Errorf("read consumer identity: %w", err)
	}

	conf, err := s.rhsm.Load()
	if err != nil {
		return fmt.Errorf("load rhsm config: %w", err)
	}
	host, err := conf.Hostname()
	if err != nil {
		return err
	}
	caDir, err := conf.RepoCACertDir()
	if err != nil {
		return err
	}

	next := domain.MessagingSettings{
		URL:    BrokerURL(host),
		CACert: filepath.Join(caDir, DefaultCACert),
		UUID:   ConsumerUUID(cert.ConsumerID),
	}

	if err := s.writeBundle(cert); err != nil {
		return fmt.Errorf("write credential bundle: %w", err)
	}
	s.target.Apply(next)

	s.logger.Info("messaging settings updated",
		"url", next.URL,
		"cacert", next.CACert,
		"uuid", next.UUID,
	)
	return nil
}
