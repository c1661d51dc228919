package identity

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/magicaleks/katello-agent/internal/domain"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"
)

// Certificate is the consumer identity issued at registration.
type Certificate struct {
	// Dir is the identity directory the material was read from.
	Dir        string
	ConsumerID string
	Key        []byte
	Cert       []byte
	NotAfter   time.Time
}

// Store reads the consumer identity installed by subscription-manager.
// Nothing is cached: every Read goes back to disk.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a Store for the identity directory (normally /etc/pki/consumer).
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) CertPath() string {
	return filepath.Join(s.dir, certFile)
}

func (s *Store) KeyPath() string {
	return filepath.Join(s.dir, keyFile)
}

// ExistsAndValid reports whether both identity files exist and the
// certificate parses and is within its validity window.
func (s *Store) ExistsAndValid() bool {
	_, err := s.Read()
	return err == nil
}

// Read loads and parses the identity. A missing, malformed or expired
// certificate yields an error wrapping domain.ErrNotRegistered.
func (s *Store) Read() (*Certificate, error) {
	certPEM, err := os.ReadFile(s.CertPath())
	if err != nil {
		return nil, notRegistered("read certificate", err)
	}
	keyPEM, err := os.ReadFile(s.KeyPath())
	if err != nil {
		return nil, notRegistered("read key", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, notRegistered("decode certificate", errors.New("no CERTIFICATE block"))
	}
	x509Cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, notRegistered("parse certificate", err)
	}

	now := s.now()
	if now.Before(x509Cert.NotBefore) || now.After(x509Cert.NotAfter) {
		return nil, notRegistered("certificate validity",
			fmt.Errorf("valid %s to %s", x509Cert.NotBefore.Format(time.RFC3339), x509Cert.NotAfter.Format(time.RFC3339)))
	}

	consumerID := x509Cert.Subject.CommonName
	if consumerID == "" {
		return nil, notRegistered("consumer id", errors.New("certificate has no common name"))
	}

	return &Certificate{
		Dir:        s.dir,
		ConsumerID: consumerID,
		Key:        keyPEM,
		Cert:       certPEM,
		NotAfter:   x509Cert.NotAfter,
	}, nil
}

func notRegistered(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrNotRegistered, op, err)
}
