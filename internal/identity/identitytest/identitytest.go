// Package identitytest writes throwaway consumer identities for tests.
package identitytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Material is the PEM encoded identity that was written.
type Material struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Write creates cert.pem and key.pem in dir for a self-signed certificate
// whose subject CN is consumerID and which is valid from notBefore to notAfter.
func Write(t *testing.T, dir, consumerID string, notBefore, notAfter time.Time) Material {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: consumerID},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	m := Material{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), m.CertPEM, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), m.KeyPEM, 0o600))
	return m
}

// WriteValid writes an identity valid for a day either side of now.
func WriteValid(t *testing.T, dir, consumerID string) Material {
	t.Helper()
	now := time.Now()
	return Write(t, dir, consumerID, now.Add(-24*time.Hour), now.Add(24*time.Hour))
}
