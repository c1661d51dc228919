package identity

import (
	"fmt"
	"os"
	"path/filepath"
)

const bundleFile = "bundle.pem"

// BundlePath returns the location of the combined key+certificate file.
func BundlePath(dir string) string {
	return filepath.Join(dir, bundleFile)
}

// WriteBundle writes the private key followed by the certificate to
// <dir>/bundle.pem. The content is staged in a temporary file and renamed
// into place so readers never observe a partial bundle.
func WriteBundle(cert *Certificate) error {
	path := BundlePath(cert.Dir)

	tmp, err := os.CreateTemp(cert.Dir, ".bundle-*.pem")
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod bundle: %w", err)
	}
	if _, err := tmp.Write(cert.Key); err != nil {
		tmp.Close()
		return fmt.Errorf("write bundle key: %w", err)
	}
	if _, err := tmp.Write(cert.Cert); err != nil {
		tmp.Close()
		return fmt.Errorf("write bundle certificate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install bundle %s: %w", path, err)
	}
	return nil
}
