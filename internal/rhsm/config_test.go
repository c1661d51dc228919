package rhsm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/magicaleks/katello-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const current = `
[server]
hostname = katello.example.com
port = 8443
prefix = /rhsm

[rhsm]
ca_cert_dir = /etc/rhsm/ca/
repo_ca_cert = %(ca_cert_dir)skatello-server-ca.pem
`

const legacy = `
[server]
hostname = katello.example.com
ca_cert_dir = /etc/rhsm/ca/

[rhsm]
repo_ca_cert = %(ca_cert_dir)skatello-server-ca.pem
`

func parse(t *testing.T, data string) *Config {
	t.Helper()
	cfg, err := Parse("rhsm.conf", []byte(data))
	require.NoError(t, err)
	return cfg
}

func TestCACertDir(t *testing.T) {
	t.Run("CurrentLayout", func(t *testing.T) {
		dir, err := parse(t, current).CACertDir()
		require.NoError(t, err)
		assert.Equal(t, "/etc/rhsm/ca/", dir)
	})

	t.Run("LegacyLayout", func(t *testing.T) {
		dir, err := parse(t, legacy).CACertDir()
		require.NoError(t, err)
		assert.Equal(t, "/etc/rhsm/ca/", dir)
	})

	t.Run("CurrentWinsOverLegacy", func(t *testing.T) {
		cfg := parse(t, `
[server]
hostname = h
ca_cert_dir = /old/
[rhsm]
ca_cert_dir = /new/
`)
		dir, err := cfg.CACertDir()
		require.NoError(t, err)
		assert.Equal(t, "/new/", dir)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := parse(t, "[server]\nhostname = h\n").CACertDir()
		var cfgErr domain.ErrConfig
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "rhsm.ca_cert_dir", cfgErr.Key)
	})
}

func TestRepoCACertDir(t *testing.T) {
	for name, data := range map[string]string{"Current": current, "Legacy": legacy} {
		t.Run(name, func(t *testing.T) {
			dir, err := parse(t, data).RepoCACertDir()
			require.NoError(t, err)
			assert.Equal(t, "/etc/rhsm/ca", dir)
		})
	}

	t.Run("NoTrailingSlash", func(t *testing.T) {
		cfg := parse(t, `
[server]
hostname = h
[rhsm]
ca_cert_dir = /etc/rhsm/ca
repo_ca_cert = %(ca_cert_dir)skatello-server-ca.pem
`)
		dir, err := cfg.RepoCACertDir()
		require.NoError(t, err)
		assert.Equal(t, "/etc/rhsm/ca", dir)
	})

	t.Run("NoTemplate", func(t *testing.T) {
		dir, err := parse(t, "[rhsm]\nca_cert_dir = /etc/rhsm/ca/\n").RepoCACertDir()
		require.NoError(t, err)
		assert.Equal(t, "/etc/rhsm/ca", dir)
	})
}

func TestHostnameAndServerURL(t *testing.T) {
	cfg := parse(t, current)

	host, err := cfg.Hostname()
	require.NoError(t, err)
	assert.Equal(t, "katello.example.com", host)

	url, err := cfg.ServerURL()
	require.NoError(t, err)
	assert.Equal(t, "https://katello.example.com:8443/rhsm", url)

	url, err = parse(t, legacy).ServerURL()
	require.NoError(t, err)
	assert.Equal(t, "https://katello.example.com:443/subscription", url)

	_, err = parse(t, "[rhsm]\nca_cert_dir = /x\n").Hostname()
	assert.Error(t, err)
}

func TestInsecure(t *testing.T) {
	assert.False(t, parse(t, current).Insecure())
	assert.True(t, parse(t, "[server]\ninsecure = 1\n").Insecure())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhsm.conf")
	require.NoError(t, os.WriteFile(path, []byte(current), 0o644))

	cfg, err := Loader{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())

	_, err = Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}
