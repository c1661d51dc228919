package agent

import (
	"context"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magicaleks/katello-agent/internal/config"
	"github.com/magicaleks/katello-agent/internal/domain"
	"github.com/magicaleks/katello-agent/internal/identity/identitytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rhsmConf = `[server]
hostname = katello.example.com
port = 443
prefix = /rhsm

[rhsm]
ca_cert_dir = %s
repo_ca_cert = %%(ca_cert_dir)skatello-server-ca.pem
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	caDir := filepath.Join(dir, "ca") + "/"
	require.NoError(t, os.MkdirAll(caDir, 0o755))
	return configWithRHSM(t, dir, fmt.Sprintf(rhsmConf, caDir))
}

func configWithRHSM(t *testing.T, dir, rhsm string) *config.Config {
	t.Helper()
	rhsmPath := filepath.Join(dir, "rhsm.conf")
	require.NoError(t, os.WriteFile(rhsmPath, []byte(rhsm), 0o644))

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.LogDir = filepath.Join(dir, "log")
	cfg.IdentityDir = filepath.Join(dir, "consumer")
	cfg.RHSMConfig = rhsmPath
	cfg.PendingRoot = filepath.Join(dir, "pending")
	cfg.RestartMarker = filepath.Join(dir, "restart")
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestNewRequiresRHSMConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RHSMConfig = filepath.Join(t.TempDir(), "missing.conf")

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestValidateWithoutIdentity(t *testing.T) {
	a, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	registered, err := a.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestRunUnregisteredStaysDetached(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.DataDir, "api_secret"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, a.validator.Registered())
	assert.False(t, a.link.Attached())
	assert.DirExists(t, cfg.IdentityDir)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

const registeredRHSMConf = `[server]
hostname = 127.0.0.1
port = %s
prefix = /rhsm

[rhsm]
ca_cert_dir = %s
repo_ca_cert = %%(ca_cert_dir)skatello-server-ca.pem
`

func TestRunRegisteredAttachesOnce(t *testing.T) {
	const consumerID = "1234"
	var hits atomic.Int32
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/rhsm/consumers/"+consumerID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"uuid":"1234"}`))
	}))
	defer ts.Close()

	dir := t.TempDir()
	caDir := filepath.Join(dir, "ca")
	require.NoError(t, os.MkdirAll(caDir, 0o755))
	serverCA := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(filepath.Join(caDir, "katello-server-ca.pem"), serverCA, 0o644))

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	cfg := configWithRHSM(t, dir, fmt.Sprintf(registeredRHSMConf, u.Port(), caDir+"/"))
	identitytest.WriteValid(t, cfg.IdentityDir, consumerID)

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.link.Attached, 10*time.Second, 10*time.Millisecond)
	assert.True(t, a.validator.Registered())
	assert.Equal(t, int32(1), hits.Load(), "startup validates once")
	assert.Equal(t, domain.MessagingSettings{
		URL:    "proton+amqps://127.0.0.1:5647",
		CACert: filepath.Join(caDir, "katello-default-ca.pem"),
		UUID:   "pulp.agent.1234",
	}, a.messaging.Settings())
	assert.FileExists(t, filepath.Join(cfg.IdentityDir, "bundle.pem"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.False(t, a.link.Attached())
}
