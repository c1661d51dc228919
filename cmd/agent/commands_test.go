package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KATELLO_AGENT_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("KATELLO_AGENT_LOG_DIR", filepath.Join(dir, "log"))
	t.Setenv("KATELLO_AGENT_PENDING_ROOT", filepath.Join(dir, "pending"))
	t.Setenv("KATELLO_AGENT_RESTART_MARKER", filepath.Join(dir, "restart"))
	t.Setenv("KATELLO_AGENT_RESTART_COMMAND", "true")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
}

func TestRestartRequestAndApply(t *testing.T) {
	dir := setEnv(t)
	marker := filepath.Join(dir, "restart")

	out, err := execute(t, "restart", "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "no restart issued")

	_, err = execute(t, "restart", "request")
	require.NoError(t, err)
	assert.FileExists(t, marker)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pending", "katello"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending", "katello", "call"), nil, 0o644))
	out, err = execute(t, "restart", "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "no restart issued")
	assert.FileExists(t, marker)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "pending")))
	_, err = execute(t, "restart", "apply")
	require.NoError(t, err)
	assert.NoFileExists(t, marker)
}
