package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand_PrintsEffectiveConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "7")
	t.Setenv("REDIS_PASSWORD", "s3cret")

	out, err := runRoot(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "max_requests: 7")
	assert.Contains(t, out, "window_ms: 900000")
	assert.NotContains(t, out, "s3cret")
}

func TestConfigCommand_RejectsInvalidWindow(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW_MS", "-5")

	_, err := runRoot(t, "config")
	assert.Error(t, err)
}

func TestServeCommand_RequiresUpstream(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("SERVER_UPSTREAM_URL", "")

	_, err := runRoot(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_URL")
}

func TestNewProxy_InvalidURL(t *testing.T) {
	_, err := newProxy("://bad", nil)
	assert.Error(t, err)
}
