package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", home, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestGenesisInitAndValidate(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "genesis", "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, "genesis.yaml"))

	_, err = run(t, home, "genesis", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, home, "genesis", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok, 0 accounts")
}

func TestGenesisValidateRejectsBadParams(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("params:\n  governance:\n    voting_period: 0\n"), 0o644))

	_, err := run(t, home, "genesis", "validate", path)
	assert.Error(t, err)
}

func TestEmptyStateAndEvents(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "state", "heights")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))

	_, err = run(t, home, "state", "show")
	assert.ErrorContains(t, err, "no state")

	out, err = run(t, home, "events", "--kind", "staked")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))

	_, err = run(t, home, "events", "--attr", "missing-equals")
	assert.ErrorContains(t, err, "key=value")
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, programName+" "))
}
