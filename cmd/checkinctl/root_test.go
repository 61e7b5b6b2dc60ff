package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	t.Parallel()

	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"bootstrap", "history", "diff", "energy", "milestone"} {
		require.True(t, names[want], "missing command %s", want)
	}
}

func TestRequiredFlags(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "energy", "--teammate", "tm-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required flag")

	_, err = execute(t, "diff")
	require.Error(t, err)
	require.Contains(t, err.Error(), "snapshot")
}

func TestInvalidDateFailsBeforeConnecting(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "milestone", "--config", "/nonexistent.yaml", "--teammate", "tm-1", "--ability", "ab-1", "--level", "2", "--attained-on", "02/01/2024")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid date")
}

func TestEffectiveConfigPath(t *testing.T) {
	opts := &rootOptions{configPath: "custom.yaml"}
	require.Equal(t, "custom.yaml", opts.effectiveConfigPath())

	t.Setenv("CONFIG_PATH", "env.yaml")
	require.Equal(t, "env.yaml", (&rootOptions{}).effectiveConfigPath())
}

func TestParseOptionalDate(t *testing.T) {
	t.Parallel()

	d, err := parseOptionalDate("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	d, err = parseOptionalDate("2024-03-01")
	require.NoError(t, err)
	require.Equal(t, 3, int(d.Month()))
}
