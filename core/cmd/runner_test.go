package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	t.Setenv("MENSABOT_CONFIG", "")
	require.Equal(t, existing, resolveConfigPath(Options{ConfigEnvVar: "MENSABOT_CONFIG", DefaultConfigPath: existing}))
	require.Empty(t, resolveConfigPath(Options{ConfigEnvVar: "MENSABOT_CONFIG", DefaultConfigPath: filepath.Join(dir, "missing.yaml")}))

	t.Setenv("MENSABOT_CONFIG", "/etc/mensabot.yaml")
	require.Equal(t, "/etc/mensabot.yaml", resolveConfigPath(Options{ConfigEnvVar: "MENSABOT_CONFIG", DefaultConfigPath: existing}))
}

func TestRunRequiresHooks(t *testing.T) {
	require.Error(t, Run(Options{}))
	require.Error(t, Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}))
}
