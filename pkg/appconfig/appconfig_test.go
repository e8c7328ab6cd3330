package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesYamlThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
data_dir: /var/lib/swarmclient
logging:
  level: warn
`), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("SWARMCLIENT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SWARMCLIENT_LOG_LEVEL") })

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/swarmclient", cfg.DataDir)
	require.Equal(t, "debug", cfg.Logging.Level) // env overrides yaml
	require.Equal(t, 25, cfg.Batch.QueueCapacity) // default preserved
}

func TestLoad_MissingFilesFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
}
