package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kvs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_dir: /var/lib/kvs
worker_pool_size: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/kvs", cfg.StoreDir)
	require.Equal(t, 8, cfg.WorkerPoolSize)
	require.Equal(t, Default().ServerAddress, cfg.ServerAddress)
	require.Equal(t, Default().CompactionThreshold, cfg.CompactionThreshold)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kvs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
