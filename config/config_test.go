package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theplant/regsync/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 500, cfg.Import.PageSize)
	assert.Equal(t, 1, cfg.Import.Parallelism)
	assert.Equal(t, "regsync_import", cfg.Schedule.QueueName)
	assert.Equal(t, 7*24*time.Hour, cfg.Schedule.ConsistencyDelay)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/regsync
import:
  page_size: 250
  parallelism: 4
source:
  provider_url: https://data.example.gov/provider-info
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 250, cfg.Import.PageSize)
	assert.Equal(t, 4, cfg.Import.Parallelism)
	assert.Equal(t, "https://data.example.gov/provider-info", cfg.Source.ProviderURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
import:
  page_size: 0
`), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
