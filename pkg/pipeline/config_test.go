package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/footprint/pkg/changes"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(DSNEnv, "postgres://footprint@localhost/footprint?sslmode=disable")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.Equal(t, "./temp_bdot10k", cfg.TempDir)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "bubd", cfg.Layer.Kind)
	assert.Equal(t, regions.YearRange{From: 2014, To: 2023}, cfg.Years)
	assert.Equal(t, regions.Default(), cfg.Regions)
	assert.Equal(t, "public", cfg.Store.Schema)
	assert.Equal(t, 2180, cfg.Store.SRID)
	assert.Equal(t, changes.GapReset, cfg.Changes.GapPolicy)
	assert.Equal(t, "@weekly", cfg.Watch.Schedule)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv(DSNEnv, "")

	path := writeConfig(t, `
logging: debug
healthCheckAddr: ":9191"
tempDir: /var/cache/footprint
concurrency: 4
years:
  from: 2016
  to: 2018
regions:
  - code: "22"
    regions:
      - code: "2261"
        name: Gdańsk
store:
  dsn: postgres://localhost/gis
  schema: bdot
  queryTimeout: 1m
redis:
  address: redis://localhost:6379/2
changes:
  gapPolicy: carry
watch:
  schedule: "0 3 * * 1"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging)
	require.NotNil(t, cfg.Server.HealthCheckAddr)
	assert.Equal(t, ":9191", *cfg.Server.HealthCheckAddr)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []int{2016, 2017, 2018}, cfg.Years.Years())
	assert.Equal(t, "22", cfg.Regions.Regions()[0].Parent)
	assert.Equal(t, "bdot", cfg.Store.Schema)
	assert.Equal(t, time.Minute, cfg.Store.QueryTimeout)
	assert.Equal(t, 2180, cfg.Store.SRID, "unset keys keep their defaults")
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "footprint", cfg.Redis.Prefix)
	assert.Equal(t, changes.GapCarry, cfg.Changes.GapPolicy)
}

func TestLoadConfig_EnvOverridesDSN(t *testing.T) {
	t.Setenv(DSNEnv, "postgres://env/gis")

	cfg, err := LoadConfig(writeConfig(t, "store:\n  dsn: postgres://file/gis\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/gis", cfg.Store.DSN)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(DSNEnv, "postgres://localhost/gis")

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad logging", content: "logging: loud\n"},
		{name: "zero concurrency", content: "concurrency: 0\n"},
		{name: "years reversed", content: "years: {from: 2020, to: 2015}\n"},
		{name: "region outside parent", content: "regions: [{code: \"22\", regions: [{code: \"1465\", name: Warszawa}]}]\n"},
		{name: "gap policy", content: "changes: {gapPolicy: skip}\n"},
		{name: "report format", content: "report: {format: png}\n"},
		{name: "schedule", content: "watch: {schedule: \"every tuesday\"}\n"},
		{name: "redis address", content: "redis: {address: \"tcp://\"}\n"},
		{name: "malformed yaml", content: "years: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_DSNRequired(t *testing.T) {
	t.Setenv(DSNEnv, "")

	_, err := LoadConfig(writeConfig(t, "logging: info\n"))
	assert.Error(t, err)
}
