package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
oracle:
  allocator:
    base_url: http://oracle:5000/api
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, 30, cfg.Oracle.TimeoutSeconds)
	assert.Equal(t, "/allocate", cfg.Oracle.Allocator.Path)
	assert.Equal(t, "thompson_sampling", cfg.Engine.Method)
	assert.Equal(t, 10.0, cfg.Engine.ChangeThresholdPct)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	// forecaster 未配置时沿用 allocator 同源
	assert.Equal(t, "http://oracle:5000/api", cfg.Oracle.Forecaster.BaseURL)
	assert.Equal(t, "/forecast", cfg.Oracle.Forecaster.Path)
}

func TestLoad_IncludeMerging(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
oracle:
  allocator:
    base_url: http://base:5000
engine:
  change_threshold_pct: 15
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
engine:
  min_budget_per_variant: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://base:5000", cfg.Oracle.Allocator.BaseURL)
	assert.Equal(t, 15.0, cfg.Engine.ChangeThresholdPct)
	assert.Equal(t, 5.0, cfg.Engine.MinBudgetPerVariant)
}

func TestLoad_ValidationFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeFile(t, dir, "no_oracle.yaml", `
app:
  env: prod
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.allocator.base_url")

	_, err = Load(writeFile(t, dir, "bad_ledger.yaml", `
oracle:
  allocator:
    base_url: http://oracle:5000
ledger:
  driver: postgres
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.driver")

	_, err = Load(writeFile(t, dir, "bad_bounds.yaml", `
oracle:
  allocator:
    base_url: http://oracle:5000
engine:
  min_budget_per_variant: 50
  max_budget_per_variant: 10
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_budget_per_variant")
}

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("15m"))
	assert.True(t, IsValidInterval("4h"))
	assert.True(t, IsValidInterval("1d"))
	assert.False(t, IsValidInterval(""))
	assert.False(t, IsValidInterval("h4"))
	assert.False(t, IsValidInterval("10x"))
}
