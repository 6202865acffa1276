package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osgeo/wikiqa/internal/config"
)

func TestLoad_DefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 90, cfg.PlanetRetentionDays)
	assert.Equal(t, 10*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"}, cfg.LLMModelChain)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wikiqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk-size: 750\ndatabase-dsn: postgres://file\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750, cfg.ChunkSize)
	assert.Equal(t, "postgres://file", cfg.DatabaseDSN)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wikiqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database-dsn: postgres://file\n"), 0o600))

	t.Setenv("WIKIQA_DATABASE_DSN", "postgres://env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.ChunkSize)
}

func TestValidate_RequiresDatabaseDSN(t *testing.T) {
	cfg := config.Default()
	cfg.LLMAPIKey = "key"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-dsn")
}

func TestValidate_RequiresLLMAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseDSN = "postgres://x"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm-api-key")
}

func TestValidate_RequiresNonEmptyModelChain(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseDSN = "postgres://x"
	cfg.LLMAPIKey = "key"
	cfg.LLMModelChain = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm-model-chain")
}

func TestValidate_PassesWithRequiredFields(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseDSN = "postgres://x"
	cfg.LLMAPIKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestBootstrapDSN_ReadsDirectlyFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wikiqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database-dsn: postgres://bootstrap\nchunk-size: 999\n"), 0o600))

	assert.Equal(t, "postgres://bootstrap", config.BootstrapDSN(path))
}

func TestBootstrapDSN_MissingFileReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", config.BootstrapDSN(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestBootstrapDSN_UnparsableFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wikiqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(": not valid yaml :::"), 0o600))

	assert.Equal(t, "", config.BootstrapDSN(path))
}
