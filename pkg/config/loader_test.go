package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsOnly(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Defaults.MaxIterations)
	assert.Equal(t, 0.05, cfg.Defaults.DeltaThreshold)
	require.NotNil(t, cfg.Defaults.StopOnNoHighIssues)
	assert.True(t, *cfg.Defaults.StopOnNoHighIssues)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Nil(t, cfg.Redis)
}

func TestInitialize_MissingAPIKeyFails(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitialize_UserOverridesMergeOverBuiltins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("ROUNDTABLE_DB_PASSWORD", "hunter2")

	dir := t.TempDir()
	yamlContent := `
defaults:
  max_iterations: 10
  num_participants: 4
llm:
  model: gpt-4o
store:
  backend: postgres
  postgres:
    host: db.internal
    port: 5432
    database: roundtable
    password_env: ROUNDTABLE_DB_PASSWORD
    max_open_conns: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roundtable.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Defaults.MaxIterations)
	assert.Equal(t, 4, cfg.Defaults.NumParticipants)
	// untouched default preserved through the merge
	assert.Equal(t, 0.05, cfg.Defaults.DeltaThreshold)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "openai", cfg.LLM.Provider) // builtin, not overridden

	require.Equal(t, "postgres", cfg.Store.Backend)
	require.NotNil(t, cfg.Store.Postgres)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, "roundtable", cfg.Store.Postgres.Database)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roundtable.yaml"), []byte("{{{"), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeFile_MissingPathIsConfigNotFound(t *testing.T) {
	_, err := InitializeFile(context.Background(), "/nonexistent/roundtable.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeFile_ExplicitPathLoads(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "custom-name.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_iterations: 7\n"), 0o644))

	cfg, err := InitializeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Defaults.MaxIterations)
}
