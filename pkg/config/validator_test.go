package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	stop := true
	return &Config{
		Defaults: &Defaults{MaxIterations: 5, DeltaThreshold: 0.05, StopOnNoHighIssues: &stop, NumParticipants: 3, Preset: "prd", ModelStrategy: "uniform"},
		LLM:      &LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKeyEnv: "TEST_OPENAI_KEY"},
		Store:    &StoreConfig{Backend: "memory"},
	}
}

func TestValidator_ValidConfigPasses(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidator_RejectsZeroMaxIterations(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Defaults.MaxIterations = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaults validation failed")
}

func TestValidator_RejectsOutOfRangeDeltaThreshold(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Defaults.DeltaThreshold = 1.0
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_RejectsUnknownPreset(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Defaults.Preset = "not-a-real-preset"
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_RejectsMissingAPIKeyEnvVar(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKeyEnv = "TOTALLY_UNSET_ENV_VAR"
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm validation failed")
}

func TestValidator_RejectsUnsupportedProvider(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.LLM.Provider = "anthropic"
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_RejectsPostgresBackendWithoutDetails(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Store = &StoreConfig{Backend: "postgres"}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store validation failed")
}

func TestValidator_RejectsUnknownStoreBackend(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Store = &StoreConfig{Backend: "sqlite"}
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_RejectsPostgresIdleConnsExceedingOpenConns(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Store = &StoreConfig{Backend: "postgres", Postgres: &PostgresConfig{
		Host: "db", Port: 5432, Database: "rt", MaxOpenConns: 5, MaxIdleConns: 10,
	}}
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidator_RejectsEnabledRedisWithoutAddr(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Redis = &RedisConfig{Enabled: true}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis validation failed")
}

func TestValidator_DisabledRedisNeedsNoAddr(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "x")
	cfg := validConfig()
	cfg.Redis = &RedisConfig{Enabled: false}
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidationError_FormatsWithAndWithoutField(t *testing.T) {
	withField := NewValidationError("llm", "model", assert.AnError)
	assert.Contains(t, withField.Error(), "field 'model'")

	withoutField := NewValidationError("llm", "", assert.AnError)
	assert.NotContains(t, withoutField.Error(), "field")
}
