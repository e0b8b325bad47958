package roundtable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/roundtable/pkg/config"
)

func memoryConfig() *config.Config {
	stop := true
	return &config.Config{
		Defaults: &config.Defaults{MaxIterations: 5, DeltaThreshold: 0.05, StopOnNoHighIssues: &stop},
		LLM:      &config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKeyEnv: "ROUNDTABLE_TEST_API_KEY"},
		Store:    &config.StoreConfig{Backend: "memory"},
	}
}

func TestNew_AssemblesMemoryBackedRuntime(t *testing.T) {
	t.Setenv("ROUNDTABLE_TEST_API_KEY", "test-key")

	result, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	require.NotNil(t, result.Runtime)
	require.NotNil(t, result.Store)
	require.NotNil(t, result.Registry)

	assert.NoError(t, result.Close())
}

func TestNew_RejectsUnknownStoreBackend(t *testing.T) {
	t.Setenv("ROUNDTABLE_TEST_API_KEY", "test-key")

	cfg := memoryConfig()
	cfg.Store.Backend = "sqlite"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_RejectsMissingAPIKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.LLM.APIKeyEnv = "ROUNDTABLE_TEST_UNSET_KEY"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_WithDisabledRedisSkipsCache(t *testing.T) {
	t.Setenv("ROUNDTABLE_TEST_API_KEY", "test-key")

	cfg := memoryConfig()
	cfg.Redis = &config.RedisConfig{Enabled: false}

	result, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, result.Close())
}
