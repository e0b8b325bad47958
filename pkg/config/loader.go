package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete roundtable.yaml file structure. Every
// section is optional: an absent section falls back entirely to its
// built-in default.
type YAMLConfig struct {
	Defaults *Defaults    `yaml:"defaults"`
	LLM      *LLMConfig   `yaml:"llm"`
	Store    *StoreConfig `yaml:"store"`
	Redis    *RedisConfig `yaml:"redis"`
}

// Initialize loads roundtable.yaml from configDir, expands environment
// variables, merges it over the built-in defaults, validates the result,
// and returns a ready-to-use Config.
//
// Steps performed:
//  1. Load roundtable.yaml
//  2. Expand environment variables
//  3. Merge built-in defaults with user overrides
//  4. Validate all configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	return initialize(ctx, configDir, "roundtable.yaml", false)
}

// InitializeFile loads a specific YAML file (rather than a configDir's
// conventional roundtable.yaml) and requires it to exist — for an explicit
// --config flag, a missing path is almost always a typo, not "use defaults".
func InitializeFile(ctx context.Context, path string) (*Config, error) {
	return initialize(ctx, filepath.Dir(path), filepath.Base(path), true)
}

func initialize(ctx context.Context, configDir, filename string, required bool) (*Config, error) {
	log := slog.With("config_dir", configDir, "file", filename)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir, filename, required)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"llm_provider", cfg.LLM.Provider, "llm_model", cfg.LLM.Model, "store_backend", cfg.Store.Backend)

	return cfg, nil
}

func load(configDir, filename string, required bool) (*Config, error) {
	yamlCfg, err := loadYAMLFile(configDir, filename, required)
	if err != nil {
		return nil, NewLoadError(filename, err)
	}

	defaults := builtinDefaults()
	if yamlCfg.Defaults != nil {
		if err := mergo.Merge(defaults, yamlCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	llmCfg := builtinLLM()
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(llmCfg, yamlCfg.LLM, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}

	storeCfg := builtinStore()
	if yamlCfg.Store != nil {
		if err := mergo.Merge(storeCfg, yamlCfg.Store, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge store config: %w", err)
		}
	}

	redisCfg := yamlCfg.Redis // optional, no built-in — nil means "no cache"

	return &Config{
		configDir: configDir,
		Defaults:  defaults,
		LLM:       llmCfg,
		Store:     storeCfg,
		Redis:     redisCfg,
	}, nil
}

// loadYAMLFile reads filename from dir, expands environment variables, and
// unmarshals it into a YAMLConfig. When required is false, a missing file
// is treated as an empty configuration so built-in defaults alone are
// enough to run; when true (an explicit --config path) a missing file is
// ErrConfigNotFound.
func loadYAMLFile(dir, filename string, required bool) (*YAMLConfig, error) {
	var cfg YAMLConfig

	path := filepath.Join(dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if required {
				return nil, ErrConfigNotFound
			}
			return &cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}
