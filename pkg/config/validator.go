package config

import (
	"fmt"
	"os"

	"github.com/codeready-toolchain/roundtable/pkg/planner"
)

// Validator validates a loaded Config with clear, field-level error
// messages. Structured as an ordered ValidateAll rather than struct tags:
// presets and model strategies are closed enums owned by pkg/planner, and
// the env-var-backed secret fields need a runtime os.Getenv check that a
// tag can't express.
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates in order: defaults -> llm -> store -> redis, so an
// error always names the first broken section rather than the last.
func (v *Validator) ValidateAll() error {
	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := v.validateRedis(); err != nil {
		return fmt.Errorf("redis validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return NewValidationError("defaults", "", fmt.Errorf("defaults configuration is nil"))
	}
	if d.MaxIterations < 1 {
		return NewValidationError("defaults", "max_iterations", fmt.Errorf("must be at least 1, got %d", d.MaxIterations))
	}
	if d.DeltaThreshold < 0 || d.DeltaThreshold >= 1 {
		return NewValidationError("defaults", "delta_threshold", fmt.Errorf("must be in [0, 1), got %v", d.DeltaThreshold))
	}
	if d.NumParticipants != 0 && (d.NumParticipants < 2 || d.NumParticipants > 6) {
		return NewValidationError("defaults", "num_participants", fmt.Errorf("must be between 2 and 6, got %d", d.NumParticipants))
	}
	if d.Preset != "" && !isKnownPreset(d.Preset) {
		return NewValidationError("defaults", "preset", fmt.Errorf("unknown preset %q", d.Preset))
	}
	if d.ModelStrategy != "" &&
		planner.ModelStrategy(d.ModelStrategy) != planner.ModelStrategyUniform &&
		planner.ModelStrategy(d.ModelStrategy) != planner.ModelStrategyDiverse {
		return NewValidationError("defaults", "model_strategy", fmt.Errorf("unknown model_strategy %q", d.ModelStrategy))
	}
	return nil
}

func (v *Validator) validateLLM() error {
	llmCfg := v.cfg.LLM
	if llmCfg == nil {
		return NewValidationError("llm", "", fmt.Errorf("llm configuration is nil"))
	}
	if llmCfg.Provider == "" {
		return NewValidationError("llm", "provider", ErrMissingRequiredField)
	}
	if llmCfg.Provider != "openai" {
		return NewValidationError("llm", "provider", fmt.Errorf("unsupported provider %q (only \"openai\" is wired)", llmCfg.Provider))
	}
	if llmCfg.Model == "" {
		return NewValidationError("llm", "model", ErrMissingRequiredField)
	}
	if llmCfg.APIKeyEnv == "" {
		return NewValidationError("llm", "api_key_env", ErrMissingRequiredField)
	}
	if os.Getenv(llmCfg.APIKeyEnv) == "" {
		return NewValidationError("llm", "api_key_env", fmt.Errorf("environment variable %s is not set", llmCfg.APIKeyEnv))
	}
	return nil
}

func (v *Validator) validateStore() error {
	s := v.cfg.Store
	if s == nil {
		return NewValidationError("store", "", fmt.Errorf("store configuration is nil"))
	}
	switch s.Backend {
	case "memory":
		return nil
	case "postgres":
		if s.Postgres == nil {
			return NewValidationError("store", "postgres", fmt.Errorf("postgres configuration required when backend is \"postgres\""))
		}
		pg := s.Postgres
		if pg.Host == "" {
			return NewValidationError("store.postgres", "host", ErrMissingRequiredField)
		}
		if pg.Port <= 0 {
			return NewValidationError("store.postgres", "port", fmt.Errorf("must be positive, got %d", pg.Port))
		}
		if pg.Database == "" {
			return NewValidationError("store.postgres", "database", ErrMissingRequiredField)
		}
		if pg.PasswordEnv != "" && os.Getenv(pg.PasswordEnv) == "" {
			return NewValidationError("store.postgres", "password_env", fmt.Errorf("environment variable %s is not set", pg.PasswordEnv))
		}
		if pg.MaxIdleConns > pg.MaxOpenConns {
			return NewValidationError("store.postgres", "max_idle_conns", fmt.Errorf("cannot exceed max_open_conns (%d), got %d", pg.MaxOpenConns, pg.MaxIdleConns))
		}
		return nil
	default:
		return NewValidationError("store", "backend", fmt.Errorf("must be \"memory\" or \"postgres\", got %q", s.Backend))
	}
}

func (v *Validator) validateRedis() error {
	r := v.cfg.Redis
	if r == nil || !r.Enabled {
		return nil
	}
	if r.Addr == "" {
		return NewValidationError("redis", "addr", fmt.Errorf("required when redis is enabled"))
	}
	return nil
}

func isKnownPreset(p string) bool {
	switch planner.Preset(p) {
	case planner.PresetPRD, planner.PresetCodeReview, planner.PresetArchitecture, planner.PresetBusinessStrategy, planner.PresetNone:
		return true
	default:
		return false
	}
}
