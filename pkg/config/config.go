// Package config loads and validates the operator-facing settings for a
// Roundtable deployment: default session tunables, the LLM provider backing
// reviewers/moderator/meta-planner, and which Store backend to run against.
// It follows the same load → merge → validate shape as tarsy's own
// configuration package, substituted onto Roundtable's domain.
package config

// Config is the umbrella object returned by Initialize and threaded through
// cmd/roundtable into the Runtime.
type Config struct {
	configDir string // configuration directory path (for reference)

	Defaults *Defaults
	LLM      *LLMConfig
	Store    *StoreConfig
	Redis    *RedisConfig
}

// Defaults holds the session tunables loaded from YAML and checked by the
// Validator, mirroring models.DefaultSessionConfig. Neither roundtable.New
// nor the CLI applies them to a start request: unset StartRequest fields
// fall back to models.DefaultSessionConfig and the CLI's flag defaults.
type Defaults struct {
	MaxIterations      int     `yaml:"max_iterations"`
	DeltaThreshold     float64 `yaml:"delta_threshold"`
	StopOnNoHighIssues *bool   `yaml:"stop_on_no_high_issues,omitempty"`
	ForceMaxIterations bool    `yaml:"force_max_iterations"`

	NumParticipants  int    `yaml:"num_participants"`
	Preset           string `yaml:"preset"`
	ParticipantStyle string `yaml:"participant_style,omitempty"`
	ModelStrategy    string `yaml:"model_strategy"`
}

// LLMConfig configures the llm.Client the whole session driver shares.
type LLMConfig struct {
	// Provider names the transport; only "openai" is wired today, but the
	// field exists so a second provider can be added without reshaping the
	// YAML surface.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key, never
	// the key itself — the YAML file is not a secret store.
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`

	// ModelPool is loaded from YAML but not read by roundtable.New or the
	// CLI; the meta-planner's "diverse" pool comes from the start request
	// (StartRequest.ModelPool, the CLI's --model-pool).
	ModelPool []string `yaml:"model_pool,omitempty"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "postgres" or "memory". "memory" is for local/demo runs
	// only: it never survives a process restart.
	Backend string `yaml:"backend"`

	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig mirrors store.Config's fields so YAML can populate it
// directly; the password is always sourced from an env var.
type PostgresConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	PasswordEnv     string `yaml:"password_env"`
	Database        string `yaml:"database"`
	SSLMode         string `yaml:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
}

// RedisConfig configures the optional status cache. A nil Redis means the
// runtime reads session status straight from the Store on every poll.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	TTL     string `yaml:"ttl,omitempty"`
}

// ConfigDir returns the directory Initialize loaded YAML from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
