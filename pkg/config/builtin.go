package config

// builtinDefaults mirrors models.DefaultSessionConfig's values so a
// roundtable.yaml that omits the defaults block entirely still produces a
// runnable configuration.
func builtinDefaults() *Defaults {
	stopOnNoHighIssues := true
	return &Defaults{
		MaxIterations:      5,
		DeltaThreshold:     0.05,
		StopOnNoHighIssues: &stopOnNoHighIssues,
		ForceMaxIterations: false,
		NumParticipants:    3,
		Preset:             "none",
		ModelStrategy:      "uniform",
	}
}

func builtinLLM() *LLMConfig {
	return &LLMConfig{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
	}
}

func builtinStore() *StoreConfig {
	return &StoreConfig{Backend: "memory"}
}
