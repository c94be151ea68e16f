package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EngineConfig holds the Execution Engine's tunables. Defaults match
// spec.md §4.5: a 40,000 character result cap and a 500-iteration poll
// budget at roughly 100ms per iteration (~50s wall clock ceiling).
type EngineConfig struct {
	MaxResultChars       int           `envconfig:"RELAYBOX_MAX_RESULT_CHARS" default:"40000"`
	MaxPollIterations    int           `envconfig:"RELAYBOX_MAX_POLL_ITERATIONS" default:"500"`
	PollInterval         time.Duration `envconfig:"RELAYBOX_POLL_INTERVAL" default:"100ms"`
	SleepToolGranularity time.Duration `envconfig:"RELAYBOX_SLEEP_GRANULARITY" default:"10ms"`
}

// Default returns the EngineConfig with spec-mandated defaults, bypassing
// the environment entirely. Most callers embedding the sandbox in tests or
// as a library should start here.
func Default() EngineConfig {
	return EngineConfig{
		MaxResultChars:       40000,
		MaxPollIterations:    500,
		PollInterval:         100 * time.Millisecond,
		SleepToolGranularity: 10 * time.Millisecond,
	}
}

// LoadOrDefault loads EngineConfig from the environment. If any variable
// fails to parse, it returns Default() as a whole, ignoring the other
// variables too.
func LoadOrDefault() EngineConfig {
	cfg := Default()
	if err := envconfig.Process("", &cfg); err != nil {
		return Default()
	}
	return cfg
}
