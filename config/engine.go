package config

import (
	"fmt"
	"strconv"
	"time"
)

// Engine configuration keys.
const (
	KeyMaxSteps          = "max_steps"
	KeyAutoCheckpoint    = "auto_checkpoint"
	KeyCheckpointBackend = "checkpoint_backend"
	KeyCheckpointPath    = "checkpoint_path"
	KeyRetryMaxAttempts  = "retry_max_attempts"
	KeyRetryBackoff      = "retry_backoff"
	KeyRetryMultiplier   = "retry_multiplier"
	KeyContextWarnRatio  = "context_warn_ratio"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyParallelLimit     = "parallel_limit"
)

// EngineKeys lists every key LoadEngine reads.
var EngineKeys = []string{
	KeyMaxSteps, KeyAutoCheckpoint, KeyCheckpointBackend, KeyCheckpointPath,
	KeyRetryMaxAttempts, KeyRetryBackoff, KeyRetryMultiplier, KeyContextWarnRatio,
	KeyLogLevel, KeyLogFormat, KeyParallelLimit,
}

// EngineDefaults are the built-in values for engine keys.
func EngineDefaults() map[string]string {
	return map[string]string{
		KeyMaxSteps:          "1000",
		KeyAutoCheckpoint:    "false",
		KeyCheckpointBackend: "memory",
		KeyCheckpointPath:    "",
		KeyRetryMaxAttempts:  "1",
		KeyRetryBackoff:      "1s",
		KeyRetryMultiplier:   "2",
		KeyContextWarnRatio:  "0.8",
		KeyLogLevel:          "info",
		KeyLogFormat:         "text",
		KeyParallelLimit:     "0",
	}
}

// Engine holds typed engine settings.
type Engine struct {
	MaxSteps          int
	AutoCheckpoint    bool
	CheckpointBackend string
	CheckpointPath    string
	RetryMaxAttempts  int
	RetryBackoff      time.Duration
	RetryMultiplier   float64
	ContextWarnRatio  float64
	LogLevel          string
	LogFormat         string
	ParallelLimit     int // 0 = unlimited
}

// NewEngineResolver creates the standard resolver: AGENTGRAPH_* env vars,
// ~/.config/agentgraph/config.yaml and .agentgraph.yaml at the git root.
func NewEngineResolver() *Resolver {
	return NewResolver(engineResolverConfig())
}

func engineResolverConfig() ResolverConfig {
	return ResolverConfig{
		EnvPrefix:       "AGENTGRAPH_",
		GlobalConfigDir: "agentgraph",
		LocalConfigName: ".agentgraph.yaml",
		Defaults:        EngineDefaults(),
		ValidKeys:       EngineKeys,
	}
}

// LoadEngine converts resolved values into typed settings.
func LoadEngine(c *Resolved) (Engine, error) {
	var (
		e   Engine
		err error
	)
	if e.MaxSteps, err = c.Int(KeyMaxSteps); err != nil {
		return e, err
	}
	if e.AutoCheckpoint, err = c.Bool(KeyAutoCheckpoint); err != nil {
		return e, err
	}
	if e.RetryMaxAttempts, err = c.Int(KeyRetryMaxAttempts); err != nil {
		return e, err
	}
	if e.RetryBackoff, err = c.Duration(KeyRetryBackoff); err != nil {
		return e, err
	}
	if e.RetryMultiplier, err = c.Float(KeyRetryMultiplier); err != nil {
		return e, err
	}
	if e.ContextWarnRatio, err = c.Float(KeyContextWarnRatio); err != nil {
		return e, err
	}
	if e.ParallelLimit, err = c.Int(KeyParallelLimit); err != nil {
		return e, err
	}
	e.CheckpointBackend = c.Get(KeyCheckpointBackend)
	e.CheckpointPath = c.Get(KeyCheckpointPath)
	e.LogLevel = c.Get(KeyLogLevel)
	e.LogFormat = c.Get(KeyLogFormat)

	return e, e.Validate()
}

// Validate checks ranges.
func (e Engine) Validate() error {
	if e.MaxSteps < 0 {
		return fmt.Errorf("%s must be >= 0, got %d", KeyMaxSteps, e.MaxSteps)
	}
	if e.RetryMaxAttempts < 0 {
		return fmt.Errorf("%s must be >= 0, got %d", KeyRetryMaxAttempts, e.RetryMaxAttempts)
	}
	if e.RetryMultiplier != 0 && e.RetryMultiplier < 1 {
		return fmt.Errorf("%s must be >= 1, got %s", KeyRetryMultiplier, strconv.FormatFloat(e.RetryMultiplier, 'g', -1, 64))
	}
	if e.ContextWarnRatio < 0 || e.ContextWarnRatio > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", KeyContextWarnRatio, e.ContextWarnRatio)
	}
	switch e.CheckpointBackend {
	case "", "memory", "file", "sqlite", "badger":
	default:
		return fmt.Errorf("%s: unknown backend %q", KeyCheckpointBackend, e.CheckpointBackend)
	}
	return nil
}
