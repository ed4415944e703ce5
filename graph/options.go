package graph

import (
	"fmt"

	"github.com/randalmurphal/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/config"
	"github.com/randalmurphal/agentgraph/observability"
)

// DefaultMaxSteps is the step ceiling used when none is configured.
const DefaultMaxSteps = 1000

// Config holds the settings frozen into a compiled graph.
type Config struct {
	// MaxSteps is the global runaway guard. 0 disables it.
	MaxSteps int

	// AutoCheckpoint saves a snapshot after every step.
	AutoCheckpoint bool

	// DefaultRetry applies to nodes without their own policy.
	DefaultRetry RetryPolicy

	// ContextWarnRatio is the usage ratio at which agent and monitor nodes
	// emit context_window_warning. 0 disables the warning.
	ContextWarnRatio float64

	// ParallelLimit caps concurrently running branches. 0 means no limit.
	ParallelLimit int

	// Deps are the collaborators used by every run unless overridden.
	Deps RuntimeDependencies
}

func defaultConfig() Config {
	return Config{
		MaxSteps:         DefaultMaxSteps,
		DefaultRetry:     RetryPolicy{MaxAttempts: 1},
		ContextWarnRatio: 0.8,
	}
}

// CompileOption configures Compile.
type CompileOption func(*Config)

// WithMaxSteps sets the global step ceiling.
func WithMaxSteps(n int) CompileOption {
	return func(c *Config) { c.MaxSteps = n }
}

// WithAutoCheckpoint saves a snapshot after every step when a checkpoint
// store is configured.
func WithAutoCheckpoint(enabled bool) CompileOption {
	return func(c *Config) { c.AutoCheckpoint = enabled }
}

// WithCheckpointStore sets the store snapshots are saved to.
func WithCheckpointStore(store checkpoint.Store) CompileOption {
	return func(c *Config) { c.Deps.Checkpoints = store }
}

// WithDefaultRetry sets the retry policy for nodes without their own.
func WithDefaultRetry(p RetryPolicy) CompileOption {
	return func(c *Config) { c.DefaultRetry = p }
}

// WithContextWarnRatio sets the context usage warning threshold.
func WithContextWarnRatio(ratio float64) CompileOption {
	return func(c *Config) { c.ContextWarnRatio = ratio }
}

// WithParallelLimit caps concurrently running parallel branches.
func WithParallelLimit(n int) CompileOption {
	return func(c *Config) { c.ParallelLimit = n }
}

// WithRuntimeDependencies sets the collaborators every run uses.
func WithRuntimeDependencies(deps RuntimeDependencies) CompileOption {
	return func(c *Config) { c.Deps = c.Deps.With(deps) }
}

// FromEngineConfig translates engine settings into compile options. It
// opens the configured checkpoint store; the caller owns closing it.
func FromEngineConfig(e config.Engine) ([]CompileOption, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	store, err := checkpoint.Open(e.CheckpointBackend, e.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	logger := observability.NewLogger(observability.Options{
		Level:  e.LogLevel,
		Format: e.LogFormat,
	})
	return []CompileOption{
		WithMaxSteps(e.MaxSteps),
		WithAutoCheckpoint(e.AutoCheckpoint),
		WithCheckpointStore(store),
		WithDefaultRetry(RetryPolicy{
			MaxAttempts: e.RetryMaxAttempts,
			Backoff:     e.RetryBackoff,
			Multiplier:  e.RetryMultiplier,
		}),
		WithContextWarnRatio(e.ContextWarnRatio),
		WithParallelLimit(e.ParallelLimit),
		WithRuntimeDependencies(RuntimeDependencies{Logger: logger}),
	}, nil
}

// =============================================================================
// Run Options
// =============================================================================

type runConfig struct {
	executionID   string
	deps          RuntimeDependencies
	noCheckpoints bool
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithExecutionID sets the execution id instead of generating one.
func WithExecutionID(id string) RunOption {
	return func(c *runConfig) { c.executionID = id }
}

// WithDependencies overrides collaborators for one run. Non-nil fields
// replace the graph's.
func WithDependencies(deps RuntimeDependencies) RunOption {
	return func(c *runConfig) { c.deps = c.deps.With(deps) }
}

func withoutCheckpoints() RunOption {
	return func(c *runConfig) { c.noCheckpoints = true }
}
