package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/agentgraph/agent"
	"github.com/randalmurphal/agentgraph/prompt"
)

// Spec is one sub-agent task.
type Spec struct {
	ID         string     `json:"id"`
	Definition Definition `json:"definition"`
	Prompt     string     `json:"prompt"`
}

// Result is the outcome of one sub-agent task. In SpawnParallel results a
// failed task carries its error in Err.
type Result struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Output   string        `json:"output"`
	Usage    agent.Usage   `json:"usage"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the task errored.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Bridge spawns sub-agents.
type Bridge interface {
	// Spawn runs one task to completion.
	Spawn(ctx context.Context, spec Spec) (Result, error)

	// SpawnParallel runs tasks concurrently. results[i] always belongs to
	// specs[i]. Task failures are reported per result; the returned error is
	// reserved for failures of the whole batch such as cancellation.
	SpawnParallel(ctx context.Context, specs []Spec) ([]Result, error)
}

// =============================================================================
// SessionBridge
// =============================================================================

// SessionBridge runs each sub-agent in a fresh session from an agent.Provider.
type SessionBridge struct {
	provider    agent.Provider
	prompts     *prompt.Loader
	concurrency int
	logger      *slog.Logger
}

// BridgeOption configures a SessionBridge.
type BridgeOption func(*SessionBridge)

// WithConcurrency caps how many sub-agents run at once. Zero means unlimited.
func WithConcurrency(n int) BridgeOption {
	return func(b *SessionBridge) {
		b.concurrency = n
	}
}

// WithPrompts sets the loader used to render the subagent task template.
func WithPrompts(l *prompt.Loader) BridgeOption {
	return func(b *SessionBridge) {
		b.prompts = l
	}
}

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *SessionBridge) {
		b.logger = l
	}
}

// NewSessionBridge creates a bridge over provider.
func NewSessionBridge(provider agent.Provider, opts ...BridgeOption) *SessionBridge {
	b := &SessionBridge{
		provider: provider,
		prompts:  prompt.NewEmbeddedLoader(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Spawn implements Bridge.
func (b *SessionBridge) Spawn(ctx context.Context, spec Spec) (Result, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	start := time.Now()
	res, err := b.spawn(ctx, spec)
	res.ID = spec.ID
	res.Type = spec.Definition.Name
	res.Duration = time.Since(start)
	return res, err
}

func (b *SessionBridge) spawn(ctx context.Context, spec Spec) (Result, error) {
	if b.provider == nil {
		return Result{}, agent.ErrNoProvider
	}

	task, err := b.prompts.LoadWithVars("subagent", map[string]any{
		"Name":        spec.Definition.Name,
		"Description": spec.Definition.Description,
		"Tools":       spec.Definition.Tools,
		"Task":        spec.Prompt,
	})
	if err != nil {
		return Result{}, err
	}

	session, err := b.provider.CreateSession(ctx, agent.Config{
		Model:         ModelFor(spec.Definition),
		SystemPrompt:  spec.Definition.SystemPrompt,
		MaxTurns:      spec.Definition.MaxTurns,
		ContextWindow: spec.Definition.ContextWindow,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create %s session: %w", spec.Definition.Name, err)
	}
	defer func() {
		if err := session.Destroy(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn("destroy sub-agent session", "id", spec.ID, "error", err)
		}
	}()

	b.logger.Debug("spawning sub-agent", "id", spec.ID, "type", spec.Definition.Name)
	msg, err := session.Send(ctx, task)
	if err != nil {
		return Result{}, fmt.Errorf("sub-agent %s: %w", spec.Definition.Name, err)
	}
	return Result{Output: msg.Content, Usage: msg.Usage}, nil
}

// SpawnParallel implements Bridge.
func (b *SessionBridge) SpawnParallel(ctx context.Context, specs []Spec) ([]Result, error) {
	results := make([]Result, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}
	for i, spec := range specs {
		if spec.ID == "" {
			spec.ID = uuid.NewString()
		}
		g.Go(func() error {
			res, err := b.Spawn(gctx, spec)
			res.Err = err
			results[i] = res
			return nil
		})
	}
	// Goroutines never return an error: failures are kept per result.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
