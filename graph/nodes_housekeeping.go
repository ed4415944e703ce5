package graph

import (
	"fmt"
	"math"

	"github.com/randalmurphal/agentgraph/agent"
)

// ContextMonitorConfig configures a context monitor.
type ContextMonitorConfig struct {
	Session string

	// WarnRatio overrides the graph's context warn ratio.
	WarnRatio float64

	// UsageKey, when set, receives the usage ratio as a float64.
	UsageKey string
}

// ContextMonitorNode inspects the size of an agent conversation and emits
// context_window_warning when it nears the window.
type ContextMonitorNode struct {
	nodeBase
	cfg ContextMonitorConfig
}

// ContextMonitor creates a context monitor node.
func ContextMonitor(id string, cfg ContextMonitorConfig, opts ...NodeOption) *ContextMonitorNode {
	return &ContextMonitorNode{nodeBase: newBase(id, KindHousekeeping, opts), cfg: cfg}
}

// Execute implements Node.
func (n *ContextMonitorNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	ratio := n.cfg.WarnRatio
	if ratio == 0 {
		ratio = ec.config.ContextWarnRatio
	}
	usage, _ := ec.ContextUsage(n.cfg.Session)

	result := NodeResult{Output: usage}
	if n.cfg.UsageKey != "" {
		result.Update = map[string]any{n.cfg.UsageKey: usage.Ratio()}
	}
	if sig, ok := contextWarning(ec, sessionKey(n.cfg.Session), ratio); ok {
		result.Signals = append(result.Signals, sig)
	}
	return result, nil
}

// ContextClearConfig configures a context clear.
type ContextClearConfig struct {
	Session string

	// SummaryKey, when set, asks the session for a summary with the
	// "context_summary" prompt before clearing and stores it there.
	SummaryKey string
}

// ContextClearNode destroys an agent conversation so the next agent node
// starts a fresh one.
type ContextClearNode struct {
	nodeBase
	cfg ContextClearConfig
}

// ContextClear creates a context clear node. It emits a custom signal named
// SignalContextReset.
func ContextClear(id string, cfg ContextClearConfig, opts ...NodeOption) *ContextClearNode {
	return &ContextClearNode{nodeBase: newBase(id, KindHousekeeping, opts), cfg: cfg}
}

// Execute implements Node.
func (n *ContextClearNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	key := sessionKey(n.cfg.Session)
	usage, _ := ec.ContextUsage(key)

	var result NodeResult
	if n.cfg.SummaryKey != "" {
		summary, err := n.summarize(ec, key, usage)
		if err != nil {
			return NodeResult{}, err
		}
		result.Update = map[string]any{n.cfg.SummaryKey: summary}
		result.Output = summary
	}

	if err := ec.ClearSession(key); err != nil {
		return NodeResult{}, fmt.Errorf("clear session %s: %w", key, err)
	}
	result.Signals = append(result.Signals, Custom(SignalContextReset, map[string]any{
		"session":        key,
		"context_tokens": usage.ContextTokens,
	}))
	return result, nil
}

func (n *ContextClearNode) summarize(ec *ExecutionContext, key string, usage agent.Usage) (string, error) {
	text, err := ec.deps.prompts().LoadWithVars("context_summary", map[string]any{
		"Percent": int(math.Round(usage.Ratio() * 100)),
	})
	if err != nil {
		return "", err
	}
	sess, err := ec.Session(key, agent.Config{})
	if err != nil {
		return "", err
	}
	msg, err := sess.Send(ec, text)
	if err != nil {
		return "", fmt.Errorf("summarize session %s: %w", key, err)
	}
	return msg.Content, nil
}

func sessionKey(key string) string {
	if key == "" {
		return DefaultSession
	}
	return key
}
