package graph

import (
	"fmt"
	"maps"
	"time"

	"github.com/randalmurphal/agentgraph/agent"
	"github.com/randalmurphal/agentgraph/state"
	"github.com/randalmurphal/agentgraph/transcript"
)

// AgentConfig configures an agent node.
type AgentConfig struct {
	// Session names the conversation to use. Agent nodes sharing a name
	// share one session per run. Defaults to DefaultSession.
	Session string

	// Config is used when the session is created.
	Config agent.Config

	// Prompt builds the message from state. Template is used when Prompt
	// is nil: the named prompt is rendered with the state values plus an
	// "Outputs" entry holding node outputs.
	Prompt   func(s state.State) (string, error)
	Template string

	// Stream requests the reply through Session.Stream.
	Stream bool

	// Map converts the reply into a state update. When nil and OutputKey
	// is set, the reply text is written to OutputKey.
	Map       func(s state.State, msg agent.Message) (map[string]any, error)
	OutputKey string
}

// AgentNode sends one message to an agent session.
type AgentNode struct {
	nodeBase
	cfg AgentConfig
}

// Agent creates an agent node. Its recorded output is the reply text.
func Agent(id string, cfg AgentConfig, opts ...NodeOption) *AgentNode {
	return &AgentNode{nodeBase: newBase(id, KindAgent, opts), cfg: cfg}
}

// Execute implements Node.
func (n *AgentNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	prompt, err := n.prompt(ec)
	if err != nil {
		return NodeResult{}, fmt.Errorf("build prompt: %w", err)
	}

	key := n.cfg.Session
	if key == "" {
		key = DefaultSession
	}
	sess, err := ec.Session(key, n.cfg.Config)
	if err != nil {
		return NodeResult{}, err
	}
	ec.recordTurn(key, transcript.RoleUser, prompt, agent.Usage{}, 0)

	start := time.Now()
	var msg agent.Message
	if n.cfg.Stream {
		msg, err = agent.Collect(sess.Stream(ec, prompt))
	} else {
		msg, err = sess.Send(ec, prompt)
	}
	if err != nil {
		return NodeResult{}, err
	}
	ec.recordTurn(key, transcript.RoleAssistant, msg.Content, msg.Usage, time.Since(start))

	var update map[string]any
	switch {
	case n.cfg.Map != nil:
		if update, err = n.cfg.Map(ec.State, msg); err != nil {
			return NodeResult{}, fmt.Errorf("map reply: %w", err)
		}
	case n.cfg.OutputKey != "":
		update = map[string]any{n.cfg.OutputKey: msg.Content}
	}

	result := NodeResult{Update: update, Output: msg.Content}
	if sig, ok := contextWarning(ec, key, ec.config.ContextWarnRatio); ok {
		result.Signals = append(result.Signals, sig)
	}
	return result, nil
}

func (n *AgentNode) prompt(ec *ExecutionContext) (string, error) {
	if n.cfg.Prompt != nil {
		return n.cfg.Prompt(ec.State)
	}
	return ec.deps.prompts().LoadWithVars(n.cfg.Template, templateVars(ec.State))
}

func (n *AgentNode) validate() error {
	if n.cfg.Prompt == nil && n.cfg.Template == "" {
		return fmt.Errorf("%w: agent %s has neither prompt nor template", ErrInvalidNode, n.id)
	}
	return nil
}

func templateVars(s state.State) map[string]any {
	vars := maps.Clone(s.Values)
	if vars == nil {
		vars = make(map[string]any)
	}
	vars["Outputs"] = s.Outputs
	vars["ExecutionID"] = s.ExecutionID
	return vars
}

// contextWarning builds a context_window_warning signal when the session's
// usage ratio has reached ratio.
func contextWarning(ec *ExecutionContext, session string, ratio float64) (Signal, bool) {
	if ratio <= 0 {
		return Signal{}, false
	}
	usage, ok := ec.ContextUsage(session)
	if !ok || usage.Ratio() < ratio {
		return Signal{}, false
	}
	return Signal{
		Type: SignalContextWindowWarning,
		Payload: map[string]any{
			"session":        session,
			"ratio":          usage.Ratio(),
			"context_tokens": usage.ContextTokens,
			"context_window": usage.ContextWindow,
		},
	}, true
}
