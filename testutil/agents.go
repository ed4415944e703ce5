package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/agentgraph/agent"
	"github.com/randalmurphal/agentgraph/notify"
	"github.com/randalmurphal/agentgraph/subagent"
)

// =============================================================================
// Scripted Agents
// =============================================================================

// ErrScriptExhausted is returned once a Script has no replies left.
var ErrScriptExhausted = errors.New("script exhausted")

// Script answers agent prompts with a fixed list of replies and records
// every prompt it saw.
type Script struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

// NewScript creates a script that returns replies in order.
func NewScript(replies ...string) *Script {
	return &Script{replies: replies}
}

// Respond implements agent.Responder.
func (s *Script) Respond(_ context.Context, _ agent.Config, _ []agent.Message, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Provider returns a provider whose sessions answer from the script.
func (s *Script) Provider() *agent.FuncProvider {
	return agent.NewFuncProvider(s.Respond)
}

// Prompts returns the prompts received so far.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.prompts)
}

// Echo is a responder that replies with the prompt itself.
func Echo(_ context.Context, _ agent.Config, _ []agent.Message, prompt string) (string, error) {
	return prompt, nil
}

// =============================================================================
// Stub Bridge
// =============================================================================

// StubBridge is a subagent.Bridge that answers with a function.
type StubBridge struct {
	// Answer produces the output for one spec. A nil Answer echoes the prompt.
	Answer func(spec subagent.Spec) (string, error)

	mu    sync.Mutex
	specs []subagent.Spec
}

// Spawn implements subagent.Bridge.
func (b *StubBridge) Spawn(ctx context.Context, spec subagent.Spec) (subagent.Result, error) {
	res := b.run(ctx, spec)
	return res, res.Err
}

// SpawnParallel implements subagent.Bridge. Failures are reported per result.
func (b *StubBridge) SpawnParallel(ctx context.Context, specs []subagent.Spec) ([]subagent.Result, error) {
	results := make([]subagent.Result, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.run(ctx, spec)
		}()
	}
	wg.Wait()
	return results, ctx.Err()
}

func (b *StubBridge) run(ctx context.Context, spec subagent.Spec) subagent.Result {
	b.mu.Lock()
	b.specs = append(b.specs, spec)
	b.mu.Unlock()

	start := time.Now()
	res := subagent.Result{ID: spec.ID, Type: spec.Definition.Name}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if b.Answer == nil {
		res.Output = spec.Prompt
	} else {
		res.Output, res.Err = b.Answer(spec)
	}
	res.Duration = time.Since(start)
	return res
}

// Specs returns the specs spawned so far, in call order.
func (b *StubBridge) Specs() []subagent.Spec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.specs)
}

// Registry returns a registry holding one definition per name.
func Registry(names ...string) *subagent.MapRegistry {
	defs := make([]subagent.Definition, len(names))
	for i, name := range names {
		defs[i] = subagent.Definition{Name: name, Description: fmt.Sprintf("%s sub-agent", name)}
	}
	return subagent.NewMapRegistry(defs...)
}

// =============================================================================
// Recording Notifier
// =============================================================================

// RecordingNotifier keeps every event it receives.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

// Notify implements notify.Notifier.
func (n *RecordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns the received events in order.
func (n *RecordingNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}

// Types returns the received event types in order.
func (n *RecordingNotifier) Types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]notify.EventType, len(n.events))
	for i, e := range n.events {
		types[i] = e.Type
	}
	return types
}
