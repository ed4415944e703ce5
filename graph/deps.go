package graph

import (
	"log/slog"

	"github.com/randalmurphal/agentgraph/agent"
	"github.com/randalmurphal/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/notify"
	"github.com/randalmurphal/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/prompt"
	"github.com/randalmurphal/agentgraph/subagent"
	"github.com/randalmurphal/agentgraph/transcript"
)

// RuntimeDependencies holds the collaborators nodes and the executor call.
// Every field is optional; a node that needs a missing collaborator fails
// with a descriptive error.
type RuntimeDependencies struct {
	Sessions    agent.Provider
	Bridge      subagent.Bridge
	Registry    subagent.Registry
	Checkpoints checkpoint.Store
	Notifier    notify.Notifier
	Transcripts transcript.Manager
	Prompts     *prompt.Loader
	Logger      *slog.Logger
	Telemetry   *observability.Telemetry
}

// With returns d with every non-nil field of over applied on top.
func (d RuntimeDependencies) With(over RuntimeDependencies) RuntimeDependencies {
	if over.Sessions != nil {
		d.Sessions = over.Sessions
	}
	if over.Bridge != nil {
		d.Bridge = over.Bridge
	}
	if over.Registry != nil {
		d.Registry = over.Registry
	}
	if over.Checkpoints != nil {
		d.Checkpoints = over.Checkpoints
	}
	if over.Notifier != nil {
		d.Notifier = over.Notifier
	}
	if over.Transcripts != nil {
		d.Transcripts = over.Transcripts
	}
	if over.Prompts != nil {
		d.Prompts = over.Prompts
	}
	if over.Logger != nil {
		d.Logger = over.Logger
	}
	if over.Telemetry != nil {
		d.Telemetry = over.Telemetry
	}
	return d
}

func (d RuntimeDependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d RuntimeDependencies) telemetry() *observability.Telemetry {
	if d.Telemetry != nil {
		return d.Telemetry
	}
	return observability.Noop()
}

func (d RuntimeDependencies) prompts() *prompt.Loader {
	if d.Prompts != nil {
		return d.Prompts
	}
	return defaultPrompts
}

var defaultPrompts = prompt.NewEmbeddedLoader()
