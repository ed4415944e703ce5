package config

import "slices"

// Source names the layer a resolved engine setting came from. Layers are
// applied lowest first, so a value from a later layer replaces one from an
// earlier layer.
type Source string

// Layers, lowest precedence first.
const (
	// SourceDefault is a built-in value from EngineDefaults.
	SourceDefault Source = "default"

	// SourceGlobal is ~/.config/agentgraph/config.yaml.
	SourceGlobal Source = "global"

	// SourceLocal is .agentgraph.yaml in the repository root.
	SourceLocal Source = "local"

	// SourceEnv is an AGENTGRAPH_* environment variable.
	SourceEnv Source = "env"

	// SourceFlag is an override passed to ResolveWithFlags.
	SourceFlag Source = "flag"
)

// Precedence lists the layers in the order Resolve applies them.
var Precedence = []Source{SourceDefault, SourceGlobal, SourceLocal, SourceEnv, SourceFlag}

// Overrides reports whether a value from s replaces one from other.
// An unknown or empty source never overrides and is always overridden.
func (s Source) Overrides(other Source) bool {
	return slices.Index(Precedence, s) >= slices.Index(Precedence, other) && slices.Contains(Precedence, s)
}
