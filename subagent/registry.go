package subagent

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownType indicates a spawn named a type the registry does not know.
var ErrUnknownType = errors.New("unknown sub-agent type")

// Definition describes a sub-agent type.
type Definition struct {
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	SystemPrompt  string   `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Model         string   `yaml:"model,omitempty" json:"model,omitempty"`
	Task          TaskType `yaml:"task,omitempty" json:"task,omitempty"`
	Tools         []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	MaxTurns      int      `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`
	ContextWindow int      `yaml:"context_window,omitempty" json:"context_window,omitempty"`
}

// Registry resolves sub-agent type names.
type Registry interface {
	Resolve(typeName string) (Definition, error)
}

// MapRegistry is an in-memory Registry. The zero value is empty and usable.
type MapRegistry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewMapRegistry creates a registry holding defs.
func NewMapRegistry(defs ...Definition) *MapRegistry {
	r := &MapRegistry{}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a definition.
func (r *MapRegistry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[string]Definition)
	}
	r.defs[def.Name] = def
}

// Resolve implements Registry.
func (r *MapRegistry) Resolve(typeName string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeName]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return def, nil
}

// Names returns the registered type names, sorted.
func (r *MapRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// registryFile is the YAML layout read by LoadRegistry.
type registryFile struct {
	Agents []Definition `yaml:"agents"`
}

// LoadRegistry reads definitions from a YAML file.
func LoadRegistry(path string) (*MapRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	reg, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return reg, nil
}

// ParseRegistry parses YAML definitions. Every definition needs a unique name.
func ParseRegistry(data []byte) (*MapRegistry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	reg := NewMapRegistry()
	seen := make(map[string]bool, len(file.Agents))
	for i, def := range file.Agents {
		if def.Name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("agent %q defined twice", def.Name)
		}
		seen[def.Name] = true
		reg.Register(def)
	}
	return reg, nil
}
