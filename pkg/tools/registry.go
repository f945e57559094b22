package tools

import (
	"errors"
	"sort"
	"sync"

	"mercator-hq/keel/pkg/providers"
)

// Registry is a thread-safe set of tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return &RegistryError{Operation: "register", Err: errors.New("tool cannot be nil")}
	}
	name := t.Name()
	if name == "" {
		return &RegistryError{Operation: "register", Err: errors.New("tool name cannot be empty")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &RegistryError{Operation: "register", Tool: name, Err: ErrDuplicateTool}
	}
	r.tools[name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &RegistryError{Operation: "get", Tool: name, Err: ErrToolNotFound}
	}
	return t, nil
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool definitions advertised to the model,
// sorted by name.
func (r *Registry) Definitions() []providers.Tool {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, providers.Tool{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// TargetKeys returns the path-argument keys declared by the named tool,
// or nil when the tool is unknown or declares none.
func (r *Registry) TargetKeys(name string) []string {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if d, ok := t.(TargetDeclarer); ok {
		return d.TargetKeys()
	}
	return nil
}
