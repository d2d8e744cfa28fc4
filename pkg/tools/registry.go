package tools

import (
	"sort"
	"strings"
)

// Registry holds the tools available to one session, keyed by name.
// Lookups are case-insensitive because the model occasionally shifts casing
// on tool names it was given.
type Registry struct {
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	registry := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		registry.byName[normalize(tool.Name())] = tool
	}
	return registry
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(tool Tool) {
	if r == nil || tool == nil {
		return
	}
	r.byName[normalize(tool.Name())] = tool
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[normalize(name)]
	return ok
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	tool, ok := r.byName[normalize(name)]
	return tool, ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for _, tool := range r.byName {
		names = append(names, tool.Name())
	}
	sort.Strings(names)
	return names
}

// Specs returns tool specs in name order, for the model's tool configuration.
func (r *Registry) Specs() []Spec {
	if r == nil {
		return nil
	}
	specs := make([]Spec, 0, len(r.byName))
	for _, name := range r.Names() {
		tool, _ := r.Lookup(name)
		specs = append(specs, tool.Spec())
	}
	return specs
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
