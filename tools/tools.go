// Package tools holds the registry of invocable tools and their metadata.
//
// The registry is built once at process start and never mutated afterwards,
// so it can be shared across every connection's dispatcher without locking.
// Each entry pairs a handler closure with a human-readable description and a
// JSON Schema for its arguments — explicit registration keyed by name, not
// reflection.
package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes one tool call. Arguments arrive pre-checked against the
// tool's required-field list; the returned value becomes the response result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Descriptor is the discovery view of a tool, as returned by tools/list.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// InvalidArgsError reports arguments that fail a tool's own validation,
// beyond schema-required presence. The dispatcher maps it to the reserved
// "invalid params" code.
type InvalidArgsError struct {
	Reason string
}

func (e *InvalidArgsError) Error() string { return "invalid arguments: " + e.Reason }

// Registry is the immutable, insertion-ordered table of tools.
type Registry struct {
	order  []string
	byName map[string]*Tool
}

// NewRegistry builds a registry from the given tools. Registration order is
// preserved for discovery. Duplicate names are rejected.
func NewRegistry(list ...*Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Tool, len(list))}
	for _, t := range list {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}
		if _, exists := r.byName[t.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		r.byName[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns the discovery descriptors in registration order.
// Two calls return identical contents — the registry never changes.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// CheckArgs verifies that every schema-required argument is present.
func (t *Tool) CheckArgs(args map[string]any) error {
	if t.InputSchema == nil {
		return nil
	}
	for _, field := range t.InputSchema.Required {
		if _, ok := args[field]; !ok {
			return &InvalidArgsError{Reason: fmt.Sprintf("missing required argument %q", field)}
		}
	}
	return nil
}
