// Package tools provides the static tool schema registry for the
// orchestrator. Every tool maps to a controller job template; the registry is
// fixed at startup and never changes during a conversation.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// ArgType enumerates the argument types a tool schema can declare.
type ArgType int

const (
	TypeString ArgType = iota
	TypeInt
	TypeBool
)

func (t ArgType) String() string {
	switch t {
	case TypeInt:
		return "integer"
	case TypeBool:
		return "boolean"
	default:
		return "string"
	}
}

// Kind classifies a tool by effect. Read tools list resources; write tools
// create them. Both go through the same approval gate.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}
	return "read"
}

// ArgSpec describes one argument of a tool schema.
type ArgSpec struct {
	Type     ArgType
	Required bool
	Default  any // filled in for absent optional args; nil means omit
	Help     string
}

// Schema describes one tool: its identity, effect kind, the controller job
// template it launches, and its argument specs.
type Schema struct {
	Name        string
	Description string
	Kind        Kind
	TemplateID  int
	Args        map[string]ArgSpec
}

// RequiredArgs returns the sorted required argument names.
func (s Schema) RequiredArgs() []string {
	var out []string
	for name, spec := range s.Args {
		if spec.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Registry holds the static tool schemas.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry creates a registry from the given schemas.
// Duplicate or unnamed schemas are a programming error.
func NewRegistry(schemas []Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("tool schema with empty name")
		}
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tool schema: %s", s.Name)
		}
		if s.TemplateID <= 0 {
			return nil, fmt.Errorf("tool %s: missing job template id", s.Name)
		}
		r.schemas[s.Name] = s
	}
	return r, nil
}

// Get returns a schema by name.
func (r *Registry) Get(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns all schemas, sorted by name.
func (r *Registry) List() []Schema {
	out := make([]Schema, 0, len(r.schemas))
	for _, name := range r.Names() {
		out = append(out, r.schemas[name])
	}
	return out
}

// Describe renders the tool catalog as prompt text for the planner.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, s := range r.List() {
		fmt.Fprintf(&b, "<Tool: %s>\n%s\n", s.Name, s.Description)
		var names []string
		for name := range s.Args {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			spec := s.Args[name]
			req := "optional"
			if spec.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)", name, spec.Type, req)
			if spec.Help != "" {
				fmt.Fprintf(&b, ": %s", spec.Help)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
