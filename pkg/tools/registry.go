package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/sage/pkg/llm"
)

var ErrUnknownTool = errors.New("unknown tool")

type entry struct {
	spec    Spec
	handler Handler
}

// Registry holds the fixed set of callable tools. Populate it during
// startup; afterwards it is read-only and safe for concurrent use.
type Registry struct {
	entries []entry
	index   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a tool. Duplicate names and malformed specs are rejected.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if err := spec.validate(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", spec.Name)
	}
	if _, dup := r.index[spec.Name]; dup {
		return fmt.Errorf("tool %s: already registered", spec.Name)
	}
	r.index[spec.Name] = len(r.entries)
	r.entries = append(r.entries, entry{spec: spec, handler: handler})
	return nil
}

// Resolve returns the handler and spec for name.
func (r *Registry) Resolve(name string) (Handler, Spec, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, Spec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.entries[i].handler, r.entries[i].spec, nil
}

// Specs returns all tool specs in registration order. The order is stable
// across calls.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	return out
}

// Declarations renders the registry as provider tool declarations, in
// registration order.
func (r *Registry) Declarations() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, llm.Tool{
			Name:        e.spec.Name,
			Description: e.spec.Description,
			Schema:      e.spec.JSONSchema(),
		})
	}
	return out
}

// Catalog renders a human-readable tool listing for planning prompts.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, e := range r.entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.spec.Name, e.spec.Description)
		for _, p := range e.spec.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}

func (r *Registry) Len() int { return len(r.entries) }
