// Package registry holds the set of tools the server exposes.
//
// Tools are registered once during startup and then frozen; after that the
// registry is read-only and safe for concurrent lookups.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrNotFound is returned by Lookup for unknown tool names.
	ErrNotFound = errors.New("registry: tool not found")
	// ErrFrozen is returned by Register after Freeze.
	ErrFrozen = errors.New("registry: registry is frozen")
)

// HandlerFunc has the same shape as an mcp-go tool handler.
type HandlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Kind selects how the dispatcher invokes a tool.
type Kind int

const (
	// Direct tools run exactly once.
	Direct Kind = iota
	// Retryable tools run through the retry pipeline.
	Retryable
)

func (k Kind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "direct"
}

// Tool is a registered tool.
type Tool struct {
	Definition mcp.Tool
	Handler    HandlerFunc
	Kind       Kind
}

// DuplicateToolError reports a second registration under the same name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("registry: tool %q already registered", e.Name)
}

// Registry maps tool names to tools, preserving registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]Tool
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(def mcp.Tool, h HandlerFunc, kind Kind) error {
	if def.Name == "" {
		return errors.New("registry: tool name is required")
	}
	if h == nil {
		return fmt.Errorf("registry: tool %q has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if _, ok := r.tools[def.Name]; ok {
		return &DuplicateToolError{Name: def.Name}
	}
	r.tools[def.Name] = Tool{Definition: def, Handler: h, Kind: kind}
	r.order = append(r.order, def.Name)
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

// List returns tool definitions in registration order.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition)
	}
	return out
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ─── Argument validation ─────────────────────────────────────────────────────

// InvalidParamsError lists argument problems found before a handler runs.
type InvalidParamsError struct {
	Tool    string
	Missing []string
	Invalid []string
}

func (e *InvalidParamsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required argument(s): "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid argument(s): "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Tool, strings.Join(parts, "; "))
}

// ValidateArguments checks required arguments are present and that
// supplied arguments match their declared JSON type.
func ValidateArguments(def mcp.Tool, args map[string]any) error {
	ipe := &InvalidParamsError{Tool: def.Name}

	for _, name := range def.InputSchema.Required {
		v, ok := args[name]
		if !ok || v == nil {
			ipe.Missing = append(ipe.Missing, name)
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := args[name]
		if v == nil {
			continue
		}
		prop, ok := def.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		if !matchesType(typ, v) {
			ipe.Invalid = append(ipe.Invalid, fmt.Sprintf("%s (expected %s)", name, typ))
		}
	}

	if len(ipe.Missing) == 0 && len(ipe.Invalid) == 0 {
		return nil
	}
	return ipe
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
