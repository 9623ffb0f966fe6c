package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// DefaultInputSchema is listed for tools registered without an input schema
var DefaultInputSchema = json.RawMessage(`{"type":"object"}`)

// Registry is the fixed, ordered catalog of tools the server exposes.
// It is built once and never mutated, so it is safe to share between sessions.
type Registry struct {
	tools   []protocol.Tool
	schemas []*compiledSchema
	index   map[string]int
}

// compiledSchema guards a schema during validation, which resolves
// references through state inside jsonschema.Schema.
type compiledSchema struct {
	mu     sync.Mutex
	schema *jsonschema.Schema
}

// NewRegistry builds a registry from descriptors in the given order.
// Names must be non-empty and unique. Input schemas must be JSON objects that
// compile as JSON Schema; a missing schema becomes DefaultInputSchema.
func NewRegistry(tools ...protocol.Tool) (*Registry, error) {
	r := &Registry{
		tools:   make([]protocol.Tool, 0, len(tools)),
		schemas: make([]*compiledSchema, 0, len(tools)),
		index:   make(map[string]int, len(tools)),
	}

	for i, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tool at position %d has no name", i)
		}
		if _, dup := r.index[tool.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		tool = tool.Clone()
		if len(tool.InputSchema) == 0 {
			tool.InputSchema = append(json.RawMessage(nil), DefaultInputSchema...)
		}
		schema, err := compileSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", tool.Name, err)
		}

		r.index[tool.Name] = len(r.tools)
		r.tools = append(r.tools, tool)
		r.schemas = append(r.schemas, &compiledSchema{schema: schema})
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on invalid input
func MustNewRegistry(tools ...protocol.Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns a copy of all descriptors in registration order
func (r *Registry) List() []protocol.Tool {
	out := make([]protocol.Tool, len(r.tools))
	for i, tool := range r.tools {
		out[i] = tool.Clone()
	}
	return out
}

// Exists reports whether a tool is registered under name
func (r *Registry) Exists(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Lookup returns a copy of the descriptor registered under name
func (r *Registry) Lookup(name string) (protocol.Tool, bool) {
	i, ok := r.index[name]
	if !ok {
		return protocol.Tool{}, false
	}
	return r.tools[i].Clone(), true
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.tools)
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("input schema must be a JSON object: %w", err)
	}
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return schema, nil
}

// ValidateArguments checks args against the input schema of the named tool and
// returns one message per violation, sorted. Nil args validate as an empty object.
func (r *Registry) ValidateArguments(ctx context.Context, name string, args map[string]interface{}) ([]string, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	cs := r.schemas[i]
	cs.mu.Lock()
	keyErrs, err := cs.schema.ValidateBytes(ctx, data)
	cs.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("validate arguments: %w", err)
	}

	violations := make([]string, 0, len(keyErrs))
	for _, ke := range keyErrs {
		if ke.PropertyPath == "" || ke.PropertyPath == "/" {
			violations = append(violations, ke.Message)
			continue
		}
		violations = append(violations, ke.PropertyPath+": "+ke.Message)
	}
	sort.Strings(violations)
	return violations, nil
}
