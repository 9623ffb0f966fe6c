package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DataProvider produces the text output of a tool call.
// Implementations reach whatever backing data source the deployment uses.
type DataProvider interface {
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error)
}

// ProviderFunc adapts a function to DataProvider
type ProviderFunc func(ctx context.Context, tool string, args map[string]interface{}) (string, error)

// Invoke calls f
func (f ProviderFunc) Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	return f(ctx, tool, args)
}

// StaticProvider answers every tool call with fixed text
type StaticProvider struct {
	// Text is returned for tools missing from Responses
	Text string
	// Responses maps tool names to their fixed output
	Responses map[string]string
}

// NewStaticProvider returns a provider that answers every call with text
func NewStaticProvider(text string) *StaticProvider {
	return &StaticProvider{Text: text}
}

// Invoke returns the configured text for tool, or an error once ctx is done
func (p *StaticProvider) Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if text, ok := p.Responses[tool]; ok {
		return text, nil
	}
	return p.Text, nil
}

// Router dispatches tool calls to per-tool providers
type Router struct {
	routes   map[string]DataProvider
	fallback DataProvider
}

// NewRouter creates a router that sends unrouted tools to fallback, which may be nil
func NewRouter(fallback DataProvider) *Router {
	return &Router{
		routes:   make(map[string]DataProvider),
		fallback: fallback,
	}
}

// Handle routes calls of tool to provider. It must be called before the router is shared.
func (r *Router) Handle(tool string, provider DataProvider) *Router {
	r.routes[tool] = provider
	return r
}

// HandleFunc routes calls of tool to fn
func (r *Router) HandleFunc(tool string, fn func(ctx context.Context, tool string, args map[string]interface{}) (string, error)) *Router {
	return r.Handle(tool, ProviderFunc(fn))
}

// Invoke implements DataProvider
func (r *Router) Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	if p, ok := r.routes[tool]; ok {
		return p.Invoke(ctx, tool, args)
	}
	if r.fallback != nil {
		return r.fallback.Invoke(ctx, tool, args)
	}
	return "", fmt.Errorf("no provider for tool %q", tool)
}

// Routes lists the tools with a dedicated provider, sorted by name
func (r *Router) Routes() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StringArg returns args[key] when it is a non-blank string
func StringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// IntArg returns args[key] when it is a JSON number with no fractional part
func IntArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
