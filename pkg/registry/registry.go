// Package registry holds the resources, tools and prompts a server exposes.
// One Registry may be shared by every session of a server; each successful
// mutation is published to subscribers so sessions can emit list_changed
// notifications.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/schema"
)

// Category is one of the three capability categories.
type Category = protocol.CapabilityType

const (
	Resources = protocol.CapabilityResources
	Tools     = protocol.CapabilityTools
	Prompts   = protocol.CapabilityPrompts
)

var (
	// ErrDuplicate is returned when the name (URI for resources) is taken.
	ErrDuplicate = errors.New("already registered")
	// ErrInvalid is returned for an empty name, a nil handler or a bad schema.
	ErrInvalid = errors.New("invalid registration")
	// ErrNotFound is returned by the Resolve methods.
	ErrNotFound = errors.New("not registered")
)

// ResourceHandler produces the contents of the resource at uri.
type ResourceHandler func(ctx context.Context, uri string) ([]protocol.ResourceContents, error)

// ToolHandler runs a tool. args has already passed the tool's input schema.
// A returned error that is not an MCPError is a failure of the tool itself.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error)

// PromptHandler renders a prompt. Required arguments are checked before the
// handler runs.
type PromptHandler func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error)

// ResourceEntry is a registered resource.
type ResourceEntry struct {
	Descriptor protocol.Resource
	Handler    ResourceHandler
}

// ToolEntry is a registered tool.
type ToolEntry struct {
	Descriptor protocol.Tool
	Handler    ToolHandler
	validator  *schema.Validator
}

// Validate checks args against the tool's input schema.
func (e *ToolEntry) Validate(args json.RawMessage) error {
	return e.validator.Validate(args)
}

// PromptEntry is a registered prompt.
type PromptEntry struct {
	Descriptor protocol.Prompt
	Handler    PromptHandler
}

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*ResourceEntry
	tools     map[string]*ToolEntry
	prompts   map[string]*PromptEntry

	subMu  sync.Mutex
	subs   map[int]*Subscription
	nextID int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		resources: make(map[string]*ResourceEntry),
		tools:     make(map[string]*ToolEntry),
		prompts:   make(map[string]*PromptEntry),
		subs:      make(map[int]*Subscription),
	}
}

// RegisterResource adds a resource keyed by its URI.
func (r *Registry) RegisterResource(desc protocol.Resource, h ResourceHandler) error {
	if desc.URI == "" {
		return fmt.Errorf("resource: empty uri: %w", ErrInvalid)
	}
	if h == nil {
		return fmt.Errorf("resource %q: nil handler: %w", desc.URI, ErrInvalid)
	}
	if desc.Name == "" {
		desc.Name = desc.URI
	}

	r.mu.Lock()
	if _, exists := r.resources[desc.URI]; exists {
		r.mu.Unlock()
		return fmt.Errorf("resource %q: %w", desc.URI, ErrDuplicate)
	}
	r.resources[desc.URI] = &ResourceEntry{Descriptor: desc, Handler: h}
	r.mu.Unlock()

	r.publish(Resources)
	return nil
}

// RegisterTool adds a tool. A non-empty InputSchema is compiled here, so an
// invalid schema fails registration rather than the first call.
func (r *Registry) RegisterTool(desc protocol.Tool, h ToolHandler) error {
	if desc.Name == "" {
		return fmt.Errorf("tool: empty name: %w", ErrInvalid)
	}
	if h == nil {
		return fmt.Errorf("tool %q: nil handler: %w", desc.Name, ErrInvalid)
	}
	if len(desc.InputSchema) == 0 {
		desc.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	v, err := schema.Compile(desc.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %v: %w", desc.Name, err, ErrInvalid)
	}

	r.mu.Lock()
	if _, exists := r.tools[desc.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tool %q: %w", desc.Name, ErrDuplicate)
	}
	r.tools[desc.Name] = &ToolEntry{Descriptor: desc, Handler: h, validator: v}
	r.mu.Unlock()

	r.publish(Tools)
	return nil
}

// RegisterPrompt adds a prompt keyed by its name.
func (r *Registry) RegisterPrompt(desc protocol.Prompt, h PromptHandler) error {
	if desc.Name == "" {
		return fmt.Errorf("prompt: empty name: %w", ErrInvalid)
	}
	if h == nil {
		return fmt.Errorf("prompt %q: nil handler: %w", desc.Name, ErrInvalid)
	}

	r.mu.Lock()
	if _, exists := r.prompts[desc.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("prompt %q: %w", desc.Name, ErrDuplicate)
	}
	r.prompts[desc.Name] = &PromptEntry{Descriptor: desc, Handler: h}
	r.mu.Unlock()

	r.publish(Prompts)
	return nil
}

// Unregister removes the entry with the given key and reports whether it
// existed.
func (r *Registry) Unregister(category Category, key string) bool {
	r.mu.Lock()
	var removed bool
	switch category {
	case Resources:
		_, removed = r.resources[key]
		delete(r.resources, key)
	case Tools:
		_, removed = r.tools[key]
		delete(r.tools, key)
	case Prompts:
		_, removed = r.prompts[key]
		delete(r.prompts, key)
	}
	r.mu.Unlock()

	if removed {
		r.publish(category)
	}
	return removed
}

// Len returns the number of entries in a category.
func (r *Registry) Len(category Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch category {
	case Resources:
		return len(r.resources)
	case Tools:
		return len(r.tools)
	case Prompts:
		return len(r.prompts)
	}
	return 0
}

// Resources returns every resource descriptor sorted by URI.
func (r *Registry) Resources() []protocol.Resource {
	r.mu.RLock()
	out := make([]protocol.Resource, 0, len(r.resources))
	for _, e := range r.resources {
		out = append(out, e.Descriptor)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Tools returns every tool descriptor sorted by name.
func (r *Registry) Tools() []protocol.Tool {
	r.mu.RLock()
	out := make([]protocol.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.Descriptor)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prompts returns every prompt descriptor sorted by name.
func (r *Registry) Prompts() []protocol.Prompt {
	r.mu.RLock()
	out := make([]protocol.Prompt, 0, len(r.prompts))
	for _, e := range r.prompts {
		out = append(out, e.Descriptor)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveResource returns the resource registered at uri.
func (r *Registry) ResolveResource(uri string) (*ResourceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.resources[uri]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("resource %q: %w", uri, ErrNotFound)
}

// ResolveTool returns the tool registered under name.
func (r *Registry) ResolveTool(name string) (*ToolEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.tools[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("tool %q: %w", name, ErrNotFound)
}

// ResolvePrompt returns the prompt registered under name.
func (r *Registry) ResolvePrompt(name string) (*PromptEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.prompts[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("prompt %q: %w", name, ErrNotFound)
}
