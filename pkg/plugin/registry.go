// Package plugin is the provider registry. Provider packages register a
// factory per kind and name from init(); the worker and CLI build providers
// by the names found in configuration.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/ai/stt"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
)

// Kind is the provider type a plugin builds.
type Kind string

const (
	KindLLM Kind = "llm"
	KindSTT Kind = "stt"
	KindTTS Kind = "tts"
)

// ErrNotFound is returned when no plugin is registered under a kind and name.
var ErrNotFound = errors.New("plugin not found")

// Options carries provider settings, usually straight from configuration.
type Options map[string]any

// String returns the string option key, or def when absent or empty.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Strings returns the string list option key.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Int returns the integer option key, or def when absent.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Factory creates a new provider instance from configuration.
// The returned value must implement the interface of the plugin's Kind:
// llm.StreamingLLM, stt.STT or tts.Synthesizer.
type Factory func(opts Options) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        Kind           // "llm", "stt", "tts"
	Name        string         // Plugin name (e.g., "openai", "deepgram")
	Factory     Factory        // Factory function to create instances
	Description string         // Human-readable description
	Version     string         // Plugin version
	Config      map[string]any // Accepted options and their defaults
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[Kind]map[string]*Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[Kind]map[string]*Plugin)}
}

// Global registry instance
var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry.
// Panics if a plugin with the same kind and name is already registered.
func Register(kind Kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with additional metadata to the global registry.
// Panics if a plugin with the same kind and name is already registered.
func RegisterWithMetadata(plugin *Plugin) {
	globalRegistry.RegisterWithMetadata(plugin)
}

// Get retrieves a plugin factory from the global registry.
func Get(kind Kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns all registered plugins of a specific kind.
// If kind is empty, returns all plugins.
func List(kind Kind) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns all registered plugin kinds.
func ListKinds() []Kind {
	return globalRegistry.ListKinds()
}

// NewLLM builds the translation provider registered as name.
func NewLLM(name string, opts Options) (llm.StreamingLLM, error) {
	return build[llm.StreamingLLM](globalRegistry, KindLLM, name, opts)
}

// NewSTT builds the transcription provider registered as name.
func NewSTT(name string, opts Options) (stt.STT, error) {
	return build[stt.STT](globalRegistry, KindSTT, name, opts)
}

// NewTTS builds the speech synthesizer registered as name.
func NewTTS(name string, opts Options) (tts.Synthesizer, error) {
	return build[tts.Synthesizer](globalRegistry, KindTTS, name, opts)
}

func build[T any](r *Registry, kind Kind, name string, opts Options) (T, error) {
	var zero T

	factory, ok := r.Get(kind, name)
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, name)
	}
	if opts == nil {
		opts = Options{}
	}

	instance, err := factory(opts)
	if err != nil {
		return zero, fmt.Errorf("failed to create %s/%s: %w", kind, name, err)
	}

	provider, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("plugin %s/%s returned %T, which is not a %s provider", kind, name, instance, kind)
	}
	return provider, nil
}

// Register adds a plugin to this registry instance.
// Panics if a plugin with the same kind and name is already registered.
func (r *Registry) Register(kind Kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{
		Kind:    kind,
		Name:    name,
		Factory: factory,
	})
}

// RegisterWithMetadata adds a plugin with metadata to this registry instance.
// Panics if a plugin with the same kind and name is already registered.
func (r *Registry) RegisterWithMetadata(plugin *Plugin) {
	if plugin.Kind == "" {
		panic("plugin kind cannot be empty")
	}
	if plugin.Name == "" {
		panic("plugin name cannot be empty")
	}
	if plugin.Factory == nil {
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[plugin.Kind] == nil {
		r.plugins[plugin.Kind] = make(map[string]*Plugin)
	}

	if existing, exists := r.plugins[plugin.Kind][plugin.Name]; exists {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			plugin.Kind, plugin.Name, existing.Version, plugin.Version))
	}

	r.plugins[plugin.Kind][plugin.Name] = plugin
}

// Get retrieves a plugin factory from this registry instance.
func (r *Registry) Get(kind Kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, ok := r.plugins[kind][name]
	if !ok {
		return nil, false
	}
	return plugin.Factory, true
}

// List returns registered plugins of kind, or all of them when kind is
// empty, sorted by kind then name.
func (r *Registry) List(kind Kind) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []*Plugin
	for k, byName := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range byName {
			plugins = append(plugins, p)
		}
	}

	sort.Slice(plugins, func(i, j int) bool {
		if plugins[i].Kind != plugins[j].Kind {
			return plugins[i].Kind < plugins[j].Kind
		}
		return plugins[i].Name < plugins[j].Name
	})
	return plugins
}

// ListKinds returns all registered plugin kinds in sorted order.
func (r *Registry) ListKinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
