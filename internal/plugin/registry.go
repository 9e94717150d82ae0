package plugin

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the server's plugin set. Registration happens once at
// startup through explicit factories, never runtime reflection; the
// dispatcher iterates the set in registration order, which is also the
// shutdown order.
type Registry struct {
	mu      sync.RWMutex
	plugins []ServerPlugin
	byKey   map[string]ServerPlugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]ServerPlugin)}
}

func key(p ServerPlugin) string {
	return p.Name() + "/" + p.Version()
}

// Register adds a plugin. A second plugin with the same (name, version)
// identity is rejected.
func (r *Registry) Register(p ServerPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key(p)]; exists {
		return fmt.Errorf("plugin %s v%s already registered", p.Name(), p.Version())
	}
	r.plugins = append(r.plugins, p)
	r.byKey[key(p)] = p
	return nil
}

// Configure runs every plugin's Configure hook with the shared logger,
// before the first reply is dispatched. It stops at the first plugin that
// fails to configure and returns that failure as a PluginError; the plugin
// stays registered and enabled, the plugins after it are not configured,
// and the caller decides.
func (r *Registry) Configure(logger *slog.Logger) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if err := p.Configure(logger.With("plugin", p.Name(), "version", p.Version())); err != nil {
			return &PluginError{Name: p.Name(), Version: p.Version(), Err: err}
		}
	}
	return nil
}

// All returns the plugins in registration order.
func (r *Registry) All() []ServerPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerPlugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Get returns a plugin by name and version.
func (r *Registry) Get(name, version string) (ServerPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[name+"/"+version]
	return p, ok
}

// Size returns the number of registered plugins.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Info describes a registered plugin for the status API.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// List returns info about all registered plugins.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, Info{Name: p.Name(), Version: p.Version(), Enabled: p.Enabled()})
	}
	return infos
}
