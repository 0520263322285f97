package languages

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// Registry holds the plugins known to a sync pass. Plugins are consulted in
// registration order.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewRegistry creates a registry holding plugins
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds a plugin
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
}

// Plugins returns the registered plugins in order
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// PluginFor returns the first plugin supporting kind, or nil
func (r *Registry) PluginFor(kind model.TargetKind) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.Supports(kind) {
			return p
		}
	}
	return nil
}

// PluginForFile returns the plugin owning the extension of path, or nil
func (r *Registry) PluginForFile(path string) Plugin {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		for _, e := range p.Extensions() {
			if e == ext {
				return p
			}
		}
	}
	return nil
}

// PrepareSync runs PrepareSync on every plugin
func (r *Registry) PrepareSync(targets []*model.TargetInfo, ws WorkspaceContext) {
	for _, p := range r.Plugins() {
		p.PrepareSync(targets, ws)
	}
}

// IsSourceFile reports whether some plugin recognises path as a source file
func (r *Registry) IsSourceFile(path string) bool {
	return r.PluginForFile(path) != nil
}
