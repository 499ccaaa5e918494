package plugin

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registry holds registered plugins and brings them up and down
type Registry struct {
	host   PluginHost
	logger *log.Logger

	mu      sync.RWMutex
	plugins map[string]Plugin
	names   []string

	// running lists initialized plugins in initialization order
	lifecycleMu sync.Mutex
	running     []string
}

// NewRegistry creates a registry whose plugins are initialized against host
func NewRegistry(host PluginHost, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		host:    host,
		logger:  logger,
		plugins: make(map[string]Plugin),
	}
}

// Register adds a plugin. Names must be unique and non-empty.
func (r *Registry) Register(p Plugin) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}
	r.plugins[name] = p
	r.names = append(r.names, name)
	return nil
}

// Get returns the named plugin
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// List returns plugins in registration order
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugins := make([]Plugin, 0, len(r.names))
	for _, name := range r.names {
		plugins = append(plugins, r.plugins[name])
	}
	return plugins
}

// Initialize initializes every plugin not yet running, dependencies first,
// passing each its entry from configs. It stops at the first failure.
func (r *Registry) Initialize(ctx context.Context, configs map[string]map[string]interface{}) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	ordered, err := initOrder(r.List())
	if err != nil {
		return fmt.Errorf("failed to resolve plugin dependencies: %w", err)
	}

	started := make(map[string]bool, len(r.running))
	for _, name := range r.running {
		started[name] = true
	}

	for _, p := range ordered {
		if started[p.Name()] {
			continue
		}
		cfg := configs[p.Name()]
		if cfg == nil {
			cfg = make(map[string]interface{})
		}
		if err := p.Initialize(ctx, r.host, cfg); err != nil {
			return fmt.Errorf("failed to initialize plugin %s: %w", p.Name(), err)
		}
		r.running = append(r.running, p.Name())

		r.logger.WithFields(log.Fields{
			"plugin":  p.Name(),
			"version": p.Version(),
		}).Info("Plugin initialized")
	}
	return nil
}

// Shutdown shuts plugins down in reverse initialization order, then any
// that never initialized in reverse registration order. Failures are
// logged and do not stop the remaining plugins.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	var names []string
	seen := make(map[string]bool, len(r.running))
	for i := len(r.running) - 1; i >= 0; i-- {
		names = append(names, r.running[i])
		seen[r.running[i]] = true
	}
	plugins := r.List()
	for i := len(plugins) - 1; i >= 0; i-- {
		if !seen[plugins[i].Name()] {
			names = append(names, plugins[i].Name())
		}
	}
	r.running = nil

	for _, name := range names {
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := p.Shutdown(ctx); err != nil {
			r.logger.WithError(err).WithField("plugin", name).Error("Failed to shut down plugin")
		}
	}
	return nil
}

// Load registers a single plugin and initializes it straight away
func (r *Registry) Load(ctx context.Context, p Plugin, cfg map[string]interface{}) error {
	if err := r.Register(p); err != nil {
		return err
	}
	return r.Initialize(ctx, map[string]map[string]interface{}{p.Name(): cfg})
}
