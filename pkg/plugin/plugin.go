// Package plugin defines what a plugin is, what the host offers it, and
// how plugins are registered and brought up in dependency order.
package plugin

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tintoy/confluence-docfx-import/config"
	"github.com/tintoy/confluence-docfx-import/pkg/sal"
)

// Plugin represents a loadable module that extends the host
type Plugin interface {
	// Initialize the plugin with host context and configuration
	Initialize(ctx context.Context, host PluginHost, config map[string]interface{}) error

	Name() string
	Version() string
	Description() string

	// Dependencies names the plugins that must be initialized first
	Dependencies() []PluginDependency

	Shutdown(ctx context.Context) error
}

// PluginHost is everything the host offers a plugin
type PluginHost interface {
	// RegisterMiddleware wraps requests under path
	RegisterMiddleware(path string, middleware func(http.Handler) http.Handler) error

	// RegisterHandler serves pattern; a trailing "/" claims the subtree
	RegisterHandler(pattern string, handler http.HandlerFunc) error

	Config() *config.Config
	Logger() *log.Logger

	// ApplicationProperties returns nil when the host does not provide them
	ApplicationProperties() sal.ApplicationProperties

	// Services is the registry plugins export their components to
	Services() *ServiceRegistry

	// RegisterTask runs task every interval until the host stops
	RegisterTask(name string, interval time.Duration, task func(context.Context) error) error
}

// PluginDependency names another plugin
type PluginDependency struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Type     DependencyType `json:"type"`
	Optional bool           `json:"optional"`
}

// DependencyType says how a dependency constrains loading
type DependencyType string

const (
	DependencyRequired DependencyType = "required"
	DependencyOptional DependencyType = "optional"
	DependencyConflict DependencyType = "conflict"
)

func (d PluginDependency) optional() bool {
	return d.Optional || d.Type == DependencyOptional
}

// Initializable is implemented by plugins that report their own state
type Initializable interface {
	IsInitialized() bool
}

// Info identifies a plugin
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// BasePlugin carries a plugin's identity and initialization state. Embed
// it and call SetInfo from the constructor.
type BasePlugin struct {
	mu          sync.RWMutex
	info        Info
	initialized bool
}

// Info returns the plugin identity
func (p *BasePlugin) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

func (p *BasePlugin) Name() string        { return p.Info().Name }
func (p *BasePlugin) Version() string     { return p.Info().Version }
func (p *BasePlugin) Description() string { return p.Info().Description }

// SetInfo sets the plugin identity
func (p *BasePlugin) SetInfo(name, version, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = Info{Name: name, Version: version, Description: description}
}

func (p *BasePlugin) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

func (p *BasePlugin) SetInitialized(initialized bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = initialized
}

// Dependencies returns no dependencies
func (p *BasePlugin) Dependencies() []PluginDependency {
	return nil
}

// Shutdown marks the plugin uninitialized
func (p *BasePlugin) Shutdown(ctx context.Context) error {
	p.SetInitialized(false)
	return nil
}
