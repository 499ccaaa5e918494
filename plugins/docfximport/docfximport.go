// Package docfximport is the plugin that brings DocFX documentation into
// the host. It exports the plugin component, serves the current
// DocFX to Confluence page mappings and can keep them in sync with a
// Confluence space.
package docfximport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/tintoy/confluence-docfx-import/pkg/component"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
)

// Plugin constants
const (
	PluginName    = "docfx-import"
	PluginVersion = "1.0.0"

	routePrefix = "/plugins/" + PluginName + "/"
	syncTask    = PluginName + "-sync"
)

// MappingSource lists the DocFX pages of a Confluence space
type MappingSource interface {
	SpaceMappings(ctx context.Context, spaceKey string) ([]mapping.Mapping, error)
}

// Option configures the plugin before it is initialized
type Option func(*DocFXImportPlugin)

// WithStore serves mappings from store instead of one created from the
// host's mappings config. The plugin does not close a store it was given.
func WithStore(store mapping.Store) Option {
	return func(p *DocFXImportPlugin) { p.store = store }
}

// WithMappingSource syncs mappings from spaceKey through source instead of
// a Confluence client built from the host config
func WithMappingSource(source MappingSource, spaceKey string) Option {
	return func(p *DocFXImportPlugin) {
		p.source = source
		p.spaceKey = spaceKey
	}
}

// DocFXImportPlugin implements plugin.Plugin
type DocFXImportPlugin struct {
	plugin.BasePlugin

	host      plugin.PluginHost
	logger    *log.Logger
	component *component.Component

	store     mapping.Store
	ownsStore bool
	source    MappingSource
	spaceKey  string
	interval  time.Duration

	syncMu   sync.RWMutex
	lastSync time.Time
	syncErr  error
}

// New creates the plugin
func New(opts ...Option) *DocFXImportPlugin {
	p := &DocFXImportPlugin{}
	p.SetInfo(PluginName, PluginVersion, "Imports DocFX documentation into Confluence")
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize implements the Plugin interface
func (p *DocFXImportPlugin) Initialize(ctx context.Context, host plugin.PluginHost, config map[string]interface{}) error {
	p.host = host
	p.logger = host.Logger()

	interval, err := parseInterval(config["syncInterval"])
	if err != nil {
		return fmt.Errorf("invalid syncInterval: %w", err)
	}
	p.interval = interval

	if p.interval > 0 && p.source == nil {
		cfg := host.Config().Confluence
		client, err := confluence.NewClient(cfg.Address, cfg.User, cfg.Password,
			confluence.WithTimeout(cfg.Timeout),
			confluence.WithPageSize(cfg.PageSize),
			confluence.WithLogger(p.logger),
		)
		if err != nil {
			return fmt.Errorf("syncInterval requires a Confluence server: %w", err)
		}
		p.source = client
		p.spaceKey = cfg.Space
	}
	// checked before anything is exported so a failed plugin leaves no trace
	if p.interval > 0 && p.spaceKey == "" {
		return fmt.Errorf("syncInterval requires a Confluence space")
	}

	if p.store == nil {
		store, err := mapping.NewStore(host.Config().Mappings)
		if err != nil {
			return fmt.Errorf("failed to create mapping store: %w", err)
		}
		p.store = store
		p.ownsStore = true
	}

	p.component = component.New(host.ApplicationProperties())
	if err := host.Services().Export(component.ServiceName, p.component, PluginName); err != nil {
		return fmt.Errorf("failed to export %s: %w", component.ServiceName, err)
	}

	if err := host.RegisterHandler(routePrefix, p.routes().ServeHTTP); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}
	if err := host.RegisterMiddleware(routePrefix, p.pluginHeaders); err != nil {
		return fmt.Errorf("failed to register middleware: %w", err)
	}

	if p.interval > 0 {
		if err := host.RegisterTask(syncTask, p.interval, p.Sync); err != nil {
			return fmt.Errorf("failed to register sync task: %w", err)
		}
	}

	p.SetInitialized(true)
	p.logger.WithFields(log.Fields{
		"plugin":       PluginName,
		"name":         p.component.Name(),
		"syncInterval": p.interval,
	}).Info("DocFX import plugin initialized")
	return nil
}

// Component returns the exported plugin component
func (p *DocFXImportPlugin) Component() component.PluginComponent {
	return p.component
}

// Sync replaces the stored mappings with those currently in the space
func (p *DocFXImportPlugin) Sync(ctx context.Context) error {
	if p.source == nil {
		return fmt.Errorf("no Confluence space to sync mappings from")
	}

	mappings, err := p.source.SpaceMappings(ctx, p.spaceKey)
	if err == nil {
		err = p.store.Replace(ctx, mappings)
	}

	p.syncMu.Lock()
	p.syncErr = err
	if err == nil {
		p.lastSync = time.Now()
	}
	p.syncMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to sync mappings from space %s: %w", p.spaceKey, err)
	}
	p.logger.WithFields(log.Fields{
		"space":    p.spaceKey,
		"mappings": len(mappings),
	}).Info("Mappings synced")
	return nil
}

// HealthCheck reports the plugin unhealthy while it is not initialized or
// after the latest sync failed
func (p *DocFXImportPlugin) HealthCheck(ctx context.Context) error {
	if !p.IsInitialized() {
		return errors.New("plugin not initialized")
	}
	p.syncMu.RLock()
	defer p.syncMu.RUnlock()
	return p.syncErr
}

// Shutdown withdraws the exported services
func (p *DocFXImportPlugin) Shutdown(ctx context.Context) error {
	if p.host != nil {
		p.host.Services().Unexport(PluginName)
	}
	p.SetInitialized(false)

	if p.ownsStore && p.store != nil {
		return p.store.Close()
	}
	return nil
}

func (p *DocFXImportPlugin) routes() *httprouter.Router {
	router := httprouter.New()
	router.GET(routePrefix+"name", plugin.HTTPHandlerAdapter(p.handleName))
	router.GET(routePrefix+"mappings", plugin.HTTPHandlerAdapter(p.handleMappings))
	router.HandlerFunc(http.MethodGet, routePrefix+"mappings/:uid", p.handleMapping)
	router.POST(routePrefix+"sync", plugin.HTTPHandlerAdapter(p.handleSync))
	return router
}

func (p *DocFXImportPlugin) pluginHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DocFX-Plugin", PluginName+"/"+PluginVersion)
		next.ServeHTTP(w, r)
	})
}

func (p *DocFXImportPlugin) handleName(w http.ResponseWriter, r *http.Request) {
	p.writeJSON(w, http.StatusOK, map[string]string{"name": p.component.Name()})
}

func (p *DocFXImportPlugin) handleMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := p.store.List(r.Context())
	if err != nil {
		p.logger.WithError(err).Error("Failed to list mappings")
		http.Error(w, "Failed to list mappings", http.StatusInternalServerError)
		return
	}
	p.writeJSON(w, http.StatusOK, mappings)
}

func (p *DocFXImportPlugin) handleMapping(w http.ResponseWriter, r *http.Request) {
	uid := plugin.ParamsFromRequest(r).ByName("uid")
	m, err := p.store.ByUID(r.Context(), uid)
	if errors.Is(err, mapping.ErrNotFound) {
		http.Error(w, "Mapping not found", http.StatusNotFound)
		return
	}
	if err != nil {
		p.logger.WithError(err).WithField("uid", uid).Error("Failed to look up mapping")
		http.Error(w, "Failed to look up mapping", http.StatusInternalServerError)
		return
	}
	p.writeJSON(w, http.StatusOK, m)
}

func (p *DocFXImportPlugin) handleSync(w http.ResponseWriter, r *http.Request) {
	if p.source == nil {
		http.Error(w, "Mapping sync is not configured", http.StatusConflict)
		return
	}
	if err := p.Sync(r.Context()); err != nil {
		p.logger.WithError(err).Warn("Mapping sync failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	p.syncMu.RLock()
	lastSync := p.lastSync
	p.syncMu.RUnlock()
	p.writeJSON(w, http.StatusOK, map[string]interface{}{"lastSync": lastSync})
}

func (p *DocFXImportPlugin) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.logger.WithError(err).Error("Failed to encode response")
	}
}

// parseInterval accepts a duration string or a whole number of seconds,
// the two forms TOML gives us
func parseInterval(v interface{}) (time.Duration, error) {
	var interval time.Duration
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, err
		}
		interval = d
	case int64:
		interval = time.Duration(value) * time.Second
	case int:
		interval = time.Duration(value) * time.Second
	case time.Duration:
		interval = value
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if interval < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", interval)
	}
	return interval, nil
}
