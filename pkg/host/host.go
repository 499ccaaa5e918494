// Package host runs plugins: it provides them with configuration, the
// application properties service, a service registry, HTTP routing and
// periodic tasks.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carbocation/interpose"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"gopkg.in/tomb.v2"

	"github.com/tintoy/confluence-docfx-import/config"
	"github.com/tintoy/confluence-docfx-import/pkg/health"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
	"github.com/tintoy/confluence-docfx-import/pkg/middleware"
	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
	"github.com/tintoy/confluence-docfx-import/pkg/sal"
)

// Host implements plugin.PluginHost
type Host struct {
	config *config.Config
	logger *log.Logger
	props  sal.ApplicationProperties

	middleware *interpose.Middleware
	router     *mux.Router
	chain      *middleware.Chain
	services   *plugin.ServiceRegistry
	plugins    *plugin.Registry
	monitor    *health.Monitor

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	tasks     tomb.Tomb
	taskNames map[string]bool
	stopped   bool
	taskMu    sync.Mutex

	httpServer   *http.Server
	listener     net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	healthServer *grpchealth.Server
}

// Option configures a Host
type Option func(*Host)

// WithApplicationProperties replaces the properties derived from the
// application config section. nil means the host provides none.
func WithApplicationProperties(props sal.ApplicationProperties) Option {
	return func(h *Host) { h.props = sal.Normalize(props) }
}

// WithRegistry sets the Prometheus registry served on /metrics
func WithRegistry(registry *prometheus.Registry) Option {
	return func(h *Host) { h.registry = registry }
}

// WithMonitorConfig overrides the plugin health monitor settings
func WithMonitorConfig(cfg health.Config) Option {
	return func(h *Host) { h.monitor = health.NewMonitor(cfg, h.logger) }
}

// New creates a plugin host
func New(cfg *config.Config, logger *log.Logger, opts ...Option) *Host {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	h := &Host{
		config:       cfg,
		logger:       logger,
		props:        sal.FromConfig(cfg.Application),
		middleware:   interpose.New(),
		router:       mux.NewRouter(),
		chain:        middleware.NewChain(logger),
		services:     plugin.NewServiceRegistry(),
		taskNames:    make(map[string]bool),
		healthServer: grpchealth.NewServer(),
	}
	h.monitor = health.NewMonitor(health.DefaultConfig(), logger)

	for _, opt := range opts {
		opt(h)
	}

	if h.registry == nil {
		h.registry = prometheus.NewRegistry()
	}
	h.metrics = metrics.NewMetrics(h.registry)
	h.plugins = plugin.NewRegistry(h, logger)
	h.services.OnChange(h.serviceChanged)

	h.middleware.Use(middleware.RequestLogger(logger))
	h.middleware.Use(middleware.Recovery(logger))
	h.middleware.Use(middleware.SecurityHeaders())
	h.middleware.Use(h.chain.Mount)
	h.registerCoreRoutes()
	h.middleware.UseHandler(h.router)

	return h
}

// RegisterMiddleware registers middleware for requests under path
func (h *Host) RegisterMiddleware(path string, middlewareFunc func(http.Handler) http.Handler) error {
	if middlewareFunc == nil {
		return fmt.Errorf("middleware for %s cannot be nil", path)
	}
	return h.chain.Add(middleware.Middleware{
		Name:     "plugin:" + path,
		Priority: middleware.PriorityMedium,
		Path:     path,
		Wrap:     middleware.Isolate(path, h.logger, middlewareFunc),
	})
}

// RegisterHandler registers an API endpoint. A pattern ending in "/"
// claims the whole subtree, as with http.ServeMux.
func (h *Host) RegisterHandler(pattern string, handler http.HandlerFunc) error {
	if pattern == "" || handler == nil {
		return fmt.Errorf("handler pattern and function are required")
	}
	if strings.HasSuffix(pattern, "/") {
		h.router.PathPrefix(pattern).Handler(handler)
	} else {
		h.router.HandleFunc(pattern, handler)
	}
	h.logger.WithField("pattern", pattern).Debug("Registered route")
	return nil
}

// Config returns configuration
func (h *Host) Config() *config.Config {
	return h.config
}

// Logger returns logger
func (h *Host) Logger() *log.Logger {
	return h.logger
}

// ApplicationProperties returns the application properties service, or
// nil when the host does not provide one
func (h *Host) ApplicationProperties() sal.ApplicationProperties {
	return h.props
}

// Services returns the service registry
func (h *Host) Services() *plugin.ServiceRegistry {
	return h.services
}

// Metrics returns the host metrics
func (h *Host) Metrics() *metrics.Metrics {
	return h.metrics
}

// Handler returns the complete HTTP handler, middleware included
func (h *Host) Handler() http.Handler {
	return h.middleware
}

// HealthMonitor returns the plugin health monitor
func (h *Host) HealthMonitor() *health.Monitor {
	return h.monitor
}

// LoadPlugins registers plugins and initializes them in dependency order
// with their sections of the plugins config
func (h *Host) LoadPlugins(ctx context.Context, plugins ...plugin.Plugin) error {
	for _, p := range plugins {
		if err := h.plugins.Register(p); err != nil {
			return fmt.Errorf("failed to register plugin %s: %w", p.Name(), err)
		}
	}

	configs := make(map[string]map[string]interface{}, len(plugins))
	for _, p := range plugins {
		configs[p.Name()] = h.config.PluginConfig(p.Name())
	}
	if err := h.plugins.Initialize(ctx, configs); err != nil {
		return err
	}

	for _, p := range plugins {
		h.monitor.Watch(p.Name(), health.CheckerFor(p))
	}
	h.monitor.CheckNow(ctx)
	return nil
}

// Start serves HTTP on server.bind and, when configured, gRPC health on
// server.grpcBind
func (h *Host) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.config.Server.Bind)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.config.Server.Bind, err)
	}
	h.listener = listener
	h.httpServer = &http.Server{
		Handler:      h.middleware,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		h.logger.WithField("addr", listener.Addr().String()).Info("Starting server")
		if err := h.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.WithError(err).Error("Server error")
		}
	}()

	if h.config.Server.GRPCBind != "" {
		if err := h.startGRPC(h.config.Server.GRPCBind); err != nil {
			h.httpServer.Close()
			return err
		}
	}

	if err := h.monitor.Start(); err != nil {
		h.logger.WithError(err).Warn("Plugin health monitor not started")
	}
	return nil
}

// Addr returns the address the HTTP server listens on, once started
func (h *Host) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop shuts plugins down, stops periodic tasks and closes the servers
func (h *Host) Stop(ctx context.Context) error {
	h.logger.Info("Shutting down host")

	if err := h.plugins.Shutdown(ctx); err != nil {
		h.logger.WithError(err).Error("Error shutting down plugins")
	}
	h.stopTasks()
	h.monitor.Stop()
	h.stopGRPC()

	if h.httpServer != nil {
		return h.httpServer.Shutdown(ctx)
	}
	return nil
}

func (h *Host) serviceChanged(info plugin.ServiceInfo, exported bool) {
	h.metrics.ExportedServices.Set(float64(len(h.services.List())))
	h.setServingStatus(info.Name, exported)

	h.logger.WithFields(log.Fields{
		"service":  info.Name,
		"owner":    info.Owner,
		"exported": exported,
	}).Info("Service registry changed")
}
