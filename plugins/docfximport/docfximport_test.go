package docfximport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tintoy/confluence-docfx-import/config"
	"github.com/tintoy/confluence-docfx-import/pkg/component"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence/confluencetest"
	"github.com/tintoy/confluence-docfx-import/pkg/host"
	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
	"github.com/tintoy/confluence-docfx-import/plugins/docfximport"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubSource []mapping.Mapping

func (s stubSource) SpaceMappings(ctx context.Context, spaceKey string) ([]mapping.Mapping, error) {
	return s, nil
}

func loadHost(t *testing.T, cfg *config.Config, p *docfximport.DocFXImportPlugin, opts ...host.Option) *host.Host {
	t.Helper()
	h := host.New(cfg, quietLogger(), opts...)
	if err := h.LoadPlugins(context.Background(), p); err != nil {
		t.Fatalf("Failed to load plugin: %v", err)
	}
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h
}

func serve(h *host.Host, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestComponentNameFromHost(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Application.DisplayName = "My Wiki"
	h := loadHost(t, cfg, docfximport.New(docfximport.WithStore(mapping.NewMemoryStore())))

	c, err := plugin.LookupAs[component.PluginComponent](h.Services(), component.ServiceName)
	if err != nil {
		t.Fatalf("Component not exported: %v", err)
	}

	expected := "pluginComponent:" + h.ApplicationProperties().DisplayName()
	if c.Name() != expected {
		t.Errorf("Expected %q, got %q", expected, c.Name())
	}
	if c.Name() != "pluginComponent:My Wiki" {
		t.Errorf("Unexpected name %q", c.Name())
	}

	rec := serve(h, http.MethodGet, "/plugins/docfx-import/name")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != expected {
		t.Errorf("Expected name %q, got %q", expected, body["name"])
	}
	if rec.Header().Get("X-DocFX-Plugin") != "docfx-import/1.0.0" {
		t.Errorf("Plugin middleware did not run, headers: %v", rec.Header())
	}
}

func TestComponentWithoutApplicationProperties(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Application.Enabled = false
	h := loadHost(t, cfg, docfximport.New(docfximport.WithStore(mapping.NewMemoryStore())))

	if h.ApplicationProperties() != nil {
		t.Fatal("Host should not provide application properties")
	}
	c, err := plugin.LookupAs[component.PluginComponent](h.Services(), component.ServiceName)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "pluginComponent" {
		t.Errorf("Expected bare service name, got %q", c.Name())
	}
}

func TestComponentEmptyDisplayName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Application.DisplayName = ""
	p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()))
	loadHost(t, cfg, p)

	if p.Component().Name() != "pluginComponent:" {
		t.Errorf("Expected trailing colon, got %q", p.Component().Name())
	}
}

func TestMappingEndpoints(t *testing.T) {
	ctx := context.Background()
	store := mapping.NewMemoryStore()
	store.Put(ctx, mapping.Mapping{ConfluenceID: "2001", DocFXUID: "N.T", DocFXHref: "api/N.T.html"})
	store.Put(ctx, mapping.Mapping{ConfluenceID: "2002", DocFXUID: "N.U", DocFXHref: "api/N.U.html"})

	h := loadHost(t, config.DefaultConfig(), docfximport.New(docfximport.WithStore(store)))

	rec := serve(h, http.MethodGet, "/plugins/docfx-import/mappings")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var all []mapping.Mapping
	if err := json.NewDecoder(rec.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 mappings, got %d", len(all))
	}

	rec = serve(h, http.MethodGet, "/plugins/docfx-import/mappings/N.U")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var one mapping.Mapping
	if err := json.NewDecoder(rec.Body).Decode(&one); err != nil {
		t.Fatal(err)
	}
	if one.ConfluenceID != "2002" {
		t.Errorf("Expected page 2002, got %+v", one)
	}

	if rec := serve(h, http.MethodGet, "/plugins/docfx-import/mappings/N.Missing"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown uid, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/plugins/docfx-import/sync"); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a mapping source, got %d", rec.Code)
	}
}

func TestSync(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	server.AddPage("DOCS", "DocFX - T (N.T)", &confluence.DocFXProperties{UID: "N.T", Href: "api/N.T.html"})
	server.AddPage("DOCS", "Unrelated", nil)

	client, err := confluence.NewClient(server.URL, confluencetest.User, confluencetest.Password)
	if err != nil {
		t.Fatal(err)
	}

	store := mapping.NewMemoryStore()
	p := docfximport.New(docfximport.WithStore(store), docfximport.WithMappingSource(client, "DOCS"))
	h := loadHost(t, config.DefaultConfig(), p)

	rec := serve(h, http.MethodPost, "/plugins/docfx-import/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	m, err := store.ByUID(context.Background(), "N.T")
	if err != nil {
		t.Fatalf("Mapping not synced: %v", err)
	}
	if m.ConfluenceID != "1001" {
		t.Errorf("Expected page 1001, got %s", m.ConfluenceID)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy plugin, got %v", err)
	}
}

func TestSyncFailureMarksUnhealthy(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()

	client, err := confluence.NewClient(server.URL, confluencetest.User, confluencetest.Password)
	if err != nil {
		t.Fatal(err)
	}

	p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()), docfximport.WithMappingSource(client, "MISSING"))
	h := loadHost(t, config.DefaultConfig(), p)

	if err := p.Sync(context.Background()); err == nil {
		t.Fatal("Expected sync of a missing space to fail")
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("Expected unhealthy plugin after failed sync")
	}

	h.HealthMonitor().CheckNow(context.Background())
	if h.HealthMonitor().Healthy() {
		t.Error("Host monitor should report the failed sync")
	}
}

func TestSyncTaskRegistered(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Plugins.Config["docfx-import"] = map[string]interface{}{"syncInterval": "1h"}

	p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()), docfximport.WithMappingSource(stubSource{}, "DOCS"))
	h := loadHost(t, cfg, p)

	noop := func(context.Context) error { return nil }
	if err := h.RegisterTask("docfx-import-sync", time.Hour, noop); err == nil {
		t.Error("Expected the sync task to be registered already")
	}
}

func TestInvalidSyncInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval interface{}
	}{
		{"garbage", "soon"},
		{"negative", "-1m"},
		{"wrong type", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Plugins.Config["docfx-import"] = map[string]interface{}{"syncInterval": tt.interval}

			h := host.New(cfg, quietLogger())
			p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()))
			if err := h.LoadPlugins(context.Background(), p); err == nil {
				t.Error("Expected initialization to fail")
			}
		})
	}
}

func TestSyncWithoutConfluence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Plugins.Config["docfx-import"] = map[string]interface{}{"syncInterval": int64(60)}

	h := host.New(cfg, quietLogger())
	if err := h.LoadPlugins(context.Background(), docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()))); err == nil {
		t.Error("Expected initialization without a Confluence address to fail")
	}
}

func TestSyncWithoutSpaceExportsNothing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Plugins.Config["docfx-import"] = map[string]interface{}{"syncInterval": "1m"}

	h := host.New(cfg, quietLogger())
	p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()), docfximport.WithMappingSource(stubSource{}, ""))
	err := h.LoadPlugins(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "requires a Confluence space") {
		t.Fatalf("Expected missing space error, got %v", err)
	}
	if _, err := h.Services().Lookup(component.ServiceName); err == nil {
		t.Error("A plugin that failed to initialize must not export its component")
	}
	if rec := serve(h, http.MethodGet, "/plugins/docfx-import/name"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected no plugin routes, got %d", rec.Code)
	}
}

func TestShutdownUnexports(t *testing.T) {
	h := host.New(config.DefaultConfig(), quietLogger())
	p := docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()))
	if err := h.LoadPlugins(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Services().Lookup(component.ServiceName); err == nil {
		t.Error("Expected component to be withdrawn on shutdown")
	}
	if p.IsInitialized() {
		t.Error("Plugin should not be initialized after shutdown")
	}
}
