package plugin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"

	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
)

func TestRouterAdapters(t *testing.T) {
	router := httprouter.New()
	router.GET("/plugins/docs/name", plugin.HTTPHandlerAdapter(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("docs"))
	}))
	router.HandlerFunc(http.MethodGet, "/plugins/docs/mappings/:uid", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(plugin.ParamsFromRequest(r).ByName("uid")))
	})

	tests := []struct {
		path string
		want string
	}{
		{"/plugins/docs/name", "docs"},
		{"/plugins/docs/mappings/N.T", "N.T"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != tt.want {
			t.Errorf("GET %s: expected 200 %q, got %d %q", tt.path, tt.want, rec.Code, rec.Body.String())
		}
	}
}

func TestParamsFromPlainRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if params := plugin.ParamsFromRequest(r); len(params) != 0 {
		t.Errorf("Expected no params outside a router, got %v", params)
	}
}
