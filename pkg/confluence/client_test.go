package confluence_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence/confluencetest"
)

func newClient(t *testing.T, server *confluencetest.Server, opts ...confluence.Option) *confluence.Client {
	t.Helper()
	client, err := confluence.NewClient(server.URL, confluencetest.User, confluencetest.Password, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClientBaseURL(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"https://wiki.example.com", "https://wiki.example.com/rest/api/"},
		{"https://wiki.example.com/", "https://wiki.example.com/rest/api/"},
		{"https://wiki.example.com/confluence", "https://wiki.example.com/confluence/rest/api/"},
		{"https://wiki.example.com/rest/api/", "https://wiki.example.com/rest/api/"},
		{"https://wiki.example.com/rest/api", "https://wiki.example.com/rest/api/"},
	}

	for _, tt := range tests {
		client, err := confluence.NewClient(tt.address, "u", "p")
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.address, err)
			continue
		}
		if client.BaseURL() != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.address, tt.expected, client.BaseURL())
		}
	}
}

func TestNewClientInvalid(t *testing.T) {
	for _, address := range []string{"", "wiki.example.com"} {
		if _, err := confluence.NewClient(address, "u", "p"); err == nil {
			t.Errorf("Expected error for address %q", address)
		}
	}
}

func TestCreateAndUpdatePage(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	client := newClient(t, server)
	ctx := context.Background()

	id, err := client.CreatePage(ctx, confluence.NewPage{
		SpaceKey: "DOCS",
		Title:    "First",
		Content:  "<p>one</p>",
	})
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	if err := client.UpdatePage(ctx, id, "Second", "<p>two</p>"); err != nil {
		t.Fatalf("UpdatePage failed: %v", err)
	}

	stored, ok := server.Page(id)
	if !ok {
		t.Fatal("Page not stored")
	}
	if stored.Title != "Second" || stored.Content != "<p>two</p>" {
		t.Errorf("Unexpected page state %+v", stored)
	}
	if stored.Version != 2 {
		t.Errorf("Expected version 2, got %d", stored.Version)
	}
	if stored.SpaceKey != "DOCS" {
		t.Errorf("Update should keep the space, got %s", stored.SpaceKey)
	}

	page, err := client.GetPage(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if page.Version == nil || page.Version.Number != 2 {
		t.Errorf("Expected version 2 from GetPage, got %+v", page.Version)
	}
}

func TestDocFXProperty(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	client := newClient(t, server)
	ctx := context.Background()

	id := server.AddPage("DOCS", "Page", nil)

	// Replacing a property that does not exist yet must succeed
	props := confluence.DocFXProperties{UID: "N.T", Href: "api/N.T.html"}
	if err := client.ReplaceDocFXProperty(ctx, id, props); err != nil {
		t.Fatalf("ReplaceDocFXProperty failed: %v", err)
	}

	// Setting it again without deleting conflicts
	if err := client.SetDocFXProperty(ctx, id, props); err == nil {
		t.Error("Expected conflict setting an existing property")
	}

	moved := confluence.DocFXProperties{UID: "N.T", Href: "moved/N.T.html"}
	if err := client.ReplaceDocFXProperty(ctx, id, moved); err != nil {
		t.Fatalf("ReplaceDocFXProperty failed: %v", err)
	}

	stored, _ := server.Page(id)
	if got := stored.Properties[confluence.PropertyKey].Content; got != moved {
		t.Errorf("Expected %+v, got %+v", moved, got)
	}
	if desc := stored.Properties[confluence.PropertyKey].Description; desc != "DocFX page properties" {
		t.Errorf("Unexpected description %q", desc)
	}
}

func TestSpaceMappingsPaging(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	client := newClient(t, server, confluence.WithPageSize(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		uid := fmt.Sprintf("N.T%d", i)
		server.AddPage("DOCS", uid, &confluence.DocFXProperties{UID: uid, Href: "/api/" + uid + ".html"})
	}
	server.AddPage("DOCS", "Unrelated", nil)
	server.AddPage("OTHER", "Elsewhere", &confluence.DocFXProperties{UID: "O.X", Href: "o.html"})
	server.AddPage("DOCS", "Stray", &confluence.DocFXProperties{Href: "stray.html"})

	mappings, err := client.SpaceMappings(ctx, "DOCS")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 5 {
		t.Fatalf("Expected 5 mappings, got %d: %v", len(mappings), mappings)
	}
	if mappings[0].DocFXHref != "/api/N.T0.html" {
		t.Errorf("Expected raw href, got %s", mappings[0].DocFXHref)
	}

	all, err := client.AllMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Errorf("Expected 6 mappings across spaces, got %d", len(all))
	}

	// 6 DOCS pages at 2 per call: 3 full pages plus the empty terminator
	listCalls := 0
	for _, req := range server.Requests() {
		if req == "GET /rest/api/space/DOCS/content" {
			listCalls++
		}
	}
	if listCalls != 4 {
		t.Errorf("Expected 4 listing calls, got %d", listCalls)
	}
}

func TestAPIError(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	client := newClient(t, server)

	_, err := client.GetPage(context.Background(), "404404")
	if !confluence.IsNotFound(err) {
		t.Fatalf("Expected not found, got %v", err)
	}

	var apiErr *confluence.APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("Expected APIError")
	}
	if apiErr.Message != "No content found with id" {
		t.Errorf("Expected message from response, got %q", apiErr.Message)
	}

	_, err = client.SpaceMappings(context.Background(), "MISSING")
	if !strings.Contains(fmt.Sprint(err), "No space with key") {
		t.Errorf("Expected space error, got %v", err)
	}
}

func TestAuthentication(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()

	client, err := confluence.NewClient(server.URL, "admin", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.GetPage(context.Background(), "1")

	var apiErr *confluence.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %v", err)
	}
}

func TestMissingPageResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"unexpected": true}`))
	}))
	defer server.Close()

	client, err := confluence.NewClient(server.URL, "u", "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.ListSpacePages(context.Background(), "DOCS", 0, 50); err == nil {
		t.Error("Expected error when response has no page results")
	}
}

func TestContextCancelled(t *testing.T) {
	server := confluencetest.NewServer()
	defer server.Close()
	client := newClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.SpaceMappings(ctx, "DOCS"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
