package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence/confluencetest"
	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
)

func clearConfluenceEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFLUENCE_ADDR", "")
	t.Setenv("CONFLUENCE_USER", "")
	t.Setenv("CONFLUENCE_PASSWORD", "")
}

func run(t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()
	if configFile == "" {
		configFile = filepath.Join(t.TempDir(), "missing.toml")
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", configFile, "--log-level", "panic"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	os.MkdirAll(filepath.Dir(path), 0755)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNameCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default display name", nil, "pluginComponent:Confluence\n"},
		{"display name flag", []string{"--display-name", "My Wiki"}, "pluginComponent:My Wiki\n"},
		{"empty display name", []string{"--display-name", ""}, "pluginComponent:\n"},
		{"no application", []string{"--no-application"}, "pluginComponent\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "", append([]string{"name"}, tt.args...)...)
			if err != nil {
				t.Fatalf("name failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestNameFromConfigFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "docfx-confluence.toml")
	writeFile(t, configFile, `
[application]
enabled = true
displayName = "Docs Wiki"
`)

	out, err := run(t, configFile, "name")
	if err != nil {
		t.Fatal(err)
	}
	if out != "pluginComponent:Docs Wiki\n" {
		t.Errorf("Unexpected name %q", out)
	}
}

func TestMissingConfluenceSettings(t *testing.T) {
	clearConfluenceEnv(t)

	tests := []struct {
		args []string
		want string
	}{
		{
			nil,
			"Must specify address of Confluence server using --confluence-address argument or CONFLUENCE_ADDR environment variable.",
		},
		{
			[]string{"--confluence-address", "http://wiki"},
			"Must specify user name for authentication to Confluence server using --confluence-user argument or CONFLUENCE_USER environment variable.",
		},
		{
			[]string{"--confluence-address", "http://wiki", "--confluence-user", "admin"},
			"Must specify password for authentication to Confluence server using --confluence-password argument or CONFLUENCE_PASSWORD environment variable.",
		},
	}

	for _, tt := range tests {
		_, err := run(t, "", append([]string{"extract-mappings"}, tt.args...)...)
		if err == nil || err.Error() != tt.want {
			t.Errorf("Expected %q, got %v", tt.want, err)
		}
	}
}

func TestExtractMappings(t *testing.T) {
	clearConfluenceEnv(t)
	server := confluencetest.NewServer()
	defer server.Close()
	server.AddPage("DOCS", "DocFX - T (N.T)", &confluence.DocFXProperties{UID: "N.T", Href: "api/N.T.html"})
	server.AddPage("OTHER", "DocFX - U (N.U)", &confluence.DocFXProperties{UID: "N.U", Href: "api/N.U.html"})
	server.AddPage("DOCS", "Hand written", nil)

	t.Setenv("CONFLUENCE_USER", confluencetest.User)
	t.Setenv("CONFLUENCE_PASSWORD", confluencetest.Password)

	out, err := run(t, "", "extract-mappings", "--confluence-address", server.URL)
	if err != nil {
		t.Fatalf("extract-mappings failed: %v", err)
	}
	if !strings.HasPrefix(out, "# Page mappings from "+server.URL+"\n") {
		t.Errorf("Missing header in output:\n%s", out)
	}
	mappings, err := mapping.ReadYAML(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 2 {
		t.Errorf("Expected 2 mappings, got %+v", mappings)
	}

	output := filepath.Join(t.TempDir(), "mappings.yml")
	if _, err := run(t, "", "extract-mappings", "--confluence-address", server.URL, "--confluence-space", "DOCS", "-o", output); err != nil {
		t.Fatal(err)
	}
	file, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	mappings, err = mapping.ReadYAML(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 || mappings[0].DocFXUID != "N.T" {
		t.Errorf("Expected only the DOCS mapping, got %+v", mappings)
	}
}

func TestPublishCommand(t *testing.T) {
	clearConfluenceEnv(t)
	server := confluencetest.NewServer()
	defer server.Close()
	existing := server.AddPage("DOCS", "Old title", &confluence.DocFXProperties{UID: "N.T", Href: "api/N.T.html"})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifest.json"), `{"xrefmap": "xrefmap.yml", "files": []}`)
	writeFile(t, filepath.Join(dir, "xrefmap.yml"), `references:
- uid: N.T
  name: T
  href: api/N.T.html
- uid: N.U
  name: U
  href: api/N.U.html
`)
	writeFile(t, filepath.Join(dir, "api", "N.T.html"), `<p>See <a class="xref" href="N.U.html">U</a></p>`)
	writeFile(t, filepath.Join(dir, "api", "N.U.html"), `<p>U</p>`)

	args := []string{
		"publish",
		"--confluence-address", server.URL,
		"--confluence-user", confluencetest.User,
		"--confluence-password", confluencetest.Password,
		"--confluence-space", "DOCS",
		"--docfx-manifest", filepath.Join(dir, "manifest.json"),
	}

	out, err := run(t, "", append(args, "--dry-run")...)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if out != "Created 1, updated 1, skipped 0 pages.\n" {
		t.Errorf("Unexpected dry run summary %q", out)
	}
	if len(server.Pages()) != 1 {
		t.Fatal("Dry run created pages")
	}

	out, err = run(t, "", append(args, "--concurrency", "2")...)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if out != "Created 1, updated 2, skipped 0 pages.\n" {
		t.Errorf("Unexpected summary %q", out)
	}

	page, _ := server.Page(existing)
	if !strings.Contains(page.Content, "/pages/viewpage.action?pageId=") {
		t.Errorf("Expected xref link to be rewritten, got %s", page.Content)
	}
}

func TestPublishRequiresManifest(t *testing.T) {
	_, err := run(t, "", "publish",
		"--confluence-address", "http://wiki",
		"--confluence-user", "admin",
		"--confluence-password", "secret",
		"--confluence-space", "DOCS",
	)
	if err == nil || !strings.Contains(err.Error(), "--docfx-manifest") {
		t.Errorf("Expected missing manifest error, got %v", err)
	}
}
