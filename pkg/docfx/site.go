// Package docfx reads generated DocFX web sites and converts their pages
// into Confluence storage format.
package docfx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Manifest is the manifest.json written by a DocFX build
type Manifest struct {
	XRefMap        string         `json:"xrefmap"`
	SourceBasePath string         `json:"source_base_path"`
	Files          []ManifestFile `json:"files"`
}

// ManifestFile describes one source file and the outputs built from it
type ManifestFile struct {
	Type               string                `json:"type"`
	SourceRelativePath string                `json:"source_relative_path"`
	Output             map[string]OutputFile `json:"output"`
}

// OutputFile is a generated file, relative to the site root
type OutputFile struct {
	RelativePath string `json:"relative_path"`
	Hash         string `json:"hash,omitempty"`
}

// XRef is a cross-reference map entry
type XRef struct {
	UID          string `yaml:"uid"`
	Name         string `yaml:"name"`
	Href         string `yaml:"href"`
	FullName     string `yaml:"fullName,omitempty"`
	CommentID    string `yaml:"commentId,omitempty"`
	NameWithType string `yaml:"nameWithType,omitempty"`
}

// Title is the Confluence page title used for the entry
func (x XRef) Title() string {
	return fmt.Sprintf("DocFX - %s (%s)", x.Name, x.UID)
}

type xrefMap struct {
	Sorted     bool   `yaml:"sorted"`
	References []XRef `yaml:"references"`
}

// LoadManifest parses a DocFX manifest.json
func LoadManifest(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filename, err)
	}
	return &manifest, nil
}

// LoadXRefMap parses the references of a DocFX xrefmap.yml
func LoadXRefMap(filename string) ([]XRef, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read xref map: %w", err)
	}

	var xm xrefMap
	if err := yaml.Unmarshal(data, &xm); err != nil {
		return nil, fmt.Errorf("failed to parse xref map %s: %w", filename, err)
	}

	for i, ref := range xm.References {
		if ref.UID == "" || ref.Href == "" {
			return nil, fmt.Errorf("xref map %s: entry %d has no uid or href", filename, i)
		}
	}
	return xm.References, nil
}

// Site is a generated DocFX web site on the local file system
type Site struct {
	Dir      string
	Manifest *Manifest
	XRefs    []XRef
}

// LoadSite loads the manifest at manifestPath and the xref map it names
func LoadSite(manifestPath string) (*Site, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if manifest.XRefMap == "" {
		return nil, fmt.Errorf("manifest %s does not name an xref map", manifestPath)
	}

	dir := filepath.Dir(manifestPath)
	xrefs, err := LoadXRefMap(filepath.Join(dir, filepath.FromSlash(manifest.XRefMap)))
	if err != nil {
		return nil, err
	}

	return &Site{
		Dir:      dir,
		Manifest: manifest,
		XRefs:    xrefs,
	}, nil
}

// PageDir returns the site-relative directory of href, "" for the root.
// Links inside the page are resolved against it.
func PageDir(href string) string {
	dir := path.Dir(CleanPath(href))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// ReadPage reads the page at href and returns its content along with
// the directory links inside it are relative to
func (s *Site) ReadPage(href string) (content string, baseDir string, err error) {
	rel := CleanPath(href)
	if rel == "" {
		return "", "", fmt.Errorf("href %q has no path", href)
	}

	content, err = ReadPage(filepath.Join(s.Dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", "", err
	}
	return content, PageDir(href), nil
}

// ReadPage reads an HTML file, dropping any UTF-8 byte order marks
func ReadPage(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return string(bytes.ReplaceAll(data, utf8BOM, nil)), nil
}

// CleanPath returns the cleaned, site-relative path component of href.
// Query and fragment are dropped.
func CleanPath(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Path == "" {
		return ""
	}
	return strings.TrimLeft(path.Clean("/"+u.Path), "/")
}
