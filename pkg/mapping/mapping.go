// Package mapping tracks which Confluence page holds each DocFX topic.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tintoy/confluence-docfx-import/config"
)

// ErrNotFound is returned when a store has no mapping for a key
var ErrNotFound = errors.New("mapping not found")

// Mapping links a DocFX topic to the Confluence page it is published to
type Mapping struct {
	ConfluenceID string `yaml:"confluence_id" json:"confluence_id"`
	DocFXUID     string `yaml:"docfx_uid" json:"docfx_uid"`
	DocFXHref    string `yaml:"docfx_href" json:"docfx_href"`
}

// Store persists mappings, indexed by DocFX UID and by href
type Store interface {
	Put(ctx context.Context, m Mapping) error
	ByUID(ctx context.Context, uid string) (Mapping, error)
	ByHref(ctx context.Context, href string) (Mapping, error)
	List(ctx context.Context) ([]Mapping, error)
	// Replace discards the current contents and stores mappings instead
	Replace(ctx context.Context, mappings []Mapping) error
	Close() error
}

// NormalizeHref makes hrefs comparable regardless of a leading slash
func NormalizeHref(href string) string {
	return strings.TrimLeft(href, "/")
}

func (m Mapping) validate() error {
	if m.DocFXUID == "" {
		return fmt.Errorf("mapping for page %q has no DocFX UID", m.ConfluenceID)
	}
	if m.ConfluenceID == "" {
		return fmt.Errorf("mapping for %q has no Confluence page id", m.DocFXUID)
	}
	return nil
}

// NewStore creates the store selected by cfg.Backend
func NewStore(cfg config.MappingsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown mappings backend: %s", cfg.Backend)
	}
}

// HrefIndex maps the page path of each href (cleaned, no leading slash,
// no fragment) to its Confluence page id. Member topics share their type's
// page file, so an href without a fragment wins.
func HrefIndex(mappings []Mapping) map[string]string {
	index := make(map[string]string, len(mappings))
	for _, m := range mappings {
		u, err := url.Parse(m.DocFXHref)
		if err != nil || u.Path == "" {
			continue
		}
		key := NormalizeHref(path.Clean("/" + u.Path))
		if key == "" {
			continue
		}
		if _, taken := index[key]; taken && u.Fragment != "" {
			continue
		}
		index[key] = m.ConfluenceID
	}
	return index
}

func sortMappings(mappings []Mapping) {
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].DocFXUID < mappings[j].DocFXUID
	})
}

// WriteYAML writes mappings as a YAML document headed by a comment naming
// where they came from
func WriteYAML(w io.Writer, source string, mappings []Mapping) error {
	if _, err := fmt.Fprintf(w, "# Page mappings from %s\n", source); err != nil {
		return err
	}
	if mappings == nil {
		mappings = []Mapping{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(mappings); err != nil {
		return fmt.Errorf("failed to encode mappings: %w", err)
	}
	return enc.Close()
}

// ReadYAML parses a document produced by WriteYAML
func ReadYAML(r io.Reader) ([]Mapping, error) {
	var mappings []Mapping
	if err := yaml.NewDecoder(r).Decode(&mappings); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	return mappings, nil
}
