// Package confluence is a small client for the Confluence REST API covering
// pages and their DocFX content property.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
)

// DefaultPageSize is the number of results requested per listing call
const DefaultPageSize = 50

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("confluence %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("confluence %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from Confluence
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a single Confluence server
type Client struct {
	baseURL    *url.URL
	user       string
	password   string
	httpClient *http.Client
	pageSize   int
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithPageSize sets how many results listing calls request at a time
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records request durations
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the server at address. The REST API root
// "rest/api/" is appended unless address already ends with it.
func NewClient(address, user, password string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("confluence address is required")
	}
	if !strings.HasSuffix(address, "/") {
		address += "/"
	}
	if !strings.HasSuffix(address, "/rest/api/") {
		address += "rest/api/"
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid confluence address %q: %w", address, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid confluence address %q: scheme and host are required", address)
	}

	c := &Client{
		baseURL:    base,
		user:       user,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pageSize:   DefaultPageSize,
		logger:     logrus.StandardLogger(),
		metrics:    metrics.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the REST API root the client sends requests to
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// GetPage fetches a page including its space and version
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	var page Page
	query := url.Values{"expand": {"space,version"}}
	if err := c.do(ctx, http.MethodGet, "content/"+url.PathEscape(id), query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreatePage creates a page and returns its id
func (c *Client) CreatePage(ctx context.Context, p NewPage) (string, error) {
	req := Page{
		Type:  "page",
		Title: p.Title,
		Space: &Space{Key: p.SpaceKey},
		Body:  storageBody(p.Content),
	}

	var created Page
	if err := c.do(ctx, http.MethodPost, "content", nil, req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("confluence did not return an id for page %q", p.Title)
	}

	c.logger.WithFields(logrus.Fields{
		"page":  created.ID,
		"title": p.Title,
		"space": p.SpaceKey,
	}).Debug("Created page")
	return created.ID, nil
}

// UpdatePage replaces the title and content of an existing page, keeping
// it in its current space
func (c *Client) UpdatePage(ctx context.Context, id, title, content string) error {
	current, err := c.GetPage(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch page %s: %w", id, err)
	}
	if current.Version == nil || current.Space == nil {
		return fmt.Errorf("page %s returned without version or space", id)
	}

	req := Page{
		ID:      id,
		Type:    "page",
		Title:   title,
		Space:   &Space{Key: current.Space.Key},
		Body:    storageBody(content),
		Version: &Version{Number: current.Version.Number + 1},
	}
	if err := c.do(ctx, http.MethodPut, "content/"+url.PathEscape(id), nil, req, nil); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"page":    id,
		"version": req.Version.Number,
	}).Debug("Updated page")
	return nil
}

// SetDocFXProperty attaches DocFX metadata to a page
func (c *Client) SetDocFXProperty(ctx context.Context, id string, props DocFXProperties) error {
	req := Property{
		Key: PropertyKey,
		Value: PropertyValue{
			Description: "DocFX page properties",
			Content:     props,
		},
	}
	return c.do(ctx, http.MethodPost, "content/"+url.PathEscape(id)+"/property", nil, req, nil)
}

// DeleteProperty removes a content property from a page
func (c *Client) DeleteProperty(ctx context.Context, id, key string) error {
	return c.do(ctx, http.MethodDelete, "content/"+url.PathEscape(id)+"/property/"+url.PathEscape(key), nil, nil, nil)
}

// ReplaceDocFXProperty deletes and re-creates the DocFX property. A page
// that has no property yet is not an error.
func (c *Client) ReplaceDocFXProperty(ctx context.Context, id string, props DocFXProperties) error {
	if err := c.DeleteProperty(ctx, id, PropertyKey); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete docfx property of page %s: %w", id, err)
	}
	return c.SetDocFXProperty(ctx, id, props)
}

// ListSpacePages returns pages of a space with their DocFX property expanded
func (c *Client) ListSpacePages(ctx context.Context, spaceKey string, start, limit int) (*PageList, error) {
	var result spaceContent
	if err := c.do(ctx, http.MethodGet, "space/"+url.PathEscape(spaceKey)+"/content", pageQuery(start, limit), nil, &result); err != nil {
		return nil, err
	}
	if result.Page == nil {
		return nil, fmt.Errorf("space %s: response contained no page results", spaceKey)
	}
	return result.Page, nil
}

// ListPages returns pages across all spaces with their DocFX property expanded
func (c *Client) ListPages(ctx context.Context, start, limit int) (*PageList, error) {
	var result PageList
	if err := c.do(ctx, http.MethodGet, "content", pageQuery(start, limit), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SpaceMappings collects the DocFX mappings of every page in a space
func (c *Client) SpaceMappings(ctx context.Context, spaceKey string) ([]mapping.Mapping, error) {
	return c.collectMappings(ctx, func(start, limit int) (*PageList, error) {
		return c.ListSpacePages(ctx, spaceKey, start, limit)
	})
}

// AllMappings collects the DocFX mappings of every page on the server
func (c *Client) AllMappings(ctx context.Context) ([]mapping.Mapping, error) {
	return c.collectMappings(ctx, func(start, limit int) (*PageList, error) {
		return c.ListPages(ctx, start, limit)
	})
}

func (c *Client) collectMappings(ctx context.Context, list func(start, limit int) (*PageList, error)) ([]mapping.Mapping, error) {
	mappings := make([]mapping.Mapping, 0)
	for offset := 0; ; offset += c.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := list(offset, c.pageSize)
		if err != nil {
			return nil, err
		}
		if page.Size == 0 || len(page.Results) == 0 {
			break
		}

		for _, result := range page.Results {
			props, ok := result.DocFX()
			if !ok {
				continue
			}
			if props.UID == "" {
				c.logger.WithFields(logrus.Fields{
					"page":  result.ID,
					"title": result.Title,
				}).Warn("Ignoring docfx property without a UID")
				continue
			}
			mappings = append(mappings, mapping.Mapping{
				ConfluenceID: result.ID,
				DocFXUID:     props.UID,
				DocFXHref:    props.Href,
			})
		}
	}

	c.logger.WithField("count", len(mappings)).Debug("Loaded page mappings")
	return mappings, nil
}

func pageQuery(start, limit int) url.Values {
	return url.Values{
		"type":   {"page"},
		"expand": {"metadata.properties." + PropertyKey},
		"start":  {strconv.Itoa(start)},
		"limit":  {strconv.Itoa(limit)},
	}
}

// do sends a JSON request relative to the API root and decodes the JSON
// response into out when out is non-nil
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RequestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("confluence %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.metrics.RequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("confluence %s %s: failed to read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("confluence %s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
