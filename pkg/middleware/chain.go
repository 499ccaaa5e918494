// Package middleware holds the host's HTTP middleware: a priority ordered
// chain plugins add to at runtime, plus the handlers every request passes
// through. All middleware uses the func(http.Handler) http.Handler shape
// interpose expects.
package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Priority orders middleware; higher runs first
type Priority int

const (
	PriorityHigh   Priority = 100
	PriorityMedium Priority = 50
	PriorityLow    Priority = 10
)

// Middleware is one entry in a Chain
type Middleware struct {
	Name     string
	Priority Priority
	// Path limits the middleware to requests under it; "" or "/" means all
	Path string
	Wrap func(http.Handler) http.Handler
}

func (m Middleware) global() bool {
	return m.Path == "" || m.Path == "/"
}

// Chain is a priority ordered list of middleware that may grow while it is
// serving. Each request runs through the entries present when it arrives.
type Chain struct {
	mu      sync.RWMutex
	entries []Middleware
	logger  *log.Logger
}

// NewChain creates an empty chain
func NewChain(logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Chain{logger: logger}
}

// Add inserts m after every entry of equal or higher priority
func (c *Chain) Add(m Middleware) error {
	if m.Wrap == nil {
		return fmt.Errorf("middleware %q has no handler", m.Name)
	}

	c.mu.Lock()
	at := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Priority < m.Priority
	})
	c.entries = append(c.entries, Middleware{})
	copy(c.entries[at+1:], c.entries[at:])
	c.entries[at] = m
	count := len(c.entries)
	c.mu.Unlock()

	c.logger.WithFields(log.Fields{
		"middleware": m.Name,
		"priority":   m.Priority,
		"path":       m.Path,
		"count":      count,
	}).Debug("Middleware added")
	return nil
}

// Middlewares returns the entries in execution order
func (c *Chain) Middlewares() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Middleware(nil), c.entries...)
}

// Then wraps next in the entries currently in the chain
func (c *Chain) Then(next http.Handler) http.Handler {
	entries := c.Middlewares()
	handler := next
	for i := len(entries) - 1; i >= 0; i-- {
		m := entries[i]
		if m.global() {
			handler = m.Wrap(handler)
		} else {
			handler = scoped(m.Path, m.Wrap(handler), handler)
		}
	}
	return handler
}

// Mount is the interpose form of the chain. Unlike Then it sees entries
// added after mounting.
func (c *Chain) Mount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Then(next).ServeHTTP(w, r)
	})
}

func scoped(prefix string, inside, outside http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if underPath(r.URL.Path, prefix) {
			inside.ServeHTTP(w, r)
		} else {
			outside.ServeHTTP(w, r)
		}
	})
}

// underPath reports whether path is prefix itself or lies beneath it.
// "/plugins/docs" covers "/plugins/docs/name" but not "/plugins/docsx".
func underPath(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
