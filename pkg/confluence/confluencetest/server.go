// Package confluencetest provides an in-memory Confluence REST API for tests
package confluencetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
)

// Credentials accepted by the fake server
const (
	User     = "admin"
	Password = "secret"
)

// StoredPage is the server-side state of a page
type StoredPage struct {
	ID         string
	SpaceKey   string
	Title      string
	Content    string
	Version    int
	Properties map[string]confluence.PropertyValue
}

// Server is a fake Confluence server
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string]*StoredPage
	nextID   int
	requests []string

	// FailCreate makes page creation fail with a 500 when set
	FailCreate bool
	// FailUpdate does the same for page updates
	FailUpdate bool
}

// NewServer starts a fake Confluence server
func NewServer() *Server {
	s := &Server{
		pages:  make(map[string]*StoredPage),
		nextID: 1000,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/rest/api").Subrouter()
	api.HandleFunc("/content", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/content", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/content/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/content/{id}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/content/{id}/property", s.handleSetProperty).Methods(http.MethodPost)
	api.HandleFunc("/content/{id}/property/{key}", s.handleDeleteProperty).Methods(http.MethodDelete)
	api.HandleFunc("/space/{key}/content", s.handleSpaceList).Methods(http.MethodGet)

	s.Server = httptest.NewServer(s.authenticate(s.record(router)))
	return s
}

// AddPage seeds a page, optionally with DocFX properties
func (s *Server) AddPage(spaceKey, title string, docfx *confluence.DocFXProperties) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocateID()
	page := &StoredPage{
		ID:         id,
		SpaceKey:   spaceKey,
		Title:      title,
		Version:    1,
		Properties: make(map[string]confluence.PropertyValue),
	}
	if docfx != nil {
		page.Properties[confluence.PropertyKey] = confluence.PropertyValue{Content: *docfx}
	}
	s.pages[id] = page
	return id
}

// Page returns a copy of the stored page
func (s *Server) Page(id string) (StoredPage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[id]
	if !ok {
		return StoredPage{}, false
	}
	return *page, true
}

// Pages returns copies of all stored pages ordered by id
func (s *Server) Pages() []StoredPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]StoredPage, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages
}

// Requests returns "METHOD path" for every request received
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) allocateID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || user != User || password != Password {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) render(p *StoredPage, expand string) confluence.Page {
	page := confluence.Page{
		ID:    p.ID,
		Type:  "page",
		Title: p.Title,
	}
	if strings.Contains(expand, "space") {
		page.Space = &confluence.Space{Key: p.SpaceKey}
	}
	if strings.Contains(expand, "version") {
		page.Version = &confluence.Version{Number: p.Version}
	}
	if strings.Contains(expand, "metadata.properties") {
		props := make(map[string]confluence.Property)
		for key, value := range p.Properties {
			props[key] = confluence.Property{Key: key, Value: value}
		}
		page.Metadata = &confluence.Metadata{Properties: props}
	}
	return page
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.FailCreate {
		writeError(w, http.StatusInternalServerError, "Creation disabled")
		return
	}

	var req confluence.Page
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Space == nil || req.Space.Key == "" {
		writeError(w, http.StatusBadRequest, "Space key is required")
		return
	}

	s.mu.Lock()
	id := s.allocateID()
	page := &StoredPage{
		ID:         id,
		SpaceKey:   req.Space.Key,
		Title:      req.Title,
		Version:    1,
		Properties: make(map[string]confluence.PropertyValue),
	}
	if req.Body != nil {
		page.Content = req.Body.Storage.Value
	}
	s.pages[id] = page
	resp := s.render(page, "space,version")
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "No content found with id")
		return
	}
	writeJSON(w, http.StatusOK, s.render(page, r.URL.Query().Get("expand")))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.FailUpdate {
		writeError(w, http.StatusInternalServerError, "Updates disabled")
		return
	}

	var req confluence.Page
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "No content found with id")
		return
	}
	if req.Version == nil || req.Version.Number != page.Version+1 {
		writeError(w, http.StatusConflict, "Version must be incremented on update")
		return
	}

	page.Title = req.Title
	page.Version = req.Version.Number
	if req.Body != nil {
		page.Content = req.Body.Storage.Value
	}
	writeJSON(w, http.StatusOK, s.render(page, "space,version"))
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	var req confluence.Property
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "No content found with id")
		return
	}
	if _, exists := page.Properties[req.Key]; exists {
		writeError(w, http.StatusConflict, "A property with key "+req.Key+" already exists")
		return
	}
	page.Properties[req.Key] = req.Value
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := mux.Vars(r)
	page, ok := s.pages[vars["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "No content found with id")
		return
	}
	if _, exists := page.Properties[vars["key"]]; !exists {
		writeError(w, http.StatusNotFound, "Cannot find property "+vars["key"])
		return
	}
	delete(page.Properties, vars["key"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.list(r, ""))
}

func (s *Server) handleSpaceList(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "MISSING" {
		writeError(w, http.StatusNotFound, "No space with key : MISSING")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page": s.list(r, key)})
}

func (s *Server) list(r *http.Request, spaceKey string) confluence.PageList {
	query := r.URL.Query()
	start, _ := strconv.Atoi(query.Get("start"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 25
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pages))
	for id, p := range s.pages {
		if spaceKey == "" || p.SpaceKey == spaceKey {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	results := make([]confluence.Page, 0)
	for i := start; i < len(ids) && i < start+limit; i++ {
		results = append(results, s.render(s.pages[ids[i]], query.Get("expand")))
	}
	return confluence.PageList{
		Results: results,
		Start:   start,
		Limit:   limit,
		Size:    len(results),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"message":    message,
	})
}
