package mapping

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Store in process memory
type MemoryStore struct {
	byUID  map[string]Mapping
	byHref map[string]string
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUID:  make(map[string]Mapping),
		byHref: make(map[string]string),
	}
}

func (s *MemoryStore) Put(ctx context.Context, m Mapping) error {
	if err := m.validate(); err != nil {
		return err
	}
	m.DocFXHref = NormalizeHref(m.DocFXHref)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(m)
	return nil
}

func (s *MemoryStore) putLocked(m Mapping) {
	if old, exists := s.byUID[m.DocFXUID]; exists && old.DocFXHref != m.DocFXHref {
		delete(s.byHref, old.DocFXHref)
	}
	s.byUID[m.DocFXUID] = m
	if m.DocFXHref != "" {
		s.byHref[m.DocFXHref] = m.DocFXUID
	}
}

func (s *MemoryStore) ByUID(ctx context.Context, uid string) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, exists := s.byUID[uid]
	if !exists {
		return Mapping{}, fmt.Errorf("%w: uid %s", ErrNotFound, uid)
	}
	return m, nil
}

func (s *MemoryStore) ByHref(ctx context.Context, href string) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, exists := s.byHref[NormalizeHref(href)]
	if !exists {
		return Mapping{}, fmt.Errorf("%w: href %s", ErrNotFound, href)
	}
	return s.byUID[uid], nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mappings := make([]Mapping, 0, len(s.byUID))
	for _, m := range s.byUID {
		mappings = append(mappings, m)
	}
	sortMappings(mappings)
	return mappings, nil
}

func (s *MemoryStore) Replace(ctx context.Context, mappings []Mapping) error {
	for _, m := range mappings {
		if err := m.validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUID = make(map[string]Mapping, len(mappings))
	s.byHref = make(map[string]string, len(mappings))
	for _, m := range mappings {
		m.DocFXHref = NormalizeHref(m.DocFXHref)
		s.putLocked(m)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
