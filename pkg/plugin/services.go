package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrServiceNotFound is returned when no service is exported under a name
var ErrServiceNotFound = errors.New("service not found")

// ServiceInfo describes an exported service
type ServiceInfo struct {
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	Type       string    `json:"type"`
	ExportedAt time.Time `json:"exportedAt"`
}

type exportedService struct {
	info    ServiceInfo
	service interface{}
}

// ServiceRegistry makes plugin components discoverable by name
type ServiceRegistry struct {
	services  map[string]exportedService
	listeners []func(ServiceInfo, bool)
	mu        sync.RWMutex
}

// NewServiceRegistry creates an empty service registry
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]exportedService),
	}
}

// Export publishes service under name on behalf of owner
func (r *ServiceRegistry) Export(name string, service interface{}, owner string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if service == nil {
		return fmt.Errorf("service %s cannot be nil", name)
	}

	r.mu.Lock()
	if existing, exists := r.services[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("service %s already exported by %s", name, existing.info.Owner)
	}
	info := ServiceInfo{
		Name:       name,
		Owner:      owner,
		Type:       fmt.Sprintf("%T", service),
		ExportedAt: time.Now(),
	}
	r.services[name] = exportedService{info: info, service: service}
	listeners := append([]func(ServiceInfo, bool){}, r.listeners...)
	r.mu.Unlock()

	for _, listener := range listeners {
		listener(info, true)
	}
	return nil
}

// Lookup returns the service exported under name
func (r *ServiceRegistry) Lookup(name string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc.service, nil
}

// Info returns the description of the service exported under name
func (r *ServiceRegistry) Info(name string) (ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, exists := r.services[name]
	return svc.info, exists
}

// Unexport removes every service exported by owner and returns how many
// were removed
func (r *ServiceRegistry) Unexport(owner string) int {
	r.mu.Lock()
	removed := make([]ServiceInfo, 0)
	for name, svc := range r.services {
		if svc.info.Owner == owner {
			removed = append(removed, svc.info)
			delete(r.services, name)
		}
	}
	listeners := append([]func(ServiceInfo, bool){}, r.listeners...)
	r.mu.Unlock()

	for _, info := range removed {
		for _, listener := range listeners {
			listener(info, false)
		}
	}
	return len(removed)
}

// List returns all exported services sorted by name
func (r *ServiceRegistry) List() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ServiceInfo, 0, len(r.services))
	for _, svc := range r.services {
		infos = append(infos, svc.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// OnChange registers a listener called after every export (true) and
// unexport (false)
func (r *ServiceRegistry) OnChange(listener func(info ServiceInfo, exported bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// LookupAs fetches the service exported under name and asserts its type
func LookupAs[T any](r *ServiceRegistry, name string) (T, error) {
	var zero T
	svc, err := r.Lookup(name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has unexpected type %T", name, svc)
	}
	return typed, nil
}
