package plugin_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
)

type greeter interface {
	Greet() string
}

type staticGreeter string

func (g staticGreeter) Greet() string { return string(g) }

func TestServiceRegistryExportLookup(t *testing.T) {
	registry := plugin.NewServiceRegistry()

	if err := registry.Export("greeter", staticGreeter("hello"), "owner-a"); err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	svc, err := registry.Lookup("greeter")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if svc.(greeter).Greet() != "hello" {
		t.Error("Looked up the wrong service")
	}

	info, ok := registry.Info("greeter")
	if !ok {
		t.Fatal("Expected service info")
	}
	if info.Owner != "owner-a" {
		t.Errorf("Expected owner-a, got %s", info.Owner)
	}
	if info.Type != "plugin_test.staticGreeter" {
		t.Errorf("Unexpected type %s", info.Type)
	}
}

func TestServiceRegistryRejects(t *testing.T) {
	registry := plugin.NewServiceRegistry()

	if err := registry.Export("", staticGreeter("x"), "o"); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := registry.Export("nil", nil, "o"); err == nil {
		t.Error("Expected error for nil service")
	}
	if err := registry.Export("dup", staticGreeter("x"), "o"); err != nil {
		t.Fatal(err)
	}
	if err := registry.Export("dup", staticGreeter("y"), "p"); err == nil {
		t.Error("Expected error for duplicate export")
	}
}

func TestServiceRegistryNotFound(t *testing.T) {
	registry := plugin.NewServiceRegistry()

	_, err := registry.Lookup("missing")
	if !errors.Is(err, plugin.ErrServiceNotFound) {
		t.Errorf("Expected ErrServiceNotFound, got %v", err)
	}
}

func TestServiceRegistryUnexport(t *testing.T) {
	registry := plugin.NewServiceRegistry()
	registry.Export("a", staticGreeter("a"), "owner-1")
	registry.Export("b", staticGreeter("b"), "owner-1")
	registry.Export("c", staticGreeter("c"), "owner-2")

	var events []string
	registry.OnChange(func(info plugin.ServiceInfo, exported bool) {
		if !exported {
			events = append(events, info.Name)
		}
	})

	if removed := registry.Unexport("owner-1"); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 unexport notifications, got %v", events)
	}

	list := registry.List()
	if len(list) != 1 || list[0].Name != "c" {
		t.Errorf("Expected only service c to remain, got %v", list)
	}
}

func TestServiceRegistryListSorted(t *testing.T) {
	registry := plugin.NewServiceRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		registry.Export(name, staticGreeter(name), "o")
	}

	list := registry.List()
	if list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Errorf("Expected sorted list, got %v", list)
	}
}

func TestLookupAs(t *testing.T) {
	registry := plugin.NewServiceRegistry()
	registry.Export("greeter", staticGreeter("typed"), "o")
	registry.Export("number", 42, "o")

	g, err := plugin.LookupAs[greeter](registry, "greeter")
	if err != nil {
		t.Fatal(err)
	}
	if g.Greet() != "typed" {
		t.Errorf("Expected typed, got %s", g.Greet())
	}

	if _, err := plugin.LookupAs[greeter](registry, "number"); err == nil {
		t.Error("Expected type mismatch error")
	}
	if _, err := plugin.LookupAs[greeter](registry, "missing"); !errors.Is(err, plugin.ErrServiceNotFound) {
		t.Errorf("Expected ErrServiceNotFound, got %v", err)
	}
}

func TestServiceRegistryConcurrent(t *testing.T) {
	registry := plugin.NewServiceRegistry()
	registry.Export("shared", staticGreeter("s"), "o")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := registry.Lookup("shared"); err != nil {
					t.Errorf("Lookup failed: %v", err)
					return
				}
				registry.List()
			}
		}()
	}
	wg.Wait()
}
