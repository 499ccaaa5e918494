package plugin

import (
	"fmt"
	"sort"
	"strings"
)

// initOrder sorts plugins so every plugin follows the plugins it depends
// on. Plugins not constrained by each other keep their relative order.
func initOrder(plugins []Plugin) ([]Plugin, error) {
	position := make(map[string]int, len(plugins))
	for i, p := range plugins {
		position[p.Name()] = i
	}

	// waiting[i] counts unmet dependencies of plugins[i]; dependents[n]
	// lists the plugins released once n is placed
	waiting := make([]int, len(plugins))
	dependents := make(map[string][]int)
	for i, p := range plugins {
		for _, dep := range p.Dependencies() {
			_, present := position[dep.Name]
			switch {
			case dep.Type == DependencyConflict:
				if present {
					return nil, fmt.Errorf("plugin %s conflicts with registered plugin %s", p.Name(), dep.Name)
				}
			case !present:
				if !dep.optional() {
					return nil, fmt.Errorf("plugin %s requires missing plugin %s", p.Name(), dep.Name)
				}
			default:
				waiting[i]++
				dependents[dep.Name] = append(dependents[dep.Name], i)
			}
		}
	}

	var ready []int
	for i := range plugins {
		if waiting[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]Plugin, 0, len(plugins))
	for len(ready) > 0 {
		sort.Ints(ready)
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, plugins[next])

		for _, i := range dependents[plugins[next].Name()] {
			waiting[i]--
			if waiting[i] == 0 {
				ready = append(ready, i)
			}
		}
	}

	if len(ordered) != len(plugins) {
		var stuck []string
		for i, p := range plugins {
			if waiting[i] > 0 {
				stuck = append(stuck, p.Name())
			}
		}
		return nil, fmt.Errorf("circular dependency between plugins: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
