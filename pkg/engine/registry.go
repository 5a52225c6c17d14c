package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// Manifest describes a module: its identity, its dependencies and the names it exports.
type Manifest struct {
	Name         string   `yaml:"name" json:"name" validate:"required,alphanum"`
	Version      string   `yaml:"version" json:"version" validate:"required,semver"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive,required"`
	Nodes        []string `yaml:"nodes" json:"nodes" validate:"dive,required"`
	Types        []string `yaml:"types,omitempty" json:"types,omitempty" validate:"dive,required"`
}

var validate = validator.New()

// ParseManifest decodes and validates a YAML module manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

// Module is a named, versioned set of node kinds and type definitions.
type Module struct {
	Manifest Manifest
	Nodes    map[string]NodeKind
	Types    map[string]TypeDef
}

// Registry is the catalogue of modules. Lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds a module. The manifest must list exactly the node kinds and types the module
// carries.
func (r *Registry) Register(m *Module) error {
	if err := validate.Struct(&m.Manifest); err != nil {
		return fmt.Errorf("module %q: invalid manifest: %w", m.Manifest.Name, err)
	}

	var result *multierror.Error
	declared := make(map[string]bool, len(m.Manifest.Nodes))
	for _, name := range m.Manifest.Nodes {
		declared[name] = true
		if _, ok := m.Nodes[name]; !ok {
			result = multierror.Append(result, fmt.Errorf("node %q is declared but not implemented", name))
		}
	}
	for name := range m.Nodes {
		if !declared[name] {
			result = multierror.Append(result, fmt.Errorf("node %q is implemented but not declared", name))
		}
	}
	declaredTypes := make(map[string]bool, len(m.Manifest.Types))
	for _, name := range m.Manifest.Types {
		declaredTypes[name] = true
		if _, ok := m.Types[name]; !ok {
			result = multierror.Append(result, fmt.Errorf("type %q is declared but not implemented", name))
		}
		if !types.Tag(name).Valid() {
			result = multierror.Append(result, fmt.Errorf("type %q is not a known type tag", name))
		}
	}
	for name := range m.Types {
		if !declaredTypes[name] {
			result = multierror.Append(result, fmt.Errorf("type %q is implemented but not declared", name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("module %q: %w", m.Manifest.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[m.Manifest.Name]; exists {
		return fmt.Errorf("module %q is already registered", m.Manifest.Name)
	}
	r.modules[m.Manifest.Name] = m
	r.order = append(r.order, m.Manifest.Name)
	return nil
}

// Module returns a registered module by name.
func (r *Registry) Module(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Kind resolves a node kind. Unknown modules and types resolve to NotFound.
func (r *Registry) Kind(k graph.Kind) (NodeKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[k.Module]
	if !ok {
		return NotFound, false
	}
	kind, ok := m.Nodes[k.Type]
	if !ok {
		return NotFound, false
	}
	return kind, true
}

// TypeDef finds the definition of a type tag, searching modules in registration order.
func (r *Registry) TypeDef(tag types.Tag) (TypeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if def, ok := r.modules[name].Types[string(tag)]; ok {
			return def, true
		}
	}
	return TypeDef{}, false
}

// Validate checks that every dependency is registered and that dependencies are acyclic.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result *multierror.Error
	for _, name := range r.order {
		for _, dep := range r.modules[name].Manifest.Dependencies {
			if _, ok := r.modules[dep]; !ok {
				result = multierror.Append(result, fmt.Errorf("module %q depends on unknown module %q", name, dep))
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var visit func(name string) []string
	visit = func(name string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)
		for _, dep := range r.modules[name].Manifest.Dependencies {
			if !visited[dep] {
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			} else if onStack[dep] {
				for i, p := range path {
					if p == dep {
						return append(append([]string(nil), path[i:]...), dep)
					}
				}
			}
		}
		onStack[name] = false
		path = path[:len(path)-1]
		return nil
	}
	for _, name := range r.order {
		if !visited[name] {
			if cycle := visit(name); cycle != nil {
				return fmt.Errorf("circular module dependency: %s", strings.Join(cycle, " -> "))
			}
		}
	}
	return nil
}

// LoadOrder returns module names so that every module follows its dependencies.
func (r *Registry) LoadOrder() ([]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int, len(r.modules))
	dependents := make(map[string][]string, len(r.modules))
	for _, name := range r.order {
		deps := r.modules[name].Manifest.Dependencies
		inDegree[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	current := make([]string, 0)
	for _, name := range r.order {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	order := make([]string, 0, len(r.modules))
	for len(current) > 0 {
		sort.Strings(current)
		order = append(order, current...)
		next := make([]string, 0)
		for _, name := range current {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return order, nil
}
