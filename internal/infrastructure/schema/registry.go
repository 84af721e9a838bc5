// Package schema holds the static capability metadata of the travel model:
// which entities exist, their keys, how they associate and compose, which
// columns are read-only and which entities are federated from a remote system.
package schema

import (
	"fmt"
	"sort"
	"sync"
)

// ForeignKey maps a column on one side of a link to a column on the other.
// For associations Local is on the referencing entity and Target is a key of
// the referenced entity. For compositions Local is on the parent and Target is
// on the child.
type ForeignKey struct {
	Local  string
	Target string
}

// Association is a managed to-one reference from one entity to another
type Association struct {
	Name        string
	Target      string
	ForeignKeys []ForeignKey
}

// Composition is an owned to-many relationship from a parent to its children
type Composition struct {
	Name        string
	Target      string
	ForeignKeys []ForeignKey
}

// EntityType describes one entity of the model
type EntityType struct {
	Name         string
	Table        string
	Keys         []string
	Federated    bool
	ReadOnly     []string
	Localized    []string
	Texts        string // composition holding localized rows keyed by "locale"
	Associations []Association
	Compositions []Composition
}

// IsReadOnly reports whether the column may only be written with an explicit bypass
func (e *EntityType) IsReadOnly(column string) bool {
	for _, c := range e.ReadOnly {
		if c == column {
			return true
		}
	}
	return false
}

// Composition returns the named composition
func (e *EntityType) Composition(name string) (*Composition, bool) {
	for i := range e.Compositions {
		if e.Compositions[i].Name == name {
			return &e.Compositions[i], true
		}
	}
	return nil, false
}

// Registry is an immutable-after-setup table of entity types
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityType
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntityType)}
}

// Register adds an entity type. Duplicate names are rejected.
func (r *Registry) Register(et EntityType) error {
	if et.Name == "" || et.Table == "" || len(et.Keys) == 0 {
		return fmt.Errorf("entity type needs a name, a table and at least one key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entities[et.Name]; exists {
		return fmt.Errorf("entity type %s already registered", et.Name)
	}
	r.entities[et.Name] = &et
	return nil
}

// MustRegister registers entity types and panics on error
func (r *Registry) MustRegister(types ...EntityType) *Registry {
	for _, et := range types {
		if err := r.Register(et); err != nil {
			panic(err)
		}
	}
	return r
}

// Entity returns the entity type by name
func (r *Registry) Entity(name string) (*EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	et, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return et, nil
}

// Entities returns all entity types sorted by name
func (r *Registry) Entities() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*EntityType, 0, len(r.entities))
	for _, et := range r.entities {
		result = append(result, et)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Federated returns the federated entity types sorted by name
func (r *Registry) Federated() []*EntityType {
	var result []*EntityType
	for _, et := range r.Entities() {
		if et.Federated {
			result = append(result, et)
		}
	}
	return result
}

// ParentOf returns the entity owning name through a composition
func (r *Registry) ParentOf(name string) (*EntityType, *Composition, bool) {
	for _, et := range r.Entities() {
		for i := range et.Compositions {
			if et.Compositions[i].Target == name {
				return et, &et.Compositions[i], true
			}
		}
	}
	return nil, nil, false
}

// Reference is an association pointing at a given target
type Reference struct {
	Entity      *EntityType
	Association *Association
}

// ReferencesTo returns every association in the model that targets name
func (r *Registry) ReferencesTo(name string) []Reference {
	var refs []Reference
	for _, et := range r.Entities() {
		for i := range et.Associations {
			if et.Associations[i].Target == name {
				refs = append(refs, Reference{Entity: et, Association: &et.Associations[i]})
			}
		}
	}
	return refs
}
