package loader

import (
	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/graph"
)

// =============================================================================
// Load Result
// =============================================================================

// ResolvedEntity is one fully parsed entity of a deployment document.
type ResolvedEntity struct {
	// Name is the entity's unique name after preprocessing.
	Name string

	// Type is the entity type the owning module declares.
	Type string

	// ManagerKey identifies the manager responsible for Object.
	ManagerKey string

	// Object is the module-specific deployment object.
	Object any

	// Dependencies holds the raw dependency references as written.
	Dependencies []string
}

// Result is everything a load produces: the entities in document order, the
// dependency graph between them, the managers of all active modules and the
// resolved variables.
type Result struct {
	Entities  []ResolvedEntity
	Graph     graph.Graph
	Managers  map[string]config.Manager
	Variables *config.Container
}

// Names returns the entity names in document order.
func (r *Result) Names() []string {
	names := make([]string, len(r.Entities))
	for i, entity := range r.Entities {
		names[i] = entity.Name
	}
	return names
}

// Objects returns the parsed deployment objects keyed by entity name.
func (r *Result) Objects() map[string]any {
	out := make(map[string]any, len(r.Entities))
	for _, entity := range r.Entities {
		out[entity.Name] = entity.Object
	}
	return out
}

// Entity looks up one resolved entity by name.
func (r *Result) Entity(name string) (ResolvedEntity, bool) {
	for _, entity := range r.Entities {
		if entity.Name == name {
			return entity, true
		}
	}
	return ResolvedEntity{}, false
}

// Manager returns the manager responsible for a resolved entity.
func (r *Result) Manager(entity ResolvedEntity) (config.Manager, bool) {
	m, ok := r.Managers[entity.ManagerKey]
	return m, ok
}
