// Package graph builds the typed dependency graph between deployment
// entities. This is part of the Functional Core - all functions are pure
// with no I/O.
package graph

import (
	"strings"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// Dependency References
// =============================================================================

// KindCreate is the default dependency kind: the target only has to exist
// before the dependent is applied.
const KindCreate = "create"

// KindUpdate additionally propagates change: a dependent is re-applied when
// an update dependency changed, even if its own definition did not.
const KindUpdate = "update"

// Ref is a parsed dependency reference.
type Ref struct {
	Name string
	Kind string
}

// ParseRef splits a raw dependency reference of the form name[:kind] on the
// last colon. Without a kind the reference defaults to create, so entity
// names containing colons stay addressable via an explicit kind suffix.
//
// Examples:
//
//	ParseRef("database")
//	// Returns: Ref{Name: "database", Kind: "create"}
//
//	ParseRef("cache:update")
//	// Returns: Ref{Name: "cache", Kind: "update"}
func ParseRef(raw string) Ref {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		return Ref{Name: raw[:idx], Kind: raw[idx+1:]}
	}
	return Ref{Name: raw, Kind: KindCreate}
}

// =============================================================================
// Graph
// =============================================================================

// Edge is one resolved dependency of an entity.
type Edge struct {
	Name   string
	Kind   string
	Object any
}

// Graph maps entity names to their resolved dependencies. Entities without
// declared dependencies do not appear.
type Graph map[string][]Edge

// Entity is the graph builder's view of a resolved entity.
type Entity struct {
	Name         string
	Object       any
	Dependencies []string
}

// Build resolves the raw dependency references of every entity against the
// set of parsed entities. A reference to an unknown entity is a
// configuration error naming both ends. Edge order follows the declaration
// order of the dependencies.
func Build(entities []Entity) (Graph, error) {
	objects := make(map[string]any, len(entities))
	for _, entity := range entities {
		objects[entity.Name] = entity.Object
	}

	g := make(Graph)
	for _, entity := range entities {
		if len(entity.Dependencies) == 0 {
			continue
		}
		edges := make([]Edge, 0, len(entity.Dependencies))
		for _, raw := range entity.Dependencies {
			ref := ParseRef(raw)
			object, ok := objects[ref.Name]
			if !ok {
				return nil, config.NewError(config.ErrUnknownDependency,
					"unknown dependency %s in %s", ref.Name, entity.Name)
			}
			edges = append(edges, Edge{Name: ref.Name, Kind: ref.Kind, Object: object})
		}
		g[entity.Name] = edges
	}
	return g, nil
}

// Edges returns the dependencies of an entity, nil when it declared none.
func (g Graph) Edges(name string) []Edge {
	return g[name]
}

// Dependents inverts the graph: for every entity that appears as a
// dependency it lists the entities depending on it, in their input order.
func (g Graph) Dependents(order []string) map[string][]string {
	out := make(map[string][]string)
	for _, name := range order {
		for _, edge := range g[name] {
			out[edge.Name] = append(out[edge.Name], name)
		}
	}
	return out
}
