// Package rollout orders resolved entities for application to the platform.
// This is part of the Functional Core - all functions are pure with no I/O.
package rollout

import (
	"errors"
	"strings"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/graph"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDependencyCycle is returned when the dependency graph cannot be
	// ordered.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// =============================================================================
// Plan
// =============================================================================

// Plan orders entity names so every dependency comes before its dependents,
// using Kahn's algorithm over the dependency graph:
//
//  1. Compute the in-degree of every entity (its unmet dependencies)
//  2. Repeatedly take entities with in-degree 0 in document order
//  3. Each taken entity reduces the in-degree of its dependents
//
// Ready entities are always taken in document order, which makes the plan
// deterministic for a given document. A cycle is a configuration error
// naming the entities involved.
func Plan(names []string, g graph.Graph) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string)
	for _, name := range names {
		edges := g[name]
		inDegree[name] = len(edges)
		for _, edge := range edges {
			dependents[edge.Name] = append(dependents[edge.Name], name)
		}
	}

	result := make([]string, 0, len(names))
	done := make(map[string]bool, len(names))

	for len(result) < len(names) {
		progressed := false
		for _, name := range names {
			if done[name] || inDegree[name] != 0 {
				continue
			}
			done[name] = true
			result = append(result, name)
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, name := range names {
				if !done[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, config.NewError(ErrDependencyCycle,
				"dependency cycle involving %s", strings.Join(stuck, ", "))
		}
	}

	return result, nil
}

// Reverse returns the plan in reverse order, the order entities are removed
// in so dependents go away before their dependencies.
func Reverse(plan []string) []string {
	out := make([]string, len(plan))
	for i, name := range plan {
		out[len(plan)-1-i] = name
	}
	return out
}

// ForcedByDependencies reports whether an entity must be re-applied because
// one of its update dependencies changed in this run.
func ForcedByDependencies(name string, g graph.Graph, changed map[string]bool) bool {
	for _, edge := range g[name] {
		if edge.Kind == graph.KindUpdate && changed[edge.Name] {
			return true
		}
	}
	return false
}
