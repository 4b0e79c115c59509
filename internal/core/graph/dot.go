package graph

import (
	"fmt"
	"strings"
)

// =============================================================================
// DOT Export
// =============================================================================

// ToDOT generates a DOT format representation of the dependency graph for
// visualization. The output can be rendered with Graphviz tools. order lists
// every entity name in document order so dependency-free entities show up
// too.
func ToDOT(order []string, g Graph) string {
	var sb strings.Builder

	sb.WriteString("digraph deployment {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, name := range order {
		sb.WriteString(fmt.Sprintf("  %q;\n", name))
	}
	sb.WriteString("\n")

	for _, name := range order {
		for _, edge := range g[name] {
			if edge.Kind == KindCreate {
				sb.WriteString(fmt.Sprintf("  %q -> %q;\n", name, edge.Name))
				continue
			}
			sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", name, edge.Name, edge.Kind))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
