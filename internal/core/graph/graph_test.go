package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// ParseRef Tests
// =============================================================================

func TestParseRef_NoKind(t *testing.T) {
	ref := ParseRef("database")
	assert.Equal(t, "database", ref.Name)
	assert.Equal(t, KindCreate, ref.Kind)
}

func TestParseRef_ExplicitKind(t *testing.T) {
	ref := ParseRef("cache:update")
	assert.Equal(t, "cache", ref.Name)
	assert.Equal(t, KindUpdate, ref.Kind)
}

func TestParseRef_SplitsOnLastColon(t *testing.T) {
	ref := ParseRef("region:eu:service:create")
	assert.Equal(t, "region:eu:service", ref.Name)
	assert.Equal(t, KindCreate, ref.Kind)
}

func TestParseRef_CustomKind(t *testing.T) {
	ref := ParseRef("database:restart")
	assert.Equal(t, "database", ref.Name)
	assert.Equal(t, "restart", ref.Kind)
}

// =============================================================================
// Build Tests
// =============================================================================

func TestBuild_EmptyInput(t *testing.T) {
	g, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, g)
}

func TestBuild_OnlyDeclaringEntitiesAppear(t *testing.T) {
	g, err := Build([]Entity{
		{Name: "db", Object: "db-object"},
		{Name: "web", Object: "web-object", Dependencies: []string{"db"}},
	})
	require.NoError(t, err)

	require.Len(t, g, 1)
	_, ok := g["db"]
	assert.False(t, ok)

	edges := g.Edges("web")
	require.Len(t, edges, 1)
	assert.Equal(t, "db", edges[0].Name)
	assert.Equal(t, KindCreate, edges[0].Kind)
	assert.Equal(t, "db-object", edges[0].Object)
}

func TestBuild_EdgeOrderFollowsDeclaration(t *testing.T) {
	g, err := Build([]Entity{
		{Name: "a", Object: 1},
		{Name: "b", Object: 2},
		{Name: "c", Object: 3, Dependencies: []string{"b", "a"}},
	})
	require.NoError(t, err)

	edges := g.Edges("c")
	require.Len(t, edges, 2)
	assert.Equal(t, "b", edges[0].Name)
	assert.Equal(t, "a", edges[1].Name)
}

func TestBuild_UpdateKind(t *testing.T) {
	g, err := Build([]Entity{
		{Name: "secret", Object: "s"},
		{Name: "app", Object: "a", Dependencies: []string{"secret:update"}},
	})
	require.NoError(t, err)

	edges := g.Edges("app")
	require.Len(t, edges, 1)
	assert.Equal(t, "secret", edges[0].Name)
	assert.Equal(t, KindUpdate, edges[0].Kind)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]Entity{
		{Name: "web", Object: "w", Dependencies: []string{"missing"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownDependency)
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "web")
	assert.True(t, config.IsConfigurationError(err))
}

func TestBuild_ForwardReference(t *testing.T) {
	// Dependencies may point at entities defined later in the document.
	g, err := Build([]Entity{
		{Name: "web", Object: "w", Dependencies: []string{"db"}},
		{Name: "db", Object: "d"},
	})
	require.NoError(t, err)
	require.Len(t, g.Edges("web"), 1)
}

func TestGraph_Dependents(t *testing.T) {
	g, err := Build([]Entity{
		{Name: "db", Object: 1},
		{Name: "web", Object: 2, Dependencies: []string{"db"}},
		{Name: "worker", Object: 3, Dependencies: []string{"db:update"}},
	})
	require.NoError(t, err)

	dependents := g.Dependents([]string{"db", "web", "worker"})
	assert.Equal(t, []string{"web", "worker"}, dependents["db"])
	assert.Empty(t, dependents["web"])
}

// =============================================================================
// DOT Export Tests
// =============================================================================

func TestToDOT_ContainsNodesAndEdges(t *testing.T) {
	g, err := Build([]Entity{
		{Name: "db", Object: 1},
		{Name: "web", Object: 2, Dependencies: []string{"db", "cache:update"}},
		{Name: "cache", Object: 3},
	})
	require.NoError(t, err)

	dot := ToDOT([]string{"db", "web", "cache"}, g)
	assert.Contains(t, dot, "digraph deployment")
	assert.Contains(t, dot, `"db";`)
	assert.Contains(t, dot, `"web" -> "db";`)
	assert.Contains(t, dot, `"web" -> "cache" [label="update"];`)
}
