package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/graph"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

// stubManager scripts Plan/Apply/Remove results per entity name and records
// the calls it receives.
type stubManager struct {
	planResult map[string]bool
	failApply  map[string]error

	planned []string
	applied []string
	forced  []string
	removed []string
}

func newStubManager() *stubManager {
	return &stubManager{planResult: make(map[string]bool), failApply: make(map[string]error)}
}

func (s *stubManager) Plan(ctx context.Context, obj any) (bool, error) {
	name := obj.(string)
	s.planned = append(s.planned, name)
	return s.planResult[name], nil
}

func (s *stubManager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	name := obj.(string)
	if err := s.failApply[name]; err != nil {
		return false, err
	}
	s.applied = append(s.applied, name)
	if force {
		s.forced = append(s.forced, name)
		return true, nil
	}
	return s.planResult[name], nil
}

func (s *stubManager) Remove(ctx context.Context, obj any) (bool, error) {
	name := obj.(string)
	s.removed = append(s.removed, name)
	return s.planResult[name], nil
}

// testResult wires entities through one stub manager. Each entity's object
// is its own name so the stub can key its script off it.
func testResult(t *testing.T, manager config.Manager, deps map[string][]string, names ...string) *loader.Result {
	t.Helper()
	entities := make([]loader.ResolvedEntity, 0, len(names))
	graphInput := make([]graph.Entity, 0, len(names))
	for _, name := range names {
		entities = append(entities, loader.ResolvedEntity{
			Name:         name,
			Type:         "stub",
			ManagerKey:   "stub",
			Object:       name,
			Dependencies: deps[name],
		})
		graphInput = append(graphInput, graph.Entity{Name: name, Object: name, Dependencies: deps[name]})
	}
	g, err := graph.Build(graphInput)
	require.NoError(t, err)
	return &loader.Result{
		Entities: entities,
		Graph:    g,
		Managers: map[string]config.Manager{"stub": manager},
	}
}

func TestApply_RunsInPlanOrder(t *testing.T) {
	manager := newStubManager()
	manager.planResult["db"] = true
	manager.planResult["web"] = true
	result := testResult(t, manager, map[string][]string{"web": {"db"}}, "web", "db")

	plan, err := PlanFor(result)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, plan)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, manager.applied)
	assert.Equal(t, []string{"db", "web"}, summary.Changed)
	assert.NotEmpty(t, summary.RunID)
}

func TestApply_UpdateDependencyForcesDependent(t *testing.T) {
	manager := newStubManager()
	manager.planResult["config"] = true
	// web itself reports no change but depends on config with update kind.
	result := testResult(t, manager, map[string][]string{"web": {"config:update"}}, "config", "web")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, manager.forced)
	assert.Equal(t, []string{"config", "web"}, summary.Changed)
}

func TestApply_CreateDependencyDoesNotForce(t *testing.T) {
	manager := newStubManager()
	manager.planResult["config"] = true
	result := testResult(t, manager, map[string][]string{"web": {"config"}}, "config", "web")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{})
	require.NoError(t, err)
	assert.Empty(t, manager.forced)
	assert.Equal(t, []string{"config"}, summary.Changed)
	assert.Equal(t, []string{"web"}, summary.Unchanged)
}

func TestApply_DryRunNeverApplies(t *testing.T) {
	manager := newStubManager()
	manager.planResult["db"] = true
	result := testResult(t, manager, nil, "db", "web")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, manager.applied)
	assert.Equal(t, []string{"db", "web"}, manager.planned)
	assert.Equal(t, []string{"db"}, summary.Changed)
	assert.Equal(t, []string{"web"}, summary.Unchanged)
}

func TestApply_DryRunPropagatesUpdateDependencies(t *testing.T) {
	manager := newStubManager()
	manager.planResult["config"] = true
	result := testResult(t, manager, map[string][]string{"web": {"config:update"}}, "config", "web")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, manager.applied)
	assert.Equal(t, []string{"config", "web"}, summary.Changed)
}

func TestApply_ForceAppliesEverything(t *testing.T) {
	manager := newStubManager()
	result := testResult(t, manager, nil, "a", "b")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Apply(context.Background(), result, plan, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, manager.forced)
	assert.Equal(t, []string{"a", "b"}, summary.Changed)
}

func TestApply_ErrorAborts(t *testing.T) {
	manager := newStubManager()
	manager.planResult["a"] = true
	manager.planResult["b"] = true
	manager.failApply["a"] = errors.New("boom")
	result := testResult(t, manager, nil, "a", "b")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	_, err = NewExecutor(nil).Apply(context.Background(), result, plan, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply a")
	assert.Empty(t, manager.applied)
}

func TestDestroy_ReversesPlanOrder(t *testing.T) {
	manager := newStubManager()
	manager.planResult["db"] = true
	manager.planResult["web"] = true
	result := testResult(t, manager, map[string][]string{"web": {"db"}}, "web", "db")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Destroy(context.Background(), result, plan, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "db"}, manager.removed)
	assert.Equal(t, []string{"web", "db"}, summary.Changed)
}

func TestDestroy_DryRunRemovesNothing(t *testing.T) {
	manager := newStubManager()
	result := testResult(t, manager, nil, "a", "b")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Destroy(context.Background(), result, plan, Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, manager.removed)
	assert.Equal(t, []string{"b", "a"}, summary.Changed)
}

func TestDestroy_AbsentEntitiesAreUnchanged(t *testing.T) {
	manager := newStubManager()
	manager.planResult["a"] = true
	result := testResult(t, manager, nil, "a", "b")

	plan, err := PlanFor(result)
	require.NoError(t, err)

	summary, err := NewExecutor(nil).Destroy(context.Background(), result, plan, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Changed)
	assert.Equal(t, []string{"b"}, summary.Unchanged)
}
