package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

func parseEntity(t *testing.T, text string) *config.Entity {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(text), &node))
	mapping, err := config.MappingNode(&node)
	require.NoError(t, err)
	entity, err := config.DecodeEntity("test", mapping)
	require.NoError(t, err)
	return entity
}

func testHelper(dir string, vars map[string]string) config.Helper {
	return loader.NewHelper(dir, config.NewContainer(vars))
}

// fakeClient implements Client in memory.
type fakeClient struct {
	jobs    map[string]map[string]any
	put     []string
	deleted []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{jobs: make(map[string]map[string]any)}
}

func (f *fakeClient) GetJob(ctx context.Context, name string) (map[string]any, error) {
	job, ok := f.jobs[name]
	if !ok {
		return nil, cluster.ErrNotFound
	}
	return job, nil
}

func (f *fakeClient) PutJob(ctx context.Context, name string, definition map[string]any) error {
	f.jobs[name] = definition
	f.put = append(f.put, name)
	return nil
}

func (f *fakeClient) DeleteJob(ctx context.Context, name string) error {
	if _, ok := f.jobs[name]; !ok {
		return cluster.ErrNotFound
	}
	delete(f.jobs, name)
	f.deleted = append(f.deleted, name)
	return nil
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_InlineJob(t *testing.T) {
	module := New(newFakeClient(), nil)
	entity := parseEntity(t, `
type: job
image: "backup:{{version}}"
cmd: ./backup.sh
schedule: "0 3 * * *"
cpus: 0.5
mem: 128
restart: on-failure
env:
  TARGET: "{{env}}"
`)

	obj, err := module.Parse("nightly-backup", entity, testHelper(t.TempDir(), map[string]string{
		"version": "1.2",
		"env":     "prod",
	}))
	require.NoError(t, err)

	job := obj.(*Job)
	assert.Equal(t, "nightly-backup", job.Name)
	assert.Equal(t, "backup:1.2", job.Definition["image"])
	assert.Equal(t, "0 3 * * *", job.Definition["schedule"])
	assert.Equal(t, map[string]any{"TARGET": "prod"}, job.Definition["env"])
}

func TestParse_DefinitionFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.yaml"), []byte(`
name: cleanup
image: cleanup:{{tag}}
schedule: "@daily"
`), 0o644))

	module := New(newFakeClient(), nil)
	entity := parseEntity(t, `
type: job
definition: job.yaml
extra_vars:
  tag: "2.0"
`)

	obj, err := module.Parse("cleanup-job", entity, testHelper(dir, map[string]string{"tag": "1.0"}))
	require.NoError(t, err)

	job := obj.(*Job)
	assert.Equal(t, "cleanup-job", job.Name)
	assert.Equal(t, "cleanup", job.Definition["name"])
	assert.Equal(t, "cleanup:2.0", job.Definition["image"])
}

func TestParse_DefinitionAndInlineExclusive(t *testing.T) {
	module := New(newFakeClient(), nil)

	_, err := module.Parse("bad", parseEntity(t, "type: job\ndefinition: a.yaml\nimage: x\n"), testHelper(t.TempDir(), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = module.Parse("bad", parseEntity(t, "type: job\n"), testHelper(t.TempDir(), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestParse_InvalidRestartPolicy(t *testing.T) {
	module := New(newFakeClient(), nil)
	entity := parseEntity(t, "type: job\nimage: x\nrestart: always\n")

	_, err := module.Parse("bad", entity, testHelper(t.TempDir(), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_ApplyCreatesMissingJob(t *testing.T) {
	client := newFakeClient()
	module := New(client, nil)
	job := &Job{Name: "cleanup", Definition: map[string]any{"name": "cleanup", "image": "cleanup:1.0"}}

	changed, err := module.Manager().Apply(context.Background(), job, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"cleanup"}, client.put)
}

func TestManager_PlanIgnoresServerAddedFields(t *testing.T) {
	client := newFakeClient()
	client.jobs["cleanup"] = map[string]any{
		"name":    "cleanup",
		"image":   "cleanup:1.0",
		"history": map[string]any{"successCount": float64(12)},
	}
	module := New(client, nil)
	job := &Job{Name: "cleanup", Definition: map[string]any{"name": "cleanup", "image": "cleanup:1.0"}}

	changed, err := module.Manager().Plan(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestManager_PlanComparesAcrossNumberTypes(t *testing.T) {
	client := newFakeClient()
	client.jobs["cleanup"] = map[string]any{"name": "cleanup", "mem": float64(128)}
	module := New(client, nil)

	// The local definition carries the int from YAML decoding.
	job := &Job{Name: "cleanup", Definition: map[string]any{"name": "cleanup", "mem": 128}}

	changed, err := module.Manager().Plan(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestManager_ApplyForceAlwaysDeploys(t *testing.T) {
	client := newFakeClient()
	client.jobs["cleanup"] = map[string]any{"name": "cleanup"}
	module := New(client, nil)
	job := &Job{Name: "cleanup", Definition: map[string]any{"name": "cleanup"}}

	changed, err := module.Manager().Apply(context.Background(), job, false)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = module.Manager().Apply(context.Background(), job, true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestManager_RemoveMissingIsNoop(t *testing.T) {
	client := newFakeClient()
	module := New(client, nil)

	changed, err := module.Manager().Remove(context.Background(), &Job{Name: "gone"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, client.deleted)
}
