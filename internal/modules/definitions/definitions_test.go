package definitions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

func TestLoad_RendersWithExtraVars(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(`
id: /{{env}}/web
instances: {{instances}}
`), 0o644))

	helper := loader.NewHelper(dir, config.NewContainer(map[string]string{
		"env":       "prod",
		"instances": "2",
	}))

	definition, err := Load(helper, "app.yaml", map[string]string{"instances": "5"})
	require.NoError(t, err)
	assert.Equal(t, "/prod/web", definition["id"])
	assert.Equal(t, 5, definition["instances"])
}

func TestLoad_JSONDefinition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json"), []byte(`{"id": "/web", "mem": 256}`), 0o644))

	helper := loader.NewHelper(dir, config.NewContainer(nil))
	definition, err := Load(helper, "app.json", nil)
	require.NoError(t, err)
	assert.Equal(t, "/web", definition["id"])
}

func TestNormalize_AlignsNumberTypes(t *testing.T) {
	normalized, err := Normalize(map[string]any{"instances": 2, "cpus": 0.5})
	require.NoError(t, err)
	assert.Equal(t, float64(2), normalized["instances"])
	assert.Equal(t, 0.5, normalized["cpus"])
}

func TestChanged(t *testing.T) {
	remote := map[string]any{
		"id":        "/web",
		"instances": float64(2),
		"container": map[string]any{"image": "nginx:1.25", "network": "bridge"},
		"version":   "2026-01-01",
	}

	tests := []struct {
		name    string
		want    map[string]any
		changed bool
	}{
		{
			name:    "subset matches",
			want:    map[string]any{"id": "/web", "container": map[string]any{"image": "nginx:1.25"}},
			changed: false,
		},
		{
			name:    "scalar differs",
			want:    map[string]any{"instances": float64(3)},
			changed: true,
		},
		{
			name:    "nested value differs",
			want:    map[string]any{"container": map[string]any{"image": "nginx:1.26"}},
			changed: true,
		},
		{
			name:    "missing key",
			want:    map[string]any{"labels": map[string]any{"team": "infra"}},
			changed: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.changed, Changed(tc.want, remote))
		})
	}
}
