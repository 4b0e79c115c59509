package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectVariables_InlinePairs(t *testing.T) {
	vars, err := collectVariables(nil, []string{"region=eu-west", "tag=1.2.3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"region": "eu-west", "tag": "1.2.3"}, vars)
}

func TestCollectVariables_ValueMayContainEquals(t *testing.T) {
	vars, err := collectVariables(nil, []string{"dsn=postgres://u:p@host/db?sslmode=disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host/db?sslmode=disable", vars["dsn"])
}

func TestCollectVariables_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.env")
	require.NoError(t, os.WriteFile(path, []byte("REGION=us-east\nTAG=2.0\n"), 0o644))

	vars, err := collectVariables([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"REGION": "us-east", "TAG": "2.0"}, vars)
}

func TestCollectVariables_InlineOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.env")
	require.NoError(t, os.WriteFile(path, []byte("REGION=us-east\n"), 0o644))

	vars, err := collectVariables([]string{path}, []string{"REGION=eu-west"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", vars["REGION"])
}

func TestCollectVariables_InvalidPair(t *testing.T) {
	_, err := collectVariables(nil, []string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected name=value")
}

func TestCollectVariables_MissingEnvFile(t *testing.T) {
	_, err := collectVariables([]string{"/nonexistent/deploy.env"}, nil)
	require.Error(t, err)
}
