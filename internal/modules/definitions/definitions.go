// Package definitions holds shared helpers for modules whose entities carry
// free-form service definitions (apps and jobs). Definitions are read as
// YAML, which also covers JSON definition files.
package definitions

import (
	"encoding/json"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// Load reads a definition document through the helper, rendering variable
// placeholders with extraVars taking precedence over document variables.
func Load(files config.Helper, path string, extraVars map[string]string) (map[string]any, error) {
	data, err := files.ReadFile(path, false)
	if err != nil {
		return nil, err
	}
	rendered, err := files.Render(string(data), extraVars)
	if err != nil {
		return nil, err
	}

	var definition map[string]any
	if err := yaml.Unmarshal([]byte(rendered), &definition); err != nil {
		return nil, config.NewError(config.ErrInvalidYAML, "could not parse definition %s: %v", path, err)
	}
	return definition, nil
}

// Normalize round-trips a definition through JSON so its value types match
// what the platform API returns, making comparisons meaningful.
func Normalize(definition map[string]any) (map[string]any, error) {
	data, err := json.Marshal(definition)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return normalized, nil
}

// Changed reports whether any key of want differs in got. Keys present only
// in got are ignored since the platform adds derived fields to stored
// definitions. Both sides must be normalized.
func Changed(want, got map[string]any) bool {
	for key, wantValue := range want {
		gotValue, ok := got[key]
		if !ok {
			return true
		}
		wantMap, wantIsMap := wantValue.(map[string]any)
		if wantIsMap {
			gotMap, gotIsMap := gotValue.(map[string]any)
			if !gotIsMap || Changed(wantMap, gotMap) {
				return true
			}
			continue
		}
		if !reflect.DeepEqual(wantValue, gotValue) {
			return true
		}
	}
	return false
}
