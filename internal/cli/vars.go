package cli

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// collectVariables merges provided variables from env files and -e pairs.
// Files load in order, inline pairs override file values.
func collectVariables(envFiles, pairs []string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, file := range envFiles {
		loaded, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
		for name, value := range loaded {
			vars[name] = value
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q, expected name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}
