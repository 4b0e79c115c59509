package config

import (
	"os"
	"slices"
	"strings"
)

// =============================================================================
// Variable Definitions
// =============================================================================

// VariableDef declares a single user variable of a deployment document.
type VariableDef struct {
	// Name is the key under the document's variables section.
	Name string

	// From names the environment variable consulted for this variable.
	// When empty the derived VAR_ name is used instead.
	From string

	// Default is the fallback value. nil means no default was declared,
	// which is distinct from an empty default.
	Default *string

	// Required makes resolution fail when the variable ends up empty.
	Required bool

	// Values restricts the resolved value to this allow-list.
	Values []string
}

// LookupEnv is the environment access used during variable resolution.
// It has the signature of os.LookupEnv so tests can substitute a fake.
type LookupEnv func(name string) (string, bool)

// EnvName derives the environment variable consulted for a variable without
// an explicit from source: VAR_ prefix, hyphens to underscores, upper case.
//
// Example:
//
//	EnvName("app-version")
//	// Returns: "VAR_APP_VERSION"
func EnvName(name string) string {
	return "VAR_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// resolveValue determines the value of one variable. Precedence: provided
// values win over the environment, the environment wins over the default.
// The second return value is false when no source yielded a value.
func resolveValue(def VariableDef, provided map[string]string, lookup LookupEnv) (string, bool) {
	if value, ok := provided[def.Name]; ok {
		return value, true
	}
	envName := def.From
	if envName == "" {
		envName = EnvName(def.Name)
	}
	if value, ok := lookup(envName); ok {
		return value, true
	}
	if def.Default != nil {
		return *def.Default, true
	}
	return "", false
}

// ResolveVariables resolves every declared variable and validates required
// and allow-list constraints. Provided values that match no declaration are
// passed through unchanged. Resolution is eager: it completes or fails
// before any entity is looked at.
//
// A required variable that resolves to the empty string counts as missing,
// so an explicitly provided empty value cannot satisfy required.
func ResolveVariables(defs []VariableDef, provided map[string]string, lookup LookupEnv) (*Container, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	values := make(map[string]string, len(defs)+len(provided))
	declared := make(map[string]bool, len(defs))

	for _, def := range defs {
		declared[def.Name] = true
		value, ok := resolveValue(def, provided, lookup)
		if def.Required && value == "" {
			return nil, NewError(ErrMissingVariable, "missing required variable %s", def.Name)
		}
		if len(def.Values) > 0 && (!ok || !slices.Contains(def.Values, value)) {
			return nil, NewError(ErrValueNotAllowed,
				"value %q not allowed for %s, possible values: %s",
				value, def.Name, strings.Join(def.Values, ", "))
		}
		if ok {
			values[def.Name] = value
		}
	}

	// Undeclared provided variables pass through.
	for name, value := range provided {
		if !declared[name] {
			values[name] = value
		}
	}

	return &Container{values: values}, nil
}

// =============================================================================
// Variable Container
// =============================================================================

// Container holds the resolved variables of one deployment document.
// It is immutable after construction; per-call overrides go through the
// extra argument of Render.
type Container struct {
	values map[string]string
}

// NewContainer creates a container from already resolved values.
func NewContainer(values map[string]string) *Container {
	copied := make(map[string]string, len(values))
	for name, value := range values {
		copied[name] = value
	}
	return &Container{values: copied}
}

// Get returns the resolved value of a variable. The second return value is
// false when the variable is unknown or declared but unresolved.
func (c *Container) Get(name string) (string, bool) {
	value, ok := c.values[name]
	return value, ok
}

// Has reports whether a variable has a resolved value.
func (c *Container) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Len returns the number of resolved variables.
func (c *Container) Len() int {
	return len(c.values)
}

// All returns a copy of all resolved variables.
func (c *Container) All() map[string]string {
	out := make(map[string]string, len(c.values))
	for name, value := range c.values {
		out[name] = value
	}
	return out
}
