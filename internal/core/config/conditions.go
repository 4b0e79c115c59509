package config

// =============================================================================
// Conditional Restrictions
// =============================================================================

// Restriction maps variable names to the values they are compared against.
// Entities carry one restriction for only and one for except.
type Restriction map[string]string

// ShouldSkip reports whether an entity is excluded by its restrictions given
// the resolved variables.
//
// only: every listed variable must have a resolved value equal to the listed
// one, a single miss excludes the entity. A variable without a resolved
// value never satisfies only.
//
// except: the entity is excluded when any listed variable has a resolved
// value equal to the listed one. Unresolved variables never trigger except.
//
// Both restrictions are independent, an empty restriction never excludes.
func ShouldSkip(vars *Container, only, except Restriction) bool {
	for name, want := range only {
		value, ok := vars.Get(name)
		if !ok || value != want {
			return true
		}
	}
	for name, want := range except {
		if value, ok := vars.Get(name); ok && value == want {
			return true
		}
	}
	return false
}
