package config

import (
	"regexp"
	"strings"
)

// =============================================================================
// Template Rendering
// =============================================================================

// placeholderRegex matches {{name}} placeholders with optional inner spaces.
// Group 1 captures the variable name.
var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_-]*)\s*\}\}`)

// Render substitutes {{name}} placeholders in text with resolved variable
// values. Values from extra take precedence over the container for this call
// only; the container itself is never modified. Placeholders without a value
// are left in place, which makes the post-render check fail: any remaining
// "{{" in the output is an error.
//
// Examples:
//
//	c.Render("image: nginx:{{version}}", nil)
//	// Returns: "image: nginx:1.25" when version resolved to 1.25
//
//	c.Render("{{version}}", map[string]string{"version": "override"})
//	// Returns: "override"
func (c *Container) Render(text string, extra map[string]string) (string, error) {
	result := placeholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		submatch := placeholderRegex.FindStringSubmatch(match)
		name := submatch[1]
		if extra != nil {
			if value, ok := extra[name]; ok {
				return value
			}
		}
		if value, ok := c.values[name]; ok {
			return value
		}
		return match // keep the placeholder, the post-render check reports it
	})

	if idx := strings.Index(result, "{{"); idx != -1 {
		return "", NewError(ErrUnresolvedVariable,
			"unresolved variable %s in template", leftoverPlaceholder(result[idx:]))
	}
	return result, nil
}

// leftoverPlaceholder extracts the first remaining placeholder name for the
// error message, or a short snippet when the braces are unbalanced.
func leftoverPlaceholder(text string) string {
	if m := placeholderRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	end := len(text)
	if end > 20 {
		end = 20
	}
	return strings.TrimSpace(text[:end])
}
