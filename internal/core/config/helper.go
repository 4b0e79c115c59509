package config

// =============================================================================
// Config Helper
// =============================================================================

// Helper gives module parsers access to files referenced by a deployment
// document and to the resolved variables. Paths resolve relative to the root
// document's directory, never relative to an include. Files are read on
// every call, nothing is cached.
//
// The file-backed implementation lives in the loader package; tests use
// in-memory fakes.
type Helper interface {
	// AbsPath resolves path against the root document directory.
	AbsPath(path string) string

	// ReadFile reads a file, optionally rendering variable placeholders in
	// its content.
	ReadFile(path string, render bool) ([]byte, error)

	// ReadYAML reads a file and decodes its content as YAML into out.
	ReadYAML(path string, render bool, out any) error

	// ReadJSON reads a file and decodes its content as JSON into out.
	ReadJSON(path string, render bool, out any) error

	// Render substitutes variable placeholders in text, values from extra
	// taking precedence for this call.
	Render(text string, extra map[string]string) (string, error)

	// Variable returns the resolved value of a single variable.
	Variable(name string) (string, bool)

	// Variables returns a copy of all resolved variables.
	Variables() map[string]string
}
