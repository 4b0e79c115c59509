package loader

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// File Helper
// =============================================================================

// fileHelper implements config.Helper against the filesystem. Paths resolve
// relative to the root document's directory, also for entities that were
// merged in from an include file.
type fileHelper struct {
	baseDir string
	vars    *config.Container
}

// NewHelper creates the file-backed helper handed to module parsers.
func NewHelper(baseDir string, vars *config.Container) config.Helper {
	return &fileHelper{baseDir: baseDir, vars: vars}
}

func (h *fileHelper) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(h.baseDir, path)
}

func (h *fileHelper) ReadFile(path string, render bool) ([]byte, error) {
	data, err := os.ReadFile(h.AbsPath(path))
	if err != nil {
		return nil, config.NewError(nil, "could not read file %s: %v", path, err)
	}
	if !render {
		return data, nil
	}
	rendered, err := h.vars.Render(string(data), nil)
	if err != nil {
		return nil, err
	}
	return []byte(rendered), nil
}

func (h *fileHelper) ReadYAML(path string, render bool, out any) error {
	data, err := h.ReadFile(path, render)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return config.NewError(config.ErrInvalidYAML, "could not parse %s: %v", path, err)
	}
	return nil
}

func (h *fileHelper) ReadJSON(path string, render bool, out any) error {
	data, err := h.ReadFile(path, render)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return config.NewError(nil, "could not parse %s: %v", path, err)
	}
	return nil
}

func (h *fileHelper) Render(text string, extra map[string]string) (string, error) {
	return h.vars.Render(text, extra)
}

func (h *fileHelper) Variable(name string) (string, bool) {
	return h.vars.Get(name)
}

func (h *fileHelper) Variables() map[string]string {
	return h.vars.All()
}
