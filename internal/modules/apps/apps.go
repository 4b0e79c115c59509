// Package apps manages container apps on the cluster. An app entity either
// references a definition file, describes the app inline, or points at a
// Docker Compose file that fans out into one app per service.
package apps

import (
	"log/slog"
	"strings"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/modules/definitions"
)

// =============================================================================
// Entity Config
// =============================================================================

// Config is the YAML shape of an app entity. Definition file, inline fields
// and compose_file are mutually exclusive sources.
type Config struct {
	ID          string            `yaml:"id"`
	Definition  string            `yaml:"definition"`
	ExtraVars   map[string]string `yaml:"extra_vars"`
	ComposeFile string            `yaml:"compose_file"`

	Image     string            `yaml:"image"`
	Cmd       string            `yaml:"cmd"`
	Env       map[string]string `yaml:"env"`
	Instances int               `yaml:"instances" validate:"omitempty,gt=0"`
	Cpus      float64           `yaml:"cpus" validate:"omitempty,gt=0"`
	Mem       float64           `yaml:"mem" validate:"omitempty,gt=0"`
	Ports     []int             `yaml:"ports" validate:"omitempty,dive,gt=0,lte=65535"`
	Health    string            `yaml:"health"`
}

// App is the parsed deployment object.
type App struct {
	ID         string
	Definition map[string]any
}

// =============================================================================
// Module
// =============================================================================

// Module provides the app entity type.
type Module struct {
	manager *Manager
}

// New creates the apps module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string            { return "apps" }
func (m *Module) TypeName() string        { return "app" }
func (m *Module) ManagerKey() string      { return "apps" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes an app entity into its definition. The app id defaults to
// the entity name, an id in a definition file wins unless the entity sets
// one explicitly.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}
	if cfg.Definition != "" && cfg.Image != "" {
		return nil, config.NewError(config.ErrInvalidConfig,
			"app %s mixes a definition file with inline fields", name)
	}
	if cfg.Definition == "" && cfg.Image == "" {
		return nil, config.NewError(config.ErrInvalidConfig,
			"app %s needs a definition file or an image", name)
	}

	appID, err := m.appID(name, &cfg, files)
	if err != nil {
		return nil, err
	}

	var definition map[string]any
	if cfg.Definition != "" {
		path, err := files.Render(cfg.Definition, nil)
		if err != nil {
			return nil, err
		}
		definition, err = definitions.Load(files, path, cfg.ExtraVars)
		if err != nil {
			return nil, err
		}
		if cfg.ID == "" {
			if defID, ok := definition["id"].(string); ok && defID != "" {
				appID = normalizeAppID(defID)
			}
		}
		definition["id"] = appID
	} else {
		definition, err = m.inlineDefinition(appID, &cfg, files)
		if err != nil {
			return nil, err
		}
	}

	return &App{ID: appID, Definition: definition}, nil
}

// appID resolves the entity's app id, rendered and rooted with a slash.
func (m *Module) appID(name string, cfg *Config, files config.Helper) (string, error) {
	id := cfg.ID
	if id == "" {
		id = name
	}
	id, err := files.Render(id, nil)
	if err != nil {
		return "", err
	}
	return normalizeAppID(id), nil
}

func normalizeAppID(id string) string {
	return "/" + strings.TrimPrefix(id, "/")
}

// inlineDefinition builds a definition map from the inline entity fields.
func (m *Module) inlineDefinition(appID string, cfg *Config, files config.Helper) (map[string]any, error) {
	image, err := files.Render(cfg.Image, nil)
	if err != nil {
		return nil, err
	}
	definition := map[string]any{
		"id":    appID,
		"image": image,
	}
	if cfg.Cmd != "" {
		cmd, err := files.Render(cfg.Cmd, nil)
		if err != nil {
			return nil, err
		}
		definition["cmd"] = cmd
	}
	if cfg.Instances > 0 {
		definition["instances"] = cfg.Instances
	}
	if cfg.Cpus > 0 {
		definition["cpus"] = cfg.Cpus
	}
	if cfg.Mem > 0 {
		definition["mem"] = cfg.Mem
	}
	if len(cfg.Ports) > 0 {
		ports := make([]any, len(cfg.Ports))
		for i, port := range cfg.Ports {
			ports[i] = port
		}
		definition["ports"] = ports
	}
	if cfg.Health != "" {
		definition["health"] = cfg.Health
	}
	if len(cfg.Env) > 0 {
		env := make(map[string]any, len(cfg.Env))
		for key, value := range cfg.Env {
			rendered, err := files.Render(value, nil)
			if err != nil {
				return nil, err
			}
			env[key] = rendered
		}
		definition["env"] = env
	}
	return definition, nil
}
