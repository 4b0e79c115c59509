// Package jobs manages scheduled and run-once jobs on the cluster. A job
// entity either references a definition file or describes the job inline.
package jobs

import (
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/modules/definitions"
)

// =============================================================================
// Entity Config
// =============================================================================

// Config is the YAML shape of a job entity. Definition file and inline
// fields are mutually exclusive.
type Config struct {
	Name       string            `yaml:"name"`
	Definition string            `yaml:"definition"`
	ExtraVars  map[string]string `yaml:"extra_vars"`

	Image    string            `yaml:"image"`
	Cmd      string            `yaml:"cmd"`
	Schedule string            `yaml:"schedule"`
	Cpus     float64           `yaml:"cpus" validate:"omitempty,gt=0"`
	Mem      float64           `yaml:"mem" validate:"omitempty,gt=0"`
	Env      map[string]string `yaml:"env"`
	Restart  string            `yaml:"restart" validate:"omitempty,oneof=never on-failure"`
}

// Job is the parsed deployment object.
type Job struct {
	Name       string
	Definition map[string]any
}

// =============================================================================
// Module
// =============================================================================

// Module provides the job entity type.
type Module struct {
	manager *Manager
}

// New creates the jobs module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string            { return "jobs" }
func (m *Module) TypeName() string        { return "job" }
func (m *Module) ManagerKey() string      { return "jobs" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes a job entity into its definition. Definition files are
// rendered with the entity's extra_vars taking precedence.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}
	if cfg.Definition != "" && cfg.Image != "" {
		return nil, config.NewError(config.ErrInvalidConfig,
			"job %s mixes a definition file with inline fields", name)
	}
	if cfg.Definition == "" && cfg.Image == "" {
		return nil, config.NewError(config.ErrInvalidConfig,
			"job %s needs a definition file or an image", name)
	}

	jobName := cfg.Name
	if jobName == "" {
		jobName = name
	}
	jobName, err := files.Render(jobName, nil)
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
	} else {
		definition, err = m.inlineDefinition(jobName, &cfg, files)
		if err != nil {
			return nil, err
		}
	}
	if _, ok := definition["name"]; !ok {
		definition["name"] = jobName
	}

	return &Job{Name: jobName, Definition: definition}, nil
}

// inlineDefinition builds a definition map from the inline entity fields.
func (m *Module) inlineDefinition(jobName string, cfg *Config, files config.Helper) (map[string]any, error) {
	image, err := files.Render(cfg.Image, nil)
	if err != nil {
		return nil, err
	}
	definition := map[string]any{
		"name":  jobName,
		"image": image,
	}
	if cfg.Cmd != "" {
		cmd, err := files.Render(cfg.Cmd, nil)
		if err != nil {
			return nil, err
		}
		definition["cmd"] = cmd
	}
	if cfg.Schedule != "" {
		definition["schedule"] = cfg.Schedule
	}
	if cfg.Cpus > 0 {
		definition["cpus"] = cfg.Cpus
	}
	if cfg.Mem > 0 {
		definition["mem"] = cfg.Mem
	}
	if cfg.Restart != "" {
		definition["restart"] = cfg.Restart
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
