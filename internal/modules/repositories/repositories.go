// Package repositories manages the package repositories of a cluster. A
// repository entity pins a named repository to a URI and optionally to a
// position in the repository search order.
package repositories

import (
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// Entity Config
// =============================================================================

// Config is the YAML shape of a repository entity.
type Config struct {
	Name  string `yaml:"name"`
	URI   string `yaml:"uri" validate:"required"`
	Index *int   `yaml:"index" validate:"omitempty,gte=0"`
}

// Repository is the parsed deployment object.
type Repository struct {
	Name  string
	URI   string
	Index *int
}

// =============================================================================
// Module
// =============================================================================

// Module provides the repository entity type.
type Module struct {
	manager *Manager
}

// New creates the repositories module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string              { return "repositories" }
func (m *Module) TypeName() string          { return "repository" }
func (m *Module) ManagerKey() string        { return "repositories" }
func (m *Module) Manager() config.Manager   { return m.manager }

// Parse decodes and validates a repository entity. The repository name
// defaults to the entity name, name and uri support variable placeholders.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}

	repoName := cfg.Name
	if repoName == "" {
		repoName = name
	}
	repoName, err := files.Render(repoName, nil)
	if err != nil {
		return nil, err
	}
	uri, err := files.Render(cfg.URI, nil)
	if err != nil {
		return nil, err
	}

	return &Repository{Name: repoName, URI: uri, Index: cfg.Index}, nil
}
