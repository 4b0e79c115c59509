// Package accounts manages service accounts on the cluster. Applying an
// account generates an ed25519 keypair, registers the public key and stores
// the private key in the secret store for the services that act as the
// account.
package accounts

import (
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Entity Config
// =============================================================================

// GrantConfig is one permission entry of a service account entity.
type GrantConfig struct {
	Resource string `yaml:"resource" validate:"required"`
	Action   string `yaml:"action" validate:"required"`
}

// Config is the YAML shape of a serviceaccount entity.
type Config struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Secret      string        `yaml:"secret" validate:"required"`
	Grants      []GrantConfig `yaml:"grants" validate:"omitempty,dive"`
}

// ServiceAccount is the parsed deployment object.
type ServiceAccount struct {
	ID          string
	Description string
	SecretPath  string
	Grants      []cluster.Grant
}

// =============================================================================
// Module
// =============================================================================

// Module provides the serviceaccount entity type.
type Module struct {
	manager *Manager
}

// New creates the accounts module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string            { return "accounts" }
func (m *Module) TypeName() string        { return "serviceaccount" }
func (m *Module) ManagerKey() string      { return "accounts" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes a serviceaccount entity. The account id defaults to the
// entity name, id and secret path support variable placeholders.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}

	id := cfg.Name
	if id == "" {
		id = name
	}
	id, err := files.Render(id, nil)
	if err != nil {
		return nil, err
	}
	secretPath, err := files.Render(cfg.Secret, nil)
	if err != nil {
		return nil, err
	}

	grants := make([]cluster.Grant, len(cfg.Grants))
	for i, grant := range cfg.Grants {
		resource, err := files.Render(grant.Resource, nil)
		if err != nil {
			return nil, err
		}
		grants[i] = cluster.Grant{Resource: resource, Action: grant.Action}
	}

	return &ServiceAccount{
		ID:          id,
		Description: cfg.Description,
		SecretPath:  secretPath,
		Grants:      grants,
	}, nil
}
