// Package secrets manages secrets in the cluster secret store. A secret
// entity carries its value inline, reads it from a file, or unseals an
// encrypted blob with a key provided through a variable.
package secrets

import (
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/crypto"
)

// =============================================================================
// Entity Config
// =============================================================================

// Config is the YAML shape of a secret entity. Exactly one of value and
// file must be set.
type Config struct {
	Path      string `yaml:"path" validate:"required"`
	Value     string `yaml:"value"`
	File      string `yaml:"file"`
	Render    bool   `yaml:"render"`
	Encrypted bool   `yaml:"encrypted"`
	Key       string `yaml:"key"`
}

// Secret is the parsed deployment object. Value holds the final plaintext.
type Secret struct {
	Path  string
	Value string
}

// =============================================================================
// Module
// =============================================================================

// Module provides the secret entity type.
type Module struct {
	manager *Manager
}

// New creates the secrets module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string            { return "secrets" }
func (m *Module) TypeName() string        { return "secret" }
func (m *Module) ManagerKey() string      { return "secrets" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes a secret entity and resolves its plaintext value. Inline
// values are rendered before unsealing, file contents are unsealed first and
// rendered afterwards when render is set.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}
	if (cfg.Value == "") == (cfg.File == "") {
		return nil, config.NewError(config.ErrInvalidConfig,
			"secret %s needs exactly one of value and file", name)
	}

	path, err := files.Render(cfg.Path, nil)
	if err != nil {
		return nil, err
	}

	var value string
	switch {
	case cfg.Value != "":
		value, err = files.Render(cfg.Value, nil)
		if err != nil {
			return nil, err
		}
		if cfg.Encrypted {
			value, err = m.unseal(name, value, cfg.Key, files)
			if err != nil {
				return nil, err
			}
		}
	default:
		data, err := files.ReadFile(cfg.File, false)
		if err != nil {
			return nil, err
		}
		value = string(data)
		if cfg.Encrypted {
			value, err = m.unseal(name, value, cfg.Key, files)
			if err != nil {
				return nil, err
			}
		}
		if cfg.Render {
			value, err = files.Render(value, nil)
			if err != nil {
				return nil, err
			}
		}
	}

	return &Secret{Path: path, Value: value}, nil
}

// unseal decrypts a sealed base64 blob with the key taken from the variable
// named by keyVar.
func (m *Module) unseal(name, sealed, keyVar string, files config.Helper) (string, error) {
	if keyVar == "" {
		return "", config.NewError(config.ErrInvalidConfig,
			"encrypted secret %s needs a key variable", name)
	}
	keyValue, ok := files.Variable(keyVar)
	if !ok {
		return "", config.NewError(config.ErrMissingVariable,
			"variable %s with the encryption key for %s is not set", keyVar, name)
	}

	plaintext, err := crypto.OpenFromBase64(sealed, crypto.KeyFromString(keyValue))
	if err != nil {
		return "", config.NewError(err, "could not decrypt secret %s: %v", name, err)
	}
	return string(plaintext), nil
}
