// Package certs manages TLS certificates issued by the cluster CA. A cert
// entity names the DNS names the certificate covers and the secret paths
// that receive the signed certificate and its private key.
package certs

import (
	"log/slog"
	"sort"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// Entity Config
// =============================================================================

// Config is the YAML shape of a cert entity.
type Config struct {
	DNS        []string `yaml:"dns" validate:"required,min=1,dive,required"`
	CertSecret string   `yaml:"cert_secret" validate:"required"`
	KeySecret  string   `yaml:"key_secret" validate:"required"`
}

// Certificate is the parsed deployment object. DNSNames is sorted so that
// comparisons against issued certificates are order independent.
type Certificate struct {
	Name       string
	DNSNames   []string
	CertSecret string
	KeySecret  string
}

// =============================================================================
// Module
// =============================================================================

// Module provides the cert entity type.
type Module struct {
	manager *Manager
}

// New creates the certs module on top of a platform client.
func New(client Client, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{client: client, logger: logger}}
}

func (m *Module) Name() string            { return "certs" }
func (m *Module) TypeName() string        { return "cert" }
func (m *Module) ManagerKey() string      { return "certs" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes a cert entity. DNS names and secret paths support variable
// placeholders, the two secret paths must differ.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}

	dnsNames := make([]string, len(cfg.DNS))
	for i, dns := range cfg.DNS {
		rendered, err := files.Render(dns, nil)
		if err != nil {
			return nil, err
		}
		dnsNames[i] = rendered
	}
	sort.Strings(dnsNames)

	certSecret, err := files.Render(cfg.CertSecret, nil)
	if err != nil {
		return nil, err
	}
	keySecret, err := files.Render(cfg.KeySecret, nil)
	if err != nil {
		return nil, err
	}
	if certSecret == keySecret {
		return nil, config.NewError(config.ErrInvalidConfig,
			"cert %s stores certificate and key at the same secret path %s", name, certSecret)
	}

	return &Certificate{
		Name:       name,
		DNSNames:   dnsNames,
		CertSecret: certSecret,
		KeySecret:  keySecret,
	}, nil
}
