package certs

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/artpar/stackdeploy/internal/core/crypto"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Manager
// =============================================================================

// Client is the slice of the platform API this module needs.
type Client interface {
	SignCertificate(ctx context.Context, csrPEM string) (string, error)
	GetSecret(ctx context.Context, path string) (string, error)
	CreateSecret(ctx context.Context, path, value string) error
	UpdateSecret(ctx context.Context, path, value string) error
	DeleteSecret(ctx context.Context, path string) error
}

// Manager issues certificates through the cluster CA and keeps them in the
// secret store. A certificate is reissued when either secret is missing or
// the stored certificate covers a different set of DNS names.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether the certificate needs to be issued.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	cert, err := asCertificate(obj)
	if err != nil {
		return false, err
	}
	return m.needsIssue(ctx, cert)
}

// Apply issues the certificate and stores certificate and key.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	cert, err := asCertificate(obj)
	if err != nil {
		return false, err
	}

	needed, err := m.needsIssue(ctx, cert)
	if err != nil {
		return false, err
	}
	if !needed && !force {
		return false, nil
	}

	keyPEM, csrPEM, err := crypto.CertificateRequest(cert.DNSNames)
	if err != nil {
		return false, err
	}
	m.logger.Info("requesting certificate", "name", cert.Name, "dns", cert.DNSNames)
	certPEM, err := m.client.SignCertificate(ctx, string(csrPEM))
	if err != nil {
		return false, err
	}

	if err := m.storeSecret(ctx, cert.KeySecret, string(keyPEM)); err != nil {
		return false, err
	}
	if err := m.storeSecret(ctx, cert.CertSecret, certPEM); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the certificate and key secrets.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	cert, err := asCertificate(obj)
	if err != nil {
		return false, err
	}

	changed := false
	for _, path := range []string{cert.CertSecret, cert.KeySecret} {
		err := m.client.DeleteSecret(ctx, path)
		if errors.Is(err, cluster.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		changed = true
	}
	if changed {
		m.logger.Info("removed certificate", "name", cert.Name)
	}
	return changed, nil
}

// needsIssue checks both secrets and the DNS names of the stored
// certificate. An unparsable stored certificate counts as needing reissue.
func (m *Manager) needsIssue(ctx context.Context, cert *Certificate) (bool, error) {
	certPEM, err := m.client.GetSecret(ctx, cert.CertSecret)
	if errors.Is(err, cluster.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := m.client.GetSecret(ctx, cert.KeySecret); errors.Is(err, cluster.ErrNotFound) {
		return true, nil
	} else if err != nil {
		return false, err
	}

	covered, err := certificateDNSNames(certPEM)
	if err != nil {
		m.logger.Debug("stored certificate not parsable, reissuing", "name", cert.Name)
		return true, nil
	}
	if len(covered) != len(cert.DNSNames) {
		return true, nil
	}
	for i, name := range cert.DNSNames {
		if covered[i] != name {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) storeSecret(ctx context.Context, path, value string) error {
	_, err := m.client.GetSecret(ctx, path)
	if errors.Is(err, cluster.ErrNotFound) {
		return m.client.CreateSecret(ctx, path, value)
	}
	if err != nil {
		return err
	}
	return m.client.UpdateSecret(ctx, path, value)
}

// certificateDNSNames extracts the sorted DNS names of a PEM certificate.
func certificateDNSNames(certPEM string) ([]string, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate found in PEM data")
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), parsed.DNSNames...)
	sort.Strings(names)
	return names, nil
}

func asCertificate(obj any) (*Certificate, error) {
	cert, ok := obj.(*Certificate)
	if !ok {
		return nil, fmt.Errorf("expected certificate object, got %T", obj)
	}
	return cert, nil
}
