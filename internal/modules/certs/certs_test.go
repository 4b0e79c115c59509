package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/crypto"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

func parseEntity(t *testing.T, text string) *config.Entity {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(text), &node))
	mapping, err := config.MappingNode(&node)
	require.NoError(t, err)
	entity, err := config.DecodeEntity("test", mapping)
	require.NoError(t, err)
	return entity
}

func testHelper(t *testing.T, vars map[string]string) config.Helper {
	t.Helper()
	return loader.NewHelper(t.TempDir(), config.NewContainer(vars))
}

// fakeClient implements Client with an in-memory secret store and a real
// self-signed CA so issued certificates can be parsed back.
type fakeClient struct {
	t       *testing.T
	secrets map[string]string
	caCert  *x509.Certificate
	caKey   *ecdsa.PrivateKey
}

func newFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &fakeClient{
		t:       t,
		secrets: make(map[string]string),
		caCert:  caCert,
		caKey:   key,
	}
}

func (f *fakeClient) SignCertificate(ctx context.Context, csrPEM string) (string, error) {
	csr, err := crypto.ParseCertificateRequest([]byte(csrPEM))
	require.NoError(f.t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      csr.Subject,
		DNSNames:     csr.DNSNames,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(12 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, f.caCert, csr.PublicKey, f.caKey)
	require.NoError(f.t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

func (f *fakeClient) GetSecret(ctx context.Context, path string) (string, error) {
	value, ok := f.secrets[path]
	if !ok {
		return "", cluster.ErrNotFound
	}
	return value, nil
}

func (f *fakeClient) CreateSecret(ctx context.Context, path, value string) error {
	f.secrets[path] = value
	return nil
}

func (f *fakeClient) UpdateSecret(ctx context.Context, path, value string) error {
	f.secrets[path] = value
	return nil
}

func (f *fakeClient) DeleteSecret(ctx context.Context, path string) error {
	if _, ok := f.secrets[path]; !ok {
		return cluster.ErrNotFound
	}
	delete(f.secrets, path)
	return nil
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_Certificate(t *testing.T) {
	module := New(newFakeClient(t), nil)
	entity := parseEntity(t, `
type: cert
dns:
  - "{{service}}.example.com"
  - api.example.com
cert_secret: services/{{service}}/cert
key_secret: services/{{service}}/key
`)

	obj, err := module.Parse("web-cert", entity, testHelper(t, map[string]string{"service": "web"}))
	require.NoError(t, err)

	cert := obj.(*Certificate)
	assert.Equal(t, []string{"api.example.com", "web.example.com"}, cert.DNSNames)
	assert.Equal(t, "services/web/cert", cert.CertSecret)
	assert.Equal(t, "services/web/key", cert.KeySecret)
}

func TestParse_SameSecretPath(t *testing.T) {
	module := New(newFakeClient(t), nil)
	entity := parseEntity(t, `
type: cert
dns: [web.example.com]
cert_secret: services/web/tls
key_secret: services/web/tls
`)

	_, err := module.Parse("web-cert", entity, testHelper(t, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "same secret path")
}

func TestParse_NoDNSNames(t *testing.T) {
	module := New(newFakeClient(t), nil)
	entity := parseEntity(t, `
type: cert
cert_secret: a
key_secret: b
`)

	_, err := module.Parse("web-cert", entity, testHelper(t, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_ApplyIssuesCertificate(t *testing.T) {
	client := newFakeClient(t)
	module := New(client, nil)
	cert := &Certificate{
		Name:       "web-cert",
		DNSNames:   []string{"web.example.com"},
		CertSecret: "services/web/cert",
		KeySecret:  "services/web/key",
	}

	changed, err := module.Manager().Apply(context.Background(), cert, false)
	require.NoError(t, err)
	assert.True(t, changed)

	names, err := certificateDNSNames(client.secrets["services/web/cert"])
	require.NoError(t, err)
	assert.Equal(t, []string{"web.example.com"}, names)
	assert.Contains(t, client.secrets["services/web/key"], "EC PRIVATE KEY")

	// A second apply sees the issued certificate and does nothing.
	changed, err = module.Manager().Apply(context.Background(), cert, false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestManager_PlanDetectsDNSNameChange(t *testing.T) {
	client := newFakeClient(t)
	module := New(client, nil)
	cert := &Certificate{
		Name:       "web-cert",
		DNSNames:   []string{"web.example.com"},
		CertSecret: "services/web/cert",
		KeySecret:  "services/web/key",
	}

	_, err := module.Manager().Apply(context.Background(), cert, false)
	require.NoError(t, err)

	grown := &Certificate{
		Name:       "web-cert",
		DNSNames:   []string{"api.example.com", "web.example.com"},
		CertSecret: "services/web/cert",
		KeySecret:  "services/web/key",
	}
	changed, err := module.Manager().Plan(context.Background(), grown)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestManager_PlanMissingKeySecret(t *testing.T) {
	client := newFakeClient(t)
	module := New(client, nil)
	cert := &Certificate{
		Name:       "web-cert",
		DNSNames:   []string{"web.example.com"},
		CertSecret: "services/web/cert",
		KeySecret:  "services/web/key",
	}

	_, err := module.Manager().Apply(context.Background(), cert, false)
	require.NoError(t, err)
	require.NoError(t, client.DeleteSecret(context.Background(), "services/web/key"))

	changed, err := module.Manager().Plan(context.Background(), cert)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestManager_RemoveDeletesBothSecrets(t *testing.T) {
	client := newFakeClient(t)
	module := New(client, nil)
	cert := &Certificate{
		Name:       "web-cert",
		DNSNames:   []string{"web.example.com"},
		CertSecret: "services/web/cert",
		KeySecret:  "services/web/key",
	}

	_, err := module.Manager().Apply(context.Background(), cert, false)
	require.NoError(t, err)

	changed, err := module.Manager().Remove(context.Background(), cert)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, client.secrets)

	changed, err = module.Manager().Remove(context.Background(), cert)
	require.NoError(t, err)
	assert.False(t, changed)
}
