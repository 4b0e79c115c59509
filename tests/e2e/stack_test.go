package e2e

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/crypto"
)

// =============================================================================
// Shop Stack Fixture Tests
// =============================================================================

// The shop fixture is a realistic deployment document: an include file, an
// encrypted secret, a CA-issued certificate, a service account with grants,
// a compose file fanned out into one app per service, and a prod-only
// cleanup job.

const (
	shopVaultKey   = "shop-vault-key"
	shopDBPassword = "s3cr3t-db-pass"
)

// shopArgs builds the CLI arguments for the shop fixture in one
// environment.
func shopArgs(t *testing.T, command, environment string) []string {
	t.Helper()

	sealed, err := crypto.SealToBase64([]byte(shopDBPassword), crypto.KeyFromString(shopVaultKey))
	require.NoError(t, err)

	return []string{
		command,
		"-f", fixturePath(t, "shop/stackdeploy.yml"),
		"-e", "environment=" + environment,
		"-e", "vault_key=" + shopVaultKey,
		"-e", "sealed_db_password=" + sealed,
	}
}

// parseCertificate decodes a PEM certificate stored on the platform.
func parseCertificate(t *testing.T, certPEM string) *x509.Certificate {
	t.Helper()

	block, _ := pem.Decode([]byte(certPEM))
	require.NotNil(t, block, "stored certificate must be PEM encoded")
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err, "stored certificate must parse")
	return cert
}

// TestE2E_ShopStackDeployment deploys the full shop stack to dev and
// verifies every entity landed, then re-applies and expects a no-op.
func TestE2E_ShopStackDeployment(t *testing.T) {
	out, err := runCLI(t, shopArgs(t, "apply", "dev")...)
	require.NoError(t, err)

	// Six entities in dev: the included repository, the secret, the cert,
	// the service account and the two compose services. The cleanup job is
	// prod-only.
	assert.Contains(t, out, "6 changed, 0 unchanged")

	// The encrypted secret arrives as plaintext.
	value, ok := platform.Secret("/shop/dev/db/password")
	require.True(t, ok, "db password secret must exist")
	assert.Equal(t, shopDBPassword, value)

	// The certificate was issued by the CA and covers both DNS names.
	certPEM, ok := platform.Secret("/shop/dev/tls/cert")
	require.True(t, ok, "certificate secret must exist")
	cert := parseCertificate(t, certPEM)
	assert.ElementsMatch(t, []string{"shop.example.com", "www.shop.example.com"}, cert.DNSNames)

	keyPEM, ok := platform.Secret("/shop/dev/tls/key")
	require.True(t, ok, "certificate key secret must exist")
	assert.Contains(t, keyPEM, "EC PRIVATE KEY")

	// The service account exists with its grants and stored private key.
	account, ok := platform.Account("shop-deployer")
	require.True(t, ok, "service account must exist")
	assert.Contains(t, account.PublicKey, "PUBLIC KEY")

	grants := platform.Grants("shop-deployer")
	require.Len(t, grants, 2)
	resources := []string{grants[0].Resource, grants[1].Resource}
	assert.ElementsMatch(t, []string{"secrets:/shop/dev", "apps:/shop/dev"}, resources)

	deployerKey, ok := platform.Secret("/shop/dev/deployer/key")
	require.True(t, ok, "deployer key secret must exist")
	assert.Contains(t, deployerKey, "PRIVATE KEY")

	// The compose file fanned out into one app per service.
	web, ok := platform.App("/shop/dev/web")
	require.True(t, ok, "web app must exist")
	assert.Equal(t, "nginx:1.27", web["image"])
	assert.Equal(t, []any{float64(80)}, web["ports"])
	env, ok := web["env"].(map[string]any)
	require.True(t, ok, "web app must carry its environment")
	assert.Equal(t, "dev", env["SHOP_ENV"])

	db, ok := platform.App("/shop/dev/db")
	require.True(t, ok, "db app must exist")
	assert.Equal(t, "postgres:16", db["image"])

	// The prod-only job stayed home.
	_, ok = platform.Job("shop-dev-cleanup")
	assert.False(t, ok, "cleanup job must not deploy to dev")

	// A converged stack re-applies as a no-op, certificate included.
	platform.ResetRequests()
	out, err = runCLI(t, shopArgs(t, "apply", "dev")...)
	require.NoError(t, err)
	assert.Contains(t, out, "0 changed, 6 unchanged")
	assert.Empty(t, platform.MutatingRequests(), "re-apply must be read-only")

	t.Log("PASS: Shop stack deployed and converged")
}

// TestE2E_ShopStackProdIncludesCleanupJob deploys the same fixture to prod
// and verifies the only restriction flips the cleanup job on.
func TestE2E_ShopStackProdIncludesCleanupJob(t *testing.T) {
	_, err := runCLI(t, shopArgs(t, "apply", "prod")...)
	require.NoError(t, err)

	job, ok := platform.Job("shop-prod-cleanup")
	require.True(t, ok, "cleanup job must deploy to prod")
	assert.Equal(t, "0 3 * * *", job["schedule"])
	assert.Equal(t, "alpine:3.20", job["image"])

	web, ok := platform.App("/shop/prod/web")
	require.True(t, ok, "prod web app must exist")
	env, ok := web["env"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "prod", env["SHOP_ENV"])

	t.Log("PASS: Prod deployment includes the cleanup job")
}

// TestE2E_ShopStackGraph prints the fixture's graph with the compose
// fan-out edges.
func TestE2E_ShopStackGraph(t *testing.T) {
	out, err := runCLI(t, shopArgs(t, "graph", "dev")...)
	require.NoError(t, err)

	assert.Contains(t, out, `"shop-stack-web" -> "shop-stack-db";`)
	assert.Contains(t, out, `"shop-stack-web" -> "shop-db-password" [label="update"];`)
	assert.Contains(t, out, `"shop-db-password" -> "shop-universe";`)

	t.Log("PASS: Graph shows compose fan-out and include dependencies")
}

// =============================================================================
// Certificate Reissue Tests
// =============================================================================

// certDocument renders a single cert entity with the given DNS names.
func certDocument(dnsNames []string) string {
	doc := "certrot-tls:\n  type: cert\n  dns:\n"
	for _, name := range dnsNames {
		doc += fmt.Sprintf("    - %s\n", name)
	}
	doc += "  cert_secret: /certrot/tls/cert\n  key_secret: /certrot/tls/key\n"
	return doc
}

// TestE2E_CertificateReissuedWhenDNSChanges verifies a stored certificate
// is kept while its DNS names match and reissued when they change.
func TestE2E_CertificateReissuedWhenDNSChanges(t *testing.T) {
	path := writeDocument(t, certDocument([]string{"certrot.example.com"}))

	out, err := runCLI(t, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 changed, 0 unchanged")

	certPEM, ok := platform.Secret("/certrot/tls/cert")
	require.True(t, ok)
	first := parseCertificate(t, certPEM)
	assert.Equal(t, []string{"certrot.example.com"}, first.DNSNames)

	// Same names: the certificate stays.
	out, err = runCLI(t, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 changed, 1 unchanged")

	// A new name triggers a reissue covering the full set.
	path = writeDocument(t, certDocument([]string{"certrot.example.com", "api.certrot.example.com"}))
	out, err = runCLI(t, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 changed, 0 unchanged")

	certPEM, ok = platform.Secret("/certrot/tls/cert")
	require.True(t, ok)
	reissued := parseCertificate(t, certPEM)
	assert.ElementsMatch(t, []string{"certrot.example.com", "api.certrot.example.com"}, reissued.DNSNames)
	assert.NotEqual(t, first.SerialNumber, reissued.SerialNumber, "reissue must produce a new certificate")

	t.Log("PASS: Certificate reissued when DNS names changed")
}
