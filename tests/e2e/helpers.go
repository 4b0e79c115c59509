// Package e2e provides end-to-end testing utilities for stackdeploy.
package e2e

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Fake Platform
// =============================================================================

// FakePlatform is an in-memory stand-in for the platform API. It serves the
// same endpoints the cluster client talks to and keeps all state in maps, so
// a test can apply a document and then inspect what actually landed.
//
// Every request is recorded in order. The request log is our eyes into what
// a run really did: it is how tests verify deployment order and that
// idempotent runs stay read-only.
type FakePlatform struct {
	mu       sync.Mutex
	token    string
	apps     map[string]map[string]any
	jobs     map[string]map[string]any
	secrets  map[string]string
	repos    []cluster.Repository
	accounts map[string]cluster.Account
	grants   map[string][]cluster.Grant
	requests []string

	ca     *testCA
	server *httptest.Server
}

// NewFakePlatform starts a fake platform server. Requests must carry the
// given bearer token unless it is empty.
func NewFakePlatform(token string) (*FakePlatform, error) {
	ca, err := newTestCA()
	if err != nil {
		return nil, fmt.Errorf("failed to create test CA: %w", err)
	}

	p := &FakePlatform{
		token:    token,
		apps:     make(map[string]map[string]any),
		jobs:     make(map[string]map[string]any),
		secrets:  make(map[string]string),
		accounts: make(map[string]cluster.Account),
		grants:   make(map[string][]cluster.Grant),
		ca:       ca,
	}
	p.server = httptest.NewServer(p.handler())
	return p, nil
}

// URL returns the base URL of the fake platform.
func (p *FakePlatform) URL() string {
	return p.server.URL
}

// Close shuts the fake platform down.
func (p *FakePlatform) Close() {
	p.server.Close()
}

// =============================================================================
// State Accessors
// =============================================================================

// App returns the stored definition of an app, if present. The id may carry
// the leading slash the apps module uses.
func (p *FakePlatform) App(id string) (map[string]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	definition, ok := p.apps[trimSlash(id)]
	return definition, ok
}

// Job returns the stored definition of a job, if present.
func (p *FakePlatform) Job(name string) (map[string]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	definition, ok := p.jobs[trimSlash(name)]
	return definition, ok
}

// Secret returns the stored value of a secret, if present.
func (p *FakePlatform) Secret(path string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.secrets[trimSlash(path)]
	return value, ok
}

// SetSecret seeds a secret, bypassing the API.
func (p *FakePlatform) SetSecret(path, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[trimSlash(path)] = value
}

// Repositories returns the registered repositories in search order.
func (p *FakePlatform) Repositories() []cluster.Repository {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]cluster.Repository, len(p.repos))
	copy(out, p.repos)
	return out
}

// Account returns a stored service account, if present.
func (p *FakePlatform) Account(id string) (cluster.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[id]
	return account, ok
}

// Grants returns the grants held by an account.
func (p *FakePlatform) Grants(id string) []cluster.Grant {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]cluster.Grant, len(p.grants[id]))
	copy(out, p.grants[id])
	return out
}

// Requests returns all recorded requests in arrival order, as
// "METHOD /path" strings. A force deploy shows up as "?force=true".
func (p *FakePlatform) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	copy(out, p.requests)
	return out
}

// MutatingRequests returns the recorded requests that change state.
func (p *FakePlatform) MutatingRequests() []string {
	var out []string
	for _, req := range p.Requests() {
		if len(req) < 4 || req[:4] != "GET " {
			out = append(out, req)
		}
	}
	return out
}

// ResetRequests clears the request log, state stays untouched.
func (p *FakePlatform) ResetRequests() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = nil
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

// =============================================================================
// HTTP Handler
// =============================================================================

func (p *FakePlatform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/apps/{id...}", p.getApp)
	mux.HandleFunc("PUT /v1/apps/{id...}", p.putApp)
	mux.HandleFunc("DELETE /v1/apps/{id...}", p.deleteApp)

	mux.HandleFunc("GET /v1/jobs/{name...}", p.getJob)
	mux.HandleFunc("PUT /v1/jobs/{name...}", p.putJob)
	mux.HandleFunc("DELETE /v1/jobs/{name...}", p.deleteJob)

	mux.HandleFunc("GET /v1/secrets/{path...}", p.getSecret)
	mux.HandleFunc("PUT /v1/secrets/{path...}", p.createSecret)
	mux.HandleFunc("PATCH /v1/secrets/{path...}", p.updateSecret)
	mux.HandleFunc("DELETE /v1/secrets/{path...}", p.deleteSecret)

	mux.HandleFunc("POST /v1/ca/sign", p.signCertificate)

	mux.HandleFunc("GET /v1/repositories", p.listRepositories)
	mux.HandleFunc("POST /v1/repositories", p.addRepository)
	mux.HandleFunc("DELETE /v1/repositories/{name}", p.deleteRepository)

	mux.HandleFunc("GET /v1/accounts/{id}", p.getAccount)
	mux.HandleFunc("PUT /v1/accounts/{id}", p.putAccount)
	mux.HandleFunc("DELETE /v1/accounts/{id}", p.deleteAccount)
	mux.HandleFunc("GET /v1/accounts/{id}/grants", p.listGrants)

	mux.HandleFunc("PUT /v1/acls/{resource}/accounts/{id}/{action}", p.grantPermission)
	mux.HandleFunc("DELETE /v1/acls/{resource}/accounts/{id}/{action}", p.revokePermission)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.token != "" && r.Header.Get("Authorization") != "Bearer "+p.token {
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
		p.record(r)
		mux.ServeHTTP(w, r)
	})
}

func (p *FakePlatform) record(r *http.Request) {
	entry := r.Method + " " + r.URL.Path
	if r.URL.Query().Get("force") == "true" {
		entry += "?force=true"
	}
	p.mu.Lock()
	p.requests = append(p.requests, entry)
	p.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// =============================================================================
// App and Job Endpoints
// =============================================================================

func (p *FakePlatform) getApp(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	definition, ok := p.apps[r.PathValue("id")]
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such app", http.StatusNotFound)
		return
	}
	writeJSON(w, definition)
}

func (p *FakePlatform) putApp(w http.ResponseWriter, r *http.Request) {
	var definition map[string]any
	if err := json.NewDecoder(r.Body).Decode(&definition); err != nil {
		http.Error(w, "invalid app definition", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.apps[r.PathValue("id")] = definition
	p.mu.Unlock()
	writeJSON(w, map[string]string{"deployment": "ok"})
}

func (p *FakePlatform) deleteApp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.mu.Lock()
	_, ok := p.apps[id]
	delete(p.apps, id)
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such app", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (p *FakePlatform) getJob(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	definition, ok := p.jobs[r.PathValue("name")]
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeJSON(w, definition)
}

func (p *FakePlatform) putJob(w http.ResponseWriter, r *http.Request) {
	var definition map[string]any
	if err := json.NewDecoder(r.Body).Decode(&definition); err != nil {
		http.Error(w, "invalid job definition", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.jobs[r.PathValue("name")] = definition
	p.mu.Unlock()
	writeJSON(w, map[string]string{"deployment": "ok"})
}

func (p *FakePlatform) deleteJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p.mu.Lock()
	_, ok := p.jobs[name]
	delete(p.jobs, name)
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// Secret Endpoints
// =============================================================================

func (p *FakePlatform) getSecret(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	value, ok := p.secrets[r.PathValue("path")]
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such secret", http.StatusNotFound)
		return
	}
	writeJSON(w, cluster.Secret{Value: value})
}

// createSecret is strict about create-vs-update: creating an existing
// secret conflicts, so a client that skips the existence check fails loudly.
func (p *FakePlatform) createSecret(w http.ResponseWriter, r *http.Request) {
	var secret cluster.Secret
	if err := json.NewDecoder(r.Body).Decode(&secret); err != nil {
		http.Error(w, "invalid secret payload", http.StatusBadRequest)
		return
	}
	path := r.PathValue("path")
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.secrets[path]; exists {
		http.Error(w, "secret already exists", http.StatusConflict)
		return
	}
	p.secrets[path] = secret.Value
	w.WriteHeader(http.StatusCreated)
}

func (p *FakePlatform) updateSecret(w http.ResponseWriter, r *http.Request) {
	var secret cluster.Secret
	if err := json.NewDecoder(r.Body).Decode(&secret); err != nil {
		http.Error(w, "invalid secret payload", http.StatusBadRequest)
		return
	}
	path := r.PathValue("path")
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.secrets[path]; !exists {
		http.Error(w, "no such secret", http.StatusNotFound)
		return
	}
	p.secrets[path] = secret.Value
	w.WriteHeader(http.StatusOK)
}

func (p *FakePlatform) deleteSecret(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	p.mu.Lock()
	_, ok := p.secrets[path]
	delete(p.secrets, path)
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such secret", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// Certificate Authority Endpoint
// =============================================================================

func (p *FakePlatform) signCertificate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSR string `json:"csr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid signing request", http.StatusBadRequest)
		return
	}
	certPEM, err := p.ca.Sign(req.CSR)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"certificate": certPEM})
}

// =============================================================================
// Repository Endpoints
// =============================================================================

func (p *FakePlatform) listRepositories(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	repos := make([]cluster.Repository, len(p.repos))
	copy(repos, p.repos)
	p.mu.Unlock()
	writeJSON(w, map[string][]cluster.Repository{"repositories": repos})
}

func (p *FakePlatform) addRepository(w http.ResponseWriter, r *http.Request) {
	var repo cluster.Repository
	if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
		http.Error(w, "invalid repository payload", http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.repos {
		if existing.Name == repo.Name {
			http.Error(w, "repository already exists", http.StatusConflict)
			return
		}
	}
	if repo.Index != nil && *repo.Index >= 0 && *repo.Index < len(p.repos) {
		i := *repo.Index
		p.repos = append(p.repos[:i], append([]cluster.Repository{repo}, p.repos[i:]...)...)
	} else {
		p.repos = append(p.repos, repo)
	}
	w.WriteHeader(http.StatusCreated)
}

func (p *FakePlatform) deleteRepository(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, repo := range p.repos {
		if repo.Name == name {
			p.repos = append(p.repos[:i], p.repos[i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	http.Error(w, "no such repository", http.StatusNotFound)
}

// =============================================================================
// Service Account Endpoints
// =============================================================================

func (p *FakePlatform) getAccount(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	account, ok := p.accounts[r.PathValue("id")]
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such account", http.StatusNotFound)
		return
	}
	writeJSON(w, account)
}

func (p *FakePlatform) putAccount(w http.ResponseWriter, r *http.Request) {
	var account cluster.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		http.Error(w, "invalid account payload", http.StatusBadRequest)
		return
	}
	account.ID = r.PathValue("id")
	p.mu.Lock()
	p.accounts[account.ID] = account
	p.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (p *FakePlatform) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.mu.Lock()
	_, ok := p.accounts[id]
	delete(p.accounts, id)
	delete(p.grants, id)
	p.mu.Unlock()
	if !ok {
		http.Error(w, "no such account", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (p *FakePlatform) listGrants(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[id]; !ok {
		http.Error(w, "no such account", http.StatusNotFound)
		return
	}
	grants := p.grants[id]
	if grants == nil {
		grants = []cluster.Grant{}
	}
	writeJSON(w, map[string][]cluster.Grant{"grants": grants})
}

func (p *FakePlatform) grantPermission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	grant := cluster.Grant{Resource: r.PathValue("resource"), Action: r.PathValue("action")}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[id]; !ok {
		http.Error(w, "no such account", http.StatusNotFound)
		return
	}
	for _, held := range p.grants[id] {
		if held == grant {
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	p.grants[id] = append(p.grants[id], grant)
	w.WriteHeader(http.StatusOK)
}

func (p *FakePlatform) revokePermission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	grant := cluster.Grant{Resource: r.PathValue("resource"), Action: r.PathValue("action")}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, held := range p.grants[id] {
		if held == grant {
			p.grants[id] = append(p.grants[id][:i], p.grants[id][i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	http.Error(w, "no such grant", http.StatusNotFound)
}

// =============================================================================
// Test Certificate Authority
// =============================================================================

// testCA signs certificate requests the way the cluster CA would, so issued
// certificates parse and carry the requested DNS names.
type testCA struct {
	key    *ecdsa.PrivateKey
	cert   *x509.Certificate
	serial atomic.Int64
}

func newTestCA() (*testCA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "stackdeploy e2e ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &testCA{key: key, cert: cert}, nil
}

// Sign validates a PEM encoded CSR and returns a certificate covering its
// DNS names.
func (ca *testCA) Sign(csrPEM string) (string, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return "", fmt.Errorf("no certificate request in payload")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("invalid certificate request: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return "", fmt.Errorf("certificate request signature check failed: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(ca.serial.Add(1)),
		Subject:      csr.Subject,
		DNSNames:     csr.DNSNames,
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, csr.PublicKey, ca.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign certificate: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}
