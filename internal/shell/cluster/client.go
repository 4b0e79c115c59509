// Package cluster provides the client for the platform API that deployment
// managers run against. All state lives on the cluster side, the client is
// a thin typed wrapper around the HTTP endpoints.
package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// Client
// =============================================================================

// Client talks to the platform API of one cluster.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds platform client configuration.
type Config struct {
	BaseURL string // Platform base URL, e.g., "https://cluster.example.com"
	Token   string // Bearer token for authentication
	Timeout time.Duration

	// InsecureSkipTLSVerify disables certificate verification, for clusters
	// running on self-signed certificates.
	InsecureSkipTLSVerify bool
}

// NewClient creates a new platform client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.InsecureSkipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the configured platform base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Resource Types
// =============================================================================

// Secret is one secret stored on the cluster.
type Secret struct {
	Value string `json:"value"`
}

// Repository is one package repository known to the cluster.
type Repository struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	Index *int   `json:"index,omitempty"`
}

// Account is a service account on the cluster.
type Account struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	PublicKey   string `json:"public_key"`
}

// Grant is one permission held by a service account.
type Grant struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// =============================================================================
// App Operations
// =============================================================================

// GetApp fetches the current definition of an app.
func (c *Client) GetApp(ctx context.Context, id string) (map[string]any, error) {
	path := "/v1/apps/" + resourcePath(id)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var definition map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&definition); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return definition, nil
}

// PutApp creates or updates an app from its definition. force overrides a
// rollout that is still in flight.
func (c *Client) PutApp(ctx context.Context, id string, definition map[string]any, force bool) error {
	path := "/v1/apps/" + resourcePath(id)
	if force {
		path += "?force=true"
	}
	resp, err := c.do(ctx, http.MethodPut, path, definition)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPut, path)
}

// DeleteApp removes an app from the cluster.
func (c *Client) DeleteApp(ctx context.Context, id string) error {
	path := "/v1/apps/" + resourcePath(id)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

// =============================================================================
// Job Operations
// =============================================================================

// GetJob fetches the current definition of a job.
func (c *Client) GetJob(ctx context.Context, name string) (map[string]any, error) {
	path := "/v1/jobs/" + resourcePath(name)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var definition map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&definition); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return definition, nil
}

// PutJob creates or updates a job from its definition.
func (c *Client) PutJob(ctx context.Context, name string, definition map[string]any) error {
	path := "/v1/jobs/" + resourcePath(name)
	resp, err := c.do(ctx, http.MethodPut, path, definition)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPut, path)
}

// DeleteJob removes a job from the cluster.
func (c *Client) DeleteJob(ctx context.Context, name string) error {
	path := "/v1/jobs/" + resourcePath(name)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

// =============================================================================
// Secret Operations
// =============================================================================

// GetSecret reads the value of a secret.
func (c *Client) GetSecret(ctx context.Context, secretPath string) (string, error) {
	path := "/v1/secrets/" + resourcePath(secretPath)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return "", err
	}

	var secret Secret
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return secret.Value, nil
}

// CreateSecret stores a new secret.
func (c *Client) CreateSecret(ctx context.Context, secretPath, value string) error {
	path := "/v1/secrets/" + resourcePath(secretPath)
	resp, err := c.do(ctx, http.MethodPut, path, Secret{Value: value})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPut, path)
}

// UpdateSecret replaces the value of an existing secret.
func (c *Client) UpdateSecret(ctx context.Context, secretPath, value string) error {
	path := "/v1/secrets/" + resourcePath(secretPath)
	resp, err := c.do(ctx, http.MethodPatch, path, Secret{Value: value})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPatch, path)
}

// DeleteSecret removes a secret.
func (c *Client) DeleteSecret(ctx context.Context, secretPath string) error {
	path := "/v1/secrets/" + resourcePath(secretPath)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

// =============================================================================
// Certificate Authority Operations
// =============================================================================

type signRequest struct {
	CSR string `json:"csr"`
}

type signResponse struct {
	Certificate string `json:"certificate"`
}

// SignCertificate submits a PEM encoded CSR to the cluster CA and returns
// the signed certificate in PEM encoding.
func (c *Client) SignCertificate(ctx context.Context, csrPEM string) (string, error) {
	path := "/v1/ca/sign"
	resp, err := c.do(ctx, http.MethodPost, path, signRequest{CSR: csrPEM})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodPost, path); err != nil {
		return "", err
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return signed.Certificate, nil
}

// =============================================================================
// Repository Operations
// =============================================================================

type repositoriesResponse struct {
	Repositories []Repository `json:"repositories"`
}

// ListRepositories returns the package repositories of the cluster in their
// search order.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	path := "/v1/repositories"
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var result repositoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Repositories, nil
}

// AddRepository registers a package repository, optionally at a fixed index
// in the search order.
func (c *Client) AddRepository(ctx context.Context, repo Repository) error {
	path := "/v1/repositories"
	resp, err := c.do(ctx, http.MethodPost, path, repo)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPost, path)
}

// DeleteRepository removes a package repository by name.
func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	path := "/v1/repositories/" + url.PathEscape(name)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

// =============================================================================
// Service Account Operations
// =============================================================================

type grantsResponse struct {
	Grants []Grant `json:"grants"`
}

// GetAccount fetches a service account.
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	path := "/v1/accounts/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &account, nil
}

// CreateAccount creates a service account with its public key.
func (c *Client) CreateAccount(ctx context.Context, account Account) error {
	path := "/v1/accounts/" + url.PathEscape(account.ID)
	resp, err := c.do(ctx, http.MethodPut, path, account)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPut, path)
}

// DeleteAccount removes a service account.
func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	path := "/v1/accounts/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

// AccountGrants lists the permissions currently granted to an account.
func (c *Client) AccountGrants(ctx context.Context, id string) ([]Grant, error) {
	path := "/v1/accounts/" + url.PathEscape(id) + "/grants"
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	var result grantsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Grants, nil
}

// GrantPermission grants one resource action to an account. Granting an
// already held permission is a no-op on the cluster side.
func (c *Client) GrantPermission(ctx context.Context, accountID string, grant Grant) error {
	path := grantPath(accountID, grant)
	resp, err := c.do(ctx, http.MethodPut, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodPut, path)
}

// RevokePermission removes one resource action from an account.
func (c *Client) RevokePermission(ctx context.Context, accountID string, grant Grant) error {
	path := grantPath(accountID, grant)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, http.MethodDelete, path)
}

func grantPath(accountID string, grant Grant) string {
	return "/v1/acls/" + url.PathEscape(grant.Resource) +
		"/accounts/" + url.PathEscape(accountID) +
		"/" + url.PathEscape(grant.Action)
}

// =============================================================================
// Helper Methods
// =============================================================================

// resourcePath keeps interior slashes of hierarchical resource names and
// trims a leading slash so the name slots into the endpoint path.
func resourcePath(name string) string {
	return strings.TrimPrefix(name, "/")
}

// do sends one request with the standard headers. The caller owns the
// response body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("platform request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// statusError turns a non-2xx response into an APIError carrying a snippet
// of the response body.
func statusError(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		Method: method,
		Path:   strings.SplitN(path, "?", 2)[0],
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}
