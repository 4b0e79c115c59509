package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/crypto"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Manager
// =============================================================================

// Client is the slice of the platform API this module needs.
type Client interface {
	GetAccount(ctx context.Context, id string) (*cluster.Account, error)
	CreateAccount(ctx context.Context, account cluster.Account) error
	DeleteAccount(ctx context.Context, id string) error
	AccountGrants(ctx context.Context, id string) ([]cluster.Grant, error)
	GrantPermission(ctx context.Context, accountID string, grant cluster.Grant) error
	RevokePermission(ctx context.Context, accountID string, grant cluster.Grant) error
	CreateSecret(ctx context.Context, path, value string) error
	DeleteSecret(ctx context.Context, path string) error
}

// Manager reconciles service accounts and their permission grants. An
// existing keypair is never rotated, grants present on the cluster but not
// in the entity stay untouched.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether the account is missing or lacks any wanted grant.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	account, err := asAccount(obj)
	if err != nil {
		return false, err
	}

	_, err = m.client.GetAccount(ctx, account.ID)
	if errors.Is(err, cluster.ErrNotFound) {
		m.logger.Debug("service account not present", "account", account.ID)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	missing, err := m.missingGrants(ctx, account)
	if err != nil {
		return false, err
	}
	return len(missing) > 0, nil
}

// Apply creates the account with a fresh keypair when missing and grants
// the wanted permissions that are not held yet.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	account, err := asAccount(obj)
	if err != nil {
		return false, err
	}

	changed := false
	_, err = m.client.GetAccount(ctx, account.ID)
	switch {
	case errors.Is(err, cluster.ErrNotFound):
		if err := m.create(ctx, account); err != nil {
			return false, err
		}
		changed = true
	case err != nil:
		return false, err
	}

	missing, err := m.missingGrants(ctx, account)
	if err != nil {
		return false, err
	}
	for _, grant := range missing {
		m.logger.Info("granting permission",
			"account", account.ID,
			"resource", grant.Resource,
			"action", grant.Action,
		)
		if err := m.client.GrantPermission(ctx, account.ID, grant); err != nil {
			return false, err
		}
		changed = true
	}

	return changed, nil
}

// Remove revokes the account's grants, deletes the account and drops the
// private key secret.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	account, err := asAccount(obj)
	if err != nil {
		return false, err
	}

	_, err = m.client.GetAccount(ctx, account.ID)
	if errors.Is(err, cluster.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	held, err := m.client.AccountGrants(ctx, account.ID)
	if err != nil {
		return false, err
	}
	for _, grant := range held {
		if err := m.client.RevokePermission(ctx, account.ID, grant); err != nil {
			return false, err
		}
	}

	m.logger.Info("removing service account", "account", account.ID)
	if err := m.client.DeleteAccount(ctx, account.ID); err != nil {
		return false, err
	}
	if err := m.client.DeleteSecret(ctx, account.SecretPath); err != nil && !errors.Is(err, cluster.ErrNotFound) {
		return false, err
	}
	return true, nil
}

// create generates the keypair, registers the account and stores the
// private key.
func (m *Manager) create(ctx context.Context, account *ServiceAccount) error {
	privateKey, publicKey, err := crypto.GenerateAccountKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate keypair for %s: %w", account.ID, err)
	}

	m.logger.Info("creating service account",
		"account", account.ID,
		"fingerprint", crypto.Fingerprint(publicKey),
	)
	if err := m.client.CreateAccount(ctx, cluster.Account{
		ID:          account.ID,
		Description: account.Description,
		PublicKey:   string(publicKey),
	}); err != nil {
		return err
	}
	return m.client.CreateSecret(ctx, account.SecretPath, string(privateKey))
}

// missingGrants returns the wanted grants the account does not hold yet.
func (m *Manager) missingGrants(ctx context.Context, account *ServiceAccount) ([]cluster.Grant, error) {
	if len(account.Grants) == 0 {
		return nil, nil
	}
	held, err := m.client.AccountGrants(ctx, account.ID)
	if err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return account.Grants, nil
		}
		return nil, err
	}

	heldSet := make(map[cluster.Grant]bool, len(held))
	for _, grant := range held {
		heldSet[grant] = true
	}
	var missing []cluster.Grant
	for _, grant := range account.Grants {
		if !heldSet[grant] {
			missing = append(missing, grant)
		}
	}
	return missing, nil
}

func asAccount(obj any) (*ServiceAccount, error) {
	account, ok := obj.(*ServiceAccount)
	if !ok {
		return nil, fmt.Errorf("expected service account object, got %T", obj)
	}
	return account, nil
}
