package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Manager
// =============================================================================

// Client is the slice of the platform API this module needs.
type Client interface {
	GetSecret(ctx context.Context, path string) (string, error)
	CreateSecret(ctx context.Context, path, value string) error
	UpdateSecret(ctx context.Context, path, value string) error
	DeleteSecret(ctx context.Context, path string) error
}

// Manager reconciles secret entities against the cluster secret store.
// Secret values never reach the log output.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether the stored secret differs from the desired value.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	secret, err := asSecret(obj)
	if err != nil {
		return false, err
	}

	current, err := m.client.GetSecret(ctx, secret.Path)
	if errors.Is(err, cluster.ErrNotFound) {
		m.logger.Debug("secret not present", "path", secret.Path)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return current != secret.Value, nil
}

// Apply creates or updates the secret.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	secret, err := asSecret(obj)
	if err != nil {
		return false, err
	}

	current, err := m.client.GetSecret(ctx, secret.Path)
	if errors.Is(err, cluster.ErrNotFound) {
		m.logger.Info("creating secret", "path", secret.Path)
		if err := m.client.CreateSecret(ctx, secret.Path, secret.Value); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if current == secret.Value && !force {
		return false, nil
	}
	m.logger.Info("updating secret", "path", secret.Path)
	if err := m.client.UpdateSecret(ctx, secret.Path, secret.Value); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the secret if it is present.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	secret, err := asSecret(obj)
	if err != nil {
		return false, err
	}

	if err := m.client.DeleteSecret(ctx, secret.Path); err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	m.logger.Info("removed secret", "path", secret.Path)
	return true, nil
}

func asSecret(obj any) (*Secret, error) {
	secret, ok := obj.(*Secret)
	if !ok {
		return nil, fmt.Errorf("expected secret object, got %T", obj)
	}
	return secret, nil
}
