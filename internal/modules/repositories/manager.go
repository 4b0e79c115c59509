package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Manager
// =============================================================================

// Client is the slice of the platform API this module needs.
type Client interface {
	ListRepositories(ctx context.Context) ([]cluster.Repository, error)
	AddRepository(ctx context.Context, repo cluster.Repository) error
	DeleteRepository(ctx context.Context, name string) error
}

// Manager reconciles repository entities against the cluster.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether applying the repository would change the cluster.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	repo, err := asRepository(obj)
	if err != nil {
		return false, err
	}

	existing, err := m.find(ctx, repo.Name)
	if err != nil {
		return false, err
	}
	if existing == nil {
		m.logger.Debug("repository not present", "name", repo.Name)
		return true, nil
	}
	return existing.URI != repo.URI, nil
}

// Apply registers the repository, replacing it when the URI changed.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	repo, err := asRepository(obj)
	if err != nil {
		return false, err
	}

	existing, err := m.find(ctx, repo.Name)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.URI == repo.URI && !force {
			return false, nil
		}
		m.logger.Info("replacing repository", "name", repo.Name, "uri", repo.URI)
		if err := m.client.DeleteRepository(ctx, repo.Name); err != nil {
			return false, err
		}
	} else {
		m.logger.Info("adding repository", "name", repo.Name, "uri", repo.URI)
	}

	if err := m.client.AddRepository(ctx, cluster.Repository{
		Name:  repo.Name,
		URI:   repo.URI,
		Index: repo.Index,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the repository if it is present.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	repo, err := asRepository(obj)
	if err != nil {
		return false, err
	}

	existing, err := m.find(ctx, repo.Name)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	m.logger.Info("removing repository", "name", repo.Name)
	if err := m.client.DeleteRepository(ctx, repo.Name); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) find(ctx context.Context, name string) (*cluster.Repository, error) {
	repos, err := m.client.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if repo.Name == name {
			return &repo, nil
		}
	}
	return nil, nil
}

func asRepository(obj any) (*Repository, error) {
	repo, ok := obj.(*Repository)
	if !ok {
		return nil, fmt.Errorf("expected repository object, got %T", obj)
	}
	return repo, nil
}
