package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/stackdeploy/internal/modules/definitions"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Manager
// =============================================================================

// Client is the slice of the platform API this module needs.
type Client interface {
	GetApp(ctx context.Context, id string) (map[string]any, error)
	PutApp(ctx context.Context, id string, definition map[string]any, force bool) error
	DeleteApp(ctx context.Context, id string) error
}

// Manager reconciles app entities against the cluster. Comparison is a
// subset check of the desired definition against the stored one, so fields
// the cluster fills in on its own never count as drift.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether applying the app would change the cluster.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	app, err := asApp(obj)
	if err != nil {
		return false, err
	}

	remote, err := m.client.GetApp(ctx, app.ID)
	if errors.Is(err, cluster.ErrNotFound) {
		m.logger.Debug("app not present", "app", app.ID)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	want, err := definitions.Normalize(app.Definition)
	if err != nil {
		return false, err
	}
	return definitions.Changed(want, remote), nil
}

// Apply creates or updates the app. With force the definition is pushed
// even when no difference is detected and the cluster restarts a stuck
// deployment if one is in flight.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	app, err := asApp(obj)
	if err != nil {
		return false, err
	}

	if !force {
		changed, err := m.Plan(ctx, obj)
		if err != nil {
			return false, err
		}
		if !changed {
			return false, nil
		}
	}

	m.logger.Info("deploying app", "app", app.ID)
	if err := m.client.PutApp(ctx, app.ID, app.Definition, force); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the app if it is present.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	app, err := asApp(obj)
	if err != nil {
		return false, err
	}

	if err := m.client.DeleteApp(ctx, app.ID); err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	m.logger.Info("removed app", "app", app.ID)
	return true, nil
}

func asApp(obj any) (*App, error) {
	app, ok := obj.(*App)
	if !ok {
		return nil, fmt.Errorf("expected app object, got %T", obj)
	}
	return app, nil
}
