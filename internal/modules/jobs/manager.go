package jobs

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
	GetJob(ctx context.Context, name string) (map[string]any, error)
	PutJob(ctx context.Context, name string, definition map[string]any) error
	DeleteJob(ctx context.Context, name string) error
}

// Manager reconciles job entities against the cluster. Comparison is a
// subset check of the desired definition against the stored one.
type Manager struct {
	client Client
	logger *slog.Logger
}

// Plan reports whether applying the job would change the cluster.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	job, err := asJob(obj)
	if err != nil {
		return false, err
	}

	remote, err := m.client.GetJob(ctx, job.Name)
	if errors.Is(err, cluster.ErrNotFound) {
		m.logger.Debug("job not present", "job", job.Name)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	want, err := definitions.Normalize(job.Definition)
	if err != nil {
		return false, err
	}
	return definitions.Changed(want, remote), nil
}

// Apply creates or updates the job.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	job, err := asJob(obj)
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

	m.logger.Info("deploying job", "job", job.Name)
	if err := m.client.PutJob(ctx, job.Name, job.Definition); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the job if it is present.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	job, err := asJob(obj)
	if err != nil {
		return false, err
	}

	if err := m.client.DeleteJob(ctx, job.Name); err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	m.logger.Info("removed job", "job", job.Name)
	return true, nil
}

func asJob(obj any) (*Job, error) {
	job, ok := obj.(*Job)
	if !ok {
		return nil, fmt.Errorf("expected job object, got %T", obj)
	}
	return job, nil
}
