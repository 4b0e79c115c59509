// Package deploy runs resolved deployments against the platform in
// dependency order.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/core/rollout"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

// =============================================================================
// Executor
// =============================================================================

// Options control a deployment run.
type Options struct {
	// DryRun reports what would change without touching the platform.
	DryRun bool

	// Force applies every entity even when no difference is detected.
	Force bool
}

// Summary is the outcome of a run.
type Summary struct {
	RunID     string
	Changed   []string
	Unchanged []string
}

// Executor walks a rollout plan and drives the entity managers. Steps run
// sequentially, the first error aborts the run.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With("component", "deploy")}
}

// PlanFor orders the entities of a load result for application.
func PlanFor(result *loader.Result) ([]string, error) {
	return rollout.Plan(result.Names(), result.Graph)
}

// Apply converges the platform toward the resolved entities, in plan order.
// An entity is re-applied with force when the run is forced or when one of
// its update dependencies changed earlier in the run.
func (e *Executor) Apply(ctx context.Context, result *loader.Result, plan []string, opts Options) (*Summary, error) {
	summary := &Summary{RunID: "run_" + uuid.New().String()[:8]}
	logger := e.logger.With("run", summary.RunID)
	logger.Info("starting deployment", "entities", len(plan), "dry_run", opts.DryRun, "force", opts.Force)

	changed := make(map[string]bool, len(plan))
	for _, name := range plan {
		entity, manager, err := lookup(result, name)
		if err != nil {
			return summary, err
		}

		forced := opts.Force || rollout.ForcedByDependencies(name, result.Graph, changed)
		if opts.DryRun {
			wouldChange, err := manager.Plan(ctx, entity.Object)
			if err != nil {
				return summary, fmt.Errorf("plan %s: %w", name, err)
			}
			wouldChange = wouldChange || forced
			record(summary, changed, name, wouldChange)
			if wouldChange {
				logger.Info("would deploy", "entity", name, "type", entity.Type, "forced", forced)
			} else {
				logger.Debug("unchanged", "entity", name, "type", entity.Type)
			}
			continue
		}

		didChange, err := manager.Apply(ctx, entity.Object, forced)
		if err != nil {
			return summary, fmt.Errorf("apply %s: %w", name, err)
		}
		record(summary, changed, name, didChange)
		if didChange {
			logger.Info("deployed", "entity", name, "type", entity.Type, "forced", forced)
		} else {
			logger.Debug("unchanged", "entity", name, "type", entity.Type)
		}
	}

	logger.Info("deployment finished", "changed", len(summary.Changed), "unchanged", len(summary.Unchanged))
	return summary, nil
}

// Destroy removes the resolved entities in reverse plan order, dependents
// before their dependencies. In a dry run every entity is reported as
// removed without checking the platform.
func (e *Executor) Destroy(ctx context.Context, result *loader.Result, plan []string, opts Options) (*Summary, error) {
	summary := &Summary{RunID: "run_" + uuid.New().String()[:8]}
	logger := e.logger.With("run", summary.RunID)
	logger.Info("starting teardown", "entities", len(plan), "dry_run", opts.DryRun)

	for _, name := range rollout.Reverse(plan) {
		entity, manager, err := lookup(result, name)
		if err != nil {
			return summary, err
		}

		if opts.DryRun {
			summary.Changed = append(summary.Changed, name)
			logger.Info("would remove", "entity", name, "type", entity.Type)
			continue
		}

		removed, err := manager.Remove(ctx, entity.Object)
		if err != nil {
			return summary, fmt.Errorf("remove %s: %w", name, err)
		}
		if removed {
			summary.Changed = append(summary.Changed, name)
			logger.Info("removed", "entity", name, "type", entity.Type)
		} else {
			summary.Unchanged = append(summary.Unchanged, name)
			logger.Debug("not present", "entity", name, "type", entity.Type)
		}
	}

	logger.Info("teardown finished", "removed", len(summary.Changed))
	return summary, nil
}

func lookup(result *loader.Result, name string) (loader.ResolvedEntity, config.Manager, error) {
	entity, ok := result.Entity(name)
	if !ok {
		return loader.ResolvedEntity{}, nil, fmt.Errorf("entity %s not in load result", name)
	}
	manager, ok := result.Manager(entity)
	if !ok {
		return loader.ResolvedEntity{}, nil, fmt.Errorf("no manager for entity %s", name)
	}
	return entity, manager, nil
}

func record(summary *Summary, changed map[string]bool, name string, didChange bool) {
	changed[name] = didChange
	if didChange {
		summary.Changed = append(summary.Changed, name)
	} else {
		summary.Unchanged = append(summary.Unchanged, name)
	}
}
