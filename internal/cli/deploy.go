package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/modules"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
	"github.com/artpar/stackdeploy/internal/shell/deploy"
	"github.com/artpar/stackdeploy/internal/shell/loader"
)

// loadResult resolves the deployment document with the built-in modules.
// Commands that never talk to the platform load with an unchecked client so
// a document can be validated without a configured cluster.
func loadResult(cmd *cobra.Command, opts *Options, requireCluster bool) (*loader.Result, *slog.Logger, error) {
	logger := LoggerFromContext(cmd.Context())

	vars, err := collectVariables(opts.EnvFiles, opts.Vars)
	if err != nil {
		return nil, nil, err
	}

	var client *cluster.Client
	if requireCluster {
		client, err = clusterClient(opts.Settings, logger)
		if err != nil {
			return nil, nil, err
		}
	} else {
		client = cluster.NewClient(cluster.Config{
			BaseURL:               opts.Settings.Cluster.URL,
			Token:                 opts.Settings.Cluster.Token,
			Timeout:               opts.Settings.Cluster.Timeout,
			InsecureSkipTLSVerify: opts.Settings.Cluster.Insecure,
		}, logger)
	}

	registry := config.NewRegistry(modules.Builtin(client, logger)...)
	result, err := loader.New(registry, logger).Load(opts.File, vars)
	if err != nil {
		return nil, nil, err
	}
	return result, logger, nil
}

// newApplyCommand creates the "apply" subcommand that converges the cluster
// toward the deployment document.
func newApplyCommand(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the cluster toward the deployment document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, logger, err := loadResult(cmd, opts, true)
			if err != nil {
				return err
			}
			plan, err := deploy.PlanFor(result)
			if err != nil {
				return err
			}

			summary, err := deploy.NewExecutor(logger).Apply(cmd.Context(), result, plan, deploy.Options{Force: force})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d changed, %d unchanged\n", len(summary.Changed), len(summary.Unchanged))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Deploy every entity even without detected changes")

	return cmd
}

// newPlanCommand creates the "plan" subcommand, a dry run of apply.
func newPlanCommand(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change without changing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, logger, err := loadResult(cmd, opts, true)
			if err != nil {
				return err
			}
			plan, err := deploy.PlanFor(result)
			if err != nil {
				return err
			}

			summary, err := deploy.NewExecutor(logger).Apply(cmd.Context(), result, plan, deploy.Options{DryRun: true, Force: force})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range summary.Changed {
				fmt.Fprintf(out, "would deploy %s\n", name)
			}
			fmt.Fprintf(out, "%d to deploy, %d unchanged\n", len(summary.Changed), len(summary.Unchanged))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Plan as if every entity were force-deployed")

	return cmd
}

// newDestroyCommand creates the "destroy" subcommand that removes every
// entity of the document from the cluster, dependents first.
func newDestroyCommand(opts *Options) *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove every entity of the deployment document from the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !dryRun {
				return errors.New("refusing to destroy without --yes")
			}

			result, logger, err := loadResult(cmd, opts, true)
			if err != nil {
				return err
			}
			plan, err := deploy.PlanFor(result)
			if err != nil {
				return err
			}

			summary, err := deploy.NewExecutor(logger).Destroy(cmd.Context(), result, plan, deploy.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				for _, name := range summary.Changed {
					fmt.Fprintf(out, "would remove %s\n", name)
				}
				fmt.Fprintf(out, "%d to remove\n", len(summary.Changed))
				return nil
			}
			fmt.Fprintf(out, "%d removed, %d not present\n", len(summary.Changed), len(summary.Unchanged))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the teardown")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed without removing anything")

	return cmd
}
