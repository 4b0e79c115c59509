package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/stackdeploy/internal/core/graph"
	"github.com/artpar/stackdeploy/internal/shell/deploy"
)

// newValidateCommand creates the "validate" subcommand that resolves the
// document completely without touching the cluster.
func newValidateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the deployment document without touching the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, _, err := loadResult(cmd, opts, false)
			if err != nil {
				return err
			}
			// An unorderable graph is a document error too.
			if _, err := deploy.PlanFor(result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entities, configuration valid\n", opts.File, len(result.Entities))
			return nil
		},
	}
}

// newGraphCommand creates the "graph" subcommand printing the dependency
// graph in Graphviz DOT format.
func newGraphCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph in Graphviz DOT format",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, _, err := loadResult(cmd, opts, false)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.ToDOT(result.Names(), result.Graph))
			return nil
		},
	}
}
