package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/webui-gke/cmd/webui-gke/handlers"
)

// Apply returns the command that creates or converges the deployment.
//
// Environment variables:
//
//	PROJECT_ID, DOMAIN_NAME: required unless set in the config file
//	OPENROUTER_API_KEY or OPENROUTER_API_KEY_SECRET: the model provider key
func Apply(opts *handlers.Options) *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the deployment",
		Long: `Create or update Open WebUI on GKE.

Every run is idempotent: resources that already exist are adopted, missing
ones are created and drifted ones are updated. When the run would replace the
cluster or its node pool, the chat database is backed up first. A freshly
created data volume is restored from the latest snapshot before the
application starts.

Examples:
  # Deploy using webui-gke.yaml in the current directory
  webui-gke apply

  # Deploy with a live dashboard
  webui-gke apply --tui

  # Write run metrics for node-exporter
  webui-gke apply --metrics-file /var/lib/node_exporter/webui-gke.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), handlers.ApplyOptions{Options: *opts, TUI: useTUI})
		},
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a live dashboard of the run")

	return cmd
}

// Plan returns the command that shows what apply would change.
func Plan(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Plan runs every apply phase without mutating anything and prints the
actions each phase would take. Phases that need a cluster which does not
exist yet are reported as skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), handlers.ApplyOptions{Options: *opts, DryRun: true})
		},
	}
}
