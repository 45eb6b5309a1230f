package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/webui-gke/cmd/webui-gke/handlers"
)

// Destroy returns the destroy command.
//
// The destroy command removes the application, the cluster platform and the
// cluster in reverse order of creation. Persistent-protected resources stay.
func Destroy(opts *handlers.Options) *cobra.Command {
	var (
		dryRun   bool
		yes      bool
		override bool
		noBackup bool
		keys     []string
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the deployment",
		Long: `Destroy removes what apply created:
  - the Open WebUI release, its data volume and API key secret
  - the ingress-nginx and cert-manager releases
  - the GKE node pool and cluster

The database is backed up to the bucket first. The static IP and the backup
bucket are persistent-protected and kept unless --override-protection is set.

Examples:
  webui-gke destroy
  webui-gke destroy --resource helm-release/open-webui-cluster/open-webui/open-webui
  webui-gke destroy --override-protection --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), handlers.DestroyOptions{
				Options:            *opts,
				DryRun:             dryRun,
				Yes:                yes,
				OverrideProtection: override,
				SkipBackup:         noBackup,
				Keys:               keys,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be destroyed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&override, "override-protection", false, "Also destroy the static IP and the backup bucket")
	cmd.Flags().BoolVar(&noBackup, "skip-backup", false, "Do not back up the database first")
	cmd.Flags().StringSliceVar(&keys, "resource", nil, "Destroy only these tracked resource keys (repeatable)")

	return cmd
}
