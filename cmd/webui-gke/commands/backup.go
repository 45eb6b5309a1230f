package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/webui-gke/cmd/webui-gke/handlers"
)

// Backup returns the backup command and its list subcommand.
func Backup(opts *handlers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the chat database",
		Long: `Backup copies the running application's SQLite database to the bucket,
as a timestamped snapshot and as the latest pointer used by restore.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Backup(cmd.Context(), *opts)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots in the bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.ListBackups(cmd.Context(), *opts)
		},
	})

	return cmd
}

// Restore returns the restore command.
func Restore(opts *handlers.Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the chat database from the latest snapshot",
		Long: `Restore scales the application down, copies the latest snapshot into the
data volume and scales it back up.

An initialised volume is left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Restore(cmd.Context(), handlers.RestoreOptions{Options: *opts, Force: force})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an initialised data volume")

	return cmd
}

// Cert returns the cert command.
func Cert(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "Provision the TLS certificate and publish it to the cluster",
		Long: `Cert resolves the certificate for the configured domain from the bucket,
the local state directory, or by generating a new one, and stores it as the
TLS secret of the application namespace.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cert(cmd.Context(), *opts)
		},
	}
}

// Status returns the status command.
func Status(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recorded resources, the release target and the latest backup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), *opts)
		},
	}
}
