// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/webui-gke/cmd/webui-gke/handlers"
)

// Root returns the root command for the webui-gke CLI.
//
// The root command carries the flags every subcommand shares: the config
// file, verbosity, log format and the metrics textfile.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "webui-gke",
		Short:         "Deploy Open WebUI on Google Kubernetes Engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: webui-gke.yaml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format: console or json (default: console on a terminal)")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this textfile")

	// Core commands
	cmd.AddCommand(Apply(opts))
	cmd.AddCommand(Plan(opts))
	cmd.AddCommand(Destroy(opts))
	cmd.AddCommand(Status(opts))

	// Data and certificate commands
	cmd.AddCommand(Backup(opts))
	cmd.AddCommand(Restore(opts))
	cmd.AddCommand(Cert(opts))

	cmd.AddCommand(Version())

	return cmd
}
