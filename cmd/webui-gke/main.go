// Package main is the entry point for the webui-gke CLI.
//
// webui-gke deploys Open WebUI on Google Kubernetes Engine and keeps it
// converged: every run adopts what already exists, creates what is missing
// and backs up the chat database before anything destructive happens.
//
// Commands: apply, plan, destroy, backup, restore, cert, status, version.
//
// For detailed usage information, run:
//
//	webui-gke --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/webui-gke/cmd/webui-gke/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
