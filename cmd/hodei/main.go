// Command hodei is the orchestrator daemon: it wires every pkg/ subsystem
// (storage, scheduling, quotas, the worker wire protocol, provisioning)
// into a single running process started by its "serve" subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hodei/orchestrator/pkg/config"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hodei",
	Short:   "Hodei - distributed job execution orchestrator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hodei version %s\ncommit: %s\n", Version, Commit))
	config.BindFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)
}
