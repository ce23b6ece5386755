// Command ldimport runs the linked-document import agent: it drains the import
// queue, transforms exported CSV files and drives the remote import service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ldimport",
		Short:         "Linked-document import agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml or ./config/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newRunOnceCmd(),
		newEnqueueCmd(),
		newMigrateCmd(),
		newStatusCmd(),
		newStaleCmd(),
		newSecretCmd(),
		newTokenCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
