package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mailpulse",
		Short:         "mailpulse reports on mailbox volume, domains, keywords and contacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to YAML config file (or set MAILPULSE_CONFIG)")
	root.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	root.AddCommand(
		newVolumeCmd(),
		newDomainsCmd(),
		newKeywordsCmd(),
		newContactsCmd(),
		newServeCmd(),
		newValidateCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
