// Package app holds the command tree of the ledger client.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/version"
)

// NewRootCmd builds the ledger command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "ledger",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Household ledger account linking client",
		Long: `ledger links bank and card accounts to the household ledger through the
provider's authorization page, and triggers transaction imports for linked accounts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().Bool("dry-run", false, "Use an in-memory Ledger API instead of the configured server")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		newLinkCmd(),
		newProvidersCmd(),
		newAccountsCmd(),
		newSyncCmd(),
		newUnlinkCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "json" {
				b, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("format version info: %w", err)
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			fmt.Fprintf(out, "ledger %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
