package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link ACCOUNT_NAME",
		Short: "Link a bank or card account",
		Long: `Registers a provisional account, opens the provider's authorization page and
waits until the provider reports success or failure, the window is closed, or the
deadline passes.`,
		Example: `  ledger link "Salary" --provider "Shinhan Bank"
  ledger link "Groceries" --code 004 --kind card`,
		Args: cobra.ExactArgs(1),
		RunE: runLink,
	}
	cmd.Flags().String("provider", "", "Provider display name (see 'ledger providers')")
	cmd.Flags().String("code", "", "Provider code, used with --kind")
	cmd.Flags().String("kind", "openbanking", "Connection kind for --code: openbanking or card")
	return cmd
}

func resolveProvider(cmd *cobra.Command) (core.Provider, error) {
	name, _ := cmd.Flags().GetString("provider")
	code, _ := cmd.Flags().GetString("code")
	kindFlag, _ := cmd.Flags().GetString("kind")

	switch {
	case name != "" && code != "":
		return core.Provider{}, errors.New("use either --provider or --code, not both")
	case name != "":
		return core.FindProviderByName(name)
	case code != "":
		kind, err := core.ParseConnectionKind(kindFlag)
		if err != nil {
			return core.Provider{}, err
		}
		return core.FindProvider(code, kind)
	}
	return core.Provider{}, errors.New("a provider is required: pass --provider or --code")
}

func runLink(cmd *cobra.Command, args []string) error {
	provider, err := resolveProvider(cmd)
	if err != nil {
		return err
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := cli.GracefulShutdown(e.logger, 5*time.Second, nil)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, linkPrompt(provider, e.cfg.LinkDeadline, e.cfg.Surface))

	outcome, err := e.coord.BeginLink(ctx, core.LinkInput{AccountName: args[0], Provider: provider})
	if err != nil {
		return fmt.Errorf("link %q: %w", args[0], err)
	}

	switch outcome.State {
	case core.Succeeded:
		fmt.Fprintf(out, "Account %q linked (id %d).\n", args[0], outcome.AccountID)
		return nil
	case core.Failed:
		return fmt.Errorf("authorization failed: %s", outcome.Reason)
	case core.TimedOut:
		return errors.New("authorization timed out, please try again")
	case core.Cancelled:
		return errors.New("authorization cancelled")
	}
	return fmt.Errorf("unexpected outcome %s", outcome)
}

// linkPrompt tells the user how to finish or abandon the attempt. A page opened
// in the system browser cannot be watched, so closing its tab is not noticed.
func linkPrompt(provider core.Provider, deadline time.Duration, surface string) string {
	if surface == config.SurfaceCommand {
		return fmt.Sprintf("Opening authorization for %s. Complete it within %s, or close the window to cancel.",
			provider.Name, deadline)
	}
	return fmt.Sprintf("Opening authorization for %s in your browser. Complete it within %s. "+
		"Closing the tab is not detected; press Ctrl+C to cancel.", provider.Name, deadline)
}
