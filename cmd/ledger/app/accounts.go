package app

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/core"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the banks and card issuers that can be linked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printProviders(cmd.OutOrStdout(), core.Providers)
			return nil
		},
	}
}

func printProviders(w io.Writer, providers []core.Provider) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tKIND")
	for _, p := range providers {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Code, p.Name, p.Kind.PathSegment())
	}
	tw.Flush()
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List linked accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			active, _ := cmd.Flags().GetBool("active")
			list := e.coord.ListAccounts
			if active {
				list = e.coord.ListActiveAccounts
			}
			accounts, err := list(cmd.Context())
			if err != nil {
				return err
			}
			printAccounts(cmd.OutOrStdout(), accounts)
			return nil
		},
	}
	cmd.Flags().Bool("active", false, "Only show authorized accounts")
	return cmd
}

func printAccounts(w io.Writer, accounts []core.BankAccount) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No linked accounts.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROVIDER\tKIND\tNUMBER\tSTATUS\tLAST SYNC")
	for _, a := range accounts {
		status := "active"
		if !a.IsActive {
			status = "pending"
		}
		lastSync := "never"
		if a.LastSyncedAt != nil {
			lastSync = a.LastSyncedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.AccountName, a.BankName, a.ConnectionType.PathSegment(), a.AccountNumber, status, lastSync)
	}
	tw.Flush()
}

func parseAccountID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", arg)
	}
	return id, nil
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync ACCOUNT_ID",
		Short: "Import new transactions for a linked account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			kindFlag, _ := cmd.Flags().GetString("kind")
			kind, err := core.ParseConnectionKind(kindFlag)
			if err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			out, err := e.coord.TriggerSync(cmd.Context(), id, kind)
			if err != nil {
				return err
			}
			msg := out.Message
			if msg == "" {
				msg = "sync requested"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %d: %s (%s)\n", id, msg, out.SyncedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("kind", "openbanking", "Connection kind: openbanking or card")
	return cmd
}

func newUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink ACCOUNT_ID",
		Short: "Remove a linked account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.coord.Unlink(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %d unlinked.\n", id)
			return nil
		},
	}
}
