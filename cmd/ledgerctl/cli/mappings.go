package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

func newMappingsCommand(backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage subledger account mappings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "set <company> <module> <key> <account>",
			Short:   "Create or replace a mapping",
			Example: "  ledgerctl mappings set CN01 AP ap.invoice.expense 600000",
			Args:    cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				company, err := money.ParseCompanyCode(args[0])
				if err != nil {
					return err
				}
				account, err := money.ParseAccountCode(args[3])
				if err != nil {
					return err
				}
				store, err := backend.Mappings(cmd.Context())
				if err != nil {
					return err
				}
				mapping := mappings.AccountMapping{
					Module:      strings.ToUpper(args[1]),
					Key:         args[2],
					CompanyCode: company,
					Account:     account,
				}
				if err := store.Upsert(cmd.Context(), mapping); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s -> %s\n", company, mapping.Module, mapping.Key, account)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <company> <module> <key>",
			Short: "Show the account a mapping resolves to",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				company, err := money.ParseCompanyCode(args[0])
				if err != nil {
					return err
				}
				store, err := backend.Mappings(cmd.Context())
				if err != nil {
					return err
				}
				mapping, err := store.Get(cmd.Context(), company, strings.ToUpper(args[1]), args[2])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mapping.Account)
				return nil
			},
		},
	)
	return cmd
}
