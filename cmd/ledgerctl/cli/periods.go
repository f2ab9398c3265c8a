package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
)

func newPeriodsCommand(backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Control posting periods",
	}
	cmd.AddCommand(
		periodStatusCommand(backend, "open", periods.PeriodStatusOpen),
		periodStatusCommand(backend, "close", periods.PeriodStatusClosed),
		periodStatusCommand(backend, "lock", periods.PeriodStatusLocked),
		&cobra.Command{
			Use:   "list <company> <year>",
			Short: "List period controls of a fiscal year",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				company, err := money.ParseCompanyCode(args[0])
				if err != nil {
					return err
				}
				year, err := parseInt("year", args[1])
				if err != nil {
					return err
				}
				control, err := backend.Periods(cmd.Context())
				if err != nil {
					return err
				}
				rows, err := control.List(cmd.Context(), company.String(), year)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no period controls for %s %d; all periods open\n", company, year)
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PERIOD\tSTATUS\tUPDATED")
				for _, row := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\n",
						periods.FiscalPeriod{Year: row.FiscalYear, Period: row.Period},
						row.Status, row.UpdatedAt.UTC().Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			},
		},
	)
	return cmd
}

func periodStatusCommand(backend Backend, verb string, status periods.PeriodStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <company> <year> <period>",
		Short: fmt.Sprintf("Mark a period %s", status),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := money.ParseCompanyCode(args[0])
			if err != nil {
				return err
			}
			year, err := parseInt("year", args[1])
			if err != nil {
				return err
			}
			period, err := parseInt("period", args[2])
			if err != nil {
				return err
			}
			if period < 1 || period > 16 {
				return fmt.Errorf("period must be between 1 and 16, got %d", period)
			}
			control, err := backend.Periods(cmd.Context())
			if err != nil {
				return err
			}
			fp := periods.FiscalPeriod{Year: year, Period: period}
			saved, err := control.SetStatus(cmd.Context(), company.String(), fp, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", saved.CompanyCode, fp, saved.Status)
			return nil
		},
	}
}
