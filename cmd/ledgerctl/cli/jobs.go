package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/jobs"
)

// JobsCLI wraps manual management helpers for the ledger queue.
type JobsCLI struct {
	*jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{Client: client, inspector: asynq.NewInspector(opts)}, nil
}

// InspectQueue reports the counters of queue.
func (c *JobsCLI) InspectQueue(queue string) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueue(c.inspector, queue)
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.Client.Close())
}

func newJobsCommand(backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var batch int
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Enqueue a reconciliation sweep over pending gaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := backend.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			info, err := queue.EnqueueReconcile(cmd.Context(), batch)
			if errors.Is(err, asynq.ErrDuplicateTask) {
				fmt.Fprintln(cmd.OutOrStdout(), "a reconciliation sweep is already queued")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.Type, info.ID)
			return nil
		},
	}
	reconcile.Flags().IntVar(&batch, "batch", 100, "gaps replayed per sweep")

	var company string
	var year int
	integrity := &cobra.Command{
		Use:   "integrity",
		Short: "Enqueue a ledger integrity check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := jobs.IntegrityPayload{FiscalYear: year}
			if company != "" {
				code, err := money.ParseCompanyCode(company)
				if err != nil {
					return err
				}
				payload.CompanyCode = code.String()
			}
			queue, err := backend.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			info, err := queue.EnqueueIntegrity(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.Type, info.ID)
			return nil
		},
	}
	integrity.Flags().StringVar(&company, "company", "", "limit the check to one company code")
	integrity.Flags().IntVar(&year, "year", 0, "limit the check to one fiscal year")

	var queueName string
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print queue counters as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := backend.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := queue.InspectQueue(queueName)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	inspect.Flags().StringVar(&queueName, "queue", jobs.QueueDefault, "queue to inspect")

	cmd.AddCommand(reconcile, integrity, inspect)
	return cmd
}
