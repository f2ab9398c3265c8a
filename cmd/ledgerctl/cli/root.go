package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/jobs"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
}

// PeriodControl changes and lists period control rows.
type PeriodControl interface {
	SetStatus(ctx context.Context, companyCode string, fp periods.FiscalPeriod, status periods.PeriodStatus) (periods.Control, error)
	List(ctx context.Context, companyCode string, fiscalYear int) ([]periods.Control, error)
}

// MappingStore reads and writes subledger account mappings.
type MappingStore interface {
	Get(ctx context.Context, company money.CompanyCode, module, key string) (mappings.AccountMapping, error)
	Upsert(ctx context.Context, mapping mappings.AccountMapping) error
}

// JobQueue enqueues ledger jobs and reports queue state.
type JobQueue interface {
	EnqueueReconcile(ctx context.Context, batch int) (*asynq.TaskInfo, error)
	EnqueueIntegrity(ctx context.Context, payload jobs.IntegrityPayload) (*asynq.TaskInfo, error)
	InspectQueue(queue string) (jobs.QueueStats, error)
}

// Backend opens the resources a command needs. Implementations connect
// lazily so that commands only touch the stores they use.
type Backend interface {
	Migrator(ctx context.Context) (Migrator, error)
	Periods(ctx context.Context) (PeriodControl, error)
	Mappings(ctx context.Context) (MappingStore, error)
	Jobs(ctx context.Context) (JobQueue, error)
}

// NewRootCommand assembles the ledgerctl command tree.
func NewRootCommand(backend Backend) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the Odyssey general ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCommand(backend),
		newPeriodsCommand(backend),
		newMappingsCommand(backend),
		newJobsCommand(backend),
	)
	return root
}

func parseInt(name, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return v, nil
}
