package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// IntegrityChecker scans posted entries.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, filter journals.Filter) (journals.IntegrityReport, error)
}

// IntegrityJob re-checks the ledger. Findings are logged and counted; they do
// not fail the task, since a retry would find the same rows.
type IntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob constructs the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes the check.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := decode(t, &payload); err != nil {
		return err
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("company_code", payload.CompanyCode),
		slog.Int("fiscal_year", payload.FiscalYear),
	)
	report, err := j.Checker.CheckIntegrity(ctx, journals.Filter{
		CompanyCode: money.CompanyCode(payload.CompanyCode),
		FiscalYear:  payload.FiscalYear,
	})
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}

	for _, ref := range report.Unbalanced {
		logger.Error("posted entry does not balance", slog.String("document_reference", ref))
	}
	j.metrics().AddIntegrityFindings("unbalanced", payload.CompanyCode, len(report.Unbalanced))
	for _, ref := range report.LineNumbering {
		logger.Error("posted entry has non-sequential line numbers", slog.String("document_reference", ref))
	}
	j.metrics().AddIntegrityFindings("line_numbering", payload.CompanyCode, len(report.LineNumbering))
	for _, gap := range report.Gaps {
		logger.Error("document number range is not dense",
			slog.String("range_company", gap.CompanyCode.String()),
			slog.Int("range_year", gap.FiscalYear),
			slog.Int64("highest", gap.Highest),
			slog.Any("missing", gap.Missing),
			slog.Any("duplicates", gap.Duplicates),
		)
		j.metrics().AddIntegrityFindings("number_gap", gap.CompanyCode.String(), 1)
	}
	logger.Info("completed integrity check",
		slog.Int("checked", report.Checked),
		slog.Bool("ok", report.OK()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
