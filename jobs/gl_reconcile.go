package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// GapReconciler replays pending reconciliation gaps.
type GapReconciler interface {
	Run(ctx context.Context, batch int) (integration.ReconcileReport, error)
}

// ReconcileJob drives the periodic reconciliation sweep.
type ReconcileJob struct {
	Reconciler GapReconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	Batch      int
}

// NewReconcileJob constructs the reconcile handler.
func NewReconcileJob(reconciler GapReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics, Batch: 100}
}

// Handle executes one sweep.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	payload := ReconcilePayload{Batch: j.Batch}
	if err := decode(t, &payload); err != nil {
		return err
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskGLReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch", payload.Batch))
	report, err := j.Reconciler.Run(ctx, payload.Batch)
	if err != nil {
		logger.Error("reconciliation sweep failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddReconciled("resolved", report.Resolved)
	j.metrics().AddReconciled("pending", report.Pending)
	logger.Info("completed reconciliation sweep",
		slog.Bool("skipped", report.Skipped),
		slog.Int("attempted", report.Attempted),
		slog.Int("resolved", report.Resolved),
		slog.Int("pending", report.Pending),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLReconcile))
	}
	return slog.Default().With(slog.String("job", TaskGLReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
