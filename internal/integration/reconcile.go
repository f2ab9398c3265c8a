package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// releaseLock deletes the sweep lock only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReconcileReport summarises one sweep over pending gaps.
type ReconcileReport struct {
	Attempted int
	Resolved  int
	Pending   int
	Skipped   bool
}

// Reconciler replays pending gaps through the client. Source idempotency on
// the ledger side makes a replay of an already posted document a no-op.
type Reconciler struct {
	client  *Client
	gaps    GapStore
	redis   *redis.Client
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewReconciler constructs a reconciler. A nil redis client disables the
// sweep lock.
func NewReconciler(client *Client, gaps GapStore, rdb *redis.Client, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{client: client, gaps: gaps, redis: rdb, lockTTL: 10 * time.Minute, logger: logger}
}

// Run replays up to batch pending gaps. Overlapping sweeps are skipped.
func (r *Reconciler) Run(ctx context.Context, batch int) (ReconcileReport, error) {
	var report ReconcileReport
	release, ok, err := r.lock(ctx)
	if err != nil {
		return report, err
	}
	if !ok {
		report.Skipped = true
		r.logger.Info("reconciliation sweep already running")
		return report, nil
	}
	defer release()

	if batch <= 0 {
		batch = 100
	}
	gaps, err := r.gaps.ListPending(ctx, batch)
	if err != nil {
		return report, err
	}
	for _, gap := range gaps {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		if _, err := r.client.Replay(ctx, gap); err != nil {
			report.Pending++
			continue
		}
		report.Resolved++
	}
	r.logger.Info("reconciliation sweep finished",
		slog.Int("attempted", report.Attempted),
		slog.Int("resolved", report.Resolved),
		slog.Int("pending", report.Pending))
	return report, nil
}

func (r *Reconciler) lock(ctx context.Context) (func(), bool, error) {
	if r.redis == nil {
		return func() {}, true, nil
	}
	key := platformshared.ReconcileLockKey("")
	token := uuid.NewString()
	ok, err := r.redis.SetNX(ctx, key, token, r.lockTTL).Result()
	if err != nil {
		return nil, false, shared.Infrastructure("integration: reconcile lock", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		ctx := context.WithoutCancel(ctx)
		if err := releaseLock.Run(ctx, r.redis, []string{key}, token).Err(); err != nil {
			r.logger.Warn("release reconcile lock", slog.Any("error", err))
		}
	}, true, nil
}
