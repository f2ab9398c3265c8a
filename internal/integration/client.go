package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// OutcomeStatus distinguishes a completed ledger posting from a subledger
// document whose posting is still owed.
type OutcomeStatus string

const (
	OutcomePosted  OutcomeStatus = "POSTED"
	OutcomePending OutcomeStatus = "PENDING_RECONCILIATION"
)

// PostingOutcome is the result of CreateAndPost. A pending outcome always
// comes with the error that caused it and, when recorded, the gap id.
type PostingOutcome struct {
	Status            OutcomeStatus
	EntryID           string
	DocumentReference string
	DocumentNumber    string
	Existing          bool
	GapID             uuid.UUID
}

// Posted reports whether the ledger holds the posting.
func (o PostingOutcome) Posted() bool { return o.Status == OutcomePosted }

// FailureRecorder counts failed ledger postings per source module.
type FailureRecorder interface {
	ObserveIntegrationFailure(sourceModule string)
}

// ResolutionListener is told when a replayed gap reaches the ledger so the
// owning subledger can record the posting against its document.
type ResolutionListener interface {
	GapResolved(ctx context.Context, gap Gap, outcome PostingOutcome) error
}

// Client is the front door subledgers use to post into the ledger. Calls
// borrow a handle from the pool and are bounded by a timeout. A failed
// posting never touches the caller's own transaction; it is logged, counted
// and recorded as a reconciliation gap.
type Client struct {
	pool        *Pool
	gaps        GapStore
	timeout     time.Duration
	maxAttempts int
	metrics     FailureRecorder
	listeners   []ResolutionListener
	logger      *slog.Logger
}

// NewClient constructs the integration client.
func NewClient(pool *Pool, gaps GapStore, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{pool: pool, gaps: gaps, timeout: timeout, maxAttempts: 10, logger: logger}
}

// WithMaxAttempts sets after how many failed attempts a gap stops being
// retried automatically.
func (c *Client) WithMaxAttempts(n int) {
	if n > 0 {
		c.maxAttempts = n
	}
}

// WithMetrics attaches a failure recorder.
func (c *Client) WithMetrics(m FailureRecorder) {
	c.metrics = m
}

// WithResolutionListener registers l to be called after a gap is resolved.
func (c *Client) WithResolutionListener(l ResolutionListener) {
	if l != nil {
		c.listeners = append(c.listeners, l)
	}
}

// CreateAndPost builds a ledger entry from req and posts it immediately.
func (c *Client) CreateAndPost(ctx context.Context, req PostingRequest) (PostingOutcome, error) {
	wire := toCreateRequest(req)
	gap := Gap{
		SourceModule: req.SourceModule,
		SourceID:     req.SourceID,
		SourceNumber: req.SourceNumber,
		CompanyCode:  req.CompanyCode.String(),
	}
	if err := req.Validate(); err != nil {
		return c.fail(ctx, gap, wire, err)
	}
	resp, err := c.send(ctx, wire)
	if err != nil {
		return c.fail(ctx, gap, wire, err)
	}
	c.logger.Info("ledger posting completed",
		slog.String("source_module", req.SourceModule),
		slog.String("source_id", req.SourceID.String()),
		slog.String("document_reference", resp.DocumentReference),
		slog.Bool("existing", resp.Existing))
	return posted(resp), nil
}

// Replay resends the stored request of a gap and resolves it on success.
func (c *Client) Replay(ctx context.Context, gap Gap) (PostingOutcome, error) {
	if gap.Status == GapResolved {
		return PostingOutcome{Status: OutcomePosted, DocumentReference: gap.DocumentReference, Existing: true},
			fmt.Errorf("%w: gap %s already resolved", shared.ErrState, gap.ID)
	}
	var wire journals.CreateRequest
	if err := json.Unmarshal(gap.Payload, &wire); err != nil {
		return PostingOutcome{Status: OutcomePending, GapID: gap.ID},
			fmt.Errorf("integration: gap %s payload: %w", gap.ID, err)
	}
	resp, err := c.send(ctx, wire)
	if err != nil {
		return c.fail(ctx, gap, wire, err)
	}
	outcome := posted(resp)
	outcome.GapID = gap.ID
	// Listeners run before the gap closes; a failure leaves it pending and the
	// next sweep replays it, which the ledger answers from source idempotency.
	for _, l := range c.listeners {
		if err := l.GapResolved(ctx, gap, outcome); err != nil {
			c.logger.Error("apply resolved gap to source document",
				slog.String("gap_id", gap.ID.String()),
				slog.String("source_module", gap.SourceModule),
				slog.String("source_id", gap.SourceID.String()),
				slog.Any("error", err))
			return outcome, err
		}
	}
	if err := c.gaps.MarkResolved(ctx, gap.ID, resp.DocumentReference); err != nil {
		return outcome, err
	}
	c.logger.Info("reconciliation gap resolved",
		slog.String("gap_id", gap.ID.String()),
		slog.String("source_module", gap.SourceModule),
		slog.String("source_id", gap.SourceID.String()),
		slog.String("document_reference", resp.DocumentReference))
	return outcome, nil
}

func (c *Client) send(ctx context.Context, req journals.CreateRequest) (journals.CreateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return journals.CreateResponse{}, err
	}
	defer c.pool.Release(handle)

	resp, err := handle.CreateAndPost(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, shared.ErrInfrastructure) {
		err = fmt.Errorf("%w: ledger call timed out after %s: %v", shared.ErrRemoteUnavailable, c.timeout, err)
	}
	return resp, err
}

// fail records the gap and returns the pending outcome. The gap is written
// with a context detached from the caller's deadline, which may already have
// expired.
func (c *Client) fail(ctx context.Context, gap Gap, wire journals.CreateRequest, cause error) (PostingOutcome, error) {
	outcome := PostingOutcome{Status: OutcomePending, GapID: gap.ID}
	err := fmt.Errorf("integration: ledger posting for %s %s: %w", gap.SourceModule, gap.SourceID, cause)
	c.logger.Warn("ledger posting failed, reconciliation gap left open",
		slog.String("source_module", gap.SourceModule),
		slog.String("source_id", gap.SourceID.String()),
		slog.String("source_number", gap.SourceNumber),
		slog.Any("error", cause))
	if c.metrics != nil {
		c.metrics.ObserveIntegrationFailure(gap.SourceModule)
	}
	if c.gaps == nil || gap.SourceModule == "" || gap.SourceID == uuid.Nil {
		return outcome, err
	}
	payload, mErr := json.Marshal(wire)
	if mErr != nil {
		return outcome, err
	}
	gap.Payload = payload
	gap.LastError = cause.Error()
	gap.Retryable = !errors.Is(cause, shared.ErrValidation) && len(wire.Lines) > 0

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	stored, gErr := c.gaps.RecordFailure(rctx, gap, c.maxAttempts)
	if gErr != nil {
		c.logger.Error("record reconciliation gap",
			slog.String("source_module", gap.SourceModule),
			slog.String("source_id", gap.SourceID.String()),
			slog.Any("error", gErr))
		return outcome, err
	}
	outcome.GapID = stored.ID
	return outcome, err
}

func posted(resp journals.CreateResponse) PostingOutcome {
	return PostingOutcome{
		Status:            OutcomePosted,
		EntryID:           resp.ID,
		DocumentReference: resp.DocumentReference,
		DocumentNumber:    resp.DocumentNumber,
		Existing:          resp.Existing,
	}
}
