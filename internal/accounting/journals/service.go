package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/balance"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// AccountChecker validates every account of an entry against the chart of
// accounts. It must fail the whole entry when any account is invalid.
type AccountChecker interface {
	ValidateEntryAccounts(ctx context.Context, company money.CompanyCode, postingDate time.Time, accounts []money.AccountCode) error
}

// PostingRecorder counts posting outcomes.
type PostingRecorder interface {
	ObservePosting(outcome string)
}

// CreateCommand carries a new entry. TestRun validates without persisting.
type CreateCommand struct {
	Header          Header
	Lines           []Line
	Source          Source
	TestRun         bool
	PostImmediately bool
}

// CreateResult reports the entry and whether it already existed for the source.
type CreateResult struct {
	Entry    *JournalEntry
	Existing bool
	TestRun  bool
}

// UpdateCommand replaces header and lines of an editable entry. A nil header
// keeps the current one.
type UpdateCommand struct {
	Header *Header
	Lines  []Line
}

// ListQuery selects a page of entries.
type ListQuery struct {
	Filter   Filter
	Page     int
	PageSize int
}

// Service coordinates the journal lifecycle.
type Service struct {
	repo     Repository
	resolver periods.Resolver
	audit    AuditPort
	accounts AccountChecker
	metrics  PostingRecorder
	logger   *slog.Logger
	mode     balance.Mode
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, resolver periods.Resolver, audit AuditPort, logger *slog.Logger) *Service {
	if resolver == nil {
		resolver = periods.CalendarResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		audit:    audit,
		logger:   logger,
		mode:     balance.ModeDocument,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithAccountChecker enables chart of accounts validation.
func (s *Service) WithAccountChecker(checker AccountChecker) {
	s.accounts = checker
}

// WithBalanceMode selects the balance dimensions.
func (s *Service) WithBalanceMode(mode balance.Mode) {
	s.mode = mode
}

// WithMetrics enables posting counters.
func (s *Service) WithMetrics(m PostingRecorder) {
	s.metrics = m
}

// Create builds a Draft, optionally posting it in the same transaction.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (CreateResult, error) {
	actor := platformshared.ActorFromContext(ctx)
	fp, err := s.resolver.Resolve(cmd.Header.PostingDate, cmd.Header.SpecialPeriod)
	if err != nil {
		return CreateResult{}, err
	}
	entry, err := NewDraft(cmd.Header, fp, actor, s.now())
	if err != nil {
		return CreateResult{}, err
	}
	entry.WithBalanceMode(s.mode)
	entry.Source = cmd.Source
	if err := entry.ReplaceLines(cmd.Lines); err != nil {
		return CreateResult{}, err
	}
	if err := s.validate(ctx, entry); err != nil {
		s.observe("rejected")
		return CreateResult{}, err
	}
	if cmd.TestRun {
		return CreateResult{Entry: entry, TestRun: true}, nil
	}

	var existing *JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if !cmd.Source.IsZero() {
			found, err := tx.FindBySource(ctx, cmd.Source)
			switch {
			case err == nil:
				existing = found
				return nil
			case !errors.Is(err, shared.ErrJournalNotFound):
				return err
			}
		}
		if cmd.PostImmediately {
			if err := s.postInTx(ctx, tx, entry, actor); err != nil {
				return err
			}
		} else if err := tx.Save(ctx, entry); err != nil {
			return err
		}
		if !cmd.Source.IsZero() {
			return tx.LinkSource(ctx, cmd.Source, entry.ID)
		}
		return nil
	})
	if errors.Is(err, shared.ErrSourceAlreadyLinked) {
		// lost a race with a concurrent create for the same source
		found, findErr := s.repo.FindBySource(ctx, cmd.Source)
		if findErr != nil {
			return CreateResult{}, findErr
		}
		existing, err = found, nil
	}
	if err != nil {
		s.observe("failed")
		return CreateResult{}, err
	}
	if existing != nil {
		s.logger.Info("journal already exists for source",
			slog.String("source_module", cmd.Source.Module),
			slog.String("source_id", cmd.Source.ID.String()),
			slog.String("journal_id", existing.ID.String()))
		return CreateResult{Entry: existing, Existing: true}, nil
	}
	action := "journal.create"
	if entry.Status() == StatusPosted {
		action = "journal.post"
		s.observe("posted")
	}
	s.record(ctx, action, entry, map[string]any{
		"source_module": cmd.Source.Module,
		"source_id":     cmd.Source.ID.String(),
	})
	return CreateResult{Entry: entry}, nil
}

// Post posts an existing entry. Posting an already posted entry fails with
// ErrAlreadyPosted.
func (s *Service) Post(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	actor := platformshared.ActorFromContext(ctx)
	var entry *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.WithBalanceMode(s.mode)
		if current.Status() == StatusPosted {
			return fmt.Errorf("%w: %s", shared.ErrAlreadyPosted, current.DocumentReference())
		}
		if err := s.validate(ctx, current); err != nil {
			return err
		}
		if err := s.postInTx(ctx, tx, current, actor); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		s.observe("failed")
		return nil, err
	}
	s.observe("posted")
	s.record(ctx, "journal.post", entry, nil)
	return entry, nil
}

// postInTx checks period and status before consuming a document number, so
// rejected posts never reserve numbers.
func (s *Service) postInTx(ctx context.Context, tx TxRepository, entry *JournalEntry, actor string) error {
	if len(entry.lines) == 0 {
		return shared.ErrNoLines
	}
	if err := entry.CheckBalance(); err != nil {
		return err
	}
	if !entry.CanTransitionTo(StatusPosted) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, entry.Status(), StatusPosted)
	}
	if err := ensureOpen(ctx, tx, entry); err != nil {
		return err
	}
	number, err := tx.NextDocumentNumber(ctx, entry.Header.CompanyCode, entry.FiscalYear)
	if err != nil {
		return err
	}
	if err := entry.Post(number, actor, s.now()); err != nil {
		return err
	}
	if err := tx.Save(ctx, entry); err != nil {
		return err
	}
	s.logger.Info("journal posted",
		slog.String("journal_id", entry.ID.String()),
		slog.String("document_number", number.String()),
		slog.String("company_code", entry.Header.CompanyCode.String()),
		slog.Int("fiscal_year", entry.FiscalYear))
	return nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry.WithBalanceMode(s.mode), nil
}

// GetBySource returns the entry linked to a subledger document.
func (s *Service) GetBySource(ctx context.Context, src Source) (*JournalEntry, error) {
	entry, err := s.repo.FindBySource(ctx, src)
	if err != nil {
		return nil, err
	}
	return entry.WithBalanceMode(s.mode), nil
}

// List returns a page of entries and pagination metadata.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*JournalEntry, platformshared.Pagination, error) {
	total, err := s.repo.Count(ctx, q.Filter)
	if err != nil {
		return nil, platformshared.Pagination{}, err
	}
	page := platformshared.NewPagination(q.Page, q.PageSize, total)
	entries, err := s.repo.Search(ctx, q.Filter, page)
	if err != nil {
		return nil, platformshared.Pagination{}, err
	}
	for _, e := range entries {
		e.WithBalanceMode(s.mode)
	}
	return entries, page, nil
}

// Update replaces header and lines of an editable entry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*JournalEntry, error) {
	var entry *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.WithBalanceMode(s.mode)
		if !current.IsEditable() {
			return fmt.Errorf("%w: status %s", shared.ErrNotEditable, current.Status())
		}
		now := s.now()
		if cmd.Header != nil {
			fp, err := s.resolver.Resolve(cmd.Header.PostingDate, cmd.Header.SpecialPeriod)
			if err != nil {
				return err
			}
			// Lines are replaced wholesale below; drop the old set so a
			// currency change is only checked against the new lines.
			if err := current.ReplaceLines(nil); err != nil {
				return err
			}
			if err := current.UpdateHeader(*cmd.Header, fp, now); err != nil {
				return err
			}
		}
		if err := current.ReplaceLines(cmd.Lines); err != nil {
			return err
		}
		current.UpdatedAt = now
		if err := s.validate(ctx, current); err != nil {
			return err
		}
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "journal.update", entry, map[string]any{"lines": entry.LineCount()})
	return entry, nil
}

// Park moves a Draft to Parked.
func (s *Service) Park(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.transition(ctx, id, StatusParked, "journal.park")
}

// Submit sends a Draft for approval.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.transition(ctx, id, StatusPendingApproval, "journal.submit")
}

// Approve approves an entry pending approval.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.transition(ctx, id, StatusApproved, "journal.approve")
}

// Reject returns a parked, pending or approved entry to Draft.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.transition(ctx, id, StatusDraft, "journal.reject")
}

// Cancel cancels an entry that has not been posted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return s.transition(ctx, id, StatusCancelled, "journal.cancel")
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target Status, action string) (*JournalEntry, error) {
	var entry *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Transition(target, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, current); err != nil {
			return err
		}
		entry = current.WithBalanceMode(s.mode)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, action, entry, map[string]any{"status": string(target)})
	return entry, nil
}

// Delete removes a Draft or Cancelled entry with its lines.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsDeletable() {
			return fmt.Errorf("%w: status %s", shared.ErrNotDeletable, current.Status())
		}
		deleted = current
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "journal.delete", deleted, nil)
	return nil
}

// ReverseCommand optionally overrides the reversal posting date.
type ReverseCommand struct {
	PostingDate *time.Time
}

// Reverse posts a mirror entry and marks the original Reversed. The
// original's lines are never modified.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID, cmd ReverseCommand) (*JournalEntry, error) {
	actor := platformshared.ActorFromContext(ctx)
	var reversal, original *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.WithBalanceMode(s.mode)
		if !current.CanTransitionTo(StatusReversed) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, current.Status(), StatusReversed)
		}
		postingDate := current.Header.PostingDate
		if cmd.PostingDate != nil {
			postingDate = *cmd.PostingDate
		}
		fp, err := s.resolver.Resolve(postingDate, 0)
		if err != nil {
			return err
		}
		now := s.now()
		rev, err := current.NewReversal(postingDate, fp, actor, now)
		if err != nil {
			return err
		}
		if err := s.postInTx(ctx, tx, rev, actor); err != nil {
			return err
		}
		if err := current.MarkReversed(rev.ID, now); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, current); err != nil {
			return err
		}
		reversal, original = rev, current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe("reversed")
	s.record(ctx, "journal.reverse", original, map[string]any{
		"reversal_id":     reversal.ID.String(),
		"document_number": reversal.DocumentNumber().String(),
	})
	return reversal, nil
}

func (s *Service) validate(ctx context.Context, entry *JournalEntry) error {
	if err := entry.CheckBalance(); err != nil {
		return err
	}
	if s.accounts == nil || entry.LineCount() == 0 {
		return nil
	}
	return s.accounts.ValidateEntryAccounts(ctx, entry.Header.CompanyCode, entry.Header.PostingDate, entry.Accounts())
}

// ensureOpen reads the period control under a share lock so a concurrent
// lock or close waits for the posting transaction to finish.
func ensureOpen(ctx context.Context, tx TxRepository, entry *JournalEntry) error {
	fp := periods.FiscalPeriod{Year: entry.FiscalYear, Period: entry.FiscalPeriod}
	status, err := tx.LockPeriod(ctx, entry.Header.CompanyCode, fp)
	if err != nil {
		return err
	}
	return periods.CheckPostable(entry.Header.CompanyCode.String(), fp, status)
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(outcome)
	}
}

func (s *Service) record(ctx context.Context, action string, entry *JournalEntry, meta map[string]any) {
	if s.audit == nil || entry == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(entry.Status())
	if !entry.DocumentNumber().IsZero() {
		meta["document_number"] = entry.DocumentNumber().String()
	}
	if err := s.audit.Record(ctx, platformshared.AuditLog{
		Actor:    platformshared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entry.ID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
