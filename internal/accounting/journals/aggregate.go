package journals

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/balance"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// NewDraft validates the header and returns a zero-line Draft.
func NewDraft(h Header, fp periods.FiscalPeriod, createdBy string, now time.Time) (*JournalEntry, error) {
	if err := validateHeader(h); err != nil {
		return nil, err
	}
	return &JournalEntry{
		Header:       h,
		FiscalYear:   fp.Year,
		FiscalPeriod: fp.Period,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		status:       StatusDraft,
	}, nil
}

func validateHeader(h Header) error {
	switch {
	case h.CompanyCode == "":
		return fmt.Errorf("%w: company code required", shared.ErrInvalidHeader)
	case h.DocumentType == "":
		return fmt.Errorf("%w: document type required", shared.ErrInvalidHeader)
	case h.PostingDate.IsZero():
		return fmt.Errorf("%w: posting date required", shared.ErrInvalidHeader)
	case h.DocumentDate.IsZero():
		return fmt.Errorf("%w: document date required", shared.ErrInvalidHeader)
	case h.Currency.IsZero():
		return fmt.Errorf("%w: currency required", shared.ErrInvalidHeader)
	}
	return nil
}

// WithBalanceMode selects the dimensions checked by IsBalanced and Post.
func (e *JournalEntry) WithBalanceMode(mode balance.Mode) *JournalEntry {
	e.balanceMode = mode
	return e
}

// IsEditable reports whether header and lines may change.
func (e *JournalEntry) IsEditable() bool { return e.status.IsEditable() }

// IsDeletable reports whether the entry may be removed.
func (e *JournalEntry) IsDeletable() bool { return e.status.IsDeletable() }

// CanTransitionTo consults the lifecycle table.
func (e *JournalEntry) CanTransitionTo(target Status) bool { return e.status.CanTransitionTo(target) }

// UpdateHeader replaces header fields while the entry is editable.
func (e *JournalEntry) UpdateHeader(h Header, fp periods.FiscalPeriod, now time.Time) error {
	if !e.IsEditable() {
		return fmt.Errorf("%w: status %s", shared.ErrNotEditable, e.status)
	}
	if err := validateHeader(h); err != nil {
		return err
	}
	for _, l := range e.lines {
		if err := h.Currency.CheckAmount(l.Amount); err != nil {
			return fmt.Errorf("%w: line %d: %v", shared.ErrInvalidLine, l.Number, err)
		}
	}
	e.Header = h
	e.FiscalYear = fp.Year
	e.FiscalPeriod = fp.Period
	e.UpdatedAt = now
	return nil
}

// AddLine appends a line. A zero line number is assigned; any other value
// must be the next contiguous number.
func (e *JournalEntry) AddLine(line Line) error {
	if !e.IsEditable() {
		return fmt.Errorf("%w: status %s", shared.ErrNotEditable, e.status)
	}
	next := len(e.lines) + 1
	normalized, err := normalizeLine(line, next, e.Header.Currency)
	if err != nil {
		return err
	}
	e.lines = append(e.lines, normalized)
	return nil
}

// ReplaceLines swaps the full line set while the entry is editable. Nothing
// changes when any line is invalid.
func (e *JournalEntry) ReplaceLines(lines []Line) error {
	if !e.IsEditable() {
		return fmt.Errorf("%w: status %s", shared.ErrNotEditable, e.status)
	}
	replaced := make([]Line, 0, len(lines))
	for i, line := range lines {
		normalized, err := normalizeLine(line, i+1, e.Header.Currency)
		if err != nil {
			return err
		}
		replaced = append(replaced, normalized)
	}
	e.lines = replaced
	return nil
}

func normalizeLine(line Line, number int, cur money.Currency) (Line, error) {
	if line.Number != 0 && line.Number != number {
		return Line{}, fmt.Errorf("%w: line number %d, expected %d", shared.ErrInvalidLine, line.Number, number)
	}
	line.Number = number
	if line.Account == "" {
		return Line{}, fmt.Errorf("%w: line %d missing account", shared.ErrInvalidLine, number)
	}
	if !line.Indicator.Valid() {
		return Line{}, fmt.Errorf("%w: line %d missing debit/credit indicator", shared.ErrInvalidLine, number)
	}
	if err := cur.CheckAmount(line.Amount); err != nil {
		return Line{}, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidLine, number, err)
	}
	if line.LocalAmount.IsZero() {
		line.LocalAmount = line.Amount
	}
	seen := make(map[money.LedgerCode]bool, len(line.Ledgers))
	for _, la := range line.Ledgers {
		if la.Ledger == "" {
			return Line{}, fmt.Errorf("%w: line %d ledger code required", shared.ErrInvalidLine, number)
		}
		if seen[la.Ledger] {
			return Line{}, fmt.Errorf("%w: line %d duplicate ledger %s", shared.ErrInvalidLine, number, la.Ledger)
		}
		seen[la.Ledger] = true
	}
	if len(line.Ledgers) > 0 {
		line.Ledgers = append([]LedgerAmount(nil), line.Ledgers...)
	}
	return line, nil
}

func (e *JournalEntry) postings() []balance.Posting {
	out := make([]balance.Posting, 0, len(e.lines)*2)
	docDim := balance.DocumentDimension(e.Header.Currency)
	for _, l := range e.lines {
		out = append(out,
			balance.Posting{Dimension: docDim, Indicator: l.Indicator, Amount: l.Amount},
			balance.Posting{Dimension: balance.LocalDimension, Indicator: l.Indicator, Amount: l.LocalAmount},
		)
		if e.balanceMode == balance.ModePerLedger {
			for _, la := range l.Ledgers {
				out = append(out, balance.Posting{Dimension: balance.LedgerDimension(la.Ledger), Indicator: l.Indicator, Amount: la.Amount})
			}
		}
	}
	return out
}

// CheckBalance returns a *balance.ImbalanceError when the lines do not net to zero.
func (e *JournalEntry) CheckBalance() error {
	return balance.Validate(e.postings())
}

// IsBalanced reports whether CheckBalance passes.
func (e *JournalEntry) IsBalanced() bool {
	return e.CheckBalance() == nil
}

// Post freezes the entry under a repository-issued document number.
// A second post fails with ErrAlreadyPosted and mutates nothing.
func (e *JournalEntry) Post(number money.DocumentNumber, postedBy string, at time.Time) error {
	if e.status == StatusPosted {
		return fmt.Errorf("%w: %s", shared.ErrAlreadyPosted, e.documentNumber)
	}
	if len(e.lines) == 0 {
		return shared.ErrNoLines
	}
	if err := e.CheckBalance(); err != nil {
		return err
	}
	if !e.CanTransitionTo(StatusPosted) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, e.status, StatusPosted)
	}
	if number.IsZero() {
		return fmt.Errorf("%w: document number required", shared.ErrValidation)
	}
	e.status = StatusPosted
	e.documentNumber = number
	posted := at
	e.postedAt = &posted
	e.postedBy = postedBy
	e.UpdatedAt = at
	return nil
}

// Transition moves the entry to target for every status change other than
// posting and reversal, which carry their own bookkeeping.
func (e *JournalEntry) Transition(target Status, now time.Time) error {
	if target == StatusPosted || target == StatusReversed {
		return fmt.Errorf("%w: %s requires a dedicated command", shared.ErrInvalidTransition, target)
	}
	if !e.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, e.status, target)
	}
	e.status = target
	e.UpdatedAt = now
	return nil
}

// MarkReversed records the reversal document. Lines are left untouched.
func (e *JournalEntry) MarkReversed(reversal uuid.UUID, now time.Time) error {
	if !e.CanTransitionTo(StatusReversed) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, e.status, StatusReversed)
	}
	e.status = StatusReversed
	e.ReversedBy = uuid.NullUUID{UUID: reversal, Valid: true}
	e.UpdatedAt = now
	return nil
}

// NewReversal builds a Draft that mirrors a posted entry with swapped
// indicators. The caller posts it and marks the original reversed.
func (e *JournalEntry) NewReversal(postingDate time.Time, fp periods.FiscalPeriod, createdBy string, now time.Time) (*JournalEntry, error) {
	if e.status != StatusPosted {
		return nil, fmt.Errorf("%w: only posted entries can be reversed, status %s", shared.ErrInvalidTransition, e.status)
	}
	h := e.Header
	h.DocumentType = money.DocTypeReversal
	h.PostingDate = postingDate
	h.DocumentDate = postingDate
	h.SpecialPeriod = 0
	h.Reference = "Reversal of " + e.DocumentReference()
	rev, err := NewDraft(h, fp, createdBy, now)
	if err != nil {
		return nil, err
	}
	rev.balanceMode = e.balanceMode
	rev.ReversalOf = uuid.NullUUID{UUID: e.ID, Valid: true}
	for _, l := range e.lines {
		l.Indicator = l.Indicator.Opposite()
		l.Number = 0
		l.Clearing = nil
		if err := rev.AddLine(l); err != nil {
			return nil, err
		}
	}
	return rev, nil
}

func itoa(v int) string { return strconv.Itoa(v) }

// Accounts returns the distinct accounts referenced by the lines in first-use order.
func (e *JournalEntry) Accounts() []money.AccountCode {
	seen := make(map[money.AccountCode]bool, len(e.lines))
	var out []money.AccountCode
	for _, l := range e.lines {
		if !seen[l.Account] {
			seen[l.Account] = true
			out = append(out, l.Account)
		}
	}
	return out
}
