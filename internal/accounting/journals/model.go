package journals

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/balance"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

// LedgerAmount is a line amount valued under a parallel ledger.
type LedgerAmount struct {
	Ledger money.LedgerCode
	Type   money.LedgerType
	Amount money.Amount
}

// Clearing links a line to the document that cleared it.
type Clearing struct {
	DocumentNumber money.DocumentNumber
	Date           time.Time
}

// Line stores one debit or credit posting of an entry.
type Line struct {
	Number             int
	Account            money.AccountCode
	Indicator          money.Indicator
	Amount             money.Amount
	LocalAmount        money.Amount
	Ledgers            []LedgerAmount
	CostCenter         string
	ProfitCenter       string
	Text               string
	SpecialGLIndicator string
	Clearing           *Clearing
}

// Header carries the fields shared by every line of an entry.
type Header struct {
	CompanyCode   money.CompanyCode
	DocumentType  money.DocumentType
	DocumentDate  time.Time
	PostingDate   time.Time
	Currency      money.Currency
	Reference     string
	TenantID      uuid.NullUUID
	SpecialPeriod int
}

// Source identifies the subledger document an entry was created for.
type Source struct {
	Module string
	ID     uuid.UUID
}

// IsZero reports whether no source was supplied.
func (s Source) IsZero() bool { return s.Module == "" && s.ID == uuid.Nil }

// JournalEntry is the aggregate root. Status, lines and the document number
// only change through aggregate methods.
type JournalEntry struct {
	ID           uuid.UUID
	Header       Header
	FiscalYear   int
	FiscalPeriod int
	Source       Source
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    string
	ReversalOf   uuid.NullUUID
	ReversedBy   uuid.NullUUID

	status         Status
	documentNumber money.DocumentNumber
	postedAt       *time.Time
	postedBy       string
	lines          []Line
	balanceMode    balance.Mode
}

// Status returns the lifecycle status.
func (e *JournalEntry) Status() Status { return e.status }

// DocumentNumber is empty until the entry is posted.
func (e *JournalEntry) DocumentNumber() money.DocumentNumber { return e.documentNumber }

// PostedAt is nil until the entry is posted.
func (e *JournalEntry) PostedAt() *time.Time {
	if e.postedAt == nil {
		return nil
	}
	at := *e.postedAt
	return &at
}

// PostedBy names the actor that posted the entry.
func (e *JournalEntry) PostedBy() string { return e.postedBy }

// Lines returns a copy of the ordered line items.
func (e *JournalEntry) Lines() []Line {
	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// LineCount returns the number of line items.
func (e *JournalEntry) LineCount() int { return len(e.lines) }

// DocumentReference combines company, number and year (e.g. CN01/0000000001/2024).
func (e *JournalEntry) DocumentReference() string {
	if e.documentNumber.IsZero() {
		return ""
	}
	return e.Header.CompanyCode.String() + "/" + e.documentNumber.String() + "/" + itoa(e.FiscalYear)
}
