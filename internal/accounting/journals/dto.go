package journals

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// LedgerAmountRequest values a line in a parallel ledger.
type LedgerAmountRequest struct {
	Ledger string `json:"ledger" validate:"required,max=2,alphanum"`
	Type   string `json:"ledger_type" validate:"omitempty,oneof=LEADING EXTENSION STANDARD"`
	Amount string `json:"amount" validate:"required"`
}

// LineRequest is one line item on the wire.
type LineRequest struct {
	Account            string                `json:"account" validate:"required,max=10,alphanum"`
	DebitCredit        string                `json:"debit_credit" validate:"required"`
	Amount             string                `json:"amount" validate:"required"`
	LocalAmount        string                `json:"local_amount,omitempty"`
	Ledgers            []LedgerAmountRequest `json:"ledgers,omitempty" validate:"dive"`
	CostCenter         string                `json:"cost_center,omitempty" validate:"max=10"`
	ProfitCenter       string                `json:"profit_center,omitempty" validate:"max=10"`
	Text               string                `json:"text,omitempty" validate:"max=50"`
	SpecialGLIndicator string                `json:"special_gl_indicator,omitempty" validate:"max=1"`
}

// HeaderRequest is the entry header on the wire.
type HeaderRequest struct {
	CompanyCode   string `json:"company_code" validate:"required,len=4,alphanum"`
	DocumentType  string `json:"document_type,omitempty" validate:"omitempty,len=2,alphanum"`
	DocumentDate  string `json:"document_date" validate:"required,datetime=2006-01-02"`
	PostingDate   string `json:"posting_date" validate:"required,datetime=2006-01-02"`
	Currency      string `json:"currency" validate:"required,len=3"`
	Reference     string `json:"reference,omitempty" validate:"max=64"`
	TenantID      string `json:"tenant_id,omitempty" validate:"omitempty,uuid"`
	SpecialPeriod int    `json:"special_period,omitempty" validate:"gte=0,lte=16"`
}

// CreateRequest mirrors CreateJournalEntry.
type CreateRequest struct {
	Header          HeaderRequest `json:"header"`
	Lines           []LineRequest `json:"lines" validate:"dive"`
	TestRun         bool          `json:"test_run"`
	PostImmediately bool          `json:"post_immediately"`
	SourceModule    string        `json:"source_module,omitempty" validate:"required_with=SourceID,max=20"`
	SourceID        string        `json:"source_id,omitempty" validate:"required_with=SourceModule,omitempty,uuid"`
}

// UpdateRequest replaces lines and optionally the header.
type UpdateRequest struct {
	Header *HeaderRequest `json:"header,omitempty"`
	Lines  []LineRequest  `json:"lines" validate:"dive"`
}

// ReverseRequest optionally overrides the reversal posting date.
type ReverseRequest struct {
	PostingDate string `json:"posting_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

var validate = validator.New()

// ValidateStruct runs tag validation and classifies failures as validation errors.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", shared.ErrValidation, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

// ToCommand converts the request into value objects.
func (req CreateRequest) ToCommand() (CreateCommand, error) {
	if err := ValidateStruct(req); err != nil {
		return CreateCommand{}, err
	}
	h, err := req.Header.ToHeader()
	if err != nil {
		return CreateCommand{}, err
	}
	lines, err := ToLines(req.Lines)
	if err != nil {
		return CreateCommand{}, err
	}
	cmd := CreateCommand{Header: h, Lines: lines, TestRun: req.TestRun, PostImmediately: req.PostImmediately}
	if req.SourceModule != "" {
		id, err := uuid.Parse(req.SourceID)
		if err != nil {
			return CreateCommand{}, fmt.Errorf("%w: source_id", shared.ErrValidation)
		}
		cmd.Source = Source{Module: req.SourceModule, ID: id}
	}
	return cmd, nil
}

// ToHeader parses header fields; a missing document type defaults to SA.
func (req HeaderRequest) ToHeader() (Header, error) {
	if err := ValidateStruct(req); err != nil {
		return Header{}, err
	}
	company, err := money.ParseCompanyCode(req.CompanyCode)
	if err != nil {
		return Header{}, err
	}
	docType := money.DocTypeGeneral
	if req.DocumentType != "" {
		if docType, err = money.ParseDocumentType(req.DocumentType); err != nil {
			return Header{}, err
		}
	}
	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		return Header{}, err
	}
	docDate, err := parseDate("document_date", req.DocumentDate)
	if err != nil {
		return Header{}, err
	}
	postingDate, err := parseDate("posting_date", req.PostingDate)
	if err != nil {
		return Header{}, err
	}
	h := Header{
		CompanyCode:   company,
		DocumentType:  docType,
		DocumentDate:  docDate,
		PostingDate:   postingDate,
		Currency:      currency,
		Reference:     req.Reference,
		SpecialPeriod: req.SpecialPeriod,
	}
	if req.TenantID != "" {
		id, err := uuid.Parse(req.TenantID)
		if err != nil {
			return Header{}, fmt.Errorf("%w: tenant_id", shared.ErrValidation)
		}
		h.TenantID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return h, nil
}

// ToLines parses line requests in order.
func ToLines(reqs []LineRequest) ([]Line, error) {
	lines := make([]Line, 0, len(reqs))
	for i, req := range reqs {
		line, err := req.toLine()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (req LineRequest) toLine() (Line, error) {
	account, err := money.ParseAccountCode(req.Account)
	if err != nil {
		return Line{}, err
	}
	indicator, err := money.ParseIndicator(req.DebitCredit)
	if err != nil {
		return Line{}, err
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		return Line{}, err
	}
	line := Line{
		Account:            account,
		Indicator:          indicator,
		Amount:             amount,
		CostCenter:         req.CostCenter,
		ProfitCenter:       req.ProfitCenter,
		Text:               req.Text,
		SpecialGLIndicator: req.SpecialGLIndicator,
	}
	if req.LocalAmount != "" {
		if line.LocalAmount, err = money.ParseAmount(req.LocalAmount); err != nil {
			return Line{}, err
		}
	}
	for _, la := range req.Ledgers {
		amt, err := money.ParseAmount(la.Amount)
		if err != nil {
			return Line{}, err
		}
		ledgerType := money.LedgerType(la.Type)
		if ledgerType == "" {
			ledgerType = money.LedgerTypeStandard
		}
		line.Ledgers = append(line.Ledgers, LedgerAmount{Ledger: money.LedgerCode(la.Ledger), Type: ledgerType, Amount: amt})
	}
	return line, nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", shared.ErrValidation, field, value)
	}
	return t, nil
}

// LedgerAmountResponse is a parallel ledger amount on the wire.
type LedgerAmountResponse struct {
	Ledger string `json:"ledger"`
	Type   string `json:"ledger_type"`
	Amount string `json:"amount"`
}

// LineResponse is one line item on the wire.
type LineResponse struct {
	LineNumber         int                    `json:"line_number"`
	Account            string                 `json:"account"`
	DebitCredit        string                 `json:"debit_credit"`
	Amount             string                 `json:"amount"`
	LocalAmount        string                 `json:"local_amount"`
	Ledgers            []LedgerAmountResponse `json:"ledgers,omitempty"`
	CostCenter         string                 `json:"cost_center,omitempty"`
	ProfitCenter       string                 `json:"profit_center,omitempty"`
	Text               string                 `json:"text,omitempty"`
	SpecialGLIndicator string                 `json:"special_gl_indicator,omitempty"`
	ClearingDocument   string                 `json:"clearing_document,omitempty"`
	ClearingDate       string                 `json:"clearing_date,omitempty"`
}

// EntryResponse mirrors the JournalEntry message.
type EntryResponse struct {
	ID                string         `json:"id"`
	DocumentReference string         `json:"document_reference,omitempty"`
	DocumentNumber    string         `json:"document_number,omitempty"`
	CompanyCode       string         `json:"company_code"`
	FiscalYear        int            `json:"fiscal_year"`
	FiscalPeriod      int            `json:"fiscal_period"`
	DocumentType      string         `json:"document_type"`
	DocumentDate      string         `json:"document_date"`
	PostingDate       string         `json:"posting_date"`
	Currency          string         `json:"currency"`
	Reference         string         `json:"reference,omitempty"`
	Status            Status         `json:"status"`
	Balanced          bool           `json:"balanced"`
	TenantID          string         `json:"tenant_id,omitempty"`
	SourceModule      string         `json:"source_module,omitempty"`
	SourceID          string         `json:"source_id,omitempty"`
	ReversalOf        string         `json:"reversal_of,omitempty"`
	ReversedBy        string         `json:"reversed_by,omitempty"`
	CreatedBy         string         `json:"created_by,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	PostedBy          string         `json:"posted_by,omitempty"`
	PostedAt          *time.Time     `json:"posted_at,omitempty"`
	Lines             []LineResponse `json:"lines"`
}

// CreateResponse mirrors JournalEntryResponse.
type CreateResponse struct {
	ID                string `json:"id,omitempty"`
	DocumentReference string `json:"document_reference,omitempty"`
	DocumentNumber    string `json:"document_number,omitempty"`
	Status            Status `json:"status"`
	Existing          bool   `json:"existing,omitempty"`
	TestRun           bool   `json:"test_run,omitempty"`
}

// ListResponse wraps a page of entries.
type ListResponse struct {
	Items      []EntryResponse           `json:"items"`
	Pagination platformshared.Pagination `json:"pagination"`
}

// NewEntryResponse renders an entry.
func NewEntryResponse(e *JournalEntry) EntryResponse {
	resp := EntryResponse{
		ID:                e.ID.String(),
		DocumentReference: e.DocumentReference(),
		DocumentNumber:    e.DocumentNumber().String(),
		CompanyCode:       e.Header.CompanyCode.String(),
		FiscalYear:        e.FiscalYear,
		FiscalPeriod:      e.FiscalPeriod,
		DocumentType:      e.Header.DocumentType.String(),
		DocumentDate:      e.Header.DocumentDate.Format(dateLayout),
		PostingDate:       e.Header.PostingDate.Format(dateLayout),
		Currency:          e.Header.Currency.String(),
		Reference:         e.Header.Reference,
		Status:            e.Status(),
		Balanced:          e.IsBalanced(),
		CreatedBy:         e.CreatedBy,
		CreatedAt:         e.CreatedAt,
		PostedBy:          e.PostedBy(),
		PostedAt:          e.PostedAt(),
		Lines:             make([]LineResponse, 0, e.LineCount()),
	}
	if e.Header.TenantID.Valid {
		resp.TenantID = e.Header.TenantID.UUID.String()
	}
	if !e.Source.IsZero() {
		resp.SourceModule, resp.SourceID = e.Source.Module, e.Source.ID.String()
	}
	if e.ReversalOf.Valid {
		resp.ReversalOf = e.ReversalOf.UUID.String()
	}
	if e.ReversedBy.Valid {
		resp.ReversedBy = e.ReversedBy.UUID.String()
	}
	for _, l := range e.lines {
		lr := LineResponse{
			LineNumber:         l.Number,
			Account:            l.Account.String(),
			DebitCredit:        l.Indicator.String(),
			Amount:             l.Amount.String(),
			LocalAmount:        l.LocalAmount.String(),
			CostCenter:         l.CostCenter,
			ProfitCenter:       l.ProfitCenter,
			Text:               l.Text,
			SpecialGLIndicator: l.SpecialGLIndicator,
		}
		for _, la := range l.Ledgers {
			lr.Ledgers = append(lr.Ledgers, LedgerAmountResponse{Ledger: string(la.Ledger), Type: string(la.Type), Amount: la.Amount.String()})
		}
		if l.Clearing != nil {
			lr.ClearingDocument = l.Clearing.DocumentNumber.String()
			lr.ClearingDate = l.Clearing.Date.Format(dateLayout)
		}
		resp.Lines = append(resp.Lines, lr)
	}
	return resp
}

// NewCreateResponse renders the create result.
func NewCreateResponse(res CreateResult) CreateResponse {
	resp := CreateResponse{
		DocumentReference: res.Entry.DocumentReference(),
		DocumentNumber:    res.Entry.DocumentNumber().String(),
		Status:            res.Entry.Status(),
		Existing:          res.Existing,
		TestRun:           res.TestRun,
	}
	if res.Entry.ID != uuid.Nil {
		resp.ID = res.Entry.ID.String()
	}
	return resp
}
