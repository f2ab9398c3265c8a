package ap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler manages AP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers AP routes under /ap/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/post", h.postInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)
	r.Post("/invoices/{id}/ledger-retry", h.retryInvoice)
	r.Post("/payments", h.createPayment)
	r.Get("/payments/{id}", h.getPayment)
}

type invoiceLineRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CostCenter  string          `json:"cost_center"`
}

type createInvoiceRequest struct {
	Number       string               `json:"number"`
	CompanyCode  string               `json:"company_code"`
	SupplierID   int64                `json:"supplier_id"`
	SupplierName string               `json:"supplier_name"`
	Currency     string               `json:"currency"`
	Inventory    bool                 `json:"inventory"`
	InvoiceDate  string               `json:"invoice_date"`
	DueDate      string               `json:"due_date"`
	Lines        []invoiceLineRequest `json:"lines"`
	Post         bool                 `json:"post"`
}

type allocationRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type createPaymentRequest struct {
	Number      string              `json:"number"`
	Amount      decimal.Decimal     `json:"amount"`
	PaidAt      string              `json:"paid_at"`
	Method      string              `json:"method"`
	Note        string              `json:"note"`
	Allocations []allocationRequest `json:"allocations"`
}

type ledgerResponse struct {
	Status    LedgerStatus `json:"status"`
	Reference string       `json:"reference,omitempty"`
	Error     string       `json:"error,omitempty"`
	Retryable *bool        `json:"retryable,omitempty"`
	GapID     string       `json:"gap_id,omitempty"`
}

type invoiceResponse struct {
	ID          string           `json:"id"`
	Number      string           `json:"number"`
	CompanyCode string           `json:"company_code"`
	SupplierID  int64            `json:"supplier_id"`
	Currency    string           `json:"currency"`
	Total       decimal.Decimal  `json:"total"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	Status      InvoiceStatus    `json:"status"`
	InvoiceDate string           `json:"invoice_date"`
	DueAt       string           `json:"due_at"`
	PostedAt    *time.Time       `json:"posted_at,omitempty"`
	Ledger      ledgerResponse   `json:"ledger"`
}

type paymentResponse struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      string          `json:"paid_at"`
	Allocations []Allocation    `json:"allocations,omitempty"`
	Ledger      ledgerResponse  `json:"ledger"`
}

func newInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:          inv.ID.String(),
		Number:      inv.Number,
		CompanyCode: inv.CompanyCode,
		SupplierID:  inv.SupplierID,
		Currency:    inv.Currency,
		Total:       inv.Total,
		Status:      inv.Status,
		InvoiceDate: inv.InvoiceDate.Format(dateLayout),
		DueAt:       inv.DueAt.Format(dateLayout),
		PostedAt:    inv.PostedAt,
		Ledger:      ledgerResponse{Status: inv.Ledger.Status, Reference: inv.Ledger.Reference, Error: inv.Ledger.Error},
	}
}

func newPaymentResponse(pay Payment) paymentResponse {
	return paymentResponse{
		ID:       pay.ID.String(),
		Number:   pay.Number,
		Amount:   pay.Amount,
		Currency: pay.Currency,
		PaidAt:   pay.PaidAt.Format(dateLayout),
		Ledger:   ledgerResponse{Status: pay.Ledger.Status, Reference: pay.Ledger.Reference, Error: pay.Ledger.Error},
	}
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, shared.Validationf("%v", err))
		return
	}
	input := CreateInvoiceInput{
		Number:       req.Number,
		CompanyCode:  req.CompanyCode,
		SupplierID:   req.SupplierID,
		SupplierName: req.SupplierName,
		Currency:     req.Currency,
		Inventory:    req.Inventory,
		Post:         req.Post,
	}
	var err error
	if input.InvoiceDate, err = optionalDate("invoice_date", req.InvoiceDate); err != nil {
		h.fail(w, r, err)
		return
	}
	if input.DueDate, err = optionalDate("due_date", req.DueDate); err != nil {
		h.fail(w, r, err)
		return
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, CreateInvoiceLineInput{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			CostCenter:  l.CostCenter,
		})
	}
	inv, err := h.service.CreateInvoice(r.Context(), input)
	if h.ledgerPending(w, r, err, func(lr ledgerResponse) any {
		resp := newInvoiceResponse(inv)
		resp.Ledger = lr
		return resp
	}) {
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newInvoiceResponse(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListInvoicesRequest{
		Status:       InvoiceStatus(q.Get("status")),
		LedgerStatus: LedgerStatus(q.Get("ledger_status")),
	}
	if v := q.Get("supplier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(w, r, shared.Validationf("supplier_id %q", v))
			return
		}
		req.SupplierID = id
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}
	invoices, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, newInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := newInvoiceResponse(detail.Invoice)
	resp.Balance = &detail.Balance
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceCommand(w, r, h.service.PostInvoice)
}

func (h *Handler) retryInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceCommand(w, r, h.service.RetryInvoicePosting)
}

func (h *Handler) invoiceCommand(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, id uuid.UUID) (Invoice, error)) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, err := cmd(r.Context(), id)
	if h.ledgerPending(w, r, err, func(lr ledgerResponse) any {
		resp := newInvoiceResponse(inv)
		resp.Ledger = lr
		return resp
	}) {
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(inv))
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			h.fail(w, r, shared.Validationf("%v", err))
			return
		}
	}
	if err := h.service.VoidInvoice(r.Context(), id, body.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, shared.Validationf("%v", err))
		return
	}
	paidAt, err := optionalDate("paid_at", req.PaidAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	input := CreatePaymentInput{Number: req.Number, Amount: req.Amount, PaidAt: paidAt, Method: req.Method, Note: req.Note}
	for _, a := range req.Allocations {
		input.Allocations = append(input.Allocations, PaymentAllocationInput{InvoiceID: a.InvoiceID, Amount: a.Amount})
	}
	pay, err := h.service.RegisterPayment(r.Context(), input)
	if h.ledgerPending(w, r, err, func(lr ledgerResponse) any {
		resp := newPaymentResponse(pay)
		resp.Ledger = lr
		return resp
	}) {
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newPaymentResponse(pay))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	pay, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := newPaymentResponse(pay.Payment)
	resp.Allocations = pay.Allocations
	httpx.JSON(w, http.StatusOK, resp)
}

// ledgerPending answers 202 when the document was saved but its ledger
// posting is owed.
func (h *Handler) ledgerPending(w http.ResponseWriter, r *http.Request, err error, render func(ledgerResponse) any) bool {
	var lpe *LedgerPostError
	if !errors.As(err, &lpe) {
		return false
	}
	h.logger.Warn("ap document saved without ledger posting",
		slog.String("path", r.URL.Path),
		slog.Bool("retryable", lpe.Retryable),
		slog.Any("error", lpe.Err))
	retryable := lpe.Retryable
	lr := ledgerResponse{Status: LedgerPending, Error: lpe.Message, Retryable: &retryable}
	if lpe.GapID != uuid.Nil {
		lr.GapID = lpe.GapID.String()
	}
	httpx.JSON(w, http.StatusAccepted, render(lr))
	return true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, shared.Validationf("id %q", chi.URLParam(r, "id")))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("ap request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func optionalDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, shared.Validationf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}
