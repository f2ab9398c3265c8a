package integration

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// GapResponse renders a reconciliation gap.
type GapResponse struct {
	ID                string     `json:"id"`
	SourceModule      string     `json:"source_module"`
	SourceID          string     `json:"source_id"`
	SourceNumber      string     `json:"source_number,omitempty"`
	CompanyCode       string     `json:"company_code"`
	Status            GapStatus  `json:"status"`
	Retryable         bool       `json:"retryable"`
	Attempts          int        `json:"attempts"`
	LastError         string     `json:"last_error,omitempty"`
	DocumentReference string     `json:"document_reference,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// GapListResponse wraps a page of gaps.
type GapListResponse struct {
	Items      []GapResponse             `json:"items"`
	Pagination platformshared.Pagination `json:"pagination"`
}

// NewGapResponse renders a gap.
func NewGapResponse(g Gap) GapResponse {
	return GapResponse{
		ID:                g.ID.String(),
		SourceModule:      g.SourceModule,
		SourceID:          g.SourceID.String(),
		SourceNumber:      g.SourceNumber,
		CompanyCode:       g.CompanyCode,
		Status:            g.Status,
		Retryable:         g.Retryable,
		Attempts:          g.Attempts,
		LastError:         g.LastError,
		DocumentReference: g.DocumentReference,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
		ResolvedAt:        g.ResolvedAt,
	}
}

// Handler exposes reconciliation gaps.
type Handler struct {
	gaps   GapStore
	client *Client
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, gaps GapStore, client *Client) *Handler {
	return &Handler{gaps: gaps, client: client, logger: logger}
}

// MountRoutes registers the endpoints under /gl/v1/reconciliation-gaps.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/retry", h.Retry)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter GapFilter
	if st := q.Get("status"); st != "" {
		status, err := ParseGapStatus(st)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Status = status
	}
	filter.SourceModule = q.Get("source_module")
	page, err := intParam(q.Get("page"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pagination := platformshared.NewPagination(page, pageSize, 0)
	gaps, total, err := h.gaps.List(r.Context(), filter, pagination)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pagination = platformshared.NewPagination(pagination.Page, pagination.PerPage, total)
	resp := GapListResponse{Items: make([]GapResponse, 0, len(gaps)), Pagination: pagination}
	for _, g := range gaps {
		resp.Items = append(resp.Items, NewGapResponse(g))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	gap, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, NewGapResponse(gap))
}

// Retry replays one gap on demand, including non-retryable ones once their
// cause has been fixed.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	gap, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, err := h.client.Replay(r.Context(), gap); err != nil {
		h.fail(w, r, err)
		return
	}
	gap, ok = h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, NewGapResponse(gap))
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Gap, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, shared.Validationf("gap id %q", chi.URLParam(r, "id")))
		return Gap{}, false
	}
	gap, err := h.gaps.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return Gap{}, false
	}
	return gap, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("reconciliation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, shared.Validationf("integer parameter %q", v)
	}
	return n, nil
}
