package journals

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// Handler exposes the journal RPC surface as JSON over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, wrapDecode(err))
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Create(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Existing || res.TestRun {
		status = http.StatusOK
	}
	httpx.JSON(w, status, NewCreateResponse(res))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewEntryResponse(entry))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter Filter
	if cc := q.Get("company_code"); cc != "" {
		company, err := money.ParseCompanyCode(cc)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.CompanyCode = company
	}
	if st := q.Get("status"); st != "" {
		status, err := ParseStatus(st)
		if err != nil {
			h.fail(w, r, validationf("%v", err))
			return
		}
		filter.Status = status
	}
	filter.SourceModule = q.Get("source_module")
	fiscalYear, err := intParam(q.Get("fiscal_year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter.FiscalYear = fiscalYear
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
	entries, pagination, err := h.service.List(r.Context(), ListQuery{Filter: filter, Page: page, PageSize: pageSize})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := ListResponse{Items: make([]EntryResponse, 0, len(entries)), Pagination: pagination}
	for _, e := range entries {
		resp.Items = append(resp.Items, NewEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, wrapDecode(err))
		return
	}
	if err := ValidateStruct(req); err != nil {
		h.fail(w, r, err)
		return
	}
	var cmd UpdateCommand
	if req.Header != nil {
		hdr, err := req.Header.ToHeader()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cmd.Header = &hdr
	}
	lines, err := ToLines(req.Lines)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cmd.Lines = lines
	entry, err := h.service.Update(r.Context(), id, cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewEntryResponse(entry))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, wrapDecode(err))
			return
		}
	}
	var cmd ReverseCommand
	if req.PostingDate != "" {
		if err := ValidateStruct(req); err != nil {
			h.fail(w, r, err)
			return
		}
		date, err := parseDate("posting_date", req.PostingDate)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cmd.PostingDate = &date
	}
	entry, err := h.service.Reverse(r.Context(), id, cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewEntryResponse(entry))
}

type command func(*Service, *http.Request, uuid.UUID) (*JournalEntry, error)

// lifecycle adapts a single-id service command to an HTTP handler.
func (h *Handler) lifecycle(cmd command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.entryID(w, r)
		if !ok {
			return
		}
		entry, err := cmd(h.service, r, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, NewEntryResponse(entry))
	}
}

func (h *Handler) entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, validationf("journal id %q", chi.URLParam(r, "id")))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("journal request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug("journal request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, validationf("integer parameter %q", v)
	}
	return n, nil
}

func wrapDecode(err error) error {
	return validationf("%v", err)
}

func validationf(format string, args ...any) error {
	return shared.Validationf(format, args...)
}
