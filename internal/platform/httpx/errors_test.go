package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

type extErr struct{}

func (extErr) Error() string                     { return "accounting: journal lines must balance" }
func (extErr) Unwrap() error                     { return shared.ErrUnbalanced }
func (extErr) ProblemExtensions() map[string]any { return map[string]any{"debit_total": "1.00"} }

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrUnbalanced, http.StatusUnprocessableEntity},
		{shared.ErrInvalidAccount, http.StatusBadRequest},
		{shared.ErrJournalNotFound, http.StatusNotFound},
		{shared.ErrAlreadyPosted, http.StatusConflict},
		{shared.ErrPeriodLocked, http.StatusConflict},
		{shared.Infrastructure("db", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorWritesProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("post: %w", extErr{}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Unbalanced Entry", body.Title)
	require.Equal(t, "1.00", body.Extensions["debit_total"])
}

func TestRespondErrorHidesInfrastructureDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.Infrastructure("db", errors.New("password authentication failed")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
}
