package ap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// LedgerPostError indicates the subledger document was recorded but its
// journal posting is pending.
type LedgerPostError struct {
	Err       error
	Retryable bool
	Message   string
	GapID     uuid.UUID
}

func (e *LedgerPostError) Error() string {
	return e.Message
}

func (e *LedgerPostError) Unwrap() error {
	return e.Err
}

func wrapLedgerPostError(document string, gapID uuid.UUID, err error) *LedgerPostError {
	if err == nil {
		return nil
	}
	pending := document + " recorded but journal posting pending"
	out := &LedgerPostError{Err: err, GapID: gapID}
	switch {
	case errors.Is(err, shared.ErrPeriodLocked):
		out.Retryable = true
		out.Message = "Ledger period locked; " + pending
	case errors.Is(err, shared.ErrInvalidPeriod):
		out.Message = "No posting period available for document date; " + pending
	case errors.Is(err, shared.ErrMappingNotFound):
		out.Message = "Account mapping missing; " + pending
	case errors.Is(err, shared.ErrInvalidAccount):
		out.Message = "Ledger rejected posting account; " + pending
	case errors.Is(err, shared.ErrUnbalanced):
		out.Message = "Ledger rejected unbalanced posting; " + pending
	case errors.Is(err, shared.ErrInfrastructure):
		out.Retryable = true
		out.Message = "Ledger unavailable; " + pending
	default:
		out.Message = fmt.Sprintf("Failed to post %s to ledger; %s (%s)", document, pending, err.Error())
	}
	return out
}
