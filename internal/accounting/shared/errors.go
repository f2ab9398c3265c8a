package shared

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Every ledger error wraps exactly one of them.
var (
	ErrValidation     = errors.New("accounting: validation failed")
	ErrState          = errors.New("accounting: invalid state")
	ErrNotFound       = errors.New("accounting: not found")
	ErrInfrastructure = errors.New("accounting: infrastructure unavailable")
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", ErrValidation)
	// ErrNoLines indicates an attempt to post an entry without lines.
	ErrNoLines = fmt.Errorf("%w: journal requires at least one line", ErrValidation)
	// ErrInvalidLine indicates malformed line input.
	ErrInvalidLine = fmt.Errorf("%w: invalid journal line", ErrValidation)
	// ErrInvalidHeader indicates malformed header input.
	ErrInvalidHeader = fmt.Errorf("%w: invalid journal header", ErrValidation)
	// ErrInvalidAccount indicates an account failed COA validation.
	ErrInvalidAccount = fmt.Errorf("%w: account is not postable", ErrValidation)
	// ErrInvalidPeriod indicates a posting date that does not map to a period.
	ErrInvalidPeriod = fmt.Errorf("%w: invalid fiscal period", ErrValidation)
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = fmt.Errorf("%w: account mapping not found", ErrValidation)

	// ErrInvalidTransition indicates the status table forbids the move.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrState)
	// ErrNotEditable indicates line or header mutation outside Draft/Parked.
	ErrNotEditable = fmt.Errorf("%w: journal entry is not editable", ErrState)
	// ErrNotDeletable indicates deletion outside Draft/Cancelled.
	ErrNotDeletable = fmt.Errorf("%w: journal entry is not deletable", ErrState)
	// ErrAlreadyPosted indicates a second post of a posted entry.
	ErrAlreadyPosted = fmt.Errorf("%w: journal entry already posted", ErrState)
	// ErrPeriodLocked indicates locked or closed period.
	ErrPeriodLocked = fmt.Errorf("%w: period locked", ErrState)
	// ErrSourceAlreadyLinked indicates the source document already has a ledger entry.
	ErrSourceAlreadyLinked = fmt.Errorf("%w: source already linked", ErrState)

	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("%w: journal entry", ErrNotFound)

	// ErrUnknownStatus indicates a persisted status outside the closed set.
	ErrUnknownStatus = errors.New("accounting: unknown journal status")
	// ErrRemoteUnavailable indicates a timeout or transport failure to a remote service.
	ErrRemoteUnavailable = fmt.Errorf("%w: remote service unavailable", ErrInfrastructure)
)

// infraError tags a low-level failure as infrastructure while keeping the cause.
type infraError struct {
	op  string
	err error
}

func (e *infraError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *infraError) Unwrap() []error {
	return []error{ErrInfrastructure, e.err}
}

// Infrastructure wraps err so that errors.Is(err, ErrInfrastructure) holds.
// Errors already classified under a taxonomy root are returned unchanged.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &infraError{op: op, err: err}
}

// Classified reports whether err already belongs to one of the taxonomy roots.
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInfrastructure)
}

// Validationf builds an ad-hoc validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
