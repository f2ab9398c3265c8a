package journals

import (
	"fmt"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusParked          Status = "PARKED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusPosted          Status = "POSTED"
	StatusReversed        Status = "REVERSED"
	StatusCancelled       Status = "CANCELLED"
)

// AllStatuses lists the closed status set in lifecycle order.
var AllStatuses = []Status{
	StatusDraft, StatusParked, StatusPendingApproval, StatusApproved,
	StatusPosted, StatusReversed, StatusCancelled,
}

var transitions = map[Status]map[Status]bool{
	StatusDraft:           {StatusParked: true, StatusPendingApproval: true, StatusPosted: true, StatusCancelled: true},
	StatusParked:          {StatusDraft: true, StatusPosted: true, StatusCancelled: true},
	StatusPendingApproval: {StatusApproved: true, StatusDraft: true},
	StatusApproved:        {StatusPosted: true, StatusDraft: true},
	StatusPosted:          {StatusReversed: true},
}

// ParseStatus converts a stored or requested value into the closed set.
// Unknown values are an error, never a default.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w %q", shared.ErrUnknownStatus, s)
}

// CanTransitionTo reports whether the lifecycle table allows from -> to.
func (s Status) CanTransitionTo(to Status) bool {
	return transitions[s][to]
}

// IsEditable reports whether header and lines may change.
func (s Status) IsEditable() bool {
	return s == StatusDraft || s == StatusParked
}

// IsDeletable reports whether the entry may be removed.
func (s Status) IsDeletable() bool {
	return s == StatusDraft || s == StatusCancelled
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusReversed || s == StatusCancelled
}
