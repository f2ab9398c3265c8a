package journals

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

func TestTransitionTableExhaustive(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusParked}:             true,
		{StatusDraft, StatusPendingApproval}:    true,
		{StatusDraft, StatusPosted}:             true,
		{StatusDraft, StatusCancelled}:          true,
		{StatusParked, StatusDraft}:             true,
		{StatusParked, StatusPosted}:            true,
		{StatusParked, StatusCancelled}:         true,
		{StatusPendingApproval, StatusApproved}: true,
		{StatusPendingApproval, StatusDraft}:    true,
		{StatusApproved, StatusPosted}:          true,
		{StatusApproved, StatusDraft}:           true,
		{StatusPosted, StatusReversed}:          true,
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := allowed[[2]Status{from, to}]
			require.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	for _, to := range AllStatuses {
		require.False(t, StatusReversed.CanTransitionTo(to))
		require.False(t, StatusCancelled.CanTransitionTo(to))
	}
}

func TestEditableAndDeletable(t *testing.T) {
	editable := map[Status]bool{StatusDraft: true, StatusParked: true}
	deletable := map[Status]bool{StatusDraft: true, StatusCancelled: true}
	for _, s := range AllStatuses {
		require.Equal(t, editable[s], s.IsEditable(), s)
		require.Equal(t, deletable[s], s.IsDeletable(), s)
	}
}

func TestParseStatusStrict(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	for _, bad := range []string{"", "draft", "POSTED ", "VOID"} {
		_, err := ParseStatus(bad)
		require.ErrorIs(t, err, shared.ErrUnknownStatus, bad)
	}
}
