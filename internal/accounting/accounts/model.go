package accounts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// ValidationResult mirrors the chart of accounts validation message.
type ValidationResult struct {
	AccountCode money.AccountCode `json:"account_code"`
	IsValid     bool              `json:"is_valid"`
	Exists      bool              `json:"exists"`
	IsActive    bool              `json:"is_active"`
	IsPostable  bool              `json:"is_postable"`
	Messages    []string          `json:"messages,omitempty"`
}

// normalize enforces that IsValid implies exists, active and postable, and
// that every invalid result carries a reason.
func (r ValidationResult) normalize() ValidationResult {
	r.IsValid = r.IsValid && r.Exists && r.IsActive && r.IsPostable
	if r.IsValid || len(r.Messages) > 0 {
		return r
	}
	switch {
	case !r.Exists:
		r.Messages = []string{"account does not exist"}
	case !r.IsActive:
		r.Messages = []string{"account is not active"}
	case !r.IsPostable:
		r.Messages = []string{"account is not postable"}
	default:
		r.Messages = []string{"posting date outside account validity"}
	}
	return r
}

// Reason joins the messages of an invalid result.
func (r ValidationResult) Reason() string {
	return strings.Join(r.Messages, "; ")
}

// InvalidAccountsError lists every account of an entry that failed validation.
type InvalidAccountsError struct {
	Results []ValidationResult
}

func (e *InvalidAccountsError) Error() string {
	parts := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		parts = append(parts, fmt.Sprintf("%s (%s)", r.AccountCode, r.Reason()))
	}
	return "accounting: account is not postable: " + strings.Join(parts, ", ")
}

func (e *InvalidAccountsError) Unwrap() error { return shared.ErrInvalidAccount }

// ProblemExtensions exposes per-account reasons to HTTP problem responses.
func (e *InvalidAccountsError) ProblemExtensions() map[string]any {
	reasons := make(map[string]string, len(e.Results))
	for _, r := range e.Results {
		reasons[r.AccountCode.String()] = r.Reason()
	}
	return map[string]any{"invalid_accounts": reasons}
}

func sortResults(results []ValidationResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].AccountCode < results[j].AccountCode })
}
