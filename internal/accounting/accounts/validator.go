package accounts

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

// ValidationRecorder counts entry validation outcomes.
type ValidationRecorder interface {
	ObserveValidation(result string)
}

// EntryValidator batch-validates every distinct account of a journal entry
// and rejects the entry when any account is invalid.
type EntryValidator struct {
	validator Validator
	chart     string
	chunkSize int
	parallel  int
	metrics   ValidationRecorder
}

// NewEntryValidator constructs the validator for a chart of accounts.
func NewEntryValidator(v Validator, chart string, metrics ValidationRecorder) *EntryValidator {
	return &EntryValidator{validator: v, chart: chart, chunkSize: 100, parallel: 4, metrics: metrics}
}

// ValidateEntryAccounts returns *InvalidAccountsError listing every failing
// account, or the infrastructure error of the first failed batch.
func (v *EntryValidator) ValidateEntryAccounts(ctx context.Context, company money.CompanyCode, postingDate time.Time, accounts []money.AccountCode) error {
	distinct := dedupe(accounts)
	if len(distinct) == 0 {
		return nil
	}
	var (
		mu      sync.Mutex
		invalid []ValidationResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallel)
	for start := 0; start < len(distinct); start += v.chunkSize {
		end := start + v.chunkSize
		if end > len(distinct) {
			end = len(distinct)
		}
		chunk := distinct[start:end]
		g.Go(func() error {
			results, err := v.validator.BatchValidateAccounts(gctx, v.chart, chunk, company, postingDate)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				if !r.IsValid {
					invalid = append(invalid, r)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.observe("error")
		return err
	}
	if len(invalid) > 0 {
		sortResults(invalid)
		v.observe("invalid")
		return &InvalidAccountsError{Results: invalid}
	}
	v.observe("valid")
	return nil
}

func (v *EntryValidator) observe(result string) {
	if v.metrics != nil {
		v.metrics.ObserveValidation(result)
	}
}

func dedupe(accounts []money.AccountCode) []money.AccountCode {
	seen := make(map[money.AccountCode]bool, len(accounts))
	out := make([]money.AccountCode, 0, len(accounts))
	for _, a := range accounts {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
