package journals

import (
	"context"
	"sort"
	"strconv"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// NumberGap reports holes in the document number range of one company and year.
type NumberGap struct {
	CompanyCode money.CompanyCode `json:"company_code"`
	FiscalYear  int               `json:"fiscal_year"`
	Highest     int64             `json:"highest"`
	Missing     []int64           `json:"missing,omitempty"`
	Duplicates  []int64           `json:"duplicates,omitempty"`
}

// IntegrityReport summarizes a scan of posted entries.
type IntegrityReport struct {
	Checked       int         `json:"checked"`
	Unbalanced    []string    `json:"unbalanced,omitempty"`
	LineNumbering []string    `json:"line_numbering,omitempty"`
	Gaps          []NumberGap `json:"gaps,omitempty"`
}

// OK reports whether the scan found nothing.
func (r IntegrityReport) OK() bool {
	return len(r.Unbalanced) == 0 && len(r.LineNumbering) == 0 && len(r.Gaps) == 0
}

const maxReportedNumbers = 50

// CheckIntegrity re-checks every entry that ever received a document number.
// Each must still balance with lines numbered 1..n, and document numbers per
// company and fiscal year must run 1..n without holes or repeats. Status in
// filter is ignored.
func (s *Service) CheckIntegrity(ctx context.Context, filter Filter) (IntegrityReport, error) {
	type rangeKey struct {
		company money.CompanyCode
		year    int
	}
	var report IntegrityReport
	seen := make(map[rangeKey][]int64)

	for _, status := range []Status{StatusPosted, StatusReversed} {
		f := filter
		f.Status = status
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			entries, err := s.repo.Search(ctx, f, platformshared.NewPagination(page, platformshared.MaxPerPage, 0))
			if err != nil {
				return report, err
			}
			for _, e := range entries {
				report.Checked++
				if err := e.WithBalanceMode(s.mode).CheckBalance(); err != nil {
					report.Unbalanced = append(report.Unbalanced, e.DocumentReference())
				}
				if !denseLines(e.lines) {
					report.LineNumbering = append(report.LineNumbering, e.DocumentReference())
				}
				n, err := strconv.ParseInt(e.DocumentNumber().String(), 10, 64)
				if err != nil {
					continue
				}
				key := rangeKey{company: e.Header.CompanyCode, year: e.FiscalYear}
				seen[key] = append(seen[key], n)
			}
			if len(entries) < platformshared.MaxPerPage {
				break
			}
		}
	}

	for key, numbers := range seen {
		if gap, ok := numberGap(numbers); !ok {
			gap.CompanyCode, gap.FiscalYear = key.company, key.year
			report.Gaps = append(report.Gaps, gap)
		}
	}
	sort.Slice(report.Gaps, func(i, j int) bool {
		if report.Gaps[i].CompanyCode != report.Gaps[j].CompanyCode {
			return report.Gaps[i].CompanyCode < report.Gaps[j].CompanyCode
		}
		return report.Gaps[i].FiscalYear < report.Gaps[j].FiscalYear
	})
	sort.Strings(report.Unbalanced)
	sort.Strings(report.LineNumbering)
	return report, nil
}

func numberGap(numbers []int64) (NumberGap, bool) {
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	gap := NumberGap{Highest: numbers[len(numbers)-1]}
	next := int64(1)
	for i, n := range numbers {
		if i > 0 && n == numbers[i-1] {
			if len(gap.Duplicates) < maxReportedNumbers {
				gap.Duplicates = append(gap.Duplicates, n)
			}
			continue
		}
		for ; next < n; next++ {
			if len(gap.Missing) < maxReportedNumbers {
				gap.Missing = append(gap.Missing, next)
			}
		}
		next = n + 1
	}
	return gap, len(gap.Missing) == 0 && len(gap.Duplicates) == 0
}

func denseLines(lines []Line) bool {
	for i, l := range lines {
		if l.Number != i+1 {
			return false
		}
	}
	return len(lines) > 0
}
