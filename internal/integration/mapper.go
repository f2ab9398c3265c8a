package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

const dateLayout = "2006-01-02"

// toCreateRequest renders a posting request as the ledger's create call with
// immediate posting.
func toCreateRequest(r PostingRequest) journals.CreateRequest {
	docDate := r.DocumentDate
	if docDate.IsZero() {
		docDate = r.PostingDate
	}
	req := journals.CreateRequest{
		Header: journals.HeaderRequest{
			CompanyCode:  r.CompanyCode.String(),
			DocumentType: r.EffectiveDocumentType().String(),
			DocumentDate: docDate.Format(dateLayout),
			PostingDate:  r.PostingDate.Format(dateLayout),
			Currency:     r.Currency.String(),
			Reference:    r.Reference,
		},
		Lines:           make([]journals.LineRequest, 0, len(r.Lines)),
		PostImmediately: true,
		SourceModule:    r.SourceModule,
		SourceID:        r.SourceID.String(),
	}
	if req.Header.Reference == "" {
		req.Header.Reference = r.SourceNumber
	}
	for _, l := range r.Lines {
		req.Lines = append(req.Lines, journals.LineRequest{
			Account:      l.Account.String(),
			DebitCredit:  l.Indicator.String(),
			Amount:       l.Amount.String(),
			CostCenter:   l.CostCenter,
			ProfitCenter: l.ProfitCenter,
			Text:         l.Text,
		})
	}
	return req
}

// lineAmount rounds qty*unitCost to the currency's minor unit.
func lineAmount(qty, unitCost decimal.Decimal, cur money.Currency) money.Amount {
	amount, _ := money.NewAmount(qty.Mul(unitCost).Abs().Round(cur.Scale()))
	return amount
}
