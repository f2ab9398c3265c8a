package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/breaker"
)

// Validator is the chart of accounts validation surface.
type Validator interface {
	ValidateAccount(ctx context.Context, chart string, account money.AccountCode, company money.CompanyCode, postingDate time.Time) (ValidationResult, error)
	BatchValidateAccounts(ctx context.Context, chart string, accounts []money.AccountCode, company money.CompanyCode, postingDate time.Time) ([]ValidationResult, error)
}

// ClientConfig configures the remote COA client.
type ClientConfig struct {
	BaseURL             string
	Timeout             time.Duration
	BreakerFailures     uint32
	BreakerOpenDuration time.Duration
}

// Client calls the COA service over HTTP/JSON. Every call is bounded by
// Timeout and guarded by a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewClient constructs the COA client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		timeout: cfg.Timeout,
		breaker: breaker.New(breaker.Settings{
			Name:                "coa",
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerOpenDuration,
		}, logger),
		logger: logger,
	}
}

type validateRequest struct {
	ChartOfAccounts string `json:"chart_of_accounts"`
	AccountCode     string `json:"account_code"`
	CompanyCode     string `json:"company_code,omitempty"`
	PostingDate     string `json:"posting_date,omitempty"`
}

type batchRequest struct {
	ChartOfAccounts string   `json:"chart_of_accounts"`
	AccountCodes    []string `json:"account_codes"`
	CompanyCode     string   `json:"company_code,omitempty"`
	PostingDate     string   `json:"posting_date,omitempty"`
}

type batchResponse struct {
	Results []ValidationResult `json:"results"`
}

// ValidateAccount implements ValidateGlAccount.
func (c *Client) ValidateAccount(ctx context.Context, chart string, account money.AccountCode, company money.CompanyCode, postingDate time.Time) (ValidationResult, error) {
	req := validateRequest{
		ChartOfAccounts: chart,
		AccountCode:     account.String(),
		CompanyCode:     company.String(),
		PostingDate:     formatDate(postingDate),
	}
	return breaker.Do(c.breaker, func() (ValidationResult, error) {
		var out ValidationResult
		if err := c.call(ctx, "/coa/v1/gl-accounts:validate", req, &out); err != nil {
			return ValidationResult{}, err
		}
		out.AccountCode = account
		return out.normalize(), nil
	})
}

// BatchValidateAccounts implements BatchValidateGlAccounts. Accounts missing
// from the response are reported as not existing.
func (c *Client) BatchValidateAccounts(ctx context.Context, chart string, accounts []money.AccountCode, company money.CompanyCode, postingDate time.Time) ([]ValidationResult, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	req := batchRequest{
		ChartOfAccounts: chart,
		AccountCodes:    make([]string, len(accounts)),
		CompanyCode:     company.String(),
		PostingDate:     formatDate(postingDate),
	}
	for i, a := range accounts {
		req.AccountCodes[i] = a.String()
	}
	return breaker.Do(c.breaker, func() ([]ValidationResult, error) {
		var out batchResponse
		if err := c.call(ctx, "/coa/v1/gl-accounts:batch-validate", req, &out); err != nil {
			return nil, err
		}
		byCode := make(map[money.AccountCode]ValidationResult, len(out.Results))
		for _, r := range out.Results {
			byCode[r.AccountCode] = r
		}
		results := make([]ValidationResult, 0, len(accounts))
		for _, a := range accounts {
			r, ok := byCode[a]
			if !ok {
				r = ValidationResult{AccountCode: a}
			}
			results = append(results, r.normalize())
		}
		return results, nil
	})
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("accounts: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("accounts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: coa %s: %v", shared.ErrRemoteUnavailable, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: coa %s: status %d", shared.ErrRemoteUnavailable, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: coa rejected request: %s", shared.ErrValidation, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return shared.Infrastructure("accounts: decode response", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
