package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/breaker"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// Transport is one handle to the ledger. Implementations are not safe for
// concurrent use; the Pool guarantees exclusive access.
type Transport interface {
	CreateAndPost(ctx context.Context, req journals.CreateRequest) (journals.CreateResponse, error)
}

// HTTPTransport calls the ledger's create endpoint over its own connection.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	breaker *breaker.Breaker
}

// NewHTTPTransport builds a handle with a dedicated single-connection client.
// Handles of one pool share the breaker.
func NewHTTPTransport(baseURL string, b *breaker.Breaker) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{Transport: &http.Transport{
			MaxConnsPerHost:     1,
			MaxIdleConnsPerHost: 1,
		}},
		breaker: b,
	}
}

// CreateAndPost implements Transport.
func (t *HTTPTransport) CreateAndPost(ctx context.Context, req journals.CreateRequest) (journals.CreateResponse, error) {
	return breaker.Do(t.breaker, func() (journals.CreateResponse, error) {
		return t.do(ctx, req)
	})
}

func (t *HTTPTransport) do(ctx context.Context, in journals.CreateRequest) (journals.CreateResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return journals.CreateResponse{}, fmt.Errorf("integration: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/gl/v1/journal-entries", bytes.NewReader(body))
	if err != nil {
		return journals.CreateResponse{}, fmt.Errorf("integration: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(platformshared.ActorHeader, platformshared.ActorFromContext(ctx))
	resp, err := t.client.Do(req)
	if err != nil {
		return journals.CreateResponse{}, fmt.Errorf("%w: ledger: %v", shared.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var out journals.CreateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return journals.CreateResponse{}, shared.Infrastructure("integration: decode response", err)
		}
		return out, nil
	}
	return journals.CreateResponse{}, decodeRemoteError(resp)
}

// RemoteError is a problem response returned by the ledger.
type RemoteError struct {
	Status  int
	Problem httpx.ProblemDetail
}

func (e *RemoteError) Error() string {
	msg := e.Problem.Detail
	if msg == "" {
		msg = e.Problem.Title
	}
	return fmt.Sprintf("ledger rejected posting (%d): %s", e.Status, msg)
}

// Unwrap maps the HTTP status back onto the error taxonomy.
func (e *RemoteError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnprocessableEntity:
		return shared.ErrUnbalanced
	case e.Status == http.StatusBadRequest:
		return shared.ErrValidation
	case e.Status == http.StatusConflict:
		return shared.ErrState
	case e.Status == http.StatusNotFound:
		return shared.ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return shared.ErrRemoteUnavailable
	default:
		return shared.ErrValidation
	}
}

func decodeRemoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	remote := &RemoteError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &remote.Problem); err != nil {
		remote.Problem.Detail = strings.TrimSpace(string(raw))
	}
	return remote
}

// LocalTransport posts through an in-process journal service.
type LocalTransport struct {
	service *journals.Service
}

func NewLocalTransport(service *journals.Service) *LocalTransport {
	return &LocalTransport{service: service}
}

// CreateAndPost implements Transport.
func (t *LocalTransport) CreateAndPost(ctx context.Context, req journals.CreateRequest) (journals.CreateResponse, error) {
	cmd, err := req.ToCommand()
	if err != nil {
		return journals.CreateResponse{}, err
	}
	res, err := t.service.Create(ctx, cmd)
	if err != nil {
		return journals.CreateResponse{}, err
	}
	return journals.NewCreateResponse(res), nil
}
