package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/breaker"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

var postingDate = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

// ledgerStub stands in for the ledger behind every handle of a pool.
type ledgerStub struct {
	inFlight int32
	maxSeen  int32
	seq      int64
	delay    time.Duration
	block    bool

	mu       sync.Mutex
	err      error
	requests []journals.CreateRequest
}

func (s *ledgerStub) CreateAndPost(ctx context.Context, req journals.CreateRequest) (journals.CreateResponse, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, n) {
			break
		}
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	err := s.err
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return journals.CreateResponse{}, ctx.Err()
	}
	time.Sleep(s.delay)
	if err != nil {
		return journals.CreateResponse{}, err
	}
	number := money.FormatDocumentNumber(atomic.AddInt64(&s.seq, 1))
	return journals.CreateResponse{
		ID:                uuid.NewString(),
		DocumentNumber:    number.String(),
		DocumentReference: req.Header.CompanyCode + "/" + number.String() + "/2024",
		Status:            journals.StatusPosted,
	}, nil
}

func (s *ledgerStub) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *ledgerStub) last() journals.CreateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestClient(stub *ledgerStub, size int, timeout time.Duration) (*Client, *memoryGaps) {
	gaps := newMemoryGaps()
	pool := NewPool(size, func(int) Transport { return stub })
	return NewClient(pool, gaps, timeout, nil), gaps
}

func invoiceRequest() PostingRequest {
	return PostingRequest{
		Context:      ContextVendorInvoice,
		SourceModule: SourceAPInvoice,
		SourceID:     uuid.New(),
		SourceNumber: "INV-0001",
		CompanyCode:  "CN01",
		PostingDate:  postingDate,
		Currency:     money.MustCurrency("CNY"),
		Lines: []PostingLine{
			{Account: "6001000", Indicator: money.Debit, Amount: money.MustAmount("1000.00")},
			{Account: "2001000", Indicator: money.Credit, Amount: money.MustAmount("1000.00")},
		},
	}
}

func TestCreateAndPostBuildsPostedEntry(t *testing.T) {
	stub := &ledgerStub{}
	client, gaps := newTestClient(stub, 1, time.Second)

	req := invoiceRequest()
	outcome, err := client.CreateAndPost(context.Background(), req)
	require.NoError(t, err)
	require.True(t, outcome.Posted())
	require.Equal(t, "CN01/0000000001/2024", outcome.DocumentReference)
	require.Equal(t, uuid.Nil, outcome.GapID)

	sent := stub.last()
	require.True(t, sent.PostImmediately)
	require.Equal(t, "KR", sent.Header.DocumentType)
	require.Equal(t, "2024-03-15", sent.Header.DocumentDate)
	require.Equal(t, "INV-0001", sent.Header.Reference)
	require.Equal(t, SourceAPInvoice, sent.SourceModule)
	require.Equal(t, req.SourceID.String(), sent.SourceID)
	require.Equal(t, "D", sent.Lines[0].DebitCredit)
	require.Equal(t, "1000.00", sent.Lines[1].Amount)

	_, total, _ := gaps.List(context.Background(), GapFilter{}, platformshared.NewPagination(1, 10, 0))
	require.Zero(t, total)
}

func TestDocumentTypeDefaults(t *testing.T) {
	require.Equal(t, money.DocTypeVendorInvoice, DefaultDocumentType(ContextVendorInvoice))
	require.Equal(t, money.DocTypeVendorPayment, DefaultDocumentType(ContextVendorPayment))
	require.Equal(t, money.DocTypeCustomerInvoice, DefaultDocumentType(ContextCustomerInvoice))
	require.Equal(t, money.DocTypeCustomerPayment, DefaultDocumentType(ContextCustomerPayment))
	require.Equal(t, money.DocTypeGeneral, DefaultDocumentType(ContextAllocation))

	req := invoiceRequest()
	req.DocumentType = "RE"
	require.Equal(t, money.DocumentType("RE"), req.EffectiveDocumentType())
}

func TestPoolOfOneSerializesCalls(t *testing.T) {
	stub := &ledgerStub{delay: 2 * time.Millisecond}
	client, _ := newTestClient(stub, 1, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.CreateAndPost(context.Background(), invoiceRequest()); err != nil {
				t.Errorf("create and post: %v", err)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&stub.maxSeen))
	require.EqualValues(t, 20, atomic.LoadInt64(&stub.seq))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	stub := &ledgerStub{delay: 5 * time.Millisecond}
	client, _ := newTestClient(stub, 3, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.CreateAndPost(context.Background(), invoiceRequest())
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&stub.maxSeen), int32(3))
}

func TestTimeoutLeavesPendingGap(t *testing.T) {
	stub := &ledgerStub{block: true}
	client, gaps := newTestClient(stub, 1, 20*time.Millisecond)

	req := invoiceRequest()
	outcome, err := client.CreateAndPost(context.Background(), req)
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	require.ErrorIs(t, err, shared.ErrInfrastructure)
	require.Equal(t, OutcomePending, outcome.Status)
	require.NotEqual(t, uuid.Nil, outcome.GapID)

	gap := gaps.only()
	require.Equal(t, outcome.GapID, gap.ID)
	require.Equal(t, req.SourceID, gap.SourceID)
	require.Equal(t, "INV-0001", gap.SourceNumber)
	require.Equal(t, GapPending, gap.Status)
	require.True(t, gap.Retryable)
	require.Equal(t, 1, gap.Attempts)

	var payload journals.CreateRequest
	require.NoError(t, json.Unmarshal(gap.Payload, &payload))
	require.Len(t, payload.Lines, 2)
}

func TestAcquireHonoursDeadline(t *testing.T) {
	stub := &ledgerStub{block: true}
	client, _ := newTestClient(stub, 1, 30*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = client.CreateAndPost(context.Background(), invoiceRequest())
	}()
	time.Sleep(5 * time.Millisecond)
	_, err := client.CreateAndPost(context.Background(), invoiceRequest())
	require.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	<-done
}

func TestRejectionRecordsNonRetryableGap(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(&RemoteError{Status: http.StatusUnprocessableEntity})
	client, gaps := newTestClient(stub, 1, time.Second)

	outcome, err := client.CreateAndPost(context.Background(), invoiceRequest())
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.False(t, outcome.Posted())
	require.False(t, gaps.only().Retryable)
}

func TestInvalidRequestNeverReachesLedger(t *testing.T) {
	stub := &ledgerStub{}
	client, gaps := newTestClient(stub, 1, time.Second)

	req := invoiceRequest()
	req.Lines[0].Amount = money.Zero
	_, err := client.CreateAndPost(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, stub.requests)
	require.Equal(t, GapPending, gaps.only().Status)

	req = invoiceRequest()
	req.SourceID = uuid.Nil
	_, err = client.CreateAndPost(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = invoiceRequest()
	req.Lines[0].Amount = money.MustAmount("1000.005")
	_, err = client.CreateAndPost(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrInvalidLine)
	require.Empty(t, stub.requests)
}

type failureCounter struct{ modules []string }

func (f *failureCounter) ObserveIntegrationFailure(module string) { f.modules = append(f.modules, module) }

func TestGapEscalatesAfterMaxAttempts(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(errors.New("connection reset"))
	client, gaps := newTestClient(stub, 1, time.Second)
	client.WithMaxAttempts(2)
	counter := &failureCounter{}
	client.WithMetrics(counter)

	req := invoiceRequest()
	_, err := client.CreateAndPost(context.Background(), req)
	require.Error(t, err)
	_, err = client.Replay(context.Background(), gaps.only())
	require.Error(t, err)

	gap := gaps.only()
	require.Equal(t, 2, gap.Attempts)
	require.Equal(t, GapFailed, gap.Status)
	require.Equal(t, []string{SourceAPInvoice, SourceAPInvoice}, counter.modules)
}

func TestRepeatedCallerRetriesEscalate(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(errors.New("connection reset"))
	client, gaps := newTestClient(stub, 1, time.Second)
	client.WithMaxAttempts(3)

	req := invoiceRequest()
	for i := 0; i < 3; i++ {
		_, err := client.CreateAndPost(context.Background(), req)
		require.Error(t, err)
	}
	gap := gaps.only()
	require.Equal(t, 3, gap.Attempts)
	require.Equal(t, GapFailed, gap.Status)
}

func TestResolvedGapIsNotReopened(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(errors.New("connection reset"))
	client, gaps := newTestClient(stub, 1, time.Second)

	req := invoiceRequest()
	_, err := client.CreateAndPost(context.Background(), req)
	require.Error(t, err)
	require.NoError(t, gaps.MarkResolved(context.Background(), gaps.only().ID, "CN01-0000000001-2024"))

	_, err = client.CreateAndPost(context.Background(), req)
	require.Error(t, err)
	gap := gaps.only()
	require.Equal(t, GapResolved, gap.Status)
	require.Equal(t, 1, gap.Attempts)
}

func TestReconcilerResolvesPendingGaps(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(&RemoteError{Status: http.StatusServiceUnavailable})
	client, gaps := newTestClient(stub, 1, time.Second)
	for i := 0; i < 3; i++ {
		_, err := client.CreateAndPost(context.Background(), invoiceRequest())
		require.Error(t, err)
	}
	stub.setErr(nil)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	reconciler := NewReconciler(client, gaps, rdb, nil)

	report, err := reconciler.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, ReconcileReport{Attempted: 3, Resolved: 3}, report)
	_, pending, _ := gaps.List(context.Background(), GapFilter{Status: GapPending}, platformshared.NewPagination(1, 10, 0))
	require.Zero(t, pending)
	require.False(t, mr.Exists(platformshared.ReconcileLockKey("")))

	resolved := gaps.only()
	require.Equal(t, GapResolved, resolved.Status)
	require.NotEmpty(t, resolved.DocumentReference)
	_, err = client.Replay(context.Background(), resolved)
	require.ErrorIs(t, err, shared.ErrState)
}

type resolutionRecorder struct {
	err      error
	resolved []Gap
	outcomes []PostingOutcome
}

func (r *resolutionRecorder) GapResolved(_ context.Context, gap Gap, outcome PostingOutcome) error {
	if r.err != nil {
		return r.err
	}
	r.resolved = append(r.resolved, gap)
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func TestReplayNotifiesResolutionListener(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(errors.New("connection reset"))
	client, gaps := newTestClient(stub, 1, time.Second)
	listener := &resolutionRecorder{err: errors.New("subledger down")}
	client.WithResolutionListener(listener)

	req := invoiceRequest()
	_, err := client.CreateAndPost(context.Background(), req)
	require.Error(t, err)
	stub.setErr(nil)

	_, err = client.Replay(context.Background(), gaps.only())
	require.Error(t, err)
	require.Equal(t, GapPending, gaps.only().Status)

	listener.err = nil
	outcome, err := client.Replay(context.Background(), gaps.only())
	require.NoError(t, err)
	require.True(t, outcome.Posted())
	require.Len(t, listener.resolved, 1)
	require.Equal(t, SourceAPInvoice, listener.resolved[0].SourceModule)
	require.Equal(t, req.SourceID, listener.resolved[0].SourceID)
	require.Equal(t, outcome.DocumentReference, listener.outcomes[0].DocumentReference)
	require.Equal(t, GapResolved, gaps.only().Status)
}

func TestReconcilerKeepsLockTakenOverByAnotherWorker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client, _ := newTestClient(&ledgerStub{}, 1, time.Second)
	reconciler := NewReconciler(client, newMemoryGaps(), rdb, nil)

	release, ok, err := reconciler.lock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	// our lease expired and another sweep took the key
	require.NoError(t, mr.Set(platformshared.ReconcileLockKey(""), "other-worker"))
	release()
	v, err := mr.Get(platformshared.ReconcileLockKey(""))
	require.NoError(t, err)
	require.Equal(t, "other-worker", v)

	mr.Del(platformshared.ReconcileLockKey(""))
	release, ok, err = reconciler.lock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	release()
	require.False(t, mr.Exists(platformshared.ReconcileLockKey("")))
}

func TestReconcilerSkipsWhileLocked(t *testing.T) {
	stub := &ledgerStub{}
	client, gaps := newTestClient(stub, 1, time.Second)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, mr.Set(platformshared.ReconcileLockKey(""), "other-worker"))

	report, err := NewReconciler(client, gaps, rdb, nil).Run(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, report.Skipped)
	v, _ := mr.Get(platformshared.ReconcileLockKey(""))
	require.Equal(t, "other-worker", v)
}

func TestHTTPTransport(t *testing.T) {
	var unbalanced atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gl/v1/journal-entries" || r.Header.Get(platformshared.ActorHeader) != "ap-service" {
			http.NotFound(w, r)
			return
		}
		if unbalanced.Load() {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"title":"Unbalanced","status":422,"detail":"journal lines must balance"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + uuid.NewString() + `","document_reference":"CN01/0000000007/2024","document_number":"0000000007","status":"POSTED"}`))
	}))
	t.Cleanup(srv.Close)

	transport := NewHTTPTransport(srv.URL, breaker.New(breaker.Settings{Name: "gl"}, nil))
	ctx := platformshared.ContextWithActor(context.Background(), "ap-service")
	resp, err := transport.CreateAndPost(ctx, toCreateRequest(invoiceRequest()))
	require.NoError(t, err)
	require.Equal(t, "0000000007", resp.DocumentNumber)
	require.Equal(t, journals.StatusPosted, resp.Status)

	unbalanced.Store(true)
	_, err = transport.CreateAndPost(ctx, toCreateRequest(invoiceRequest()))
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, "journal lines must balance", remote.Problem.Detail)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.False(t, errors.Is(err, shared.ErrInfrastructure))
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	transport := NewHTTPTransport(url, breaker.New(breaker.Settings{Name: "gl", ConsecutiveFailures: 1, OpenTimeout: time.Minute}, nil))
	_, err := transport.CreateAndPost(context.Background(), toCreateRequest(invoiceRequest()))
	require.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	_, err = transport.CreateAndPost(context.Background(), toCreateRequest(invoiceRequest()))
	require.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	require.Contains(t, err.Error(), "circuit breaker is open")
}
