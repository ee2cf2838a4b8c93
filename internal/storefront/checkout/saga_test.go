package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medimart/storefront/internal/storefront/cart"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/medimart/storefront/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubTokens struct{}

func (stubTokens) Token(context.Context) (string, error) { return "tok", nil }

type stubPayments struct {
	mu          sync.Mutex
	tokenizeErr error
	status      string
	confirmErr  error
	tokenizes   int
	gate        chan struct{}
}

func (s *stubPayments) TokenizeCard(ctx context.Context, card CardDetails) (string, error) {
	s.mu.Lock()
	s.tokenizes++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if s.tokenizeErr != nil {
		return "", s.tokenizeErr
	}
	return "pm_123", nil
}

func (s *stubPayments) ConfirmPaymentIntent(ctx context.Context, secret, method string) (string, error) {
	if s.confirmErr != nil {
		return "", s.confirmErr
	}
	if s.status != "" {
		return s.status, nil
	}
	return "succeeded", nil
}

type stubBackend struct {
	mu            sync.Mutex
	intent        *types.PaymentIntent
	intentReq     types.CreateIntentRequest
	recordErr     error
	invoiceErr    error
	recordKeys    []string
	invoiceKeys   []string
	recordRequest types.RecordPaymentRequest
}

func (s *stubBackend) CreatePaymentIntent(ctx context.Context, token string, req types.CreateIntentRequest) (*types.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intentReq = req
	if s.intent != nil {
		return s.intent, nil
	}
	return &types.PaymentIntent{IntentID: "pi_1", ClientSecret: "pi_1_secret_x"}, nil
}

func (s *stubBackend) RecordPayment(ctx context.Context, token, key string, req types.RecordPaymentRequest) (*types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordKeys = append(s.recordKeys, key)
	s.recordRequest = req
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &types.Payment{ID: "pay-1"}, nil
}

func (s *stubBackend) CreateInvoice(ctx context.Context, token, key string, req types.CreateInvoiceRequest) (*types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoiceKeys = append(s.invoiceKeys, key)
	if s.invoiceErr != nil {
		return nil, s.invoiceErr
	}
	return &types.Invoice{ID: "inv-1", PaymentID: req.PaymentID}, nil
}

type fixture struct {
	cart     *cart.Store
	backend  *stubBackend
	payments *stubPayments
	saga     *Saga
	registry *prometheus.Registry
}

func newFixture(t *testing.T, lines ...cart.Line) *fixture {
	t.Helper()
	store, err := cart.NewStore(lines)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	f := &fixture{cart: store, backend: &stubBackend{}, payments: &stubPayments{}, registry: reg}
	f.saga = New(store, stubTokens{}, f.backend, f.payments, nil, metrics.NewCheckoutMetrics(reg), "usd")
	ids := 0
	f.saga.newID = func() string {
		ids++
		return []string{"order-1", "order-2", "order-3"}[ids-1]
	}
	return f
}

func line(id, price string, qty int) cart.Line {
	return cart.Line{ProductID: id, Name: "Med " + id, Brand: "Acme", UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

var card = CardDetails{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123"}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t, line("a", "5.25", 2), line("b", "5.00", 1))
	require.True(t, f.saga.CanSubmit())

	order, err := f.saga.Submit(context.Background(), card)
	require.NoError(t, err)
	require.Equal(t, StateComplete, order.State)
	require.Equal(t, "inv-1", order.InvoiceID)
	require.Equal(t, "pay-1", order.PaymentRecordID)
	require.Equal(t, "pi_1", order.PaymentIntentID)
	require.Equal(t, "pm_123", order.PaymentMethodRef)
	require.True(t, order.Total.Equal(decimal.RequireFromString("15.50")))

	require.EqualValues(t, 1550, f.backend.intentReq.AmountMinorUnits)
	require.Equal(t, "usd", f.backend.intentReq.Currency)
	require.Equal(t, []string{"order-1:payment"}, f.backend.recordKeys)
	require.Equal(t, []string{"order-1:invoice"}, f.backend.invoiceKeys)
	require.Equal(t, "card", f.backend.recordRequest.Method)
	require.Equal(t, "paid", f.backend.recordRequest.Status)
	require.Len(t, f.backend.recordRequest.Items, 2)

	require.Empty(t, f.cart.Snapshot(), "cart is cleared on completion")
	require.Positive(t, testutil.CollectAndCount(f.registry, "medimart_checkout_step_total"))
}

func TestZeroTotalBlocksCheckout(t *testing.T) {
	f := newFixture(t, line("free", "0", 1))
	require.False(t, f.saga.CanSubmit())

	_, err := f.saga.Draft()
	require.ErrorIs(t, err, ErrNothingToPay)
	_, err = f.saga.Submit(context.Background(), card)
	require.ErrorIs(t, err, ErrNothingToPay)
	require.Nil(t, f.saga.Current())
	require.Zero(t, f.payments.tokenizes)
}

func TestRetryableFailures(t *testing.T) {
	cases := map[string]struct {
		setup  func(f *fixture)
		step   State
		reason string
	}{
		"card rejected": {
			setup:  func(f *fixture) { f.payments.tokenizeErr = errors.New("invalid number") },
			step:   StateAwaitingPaymentMethod,
			reason: ReasonCardRejected,
		},
		"intent without secret": {
			setup:  func(f *fixture) { f.backend.intent = &types.PaymentIntent{IntentID: "pi_1"} },
			step:   StateCreatingIntent,
			reason: ReasonIntentFailed,
		},
		"confirmation not succeeded": {
			setup:  func(f *fixture) { f.payments.status = "requires_payment_method" },
			step:   StateConfirmingPayment,
			reason: ReasonPaymentFailed,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, line("a", "3.00", 1))
			tc.setup(f)

			order, err := f.saga.Submit(context.Background(), card)
			var failure *Failure
			require.ErrorAs(t, err, &failure)
			require.True(t, failure.Retryable())
			require.Equal(t, tc.step, failure.Step)
			require.Equal(t, tc.reason, failure.Reason)
			require.Equal(t, StateFailed, order.State)
			require.Len(t, f.cart.Snapshot(), 1)
			require.Empty(t, f.backend.recordKeys)

			require.True(t, f.saga.CanSubmit(), "retryable failures allow a new attempt")
			f.payments.tokenizeErr, f.payments.status, f.backend.intent = nil, "", nil
			order, err = f.saga.Submit(context.Background(), card)
			require.NoError(t, err)
			require.Equal(t, "order-2", order.ID, "a retry drafts a new order")
		})
	}
}

func TestRecordPaymentFailureIsSticky(t *testing.T) {
	f := newFixture(t, line("a", "3.00", 1))
	f.backend.recordErr = errors.New("500")

	order, err := f.saga.Submit(context.Background(), card)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, FailureSupportRequired, failure.Kind)
	require.Equal(t, ReasonPaymentNotStored, failure.Reason)
	require.Equal(t, StateRecordingPayment, failure.Step)
	require.Equal(t, StateFailed, order.State)
	require.Len(t, f.cart.Snapshot(), 1, "cart is kept after a support failure")
	require.Empty(t, f.backend.invoiceKeys)

	require.False(t, f.saga.CanSubmit())
	again, err := f.saga.Submit(context.Background(), card)
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonPaymentNotStored, failure.Reason)
	require.Equal(t, order.ID, again.ID)
	require.Equal(t, 1, f.payments.tokenizes, "sticky failure does not charge again")

	f.saga.Dismiss()
	require.True(t, f.saga.CanSubmit())
}

func TestInvoiceFailureNeedsSupport(t *testing.T) {
	f := newFixture(t, line("a", "3.00", 1))
	f.backend.invoiceErr = errors.New("timeout")

	_, err := f.saga.Submit(context.Background(), card)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, FailureSupportRequired, failure.Kind)
	require.Equal(t, ReasonInvoiceNotCreated, failure.Reason)
	require.Equal(t, "pay-1", f.saga.Current().PaymentRecordID)
	require.Len(t, f.cart.Snapshot(), 1)
}

func TestConcurrentSubmitRejected(t *testing.T) {
	f := newFixture(t, line("a", "3.00", 1))
	gate := make(chan struct{})
	f.payments.gate = gate

	done := make(chan error, 1)
	go func() {
		_, err := f.saga.Submit(context.Background(), card)
		done <- err
	}()
	require.Eventually(t, func() bool {
		f.payments.mu.Lock()
		defer f.payments.mu.Unlock()
		return f.payments.tokenizes == 1
	}, time.Second, 5*time.Millisecond)

	require.False(t, f.saga.CanSubmit())
	_, err := f.saga.Submit(context.Background(), card)
	require.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = f.saga.Draft()
	require.ErrorIs(t, err, ErrCheckoutInProgress)

	close(gate)
	require.NoError(t, <-done)
}

type gatedBarrier struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (b *gatedBarrier) WaitIdle(ctx context.Context) error {
	close(b.entered)
	select {
	case <-b.release:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSubmitWaitsForCartSync(t *testing.T) {
	f := newFixture(t, line("a", "5.00", 1))
	barrier := &gatedBarrier{entered: make(chan struct{}), release: make(chan struct{})}
	WithSyncBarrier(barrier)(f.saga)

	type outcome struct {
		order *Order
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		o, err := f.saga.Submit(context.Background(), card)
		done <- outcome{o, err}
	}()

	<-barrier.entered
	require.False(t, f.saga.CanSubmit())
	// The push in flight lands a second unit before the barrier opens.
	require.True(t, f.cart.Increment("a"))
	f.payments.mu.Lock()
	require.Zero(t, f.payments.tokenizes)
	f.payments.mu.Unlock()
	f.backend.mu.Lock()
	require.Zero(t, f.backend.intentReq.AmountMinorUnits)
	f.backend.mu.Unlock()

	close(barrier.release)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, StateComplete, res.order.State)
	require.EqualValues(t, 1000, f.backend.intentReq.AmountMinorUnits)
	require.Equal(t, 2, res.order.Lines[0].Quantity)
}

func TestSubmitFailsWhenCartSyncDoesNotSettle(t *testing.T) {
	f := newFixture(t, line("a", "5.00", 1))
	f.saga.barrier = &gatedBarrier{entered: make(chan struct{}), release: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	order, err := f.saga.Submit(ctx, card)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, order)
	require.Nil(t, f.saga.Current())
	require.True(t, f.saga.CanSubmit())
	require.Zero(t, f.payments.tokenizes)
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	order := []State{
		StateDrafting, StateAwaitingPaymentMethod, StateCreatingIntent, StateConfirmingPayment,
		StatePaid, StateRecordingPayment, StateCreatingInvoice, StateComplete,
	}
	for i, from := range order {
		for j, to := range order {
			want := j == i+1
			require.Equal(t, want, canTransition(from, to), "%s -> %s", from, to)
		}
		require.Equal(t, !from.Terminal(), canTransition(from, StateFailed))
	}
	require.False(t, canTransition(StateFailed, StateDrafting))
}
