// Package checkout drives a cart through payment, payment recording and
// invoicing.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medimart/storefront/internal/storefront/cart"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/medimart/storefront/pkg/money"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/medimart/storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Reasons shown to the customer.
const (
	ReasonCardRejected      = "card rejected"
	ReasonIntentFailed      = "Failed to initiate payment."
	ReasonPaymentFailed     = "Payment failed"
	ReasonPaymentNotStored  = "payment captured but not recorded"
	ReasonInvoiceNotCreated = "invoice creation failed after payment"

	intentSucceeded = "succeeded"
)

var (
	ErrNothingToPay       = errors.New("checkout: cart total must be positive")
	ErrCheckoutInProgress = errors.New("checkout: a submission is already in progress")
)

// CardDetails is raw card input. It is handed to the payment provider and
// never stored.
type CardDetails struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

type PaymentProvider interface {
	TokenizeCard(ctx context.Context, card CardDetails) (string, error)
	ConfirmPaymentIntent(ctx context.Context, clientSecret, paymentMethodRef string) (string, error)
}

type Backend interface {
	CreatePaymentIntent(ctx context.Context, token string, req types.CreateIntentRequest) (*types.PaymentIntent, error)
	RecordPayment(ctx context.Context, token, idempotencyKey string, req types.RecordPaymentRequest) (*types.Payment, error)
	CreateInvoice(ctx context.Context, token, idempotencyKey string, req types.CreateInvoiceRequest) (*types.Invoice, error)
}

type Cart interface {
	Snapshot() []cart.Line
	Clear() bool
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SyncBarrier reports when the cart has settled with the server.
type SyncBarrier interface {
	WaitIdle(ctx context.Context) error
}

type Option func(*Saga)

// WithSyncBarrier makes Submit wait for b before drafting, so the intent is
// priced against the cart the server holds.
func WithSyncBarrier(b SyncBarrier) Option {
	return func(s *Saga) { s.barrier = b }
}

type Order struct {
	ID               string
	Lines            []cart.Line
	Total            decimal.Decimal
	AmountMinorUnits int64
	Currency         string
	PaymentMethodRef string
	ClientSecret     string
	PaymentIntentID  string
	PaymentRecordID  string
	InvoiceID        string
	State            State
	Failure          *Failure
}

func (o *Order) clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]cart.Line(nil), o.Lines...)
	if o.Failure != nil {
		f := *o.Failure
		c.Failure = &f
	}
	return &c
}

// Saga runs one checkout at a time.
type Saga struct {
	cart     Cart
	tokens   TokenSource
	backend  Backend
	payments PaymentProvider
	barrier  SyncBarrier
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
	currency string
	newID    func() string

	mu    sync.Mutex
	busy  bool
	order *Order
}

func New(c Cart, tokens TokenSource, backend Backend, payments PaymentProvider, logg *logger.Logger, m *metrics.CheckoutMetrics, currency string, opts ...Option) *Saga {
	if logg == nil {
		logg = logger.Nop()
	}
	if currency == "" {
		currency = string(enums.CurrencyUSD)
	}
	s := &Saga{
		cart:     c,
		tokens:   tokens,
		backend:  backend,
		payments: payments,
		logg:     logg,
		metrics:  m,
		currency: currency,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft snapshots the cart into a new order without charging anything.
func (s *Saga) Draft() (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrCheckoutInProgress
	}
	if f := s.stickyLocked(); f != nil {
		return s.order.clone(), f
	}
	o, err := s.draftLocked()
	if err != nil {
		return nil, err
	}
	return o.clone(), nil
}

// Submit drafts an order from the current cart and pays for it. A failure
// that needs support is sticky: later submits return it unchanged until
// Dismiss is called.
func (s *Saga) Submit(ctx context.Context, card CardDetails) (*Order, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if f := s.stickyLocked(); f != nil {
		o := s.order.clone()
		s.mu.Unlock()
		return o, f
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if s.barrier != nil {
		if err := s.barrier.WaitIdle(ctx); err != nil {
			return nil, fmt.Errorf("checkout: waiting for cart sync: %w", err)
		}
	}

	s.mu.Lock()
	order, err := s.draftLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	err = s.run(s.logg.WithOrderID(ctx, order.ID), order, card)

	s.mu.Lock()
	defer s.mu.Unlock()
	return order.clone(), err
}

// CanSubmit reports whether a submit would be accepted right now.
func (s *Saga) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.stickyLocked() != nil {
		return false
	}
	return cart.Total(s.cart.Snapshot()).IsPositive()
}

func (s *Saga) Current() *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.clone()
}

// Dismiss forgets a finished or failed order, including a sticky failure,
// once the customer has been pointed to support.
func (s *Saga) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		s.order = nil
	}
}

func (s *Saga) stickyLocked() *Failure {
	if s.order != nil && s.order.State == StateFailed && s.order.Failure != nil && s.order.Failure.Kind == FailureSupportRequired {
		return s.order.Failure
	}
	return nil
}

func (s *Saga) draftLocked() (*Order, error) {
	lines := s.cart.Snapshot()
	total := cart.Total(lines)
	if !total.IsPositive() {
		return nil, ErrNothingToPay
	}
	o := &Order{
		ID:               s.newID(),
		Lines:            lines,
		Total:            total,
		AmountMinorUnits: money.ToMinorUnits(total),
		Currency:         s.currency,
		State:            StateDrafting,
	}
	s.order = o
	return o, nil
}

func (s *Saga) run(ctx context.Context, o *Order, card CardDetails) error {
	if err := s.transition(o, StateAwaitingPaymentMethod); err != nil {
		return err
	}
	var methodRef string
	err := s.step(ctx, StateAwaitingPaymentMethod, func() error {
		ref, err := s.payments.TokenizeCard(ctx, card)
		if err == nil && ref == "" {
			err = errors.New("payment provider returned no payment method")
		}
		methodRef = ref
		return err
	})
	if err != nil {
		return s.fail(ctx, o, FailureRetryable, ReasonCardRejected, err)
	}
	s.update(func() { o.PaymentMethodRef = methodRef })

	if err := s.transition(o, StateCreatingIntent); err != nil {
		return err
	}
	var intent *types.PaymentIntent
	err = s.step(ctx, StateCreatingIntent, func() error {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return err
		}
		intent, err = s.backend.CreatePaymentIntent(ctx, token, types.CreateIntentRequest{
			AmountMinorUnits: o.AmountMinorUnits,
			Currency:         o.Currency,
		})
		if err == nil && (intent == nil || intent.ClientSecret == "") {
			err = errors.New("payment intent has no client secret")
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, o, FailureRetryable, ReasonIntentFailed, err)
	}
	intentID := intent.IntentID
	if intentID == "" {
		intentID, _ = pkgstripe.IntentIDFromClientSecret(intent.ClientSecret)
	}
	s.update(func() {
		o.ClientSecret = intent.ClientSecret
		o.PaymentIntentID = intentID
	})

	if err := s.transition(o, StateConfirmingPayment); err != nil {
		return err
	}
	err = s.step(ctx, StateConfirmingPayment, func() error {
		status, err := s.payments.ConfirmPaymentIntent(ctx, o.ClientSecret, methodRef)
		if err == nil && status != intentSucceeded {
			err = fmt.Errorf("payment intent status %q", status)
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, o, FailureRetryable, ReasonPaymentFailed, err)
	}

	if err := s.transition(o, StatePaid); err != nil {
		return err
	}
	s.logg.Info(ctx, "payment confirmed")

	if err := s.transition(o, StateRecordingPayment); err != nil {
		return err
	}
	var payment *types.Payment
	err = s.step(ctx, StateRecordingPayment, func() error {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return err
		}
		payment, err = s.backend.RecordPayment(ctx, token, o.ID+":payment", recordRequest(o))
		if err == nil && (payment == nil || payment.ID == "") {
			err = errors.New("payment record has no id")
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, o, FailureSupportRequired, ReasonPaymentNotStored, err)
	}
	s.update(func() { o.PaymentRecordID = payment.ID })

	if err := s.transition(o, StateCreatingInvoice); err != nil {
		return err
	}
	var invoice *types.Invoice
	err = s.step(ctx, StateCreatingInvoice, func() error {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return err
		}
		invoice, err = s.backend.CreateInvoice(ctx, token, o.ID+":invoice", types.CreateInvoiceRequest{PaymentID: payment.ID})
		if err == nil && (invoice == nil || invoice.ID == "") {
			err = errors.New("invoice has no id")
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, o, FailureSupportRequired, ReasonInvoiceNotCreated, err)
	}
	s.update(func() { o.InvoiceID = invoice.ID })

	if err := s.transition(o, StateComplete); err != nil {
		return err
	}
	s.cart.Clear()
	s.logg.Info(s.logg.WithField(ctx, "invoice_id", invoice.ID), "checkout complete")
	return nil
}

func recordRequest(o *Order) types.RecordPaymentRequest {
	items := make([]types.PaymentItemInput, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, types.PaymentItemInput{
			ProductID: l.ProductID,
			Name:      l.Name,
			Brand:     l.Brand,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return types.RecordPaymentRequest{
		IntentID:         o.PaymentIntentID,
		AmountMinorUnits: o.AmountMinorUnits,
		Currency:         o.Currency,
		Method:           string(enums.PaymentMethodCard),
		Status:           string(enums.PaymentStatusPaid),
		Items:            items,
	}
}

func (s *Saga) step(ctx context.Context, state State, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStep(string(state), time.Since(start), err)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "step", string(state)), "checkout step failed: "+err.Error())
	}
	return err
}

func (s *Saga) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// transition is the only way an order changes state.
func (s *Saga) transition(o *Order, next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(o.State, next) {
		return fmt.Errorf("checkout: illegal transition %s -> %s", o.State, next)
	}
	o.State = next
	return nil
}

func (s *Saga) fail(ctx context.Context, o *Order, kind FailureKind, reason string, cause error) error {
	s.mu.Lock()
	f := &Failure{Step: o.State, Kind: kind, Reason: reason, Err: cause}
	if !canTransition(o.State, StateFailed) {
		s.mu.Unlock()
		return fmt.Errorf("checkout: cannot fail from %s: %w", o.State, cause)
	}
	o.State = StateFailed
	o.Failure = f
	s.mu.Unlock()

	if kind == FailureSupportRequired {
		s.logg.Error(s.logg.WithField(ctx, "intent_id", o.PaymentIntentID), reason, cause)
	}
	return f
}
