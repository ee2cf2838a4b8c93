// Package cartsync keeps the local cart and the server cart converged for
// customer sessions.
package cartsync

import (
	"context"
	"fmt"
	"slices"

	"github.com/medimart/storefront/internal/storefront/cart"
	"github.com/medimart/storefront/internal/storefront/session"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/medimart/storefront/pkg/types"
)

type SessionSource interface {
	Subscribe() (<-chan session.Event, func())
	Token(ctx context.Context) (string, error)
}

type CartAPI interface {
	GetCart(ctx context.Context, token string) (*types.Cart, error)
	ReplaceCart(ctx context.Context, token string, items []types.CartItemInput) (*types.Cart, error)
}

type CartStore interface {
	Subscribe() (<-chan cart.Change, func())
	Snapshot() []cart.Line
	Replace(lines []cart.Line, origin cart.Origin) error
}

type opKind string

const (
	opLoad opKind = "load"
	opPush opKind = "push"
)

type result struct {
	kind       opKind
	generation uint64
	cart       *types.Cart
	err        error
}

// Service runs the sync loop. All mutable sync state lives on the Run
// goroutine.
type Service struct {
	sessions SessionSource
	api      CartAPI
	store    CartStore
	logg     *logger.Logger
	metrics  *metrics.CartSyncMetrics

	idleReqs chan chan struct{}
	stopped  chan struct{}
}

func New(sessions SessionSource, api CartAPI, store CartStore, logg *logger.Logger, m *metrics.CartSyncMetrics) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		sessions: sessions,
		api:      api,
		store:    store,
		logg:     logg,
		metrics:  m,
		idleReqs: make(chan chan struct{}),
		stopped:  make(chan struct{}),
	}
}

type loopState struct {
	initialized bool
	generation  uint64
	eligible    bool
	loaded      bool
	loading     bool
	pushing     bool
	pending     bool
	base        []types.CartItemInput
	workCtx     context.Context
	cancel      context.CancelFunc
	waiters     []chan struct{}
}

func (st *loopState) idle() bool {
	return !st.loading && !st.pushing && !st.pending
}

// Run processes session events, cart changes and network results until ctx
// is done. It must be called at most once.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)

	sessionEvents, unsubscribeSessions := s.sessions.Subscribe()
	defer unsubscribeSessions()
	changes, unsubscribeChanges := s.store.Subscribe()
	defer unsubscribeChanges()

	results := make(chan result)
	st := &loopState{workCtx: ctx, cancel: func() {}}
	defer func() { st.cancel() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sessionEvents:
			if !ok {
				sessionEvents = nil
				continue
			}
			s.onSession(ctx, st, ev, results)
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.onChange(st, change, results)
		case r := <-results:
			s.onResult(ctx, st, r, results)
		case waiter := <-s.idleReqs:
			// Apply anything already queued so the answer reflects it.
			select {
			case ev, ok := <-sessionEvents:
				if ok {
					s.onSession(ctx, st, ev, results)
				}
			default:
			}
			select {
			case change, ok := <-changes:
				if ok {
					s.onChange(st, change, results)
				}
			default:
			}
			st.waiters = append(st.waiters, waiter)
		}

		if st.idle() && len(st.waiters) > 0 {
			for _, w := range st.waiters {
				close(w)
			}
			st.waiters = nil
		}
	}
}

// WaitIdle blocks until no load or push is in flight or pending. It returns
// immediately once Run has exited.
func (s *Service) WaitIdle(ctx context.Context) error {
	waiter := make(chan struct{})
	select {
	case s.idleReqs <- waiter:
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-waiter:
		return nil
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) onSession(ctx context.Context, st *loopState, ev session.Event, results chan<- result) {
	if st.initialized && ev.Generation == st.generation {
		return
	}
	st.initialized = true

	st.cancel()
	st.workCtx, st.cancel = context.WithCancel(ctx)
	st.generation = ev.Generation
	st.loaded, st.loading, st.pushing, st.pending = false, false, false, false
	st.base = nil
	st.eligible = ev.Session != nil && ev.Session.Role == enums.RoleUser && ev.Session.BackendID != ""
	if !st.eligible {
		return
	}
	st.base = toItems(s.store.Snapshot())

	s.logg.Debug(s.logg.WithUserID(ctx, ev.Session.BackendID), "loading server cart")
	s.startLoad(st, results)
}

// onChange pushes local edits once the server cart has been read. Until then
// pushes stay off; after a failed load the next edit retries the load.
func (s *Service) onChange(st *loopState, change cart.Change, results chan<- result) {
	if change.Origin != cart.OriginLocal || !st.eligible {
		return
	}
	if !st.loaded {
		if !st.loading {
			s.startLoad(st, results)
		}
		return
	}
	s.requestPush(st, results)
}

func (s *Service) startLoad(st *loopState, results chan<- result) {
	st.loading = true
	go s.load(st.workCtx, st.generation, results)
}

func (s *Service) onResult(ctx context.Context, st *loopState, r result, results chan<- result) {
	if r.generation != st.generation {
		s.metrics.IncDiscarded()
		s.logg.Debug(ctx, fmt.Sprintf("discarding %s result from superseded session", r.kind))
		return
	}

	switch r.kind {
	case opLoad:
		st.loading = false
		s.metrics.Observe(string(opLoad), r.err)
		if r.err != nil {
			s.logg.Error(ctx, "server cart load failed", r.err)
			return
		}
		st.loaded = true
		// The server only wins over what the cart held when the session
		// started. Edits made while the load was in flight are pushed instead.
		if !slices.Equal(toItems(s.store.Snapshot()), st.base) {
			s.requestPush(st, results)
			return
		}
		if lines := fromServer(r.cart); len(lines) > 0 {
			if err := s.store.Replace(lines, cart.OriginServer); err != nil {
				s.logg.Error(ctx, "server cart rejected by local store", err)
			}
			return
		}
		if len(s.store.Snapshot()) > 0 {
			s.requestPush(st, results)
		}
	case opPush:
		st.pushing = false
		s.metrics.Observe(string(opPush), r.err)
		if r.err != nil {
			s.logg.Error(ctx, "server cart push failed", r.err)
		}
		if st.pending {
			st.pending = false
			s.requestPush(st, results)
		}
	}
}

// requestPush starts a push of the latest snapshot, or marks one pending if
// a push is already in flight.
func (s *Service) requestPush(st *loopState, results chan<- result) {
	if st.pushing {
		st.pending = true
		return
	}
	st.pushing = true
	go s.push(st.workCtx, st.generation, toItems(s.store.Snapshot()), results)
}

func (s *Service) load(ctx context.Context, generation uint64, results chan<- result) {
	r := result{kind: opLoad, generation: generation}
	token, err := s.sessions.Token(ctx)
	if err == nil {
		r.cart, r.err = s.api.GetCart(ctx, token)
	} else {
		r.err = err
	}
	deliver(ctx, results, r)
}

func (s *Service) push(ctx context.Context, generation uint64, items []types.CartItemInput, results chan<- result) {
	r := result{kind: opPush, generation: generation}
	token, err := s.sessions.Token(ctx)
	if err == nil {
		r.cart, r.err = s.api.ReplaceCart(ctx, token, items)
	} else {
		r.err = err
	}
	deliver(ctx, results, r)
}

// deliver hands r to the loop unless the work was cancelled, in which case
// the loop has already moved on.
func deliver(ctx context.Context, results chan<- result, r result) {
	select {
	case results <- r:
	case <-ctx.Done():
	}
}

func fromServer(c *types.Cart) []cart.Line {
	if c == nil {
		return nil
	}
	lines := make([]cart.Line, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Product.ID == "" || item.Quantity < 1 {
			continue
		}
		lines = append(lines, cart.Line{
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Brand:     item.Product.Brand,
			Image:     item.Product.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func toItems(lines []cart.Line) []types.CartItemInput {
	items := make([]types.CartItemInput, 0, len(lines))
	for _, l := range lines {
		items = append(items, types.CartItemInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}
