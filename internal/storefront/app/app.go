// Package app assembles the storefront client core and owns its lifecycle.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/medimart/storefront/internal/storefront/backend"
	"github.com/medimart/storefront/internal/storefront/cart"
	"github.com/medimart/storefront/internal/storefront/cartsync"
	"github.com/medimart/storefront/internal/storefront/checkout"
	"github.com/medimart/storefront/internal/storefront/identity"
	"github.com/medimart/storefront/internal/storefront/invoice"
	"github.com/medimart/storefront/internal/storefront/kvstore"
	"github.com/medimart/storefront/internal/storefront/payment"
	"github.com/medimart/storefront/internal/storefront/session"
	"github.com/medimart/storefront/internal/storefront/usersync"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const closeIdleTimeout = 5 * time.Second

var ErrPaymentsNotConfigured = errors.New("payments are not configured: set MEDIMART_STOREFRONT_STRIPE_PUBLISHABLE_KEY")

type Option func(*options)

type options struct {
	store      kvstore.Store
	httpClient *http.Client
	payments   checkout.PaymentProvider
}

// WithStore replaces the SQLite state file, e.g. with kvstore.NewMemory().
func WithStore(store kvstore.Store) Option {
	return func(o *options) { o.store = store }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func WithPaymentProvider(p checkout.PaymentProvider) Option {
	return func(o *options) { o.payments = p }
}

type App struct {
	cfg  *config.StorefrontConfig
	logg *logger.Logger
	db   *db.Client

	Store    kvstore.Store
	Identity *identity.Client
	Backend  *backend.Client
	Sessions *session.Manager
	Cart     *cart.Store
	Sync     *cartsync.Service
	Checkout *checkout.Saga
	Invoices *invoice.Service
	Registry *prometheus.Registry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, cfg *config.StorefrontConfig, logg *logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	a := &App{cfg: cfg, logg: logg, Registry: prometheus.NewRegistry()}

	if o.store == nil {
		client, err := db.NewSQLite(ctx, cfg.StatePath, logg)
		if err != nil {
			return nil, fmt.Errorf("app: open state file: %w", err)
		}
		store, err := kvstore.NewSQLite(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.db = client
		o.store = store
	}
	a.Store = o.store

	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	var err error
	a.Identity, err = identity.New(cfg.IdentityBaseURL, a.Store, logg,
		identity.WithHTTPClient(o.httpClient),
		identity.WithRefreshSkew(cfg.TokenRefreshSkew),
	)
	if err != nil {
		return nil, a.closeOnError(err)
	}
	a.Backend, err = backend.New(cfg.APIBaseURL, backend.WithHTTPClient(o.httpClient))
	if err != nil {
		return nil, a.closeOnError(err)
	}

	defaultRole, err := enums.ParseRole(cfg.DefaultRole)
	if err != nil || !defaultRole.SelfAssignable() {
		defaultRole = enums.RoleUser
	}
	a.Sessions = session.NewManager(a.Identity, usersync.NewSyncer(a.Backend, logg), a.Store, logg, session.Options{
		RestoreTimeout: cfg.RestoreTimeout,
		DefaultRole:    defaultRole,
	})

	a.Cart, err = cart.NewStore(a.loadCart(ctx))
	if err != nil {
		logg.Warn(ctx, "discarding invalid persisted cart: "+err.Error())
		a.Cart, _ = cart.NewStore(nil)
	}
	a.Sync = cartsync.New(a.Sessions, a.Backend, a.Cart, logg, metrics.NewCartSyncMetrics(a.Registry))

	if o.payments == nil {
		if strings.TrimSpace(cfg.StripePublishableKey) != "" {
			provider, err := payment.NewStripeProvider(cfg.StripePublishableKey)
			if err != nil {
				return nil, a.closeOnError(err)
			}
			o.payments = provider
		} else {
			o.payments = unconfiguredPayments{}
		}
	}
	a.Checkout = checkout.New(a.Cart, a.Sessions, a.Backend, o.payments, logg, metrics.NewCheckoutMetrics(a.Registry), cfg.Currency,
		checkout.WithSyncBarrier(a.Sync),
	)
	a.Invoices = invoice.NewService(a.Backend, a.Sessions)
	return a, nil
}

// Start restores the session, launches the background loops and waits for
// the restored customer's server cart to be read.
func (a *App) Start(ctx context.Context) error {
	if err := a.Identity.Init(ctx); err != nil {
		a.logg.Error(ctx, "failed to load identity credentials", err)
	}
	if err := a.Sessions.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.Sync.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logg.Error(runCtx, "cart sync stopped", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		a.persistCart(runCtx)
	}()

	timeout := a.cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = closeIdleTimeout
	}
	loadCtx, cancelLoad := context.WithTimeout(ctx, timeout)
	defer cancelLoad()
	if err := a.Sync.WaitIdle(loadCtx); err != nil {
		a.logg.Warn(ctx, "server cart not loaded at start: "+err.Error())
	}
	return nil
}

// SignUpInput is the sign-up form; Role is user or seller.
type SignUpInput struct {
	Username string
	Email    string
	Password string
	PhotoURL string
	Role     enums.Role
}

func (a *App) SignUp(ctx context.Context, in SignUpInput) (session.Session, error) {
	if in.Role == "" {
		in.Role = enums.RoleUser
	}
	if !in.Role.SelfAssignable() {
		return session.Session{}, fmt.Errorf("role %q cannot be chosen at sign-up", in.Role)
	}
	since := a.Sessions.Generation()
	a.Sessions.PreferRole(in.Email, in.Role)
	p, err := a.Identity.SignUp(ctx, identity.SignUpInput{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: in.Username,
		PhotoURL:    in.PhotoURL,
	})
	if err != nil {
		return session.Session{}, err
	}
	return a.Sessions.AwaitSignIn(ctx, p.ID, since)
}

func (a *App) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	since := a.Sessions.Generation()
	p, err := a.Identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return session.Session{}, err
	}
	return a.Sessions.AwaitSignIn(ctx, p.ID, since)
}

// SignOut ends the session. The cart is kept.
func (a *App) SignOut(ctx context.Context) error {
	return a.Sessions.SignOut(ctx)
}

// Close flushes pending cart sync, stops background work and releases
// resources.
func (a *App) Close(ctx context.Context) error {
	var errs error
	if a.cancel != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, closeIdleTimeout)
		if err := a.Sync.WaitIdle(waitCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("waiting for cart sync: %w", err))
		}
		cancelWait()
		a.cancel()
		a.wg.Wait()
	}

	errs = multierr.Append(errs, a.saveCart(ctx, a.Cart.Snapshot()))
	a.Sessions.Close()
	a.Identity.Close()
	a.Cart.Close()
	if a.db != nil {
		errs = multierr.Append(errs, a.db.Close())
	}
	return errs
}

func (a *App) closeOnError(err error) error {
	if a.db != nil {
		return multierr.Append(err, a.db.Close())
	}
	return err
}

func (a *App) persistCart(ctx context.Context) {
	changes, unsubscribe := a.Cart.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := a.saveCart(ctx, change.Snapshot); err != nil {
				a.logg.Error(ctx, "failed to persist cart", err)
			}
		}
	}
}

func (a *App) saveCart(ctx context.Context, lines []cart.Line) error {
	if lines == nil {
		lines = []cart.Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return a.Store.Set(ctx, kvstore.KeyCart, raw)
}

func (a *App) loadCart(ctx context.Context) []cart.Line {
	raw, ok, err := a.Store.Get(ctx, kvstore.KeyCart)
	if err != nil || !ok {
		return nil
	}
	var lines []cart.Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		a.logg.Warn(ctx, "discarding unreadable persisted cart")
		return nil
	}
	return lines
}

type unconfiguredPayments struct{}

func (unconfiguredPayments) TokenizeCard(context.Context, checkout.CardDetails) (string, error) {
	return "", ErrPaymentsNotConfigured
}

func (unconfiguredPayments) ConfirmPaymentIntent(context.Context, string, string) (string, error) {
	return "", ErrPaymentsNotConfigured
}
