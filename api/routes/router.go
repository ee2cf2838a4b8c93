package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medimart/storefront/api/controllers"
	"github.com/medimart/storefront/api/middleware"
	"github.com/medimart/storefront/internal/auth"
	"github.com/medimart/storefront/internal/cart"
	"github.com/medimart/storefront/internal/invoices"
	"github.com/medimart/storefront/internal/medicines"
	"github.com/medimart/storefront/internal/payments"
	"github.com/medimart/storefront/internal/users"
	"github.com/medimart/storefront/pkg/auth/session"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	pkgredis "github.com/medimart/storefront/pkg/redis"
)

// Store is the redis surface the router needs: rate-limit counters,
// idempotency records and health pings.
type Store interface {
	pkgredis.IdempotencyStore
	controllers.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Store    Store
	Sessions session.AccessSessionChecker
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer

	Identity  auth.Service
	Users     users.Service
	Medicines medicines.Service
	Cart      cart.Service
	Payments  payments.Service
	Invoices  invoices.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.Metrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)
	idempotent := middleware.Idempotency(d.Store, cfg.Invoice.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{"db": d.DB, "redis": d.Store}))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/identity/v1", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(signupPolicy, d.Store, logg)).Post("/signup", controllers.IdentitySignUp(d.Identity, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, d.Store, logg)).Post("/login", controllers.IdentityLogin(d.Identity, logg))
		r.Post("/refresh", controllers.IdentityRefresh(d.Identity, logg))
		r.Post("/logout", controllers.IdentityLogout(d.Identity, cfg.JWT, logg))
		r.With(middleware.Auth(cfg.JWT, d.Sessions, logg)).Get("/me", controllers.IdentityMe(d.Identity, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/medicines", controllers.MedicineList(d.Medicines, logg))
		r.Get("/medicines/{medicineId}", controllers.MedicineGet(d.Medicines, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Use(middleware.ResolveUser(d.Users, logg))

			r.Get("/users/by-identity/{identityId}", controllers.UserByIdentity(d.Users, logg))
			r.Post("/users", controllers.UserCreate(d.Users, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))

				r.Get("/cart", controllers.CartFetch(d.Cart, logg))
				r.Put("/cart", controllers.CartReplace(d.Cart, logg))

				r.Post("/payments/create-intent", controllers.PaymentCreateIntent(d.Payments, logg))
				r.With(idempotent).Post("/payments", controllers.PaymentRecord(d.Payments, logg))
				r.Get("/payments", controllers.PaymentList(d.Payments, logg))

				r.With(idempotent).Post("/invoice", controllers.InvoiceCreate(d.Invoices, logg))
				r.Get("/invoice", controllers.InvoiceList(d.Invoices, logg))
				r.Get("/invoice/{invoiceId}", controllers.InvoiceGet(d.Invoices, logg))

				r.With(middleware.RequireRole(logg, enums.RoleAdmin)).Get("/admin/payments", controllers.AdminPaymentList(d.Payments, logg))
			})
		})
	})

	return r
}
