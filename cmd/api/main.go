package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/medimart/storefront/api/routes"
	"github.com/medimart/storefront/internal/auth"
	"github.com/medimart/storefront/internal/cart"
	"github.com/medimart/storefront/internal/invoices"
	"github.com/medimart/storefront/internal/medicines"
	"github.com/medimart/storefront/internal/payments"
	"github.com/medimart/storefront/internal/users"
	"github.com/medimart/storefront/pkg/auth/session"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/instance"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/medimart/storefront/pkg/migrate"
	"github.com/medimart/storefront/pkg/redis"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.Open(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	var gateway payments.IntentGateway
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		gateway = stripeClient
	} else {
		logg.Warn(ctx, "stripe api key not set, payment intents are disabled")
	}

	conn := dbClient.DB()

	identitySvc, err := auth.NewService(auth.ServiceParams{
		Repo:           auth.NewRepository(conn),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}
	usersSvc, err := users.NewService(users.NewRepository(conn))
	if err != nil {
		return err
	}
	catalog := medicines.NewRepository(conn)
	medicinesSvc, err := medicines.NewService(catalog)
	if err != nil {
		return err
	}
	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(conn),
		Catalog: catalog,
		Tx:      dbClient,
	})
	if err != nil {
		return err
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(conn),
		Gateway: gateway,
		Carts:   cartSvc,
		Logger:  logg,
	})
	if err != nil {
		return err
	}
	invoicesSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:      invoices.NewRepository(conn),
		Payments:  paymentsSvc,
		Sequencer: redisClient,
		Prefix:    cfg.Invoice.NumberPrefix,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"dialect":  dbClient.Dialect(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Store:     redisClient,
			Sessions:  sessionManager,
			Metrics:   metrics.NewHTTPMetrics(registry),
			Gatherer:  registry,
			Identity:  identitySvc,
			Users:     usersSvc,
			Medicines: medicinesSvc,
			Cart:      cartSvc,
			Payments:  paymentsSvc,
			Invoices:  invoicesSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
