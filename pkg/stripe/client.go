package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Intent is the subset of a Stripe PaymentIntent the storefront relies on.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	Metadata     map[string]string
}

// Succeeded reports whether funds were captured.
func (i Intent) Succeeded() bool {
	return i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// CreateIntentInput describes a new card payment intent.
type CreateIntentInput struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api         *stripe.Client
	environment string
}

// Option customizes the client, mainly for tests.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the transport used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// NewClient initializes Stripe with the configured secret key and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	client := &Client{
		api:         newAPI(apiKey, opts...),
		environment: env,
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return client, nil
}

// NewAPI builds a raw Stripe client for the given key. Storefront clients use
// it with a publishable key.
func NewAPI(key string, opts ...Option) *stripe.Client {
	return newAPI(key, opts...)
}

func newAPI(key string, opts ...Option) *stripe.Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL == "" && o.httpClient == nil {
		return stripe.NewClient(key)
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if o.baseURL != "" {
		backendCfg.URL = stripe.String(o.baseURL)
	}
	if o.httpClient != nil {
		backendCfg.HTTPClient = o.httpClient
	}
	return stripe.NewClient(key, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))
}

// CreateIntent opens a card PaymentIntent and returns its client secret.
func (c *Client) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	if in.Amount <= 0 {
		return Intent{}, fmt.Errorf("amount must be positive")
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(in.Amount),
		Currency:           stripe.String(strings.ToLower(in.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

// RetrieveIntent fetches the current state of a PaymentIntent.
func (c *Client) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	if strings.TrimSpace(id) == "" {
		return Intent{}, fmt.Errorf("intent id is required")
	}
	pi, err := c.api.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return Intent{}, fmt.Errorf("retrieve payment intent %s: %w", id, err)
	}
	return fromStripe(pi), nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// IsNotFound reports whether err is Stripe's resource_missing error.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

// IntentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromClientSecret(secret string) (string, error) {
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 || !strings.HasPrefix(secret, "pi_") {
		return "", fmt.Errorf("malformed client secret")
	}
	return secret[:idx], nil
}

func fromStripe(pi *stripe.PaymentIntent) Intent {
	if pi == nil {
		return Intent{}
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
