package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// StorefrontConfig configures the storefront client core and its CLI.
type StorefrontConfig struct {
	APIBaseURL           string        `envconfig:"MEDIMART_STOREFRONT_API_BASE_URL" default:"http://localhost:8080"`
	IdentityBaseURL      string        `envconfig:"MEDIMART_STOREFRONT_IDENTITY_BASE_URL"`
	StatePath            string        `envconfig:"MEDIMART_STOREFRONT_STATE_PATH" default:"medimart-storefront.db"`
	RestoreTimeout       time.Duration `envconfig:"MEDIMART_STOREFRONT_RESTORE_TIMEOUT" default:"2s"`
	HTTPTimeout          time.Duration `envconfig:"MEDIMART_STOREFRONT_HTTP_TIMEOUT" default:"15s"`
	TokenRefreshSkew     time.Duration `envconfig:"MEDIMART_STOREFRONT_TOKEN_REFRESH_SKEW" default:"1m"`
	StripePublishableKey string        `envconfig:"MEDIMART_STOREFRONT_STRIPE_PUBLISHABLE_KEY"`
	Currency             string        `envconfig:"MEDIMART_STOREFRONT_CURRENCY" default:"usd"`
	DefaultRole          string        `envconfig:"MEDIMART_STOREFRONT_DEFAULT_ROLE" default:"user"`
	LogLevel             string        `envconfig:"MEDIMART_STOREFRONT_LOG_LEVEL" default:"warn"`
}

func LoadStorefront() (*StorefrontConfig, error) {
	var cfg StorefrontConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing storefront config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.IdentityBaseURL == "" {
		cfg.IdentityBaseURL = cfg.APIBaseURL + "/identity/v1"
	}
	cfg.IdentityBaseURL = strings.TrimRight(cfg.IdentityBaseURL, "/")
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.RestoreTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvStorefrontRestoreTimeout)
	}
	return &cfg, nil
}
