package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the API server configuration.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
	Stripe        StripeConfig
	Invoice       InvoiceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDIMART_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDIMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDIMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"MEDIMART_DB_DSN"`
	Driver     string `envconfig:"MEDIMART_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"MEDIMART_DB_SQLITE_PATH" default:"medimart.db"`

	LegacyHost     string `envconfig:"MEDIMART_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDIMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDIMART_DB_USER"`
	LegacyPassword string `envconfig:"MEDIMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDIMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDIMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDIMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDIMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEDIMART_REDIS_ADDR"`
	Password     string        `envconfig:"MEDIMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDIMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDIMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDIMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDIMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDIMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDIMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MEDIMART_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MEDIMART_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"MEDIMART_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"MEDIMART_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// AccessTokenTTL returns the identity token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MEDIMART_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MEDIMART_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MEDIMART_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MEDIMART_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MEDIMART_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"MEDIMART_PASSWORD_MIN_LENGTH" default:"6"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"MEDIMART_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit  int           `envconfig:"MEDIMART_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"MEDIMART_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	SignupWindow     time.Duration `envconfig:"MEDIMART_AUTH_RATE_LIMIT_SIGNUP_WINDOW" default:"5m"`
	SignupEmailLimit int           `envconfig:"MEDIMART_AUTH_RATE_LIMIT_SIGNUP_EMAIL_LIMIT" default:"3"`
	SignupIPLimit    int           `envconfig:"MEDIMART_AUTH_RATE_LIMIT_SIGNUP_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEDIMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEDIMART_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"MEDIMART_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MEDIMART_STRIPE_API_KEY"`
	Secret string `envconfig:"MEDIMART_STRIPE_SECRET"`
	Env    string `envconfig:"MEDIMART_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type InvoiceConfig struct {
	NumberPrefix   string        `envconfig:"MEDIMART_INVOICE_NUMBER_PREFIX" default:"INV"`
	IdempotencyTTL time.Duration `envconfig:"MEDIMART_IDEMPOTENCY_TTL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
