package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "threadcraft"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "THREADCRAFT_APP_ENV"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	VNPay        VNPayConfig
	Stripe       StripeConfig
	Mail         MailConfig
	Orders       OrdersConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"THREADCRAFT_APP_ENV" required:"true"`
	Port         string `envconfig:"THREADCRAFT_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"THREADCRAFT_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"THREADCRAFT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"THREADCRAFT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"THREADCRAFT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"THREADCRAFT_DB_DSN"`
	Driver string `envconfig:"THREADCRAFT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"THREADCRAFT_DB_HOST"`
	Port     int    `envconfig:"THREADCRAFT_DB_PORT" default:"5432"`
	User     string `envconfig:"THREADCRAFT_DB_USER"`
	Password string `envconfig:"THREADCRAFT_DB_PASSWORD"`
	Name     string `envconfig:"THREADCRAFT_DB_NAME"`
	SSLMode  string `envconfig:"THREADCRAFT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"THREADCRAFT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"THREADCRAFT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"THREADCRAFT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"THREADCRAFT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"THREADCRAFT_DB_HOST": db.Host,
		"THREADCRAFT_DB_USER": db.User,
		"THREADCRAFT_DB_NAME": db.Name,
	}
	for key, value := range parts {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database config incomplete: set THREADCRAFT_DB_DSN or %s", strings.Join(missing, ", "))
	}

	db.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		db.Port,
		db.Name,
		db.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"THREADCRAFT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"THREADCRAFT_REDIS_ADDR"`
	Password     string        `envconfig:"THREADCRAFT_REDIS_PASSWORD"`
	DB           int           `envconfig:"THREADCRAFT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"THREADCRAFT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"THREADCRAFT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"THREADCRAFT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"THREADCRAFT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"THREADCRAFT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"THREADCRAFT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"THREADCRAFT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"THREADCRAFT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"THREADCRAFT_FEATURE_AUTO_MIGRATE" default:"false"`
}

// VNPayConfig carries the merchant credentials for the signed-redirect gateway.
type VNPayConfig struct {
	TmnCode    string `envconfig:"THREADCRAFT_VNPAY_TMN_CODE"`
	HashSecret string `envconfig:"THREADCRAFT_VNPAY_HASH_SECRET"`
	PayURL     string `envconfig:"THREADCRAFT_VNPAY_PAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL  string `envconfig:"THREADCRAFT_VNPAY_RETURN_URL"`
}

func (v VNPayConfig) Enabled() bool {
	return strings.TrimSpace(v.TmnCode) != "" && strings.TrimSpace(v.HashSecret) != ""
}

type StripeConfig struct {
	APIKey        string `envconfig:"THREADCRAFT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"THREADCRAFT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"THREADCRAFT_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"THREADCRAFT_STRIPE_SUCCESS_URL"`
	CancelURL     string `envconfig:"THREADCRAFT_STRIPE_CANCEL_URL"`
}

func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type MailConfig struct {
	FromAddress  string        `envconfig:"THREADCRAFT_MAIL_FROM" default:"orders@threadcraft.local"`
	MaxAttempts  int           `envconfig:"THREADCRAFT_MAIL_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"THREADCRAFT_MAIL_RETRY_BACKOFF" default:"2s"`
}

type OrdersConfig struct {
	PaymentTimeout   time.Duration `envconfig:"THREADCRAFT_ORDER_PAYMENT_TIMEOUT" default:"1h"`
	AutoDeliverAfter time.Duration `envconfig:"THREADCRAFT_ORDER_AUTO_DELIVER_AFTER" default:"168h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"THREADCRAFT_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"THREADCRAFT_CRON_LOCK_TTL" default:"10m"`
}
