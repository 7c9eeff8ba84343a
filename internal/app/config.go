package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/notify"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the configuration of every binary, loadable from environment
// variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	AdminEmail   string `usage:"Shop administrator address notified of new orders" flag:"admin-email"`
	Checkout     CheckoutConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Mail         MailConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CheckoutConfig bounds the checkout unit of work.
type CheckoutConfig struct {
	Timeout     time.Duration `default:"10s" usage:"Deadline of one checkout including retries"`
	MaxAttempts int           `default:"3" usage:"Attempts of a checkout transaction aborted by contention"`
	RetryAfter  int           `default:"1" usage:"Retry-After seconds advertised on transient checkout failures"`
}

// RedisConfig configures the idempotency-key store. Empty Addr disables it.
type RedisConfig struct {
	Addr           string        `default:"" usage:"Redis address; empty disables Idempotency-Key support"`
	Password       string        `default:"" usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long checkout responses are replayable"`
	PendingTTL     time.Duration `default:"1m" usage:"How long an unfinished checkout holds its key"`
}

// KafkaConfig configures order event publishing. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty disables order events"`
	Topic   string   `default:"orders.placed" usage:"Order events topic"`
	GroupID string   `default:"notification-relay" usage:"Consumer group of the notification relay"`
}

// MailConfig configures Brevo order emails. Empty BrevoAPIKey disables them.
type MailConfig struct {
	BrevoAPIKey       string        `default:"" usage:"Brevo API key"`
	BaseURL           string        `default:"https://api.brevo.com" usage:"Brevo API base URL"`
	FromName          string        `default:"Storefront" usage:"Sender name"`
	FromEmail         string        `default:"" usage:"Sender address"`
	AdminName         string        `default:"Storefront admin" usage:"Administrator display name"`
	BankName          string        `default:"" usage:"Bank shown in payment instructions"`
	BankAccountName   string        `default:"" usage:"Account name shown in payment instructions"`
	BankAccountNumber string        `default:"" usage:"Account number shown in payment instructions"`
	Timeout           time.Duration `default:"10s" usage:"Brevo request timeout"`
}

// Enabled reports whether emails can be sent.
func (c MailConfig) Enabled() bool {
	return c.BrevoAPIKey != "" && c.FromEmail != ""
}

// MailerConfig converts c into the mailer's configuration.
func (c MailConfig) MailerConfig() notify.MailerConfig {
	return notify.MailerConfig{
		BaseURL:   c.BaseURL,
		APIKey:    c.BrevoAPIKey,
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		AdminName: c.AdminName,
		Bank: notify.BankDetails{
			BankName:      c.BankName,
			AccountName:   c.BankAccountName,
			AccountNumber: c.BankAccountNumber,
		},
		Timeout: c.Timeout,
	}
}

// NotifyConfig controls the asynchronous notification dispatcher.
type NotifyConfig struct {
	QueueSize    int           `default:"256" usage:"Pending notifications kept in memory"`
	MaxRetries   int           `default:"3" usage:"Delivery retries per notification"`
	DrainTimeout time.Duration `default:"5s" usage:"Time allowed to flush notifications on shutdown"`
	// EmailViaRelay leaves emails to notification-relay when Kafka is enabled.
	EmailViaRelay bool `default:"false" usage:"Send emails from notification-relay instead of the API server"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults maps the standard DATABASE_URL and PORT variables
// set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// validateServer checks what the API server cannot start without.
func (c *Config) validateServer() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("API key pepper is required: set STORE_API_KEY_PEPPER")
	case c.Checkout.MaxAttempts < 1:
		return errors.Errorf("checkout max attempts must be positive, got %d", c.Checkout.MaxAttempts)
	}
	return nil
}

// validateRelay checks what notification-relay cannot start without.
func (c *Config) validateRelay() error {
	switch {
	case len(c.Kafka.Brokers) == 0:
		return errors.New("kafka brokers are required")
	case !c.Mail.Enabled():
		return errors.New("brevo API key and sender address are required")
	}
	return nil
}
