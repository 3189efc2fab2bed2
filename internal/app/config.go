package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
	"github.com/xenking/rentkart/internal/jobs"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (RENTKART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RENTKART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	Policy      PolicyConfig
	Retry       txn.Policy
	Jobs        jobs.Config
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// PolicyConfig holds the marketplace rules. Ratios and percentages are
// decimal strings.
type PolicyConfig struct {
	ServiceFeePercent    string        `default:"0" usage:"Service fee in percent of the discounted subtotal" flag:"service-fee-percent"`
	MinPaymentRatio      string        `default:"1" usage:"Share of the rental amount a payment must cover" flag:"min-payment-ratio"`
	AllowUnsignedStart   bool          `default:"false" usage:"Allow starting a rental before both parties signed" flag:"allow-unsigned-start"`
	AllowPartialStart    bool          `default:"true" usage:"Allow starting a partially paid rental" flag:"allow-partial-start"`
	FullRefundNotice     time.Duration `default:"48h" usage:"Notice a renter must give for a full refund" flag:"full-refund-notice"`
	PartialRefundPercent string        `default:"50" usage:"Percent of the rental amount refunded on late renter cancellations" flag:"partial-refund-percent"`
	PaymentTimeout       time.Duration `default:"30m" usage:"How long an order may wait for payment" flag:"payment-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RENTKART",
		Files:     []string{"config.yaml", "/etc/rentkart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set RENTKART_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Retry.Attempts < 1 {
		return errors.Errorf("retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if _, err := c.OrderPolicy(); err != nil {
		return err
	}
	return nil
}

// OrderPolicy converts the policy section into lifecycle rules.
func (c *Config) OrderPolicy() (order.Policy, error) {
	p := order.Policy{
		AllowUnsignedStart: c.Policy.AllowUnsignedStart,
		AllowPartialStart:  c.Policy.AllowPartialStart,
		FullRefundNotice:   c.Policy.FullRefundNotice,
		PaymentTimeout:     c.Policy.PaymentTimeout,
		Retry:              c.Retry,
	}

	var err error
	if p.ServiceFeePercent, err = percent("service fee percent", c.Policy.ServiceFeePercent); err != nil {
		return order.Policy{}, err
	}
	if p.PartialRefundPercent, err = percent("partial refund percent", c.Policy.PartialRefundPercent); err != nil {
		return order.Policy{}, err
	}
	if p.MinPaymentRatio, err = decimal.NewFromString(c.Policy.MinPaymentRatio); err != nil {
		return order.Policy{}, errors.Wrap(err, "min payment ratio")
	}
	if p.MinPaymentRatio.IsNegative() || p.MinPaymentRatio.GreaterThan(decimal.NewFromInt(1)) {
		return order.Policy{}, errors.Errorf("min payment ratio %s out of [0, 1]", p.MinPaymentRatio)
	}
	return p, nil
}

func percent(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, name)
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, errors.Errorf("%s %s out of [0, 100]", name, v)
	}
	return v, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's RENTKART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
