package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/pkg/pagination"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BOOKSTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BOOKSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Pricing     PricingConfig
	Catalog     CatalogConfig
	Orders      OrdersConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret for bearer tokens (BOOKSTORE_AUTH_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `default:"bookstore" usage:"Required token issuer, empty accepts any"`
}

// PricingConfig holds the cart valuation constants as decimal strings.
type PricingConfig struct {
	TaxRate               string `default:"0.10" usage:"Tax rate applied to the subtotal"`
	FreeShippingThreshold string `default:"50.00" usage:"Subtotal from which shipping is free"`
	ShippingCost          string `default:"5.99" usage:"Flat shipping cost below the threshold"`
}

// CatalogConfig controls book listing.
type CatalogConfig struct {
	DefaultPageSize int `default:"12" usage:"Books per page when no limit is given"`
	MaxPageSize     int `default:"50" usage:"Largest page a client may request"`
}

// OrdersConfig controls order lifecycle and listing.
type OrdersConfig struct {
	CancellableFrom []string `default:"PENDING,PROCESSING,SHIPPED" usage:"Statuses an order may be cancelled from"`
	DefaultPageSize int      `default:"10" usage:"Orders per page when no limit is given"`
	MaxPageSize     int      `default:"50" usage:"Largest page a client may request"`
}

// RateLimitConfig controls the per-user sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "BOOKSTORE",
		Files:     []string{"config.yaml", "/etc/bookstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the BOOKSTORE_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks required settings and parses the business constants.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BOOKSTORE_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required: set BOOKSTORE_AUTH_JWT_SECRET or JWT_SECRET")
	}
	if _, err := c.CartPricing(); err != nil {
		return err
	}
	if _, err := c.CatalogPaging(); err != nil {
		return err
	}
	if _, err := c.OrderConfig(); err != nil {
		return err
	}
	return nil
}

// CatalogPaging returns the book listing page bounds.
func (c *Config) CatalogPaging() (pagination.Params, error) {
	p, err := pageBounds(c.Catalog.DefaultPageSize, c.Catalog.MaxPageSize)
	if err != nil {
		return p, errors.Wrap(err, "catalog")
	}
	return p, nil
}

func pageBounds(def, maxSize int) (pagination.Params, error) {
	if def < 1 || maxSize < def {
		return pagination.Params{}, errors.Errorf("page sizes must satisfy 1 <= default (%d) <= max (%d)", def, maxSize)
	}
	return pagination.Params{DefaultLimit: def, MaxLimit: maxSize}, nil
}

// CartPricing parses the pricing constants.
func (c *Config) CartPricing() (cart.Pricing, error) {
	var (
		p   cart.Pricing
		err error
	)
	if p.TaxRate, err = decimal.NewFromString(c.Pricing.TaxRate); err != nil {
		return p, errors.Wrapf(err, "parse tax rate %q", c.Pricing.TaxRate)
	}
	if p.FreeShippingThreshold, err = decimal.NewFromString(c.Pricing.FreeShippingThreshold); err != nil {
		return p, errors.Wrapf(err, "parse free shipping threshold %q", c.Pricing.FreeShippingThreshold)
	}
	if p.ShippingCost, err = decimal.NewFromString(c.Pricing.ShippingCost); err != nil {
		return p, errors.Wrapf(err, "parse shipping cost %q", c.Pricing.ShippingCost)
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrap(err, "pricing")
	}
	return p, nil
}

// OrderConfig builds the order service configuration.
func (c *Config) OrderConfig() (order.Config, error) {
	pricing, err := c.CartPricing()
	if err != nil {
		return order.Config{}, err
	}

	policy := order.Policy{CancellableFrom: make([]order.Status, 0, len(c.Orders.CancellableFrom))}
	for _, raw := range c.Orders.CancellableFrom {
		s, err := order.ParseStatus(raw)
		if err != nil {
			return order.Config{}, errors.Wrap(err, "cancellable from")
		}
		policy.CancellableFrom = append(policy.CancellableFrom, s)
	}
	if err := policy.Validate(); err != nil {
		return order.Config{}, errors.Wrap(err, "cancellable from")
	}

	paging, err := pageBounds(c.Orders.DefaultPageSize, c.Orders.MaxPageSize)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "orders")
	}

	return order.Config{
		Pricing: pricing,
		Policy:  policy,
		Paging:  paging,
	}, nil
}
