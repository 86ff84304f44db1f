// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SupportAPIKey   string        `yaml:"support_api_key"` // guards the receipts route
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// BackendConfig points at the ledger backend (wallets, cards, coupons, orders).
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	AccessToken string        `yaml:"access_token"` // sent verbatim when jwt_secret is empty
	JWTSecret   string        `yaml:"jwt_secret"`   // mint per-user HS256 tokens
	JWTTTL      time.Duration `yaml:"jwt_ttl"`
}

type GatewayConfig struct {
	Mode            string        `yaml:"mode"` // hosted | noop
	KeyID           string        `yaml:"key_id"`
	MerchantName    string        `yaml:"merchant_name"`
	CheckoutURL     string        `yaml:"checkout_url"`
	CallbackPath    string        `yaml:"callback_path"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
	Secret          string        `yaml:"secret"` // signs payments in noop mode
}

type CheckoutConfig struct {
	DefaultCurrency string        `yaml:"default_currency"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	Workers         int           `yaml:"workers"` // flows run concurrently by the HTTP API
	CouponAttempts  int           `yaml:"coupon_attempts"`
	CouponWindow    time.Duration `yaml:"coupon_window"`
	FlowLockTTL     time.Duration `yaml:"flow_lock_ttl"`
	FollowUpEvery   time.Duration `yaml:"follow_up_every"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // optional; receipts are journaled when set
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // optional; coupon listings are cached when set
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Backend  BackendConfig  `yaml:"backend"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}
	if cfg.Backend.JWTTTL <= 0 {
		cfg.Backend.JWTTTL = 5 * time.Minute
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Gateway.Mode == "" {
		cfg.Gateway.Mode = "hosted"
	}
	if cfg.Gateway.MerchantName == "" {
		cfg.Gateway.MerchantName = "X' Trace"
	}
	if cfg.Gateway.CallbackPath == "" {
		cfg.Gateway.CallbackPath = "/api/v1/gateway/callback"
	}
	if cfg.Gateway.CallbackTimeout <= 0 {
		cfg.Gateway.CallbackTimeout = 15 * time.Minute
	}
	if cfg.Checkout.DefaultCurrency == "" {
		cfg.Checkout.DefaultCurrency = "INR"
	}
	if cfg.Checkout.SessionTTL <= 0 {
		cfg.Checkout.SessionTTL = time.Hour
	}
	if cfg.Checkout.SweepInterval <= 0 {
		cfg.Checkout.SweepInterval = 5 * time.Minute
	}
	if cfg.Checkout.Workers <= 0 {
		cfg.Checkout.Workers = 8
	}
	if cfg.Checkout.CouponAttempts <= 0 {
		cfg.Checkout.CouponAttempts = 10
	}
	if cfg.Checkout.CouponWindow <= 0 {
		cfg.Checkout.CouponWindow = 10 * time.Minute
	}
	if cfg.Checkout.FlowLockTTL <= 0 {
		cfg.Checkout.FlowLockTTL = cfg.Gateway.CallbackTimeout + 5*time.Minute
	}
	if cfg.Checkout.FollowUpEvery <= 0 {
		cfg.Checkout.FollowUpEvery = 10 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
}

func (cfg *Config) validate() error {
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	switch strings.ToLower(cfg.Gateway.Mode) {
	case "hosted":
		if cfg.Gateway.KeyID == "" {
			return errors.New("gateway.key_id is required in hosted mode")
		}
		if cfg.Gateway.CheckoutURL == "" {
			return errors.New("gateway.checkout_url is required in hosted mode")
		}
	case "noop":
	default:
		return fmt.Errorf("gateway.mode %q: want hosted or noop", cfg.Gateway.Mode)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
