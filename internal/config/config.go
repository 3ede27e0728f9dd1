// Package config loads the storefront configuration: built-in defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName  string `yaml:"service_name"`
	HTTPAddr     string `yaml:"http_addr"`
	GRPCAddr     string `yaml:"grpc_addr"`
	RedisAddr    string `yaml:"redis_addr"`
	JWTSecret    string `yaml:"jwt_secret"`
	FrontendURL  string `yaml:"frontend_url"`
	PublicAPIURL string `yaml:"public_api_url"`
	SagaLogPath  string `yaml:"saga_log_path"`

	Database  Database  `yaml:"database"`
	VNPay     VNPay     `yaml:"vnpay"`
	SMTP      SMTP      `yaml:"smtp"`
	Scheduler Scheduler `yaml:"scheduler"`
	Refund    Refund    `yaml:"refund"`
	Currency  Currency  `yaml:"currency"`
	Log       Log       `yaml:"log"`
	OTel      OTel      `yaml:"otel"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type VNPay struct {
	TmnCode     string        `yaml:"tmn_code"`
	HashSecret  string        `yaml:"hash_secret"`
	PayURL      string        `yaml:"pay_url"`
	APIURL      string        `yaml:"api_url"`
	BankListURL string        `yaml:"bank_list_url"`
	ReturnURL   string        `yaml:"return_url"`
	Locale      string        `yaml:"locale"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SMTP struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	FromName   string `yaml:"from_name"`
	ToOverride string `yaml:"to_override"`
}

type Scheduler struct {
	ExpiryInterval       time.Duration `yaml:"expiry_interval"`
	ExpiringSoonInterval time.Duration `yaml:"expiring_soon_interval"`
	ExpiringSoonWindow   time.Duration `yaml:"expiring_soon_window"`
	PendingTTL           time.Duration `yaml:"pending_ttl"`
	LockTTL              time.Duration `yaml:"lock_ttl"`
}

type Refund struct {
	Window time.Duration `yaml:"window"`
}

type Currency struct {
	USDToVND int64 `yaml:"usd_to_vnd"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type OTel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns a configuration that runs locally against a sqlite file
// and the VNPay sandbox.
func Default() Config {
	return Config{
		ServiceName:  "storefront-api",
		HTTPAddr:     ":8080",
		GRPCAddr:     ":9090",
		FrontendURL:  "http://localhost:3000",
		PublicAPIURL: "http://localhost:8080",
		SagaLogPath:  "./data/saga.db",
		Database: Database{
			Driver: "sqlite",
			DSN:    "./data/storefront.db",
		},
		VNPay: VNPay{
			PayURL:      "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			APIURL:      "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction",
			BankListURL: "https://sandbox.vnpayment.vn/qrpayauth/api/merchant/get_bank_list",
			ReturnURL:   "http://localhost:8080/payments/vnpay/callback",
			Locale:      "vn",
			Timeout:     10 * time.Second,
		},
		SMTP: SMTP{
			Port:     587,
			FromName: "Storefront",
		},
		Scheduler: Scheduler{
			ExpiryInterval:       30 * time.Minute,
			ExpiringSoonInterval: time.Hour,
			ExpiringSoonWindow:   2 * time.Hour,
			PendingTTL:           24 * time.Hour,
			LockTTL:              10 * time.Minute,
		},
		Refund:   Refund{Window: 30 * 24 * time.Hour},
		Currency: Currency{USDToVND: 25000},
		Log:      Log{Level: "info", JSON: true},
		OTel:     OTel{Endpoint: "localhost:4317"},
	}
}

// Load builds the configuration. path may be empty, in which case
// STOREFRONT_CONFIG is consulted; a missing path means defaults plus env.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("STOREFRONT_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := fromEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("config: database.dsn is required"))
	}
	if c.Refund.Window <= 0 {
		errs = append(errs, errors.New("config: refund.window must be positive"))
	}
	if c.Currency.USDToVND <= 0 {
		errs = append(errs, errors.New("config: currency.usd_to_vnd must be positive"))
	}
	if c.Scheduler.ExpiryInterval <= 0 || c.Scheduler.ExpiringSoonInterval <= 0 {
		errs = append(errs, errors.New("config: scheduler intervals must be positive"))
	}
	return errors.Join(errs...)
}

func fromEnv(c *Config) error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.GRPCAddr, "GRPC_ADDR")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.FrontendURL, "FRONTEND_URL")
	setString(&c.PublicAPIURL, "PUBLIC_API_URL")
	setString(&c.SagaLogPath, "SAGA_LOG_PATH")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.VNPay.TmnCode, "VNPAY_TMN_CODE")
	setString(&c.VNPay.HashSecret, "VNPAY_HASH_SECRET")
	setString(&c.VNPay.PayURL, "VNPAY_URL")
	setString(&c.VNPay.APIURL, "VNPAY_API_URL")
	setString(&c.VNPay.ReturnURL, "VNPAY_RETURN_URL")
	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.Username, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASS")
	setString(&c.SMTP.From, "SMTP_FROM")
	setString(&c.SMTP.ToOverride, "EMAIL_TO_OVERRIDE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: OTEL_ENABLED: %w", err)
		}
		c.OTel.Enabled = enabled
	}
	if v := os.Getenv("USD_TO_VND"); v != "" {
		rate, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: USD_TO_VND: %w", err)
		}
		c.Currency.USDToVND = rate
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
