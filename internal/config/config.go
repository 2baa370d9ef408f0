// Package config reads service settings from the environment. An optional
// .env file in the working directory is loaded first; variables already set
// in the environment win.
package config

import (
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/payment"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port     string
	LogLevel zerolog.Level

	Store  string
	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string
	JWTSecret      []byte
	IdempotencyTTL time.Duration

	CheckoutLockTimeout time.Duration
	RateLimit           int
	RateWindow          time.Duration
	ProductCacheTTL     time.Duration

	Payment payment.Config
}

// Load reads the configuration. Malformed values are errors; missing values
// take their defaults. JWT_SECRET has no default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []string
	cfg := &Config{
		Port:                getenv("PORT", "8080"),
		Store:               getenv("STORE", StoreMySQL),
		DBHost:              getenv("DB_HOST", "localhost"),
		DBPort:              getenv("DB_PORT", "3306"),
		DBUser:              getenv("DB_USER", "root"),
		DBPass:              os.Getenv("DB_PASS"),
		DBName:              getenv("DB_NAME", "swiftorder"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        splitBrokers(getenv("KAFKA_BROKERS", defaultKafkaBrokers)),
		KafkaTopic:          getenv("KAFKA_TOPIC", "order-topic"),
		JWTSecret:           []byte(os.Getenv("JWT_SECRET")),
		IdempotencyTTL:      duration("IDEMPOTENCY_TTL", 24*time.Hour, &errs),
		CheckoutLockTimeout: duration("CHECKOUT_LOCK_TIMEOUT", 5*time.Second, &errs),
		RateLimit:           integer("RATE_LIMIT", 20, &errs),
		RateWindow:          duration("RATE_WINDOW", time.Minute, &errs),
		ProductCacheTTL:     duration("PRODUCT_CACHE_TTL", 5*time.Minute, &errs),
		Payment: payment.Config{
			BaseURL:          getenv("PAYMENT_GATEWAY_URL", "https://sandbox.zarinpal.com/pg/rest/WebGate"),
			MerchantID:       os.Getenv("PAYMENT_MERCHANT_ID"),
			CallbackURL:      getenv("PAYMENT_CALLBACK_URL", "http://localhost:8080/payments/verify"),
			StartURL:         getenv("PAYMENT_START_URL", "https://sandbox.zarinpal.com/pg/StartPay/"),
			CurrencyExponent: int32(integer("CURRENCY_EXPONENT", 0, &errs)),
			Timeout:          duration("PAYMENT_TIMEOUT", 10*time.Second, &errs),
		},
	}

	level, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}
	cfg.LogLevel = level

	if cfg.Store != StoreMySQL && cfg.Store != StoreMemory {
		errs = append(errs, fmt.Sprintf("STORE: must be %q or %q, got %q", StoreMySQL, StoreMemory, cfg.Store))
	}
	if len(cfg.JWTSecret) == 0 {
		errs = append(errs, "JWT_SECRET: required")
	}
	if cfg.RateLimit <= 0 {
		errs = append(errs, "RATE_LIMIT: must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// DSN is the MySQL data source name. parseTime is required for DATETIME scans.
func (c *Config) DSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.DBUser
	dsn.Passwd = c.DBPass
	dsn.Net = "tcp"
	dsn.Addr = c.DBHost + ":" + c.DBPort
	dsn.DBName = c.DBName
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	return dsn.FormatDSN()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func integer(key string, fallback int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}
