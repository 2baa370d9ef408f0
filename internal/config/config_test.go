package config

import (
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		expectedError string
		checkConfig   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{"JWT_SECRET": "s3cret"},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8080", cfg.Port)
				assert.Equal(t, StoreMySQL, cfg.Store)
				assert.Equal(t, 20, cfg.RateLimit)
				assert.Equal(t, time.Minute, cfg.RateWindow)
				assert.Equal(t, 5*time.Second, cfg.CheckoutLockTimeout)
				assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
				assert.Equal(t, []string{"localhost:9092", "localhost:9093", "localhost:9094"}, cfg.KafkaBrokers)
				assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"JWT_SECRET":            "s3cret",
				"STORE":                 "memory",
				"KAFKA_BROKERS":         "k1:9092, k2:9092,",
				"CHECKOUT_LOCK_TIMEOUT": "1500ms",
				"RATE_LIMIT":            "5",
				"CURRENCY_EXPONENT":     "2",
				"LOG_LEVEL":             "debug",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreMemory, cfg.Store)
				assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
				assert.Equal(t, 1500*time.Millisecond, cfg.CheckoutLockTimeout)
				assert.Equal(t, 5, cfg.RateLimit)
				assert.EqualValues(t, 2, cfg.Payment.CurrencyExponent)
				assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
			},
		},
		{
			name:          "missing secret",
			env:           map[string]string{},
			expectedError: "JWT_SECRET: required",
		},
		{
			name:          "malformed values",
			env:           map[string]string{"JWT_SECRET": "x", "RATE_WINDOW": "soon", "RATE_LIMIT": "many", "STORE": "postgres"},
			expectedError: "RATE_WINDOW",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			for _, key := range []string{"JWT_SECRET", "STORE", "KAFKA_BROKERS", "CHECKOUT_LOCK_TIMEOUT", "RATE_LIMIT", "RATE_WINDOW", "CURRENCY_EXPONENT", "LOG_LEVEL", "PORT"} {
				t.Setenv(key, "")
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			// Act
			cfg, err := Load()

			// Assert
			if tt.expectedError != "" {
				assert.ErrorContains(t, err, tt.expectedError)
				return
			}
			require.NoError(t, err)
			tt.checkConfig(t, cfg)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "shop", DBPass: "pw", DBHost: "db", DBPort: "3306", DBName: "swiftorder"}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "shop:pw@tcp(db:3306)/swiftorder?")
	assert.Contains(t, dsn, "parseTime=true")
}
