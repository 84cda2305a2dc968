package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

var ErrInvalid = errors.New("config: invalid")

// Config is read from the environment, optionally layered over the file named by CONFIG_FILE.
type Config struct {
	ServiceName        string        `mapstructure:"SERVICE_NAME"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFile            string        `mapstructure:"LOG_FILE"`
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`
	HTTPRequestTimeout time.Duration `mapstructure:"HTTP_REQUEST_TIMEOUT"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	StorageDriver string        `mapstructure:"STORAGE_DRIVER"`
	MongoURI      string        `mapstructure:"MONGO_URI"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`
	MongoTimeout  time.Duration `mapstructure:"MONGO_TIMEOUT"`
	SeedBooks     bool          `mapstructure:"SEED_BOOKS"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CartCacheTTL  time.Duration `mapstructure:"CART_CACHE_TTL"`

	ReserveMaxAttempts    int           `mapstructure:"RESERVE_MAX_ATTEMPTS"`
	ReserveInitialBackoff time.Duration `mapstructure:"RESERVE_INITIAL_BACKOFF"`
	CartClearMaxAttempts  int           `mapstructure:"CART_CLEAR_MAX_ATTEMPTS"`

	PaymentCurrency        string        `mapstructure:"PAYMENT_CURRENCY"`
	PaymentSuccessRate     float64       `mapstructure:"PAYMENT_SUCCESS_RATE"`
	PaymentBreakerFailures uint32        `mapstructure:"PAYMENT_BREAKER_FAILURES"`
	PaymentBreakerTimeout  time.Duration `mapstructure:"PAYMENT_BREAKER_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVICE_NAME":             "bookstore-orders",
	"ENV":                      "dev",
	"LOG_LEVEL":                "info",
	"LOG_FILE":                 "",
	"HTTP_ADDR":                ":8080",
	"HTTP_REQUEST_TIMEOUT":     "15s",
	"SHUTDOWN_TIMEOUT":         "10s",
	"STORAGE_DRIVER":           DriverMemory,
	"MONGO_URI":                "",
	"MONGO_DATABASE":           "bookstore",
	"MONGO_TIMEOUT":            "10s",
	"SEED_BOOKS":               true,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"CART_CACHE_TTL":           "15m",
	"RESERVE_MAX_ATTEMPTS":     3,
	"RESERVE_INITIAL_BACKOFF":  "20ms",
	"CART_CLEAR_MAX_ATTEMPTS":  3,
	"PAYMENT_CURRENCY":         "INR",
	"PAYMENT_SUCCESS_RATE":     1.0,
	"PAYMENT_BREAKER_FAILURES": 5,
	"PAYMENT_BREAKER_TIMEOUT":  "30s",
}

// Load reads the configuration. It returns the error to the caller; main decides
// whether a bad configuration is fatal.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI is required when STORAGE_DRIVER=mongo", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalid, c.StorageDriver)
	}
	if c.ReserveMaxAttempts < 1 {
		return fmt.Errorf("%w: RESERVE_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	}
	if c.CartClearMaxAttempts < 1 {
		return fmt.Errorf("%w: CART_CLEAR_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		return fmt.Errorf("%w: PAYMENT_SUCCESS_RATE must be within [0,1]", ErrInvalid)
	}
	if c.PaymentBreakerFailures < 1 {
		return fmt.Errorf("%w: PAYMENT_BREAKER_FAILURES must be at least 1", ErrInvalid)
	}
	return nil
}
