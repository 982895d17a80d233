package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server          ServerConfig          `mapstructure:"http_server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	PaymentProvider PaymentProviderConfig `mapstructure:"payment_provider"`
	Cleanup         CleanupConfig         `mapstructure:"cleanup"`
	Events          EventsConfig          `mapstructure:"events"`
	Observability   ObservabilityConfig   `mapstructure:"observability"`
	Zones           map[string]ZoneConfig `mapstructure:"zones" validate:"required,min=1,dive"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type PaymentProviderConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required,min=1s"`
}

type CleanupConfig struct {
	DanglingAfter time.Duration `mapstructure:"dangling_after" validate:"required,min=1m"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,min=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"required,min=1,max=64"`
	MaxRetries    uint64        `mapstructure:"max_retries" validate:"max=10"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Interval      time.Duration `mapstructure:"interval"`
}

type EventsConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
	Channel       string `mapstructure:"channel" validate:"required_with=RedisAddr"`
}

// ZoneConfig holds the payment provider credentials of one clean air zone.
type ZoneConfig struct {
	Name   string `mapstructure:"name"`
	APIKey string `mapstructure:"api_key" validate:"required"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LoadConfigFromEnv builds the configuration from plain environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		PaymentProvider: PaymentProviderConfig{
			BaseURL: getEnv("PAYMENT_PROVIDER_BASE_URL", ""),
			Timeout: getEnvAsDuration("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Cleanup: CleanupConfig{
			DanglingAfter: getEnvAsDuration("CLEANUP_DANGLING_AFTER", 90*time.Minute),
			BatchSize:     getEnvAsInt("CLEANUP_BATCH_SIZE", 100),
			Concurrency:   getEnvAsInt("CLEANUP_CONCURRENCY", 4),
			MaxRetries:    uint64(getEnvAsInt("CLEANUP_MAX_RETRIES", 3)),
			RetryBackoff:  getEnvAsDuration("CLEANUP_RETRY_BACKOFF", 500*time.Millisecond),
			Interval:      getEnvAsDuration("CLEANUP_INTERVAL", 0),
		},
		Events: EventsConfig{
			RedisAddr:     getEnv("EVENTS_REDIS_ADDR", ""),
			RedisPassword: getEnv("EVENTS_REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("EVENTS_REDIS_DB", 0),
			Channel:       getEnv("EVENTS_CHANNEL", "caz-payments.events"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Zones: parseZoneKeys(getEnv("ZONE_API_KEYS", "")),
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// parseZoneKeys reads "zoneA=key1,zoneB=key2".
func parseZoneKeys(raw string) map[string]ZoneConfig {
	zones := make(map[string]ZoneConfig)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, key, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		zones[strings.TrimSpace(id)] = ZoneConfig{APIKey: strings.TrimSpace(key)}
	}
	return zones
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.PaymentProvider.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment provider config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentProviderConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", u.Scheme)
	}
	return nil
}
