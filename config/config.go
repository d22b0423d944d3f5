package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8000" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Broker
	BrokerHost  string `env:"RABBITMQ_HOST" envDefault:"localhost" validate:"required"`
	BrokerPort  int    `env:"RABBITMQ_PORT" envDefault:"5672" validate:"min=1,max=65535"`
	BrokerUser  string `env:"RABBITMQ_USER" envDefault:"admin"`
	BrokerPass  string `env:"RABBITMQ_PASS" envDefault:"admin123"`
	BrokerVHost string `env:"RABBITMQ_VHOST" envDefault:"/"`

	TasksQueue   string `env:"SCRAPING_QUEUE" envDefault:"scraping_queue" validate:"required"`
	ResultsQueue string `env:"RESULTS_QUEUE" envDefault:"scraping_results" validate:"required"`
	FailedQueue  string `env:"FAILED_QUEUE" envDefault:"scraping_failed" validate:"required"`
	Exchange     string `env:"SCRAPING_EXCHANGE" envDefault:"scraping_exchange" validate:"required"`
	RoutingKey   string `env:"SCRAPING_ROUTING_KEY" envDefault:"scraping" validate:"required"`

	// Persistence
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Scraper
	BaseURL string `env:"SCRAPER_BASE_URL" envDefault:"https://www.mercadolibre.com.uy/ofertas" validate:"url"`

	// Rate limiting
	RequestsPerMinute    int     `env:"RATE_LIMIT_RPM" envDefault:"30" validate:"min=1"`
	MaxConcurrent        int     `env:"MAX_CONCURRENT" envDefault:"3" validate:"min=1,max=100"`
	MaxRequestsPerSecond float64 `env:"MAX_REQUESTS_PER_SECOND" envDefault:"1.0" validate:"gt=0"`
	RateLimitJitter      bool    `env:"RATE_LIMIT_JITTER" envDefault:"true"`

	// Retry
	RetryMaxAttempts   int     `env:"RETRY_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=10"`
	RetryBaseDelaySec  float64 `env:"RETRY_BASE_DELAY_SEC" envDefault:"1.0" validate:"gt=0"`
	RetryMaxDelaySec   float64 `env:"RETRY_MAX_DELAY_SEC" envDefault:"60.0" validate:"gt=0"`
	RetryExponentBase  float64 `env:"RETRY_EXPONENT_BASE" envDefault:"2.0" validate:"gt=1"`
	RetryJitterEnabled bool    `env:"RETRY_JITTER" envDefault:"true"`

	// Dedup cache
	CacheTTLHours float64 `env:"CACHE_TTL_HOURS" envDefault:"1.0" validate:"gt=0"`

	// Optional periodic submission, e.g. "0 * * * *" with "MLU107:1,MLU1055:1"
	ScrapeSchedule   string   `env:"SCRAPE_SCHEDULE"`
	ScrapeCategories []string `env:"SCRAPE_CATEGORIES" envSeparator:","`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) BrokerURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.BrokerUser, c.BrokerPass, c.BrokerHost, c.BrokerPort, c.BrokerVHost)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours * float64(time.Hour))
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySec * float64(time.Second))
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySec * float64(time.Second))
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
