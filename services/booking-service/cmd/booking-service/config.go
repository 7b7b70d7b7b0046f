package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"booking-service"`
	Port        string `env:"PORT" env-default:"8083"`
	GRPCPort    string `env:"GRPC_PORT" env-default:"9093"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	DBDriver    string `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" env-default:"data/slotbook.db"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" env-default:"10"`

	RedisAddr          string `env:"REDIS_ADDR"`
	BusyCacheTTLSecs   int    `env:"BUSY_CACHE_TTL_SECONDS" env-default:"60"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" env-default:"120"`
	CORSOrigins        string `env:"CORS_ALLOWED_ORIGINS"`

	NotifyDriver      string `env:"NOTIFY_DRIVER" env-default:"log"`
	KafkaBrokers      string `env:"KAFKA_BROKERS"`
	KafkaTopicPrefix  string `env:"KAFKA_TOPIC_PREFIX" env-default:"slotbook"`
	AMQPURL           string `env:"AMQP_URL"`
	SideEffectTimeout int    `env:"SIDE_EFFECT_TIMEOUT_SECONDS" env-default:"10"`

	StripeSecretKey        string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeWebhookTolerance int    `env:"STRIPE_WEBHOOK_TOLERANCE_SECONDS" env-default:"300"`
	ReconcileIntervalSecs  int    `env:"RECONCILE_INTERVAL_SECONDS" env-default:"300"`
	ReconcileLookbackHours int    `env:"RECONCILE_LOOKBACK_HOURS" env-default:"24"`

	CalDAVURL      string `env:"CALDAV_URL"`
	CalDAVUsername string `env:"CALDAV_USERNAME"`
	CalDAVPassword string `env:"CALDAV_PASSWORD"`

	JWTSecret string `env:"JWT_SECRET"`

	Otel otelx.Config
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := config.Port("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if err := config.Port("GRPC_PORT", cfg.GRPCPort); err != nil {
		return Config{}, err
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or sqlite (got %q)", cfg.DBDriver)
	}
	cfg.NotifyDriver = strings.ToLower(strings.TrimSpace(cfg.NotifyDriver))
	switch cfg.NotifyDriver {
	case "kafka", "amqp", "log":
	default:
		return Config{}, fmt.Errorf("NOTIFY_DRIVER must be kafka, amqp or log (got %q)", cfg.NotifyDriver)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
