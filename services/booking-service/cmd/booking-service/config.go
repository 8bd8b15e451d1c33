package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/config"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"booking-service"`
	Port        string `env:"PORT" envDefault:"8083"`
	// GRPCPort enables the gRPC health server when set.
	GRPCPort string `env:"GRPC_PORT"`

	// An empty DatabaseURL runs on the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DevSeed     bool   `env:"DEV_SEED" envDefault:"false"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"booking.events"`
	RedisAddr    string `env:"REDIS_ADDR"`

	JWTSecret string `env:"JWT_SECRET"`
	JWKSURL   string `env:"JWKS_URL"`

	BotSecret    string  `env:"BOT_CHECK_SECRET"`
	BotEndpoint  string  `env:"BOT_CHECK_URL" envDefault:"https://www.google.com/recaptcha/api/siteverify"`
	BotThreshold float64 `env:"BOT_CHECK_THRESHOLD" envDefault:"0.5"`

	PhoneRegion       string        `env:"PHONE_DEFAULT_REGION" envDefault:"US"`
	PublicRateLimit   int           `env:"PUBLIC_RATE_LIMIT" envDefault:"60"`
	PublicRateWindow  time.Duration `env:"PUBLIC_RATE_WINDOW" envDefault:"1m"`
	CORSOrigins       string        `env:"PUBLIC_CORS_ORIGINS"`
	BodyLimitBytes    int64         `env:"BODY_LIMIT_BYTES" envDefault:"1048576"`
	SettingsCacheTTL  time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"1m"`
	SyncUpdateRecheck bool          `env:"SYNC_UPDATE_RECHECK" envDefault:"false"`
	SyncSuggestDays   int           `env:"SYNC_SUGGEST_DAYS" envDefault:"7"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := config.ValidPort(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("PORT: %w", err)
	}
	if cfg.GRPCPort != "" {
		if err := config.ValidPort(cfg.GRPCPort); err != nil {
			return Config{}, fmt.Errorf("GRPC_PORT: %w", err)
		}
	}
	return cfg, nil
}
