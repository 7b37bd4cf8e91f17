package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	Weather WeatherConfig
	Alert   AlertConfig
	Brevo   BrevoConfig
	Stripe  StripeConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WorkerConfig struct {
	// Count is the number of concurrent delivery workers per broadcast.
	Count int
}

type WeatherConfig struct {
	BaseURL          string
	Domain           string
	Token            string
	VigilanceEnabled bool
	CheckInterval    time.Duration
	ForecastInterval time.Duration
}

type AlertConfig struct {
	// Threshold is the minimum vigilance color that triggers a broadcast.
	Threshold int
	// RatchetRequireSuccess makes the dedup state advance only when at least
	// one delivery for the phenomenon succeeded. Off by default: a fully
	// failed broadcast still counts as handled and is not re-sent at the
	// same color.
	RatchetRequireSuccess bool
	// SendTimeout bounds each individual delivery call.
	SendTimeout time.Duration
}

type BrevoConfig struct {
	APIKey      string
	BaseURL     string
	SMSSender   string
	SenderEmail string
	SenderName  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	MonthlyCents  int64
	YearlyCents   int64
	Currency      string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Worker: WorkerConfig{
			Count: getEnvInt("WORKER_COUNT", 4),
		},
		Weather: WeatherConfig{
			BaseURL:          getEnv("METEOFRANCE_URL", "https://webservice.meteofrance.com"),
			Domain:           getEnv("VIGILANCE_DOMAIN", "972"),
			Token:            getEnv("METEOFRANCE_TOKEN", ""),
			VigilanceEnabled: getEnvBool("VIGILANCE_ENABLED", true),
			CheckInterval:    getEnvDuration("VIGILANCE_CHECK_INTERVAL", 30*time.Minute),
			ForecastInterval: getEnvDuration("FORECAST_REFRESH_INTERVAL", 3*time.Hour),
		},
		Alert: AlertConfig{
			Threshold:             getEnvInt("ALERT_THRESHOLD", 2),
			RatchetRequireSuccess: getEnvBool("ALERT_RATCHET_REQUIRE_SUCCESS", false),
			SendTimeout:           getEnvDuration("ALERT_SEND_TIMEOUT", 15*time.Second),
		},
		Brevo: BrevoConfig{
			APIKey:      getEnv("BREVO_API_KEY", ""),
			BaseURL:     getEnv("BREVO_URL", "https://api.brevo.com"),
			SMSSender:   getEnv("BREVO_SMS_SENDER", "MeteoMQ"),
			SenderEmail: getEnv("BREVO_SENDER_EMAIL", "alertes@meteo-martinique.fr"),
			SenderName:  getEnv("BREVO_SENDER_NAME", "Météo Martinique"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MonthlyCents:  int64(getEnvInt("STRIPE_MONTHLY_CENTS", 499)),
			YearlyCents:   int64(getEnvInt("STRIPE_YEARLY_CENTS", 4990)),
			Currency:      getEnv("STRIPE_CURRENCY", "eur"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/subscriptions.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Alert.Threshold < 1 || c.Alert.Threshold > 4 {
		return fmt.Errorf("alert threshold must be a vigilance color 1-4, got %d", c.Alert.Threshold)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Weather.CheckInterval < time.Minute {
		return fmt.Errorf("vigilance check interval must be at least 1 minute")
	}
	if c.Weather.ForecastInterval < time.Minute {
		return fmt.Errorf("forecast refresh interval must be at least 1 minute")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
