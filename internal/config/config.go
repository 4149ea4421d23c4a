package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string

	MailHost string
	MailPort int
	MailUser string
	MailPass string
	MailFrom string

	KommoAPIToken string
	KommoBaseURL  string
	// KommoStatusIDs maps each pipeline status to a Kommo stage id.
	KommoStatusIDs map[entity.Status]int

	BackendTimeout       time.Duration
	CacheRefreshInterval time.Duration
	CORSAllowedOrigins   []string
}

// Load reads the environment, after loading .env when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),

		MailHost: os.Getenv("MAIL_HOST"),
		MailUser: os.Getenv("MAIL_USER"),
		MailPass: os.Getenv("MAIL_PASS"),
		MailFrom: getEnv("MAIL_FROM", os.Getenv("MAIL_USER")),

		KommoAPIToken:  os.Getenv("KOMMO_API_TOKEN"),
		KommoBaseURL:   getEnv("KOMMO_BASE_URL", "https://api-c.kommo.com/api/v4"),
		KommoStatusIDs: map[entity.Status]int{},

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	var err error
	if cfg.MailPort, err = getInt("MAIL_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.BackendTimeout, err = getDuration("PIPELINE_BACKEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheRefreshInterval, err = getDuration("CACHE_REFRESH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	for _, s := range entity.Statuses {
		id, err := getInt("KOMMO_STATUS_"+string(s), 0)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			cfg.KommoStatusIDs[s] = id
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
