package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret            string
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           time.Duration
	RateLimitRPS         float64
	RateLimitBurst       int

	Timezone                  string
	SlotGranularityMinutes    int
	BookingBufferMinutes      int
	BookingMaxAttemptsPerHour int

	MercadoPagoAccessToken   string
	MercadoPagoBaseURL       string
	MercadoPagoWebhookSecret string
	PaymentStatusTimeout     time.Duration
	AllowFakePayments        bool

	OutboxStream   string
	OutboxInterval time.Duration
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:            getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		CORSAllowedMethods:   getEnvAsList("CORS_ALLOWED_METHODS", nil),
		CORSAllowedHeaders:   getEnvAsList("CORS_ALLOWED_HEADERS", nil),
		CORSAllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAge:           getEnvAsDuration("CORS_MAX_AGE", 10*time.Minute),
		RateLimitRPS:         getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 20),

		Timezone:                  getEnv("TIMEZONE", "America/Sao_Paulo"),
		SlotGranularityMinutes:    getEnvAsInt("SLOT_GRANULARITY_MINUTES", 30),
		BookingBufferMinutes:      getEnvAsInt("BOOKING_BUFFER_MINUTES", 0),
		BookingMaxAttemptsPerHour: getEnvAsInt("BOOKING_MAX_ATTEMPTS_PER_HOUR", 20),

		MercadoPagoAccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoBaseURL:       getEnv("MERCADOPAGO_BASE_URL", ""),
		MercadoPagoWebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		PaymentStatusTimeout:     getEnvAsDuration("PAYMENT_STATUS_TIMEOUT", 5*time.Second),
		AllowFakePayments:        getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		OutboxStream:   getEnv("OUTBOX_STREAM", "barbershop:bookings"),
		OutboxInterval: getEnvAsDuration("OUTBOX_INTERVAL", time.Second),
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("config: SLOT_GRANULARITY_MINUTES must be positive")
	}
	if c.BookingBufferMinutes < 0 {
		return fmt.Errorf("config: BOOKING_BUFFER_MINUTES must not be negative")
	}
	if c.Env == "production" && c.AllowFakePayments {
		return fmt.Errorf("config: ALLOW_FAKE_PAYMENTS cannot be enabled in production")
	}
	if c.MercadoPagoAccessToken == "" && !c.AllowFakePayments {
		return fmt.Errorf("config: MERCADOPAGO_ACCESS_TOKEN is required unless ALLOW_FAKE_PAYMENTS is set")
	}
	if c.CORSAllowCredentials && slices.Contains(c.CORSAllowedOrigins, "*") {
		return fmt.Errorf("config: CORS_ALLOW_CREDENTIALS cannot be combined with a wildcard origin")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// NotificationURL is the webhook address advertised to the payment provider.
func (c *Config) NotificationURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/webhooks/mercadopago"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
