package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
//
// Certificate material (KVERKOM_*) is intentionally not validated at load
// time: link generation works without it, and the operations that do need it
// report a distinct configuration error instead of failing the whole process.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string

	ClientCertPEM string
	ClientKeyPEM  string
	CABundlePEM   string

	NOPBaseURL        string
	NOPRequestTimeout time.Duration

	BrokerHost       string
	BrokerPort       int
	SubscribeTimeout time.Duration

	PaymentLinkBaseURL string
	CurrencyCode       string
	CreditorName       string

	RedisURL            string
	IdempotencyTTL      time.Duration
	SubscribeRateMax    int
	SubscribeRateWindow time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		ClientCertPEM: k.String("KVERKOM_CLIENT_CERT"),
		ClientKeyPEM:  k.String("KVERKOM_CLIENT_KEY"),
		CABundlePEM:   k.String("KVERKOM_CA_BUNDLE"),

		NOPBaseURL:        valueOrDefault(k.String("NOP_API_BASE_URL"), "https://api-erp.kverkom.sk"),
		NOPRequestTimeout: parseDuration(k.String("NOP_REQUEST_TIMEOUT"), "15s"),

		BrokerHost:       valueOrDefault(k.String("MQTT_BROKER_HOST"), "mqtt.kverkom.sk"),
		BrokerPort:       parseInt(k.String("MQTT_BROKER_PORT"), 8883),
		SubscribeTimeout: parseDuration(k.String("SUBSCRIBE_TIMEOUT"), "60s"),

		PaymentLinkBaseURL: valueOrDefault(k.String("PAYLINK_BASE_URL"), "https://payme.sk/"),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),
		CreditorName:       k.String("CREDITOR_NAME"),

		RedisURL:            k.String("REDIS_URL"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		SubscribeRateMax:    parseInt(k.String("SUBSCRIBE_RATE_MAX"), 10),
		SubscribeRateWindow: parseDuration(k.String("SUBSCRIBE_RATE_WINDOW"), "1m"),
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// BrokerAddr returns the host:port pair of the messaging broker.
func (c *Config) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.BrokerHost, c.BrokerPort)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
