package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type ProviderConfig struct {
	Enabled       bool
	APIBase       string
	SecretKey     string
	WebhookSecret string
}

type BankConfig struct {
	Enabled      bool
	WebhookToken string
	AccountName  string
	IBAN         string
	BIC          string
}

type Config struct {
	Port          string
	DBUrl         string
	DBMaxConns    int32
	JWTSecret     string
	AppEnv        string
	EnableDocs    bool
	PublicBaseURL string
	Card          ProviderConfig
	MobileMoney   ProviderConfig
	Bank          BankConfig
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		DBUrl:         getEnv("DB_URL", ""),
		DBMaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
		JWTSecret:     jwtSecret,
		AppEnv:        normalizeEnv(getEnv("APP_ENV", "production")),
		EnableDocs:    getEnvBool("ENABLE_API_DOCS", false),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		Card: ProviderConfig{
			Enabled:       getEnvBool("CARD_ENABLED", false),
			APIBase:       getEnv("CARD_API_BASE", "https://api.stripe.com"),
			SecretKey:     getEnv("CARD_SECRET_KEY", ""),
			WebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),
		},
		MobileMoney: ProviderConfig{
			Enabled:       getEnvBool("MOMO_ENABLED", false),
			APIBase:       getEnv("MOMO_API_BASE", ""),
			SecretKey:     getEnv("MOMO_API_KEY", ""),
			WebhookSecret: getEnv("MOMO_WEBHOOK_SECRET", ""),
		},
		Bank: BankConfig{
			Enabled:      getEnvBool("BANK_ENABLED", false),
			WebhookToken: getEnv("BANK_WEBHOOK_TOKEN", ""),
			AccountName:  getEnv("BANK_ACCOUNT_NAME", ""),
			IBAN:         getEnv("BANK_IBAN", ""),
			BIC:          getEnv("BANK_BIC", ""),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

func (c *Config) DocsEnabled() bool {
	return c != nil && c.EnableDocs && c.AppEnv == "development"
}
