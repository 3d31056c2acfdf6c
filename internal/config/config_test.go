package config

import "testing"

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadConfigReadsProviderSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("CARD_ENABLED", "yes")
	t.Setenv("CARD_WEBHOOK_SECRET", "whsec")
	t.Setenv("MOMO_ENABLED", "maybe")
	t.Setenv("DB_MAX_CONNS", "-3")
	t.Setenv("PUBLIC_BASE_URL", "https://pay.example.com/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if !cfg.Card.Enabled || cfg.Card.WebhookSecret != "whsec" {
		t.Fatalf("unexpected card config: %+v", cfg.Card)
	}
	if cfg.MobileMoney.Enabled {
		t.Fatal("expected unparsable bool to fall back to false")
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("expected default pool size 10, got %d", cfg.DBMaxConns)
	}
	if cfg.PublicBaseURL != "https://pay.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
}

func TestDocsEnabledOnlyInDevelopment(t *testing.T) {
	if (&Config{AppEnv: "production", EnableDocs: true}).DocsEnabled() {
		t.Fatal("docs must stay off outside development")
	}
	if !(&Config{AppEnv: "development", EnableDocs: true}).DocsEnabled() {
		t.Fatal("expected docs in development when enabled")
	}
	var cfg *Config
	if cfg.DocsEnabled() {
		t.Fatal("nil config must not enable docs")
	}
}
