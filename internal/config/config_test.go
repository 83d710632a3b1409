package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.MaxMessageLength != 4000 {
		t.Errorf("expected default max message length 4000, got %d", cfg.MaxMessageLength)
	}
	if cfg.HistoryWindow != 20 {
		t.Errorf("expected default history window 20, got %d", cfg.HistoryWindow)
	}
	if cfg.ResponseOptionCount != 3 {
		t.Errorf("expected default option count 3, got %d", cfg.ResponseOptionCount)
	}
	if cfg.AIRequestTimeout != 30*time.Second {
		t.Errorf("expected default AI timeout 30s, got %s", cfg.AIRequestTimeout)
	}
	if cfg.GeminiModelID != "gemini-2.5-flash" {
		t.Errorf("unexpected default model: %s", cfg.GeminiModelID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("AI_REQUEST_TIMEOUT", "5s")
	t.Setenv("HISTORY_WINDOW", "12")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.lunara.health, https://staging.lunara.health")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.AIConfigured() {
		t.Error("expected AIConfigured to be true with GEMINI_API_KEY set")
	}
	if cfg.AIRequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.AIRequestTimeout)
	}
	if cfg.HistoryWindow != 12 {
		t.Errorf("expected history window 12, got %d", cfg.HistoryWindow)
	}
	if !cfg.RedisTLS {
		t.Error("expected RedisTLS true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[0] != "https://app.lunara.health" {
		t.Errorf("unexpected first origin: %s", cfg.CORSAllowedOrigins[0])
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "not-a-number")
	t.Setenv("REDIS_TLS", "not-a-bool")
	t.Setenv("AI_REQUEST_TIMEOUT", "forever")

	cfg := Load()

	if cfg.HistoryWindow != 20 {
		t.Errorf("expected fallback history window 20, got %d", cfg.HistoryWindow)
	}
	if cfg.RedisTLS {
		t.Error("expected fallback RedisTLS false")
	}
	if cfg.AIRequestTimeout != 30*time.Second {
		t.Errorf("expected fallback timeout 30s, got %s", cfg.AIRequestTimeout)
	}
}
