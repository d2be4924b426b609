package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("API_TIMEOUT", "")
	t.Setenv("ENVIRONMENT", "")

	cfg := Load()

	if cfg.APIBaseURL != "http://localhost:8000/api" {
		t.Errorf("Expected default API base URL, got %s", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 10*time.Second {
		t.Errorf("Expected 10s API timeout, got %s", cfg.APITimeout)
	}
	if cfg.IsDevelopment() {
		t.Error("Expected production environment by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://trips.example.com/api/")
	t.Setenv("STORAGE_BASE_URL", "https://trips.example.com/storage")
	t.Setenv("API_TIMEOUT", "not-a-duration")
	t.Setenv("SESSION_DURATION", "2h")
	t.Setenv("ENVIRONMENT", "Development")

	cfg := Load()

	if cfg.APIBaseURL != "https://trips.example.com/api" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
	if cfg.StorageBaseURL != "https://trips.example.com/storage/" {
		t.Errorf("Expected trailing slash added, got %s", cfg.StorageBaseURL)
	}
	if cfg.APITimeout != 10*time.Second {
		t.Errorf("Expected invalid timeout to fall back to 10s, got %s", cfg.APITimeout)
	}
	if cfg.SessionDuration != 2*time.Hour {
		t.Errorf("Expected 2h session duration, got %s", cfg.SessionDuration)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development environment")
	}
}
