package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.ServerURL == "" || cfg.DBPath == "" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SERVER_URL=http://from-file:1\nDEFAULT_SPEED=3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("SERVER_URL", "http://from-env:2")
	t.Setenv("DEFAULT_SPEED", "")
	os.Unsetenv("DEFAULT_SPEED")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "http://from-env:2" {
		t.Errorf("expected env to win, got %s", cfg.ServerURL)
	}
	if cfg.DefaultSpeed != 3 {
		t.Errorf("expected speed from file, got %v", cfg.DefaultSpeed)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "-1s")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected an error for a negative timeout")
	}
}
