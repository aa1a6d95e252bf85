package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/policy"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKING_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("BOOKING_HTTP_CORS_ORIGINS", "http://a.local, http://b.local")
	t.Setenv("BOOKING_STORE_LOCK_TIMEOUT", "750ms")

	_, cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != defaultAddr || cfg.Store != StorePostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatalf("expected secret from env, got %q", cfg.JWTSecret)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.LockTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected lock timeout: %v", cfg.LockTimeout)
	}
	if cfg.RetryAttempts != 3 || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected retry/log defaults: %+v", cfg)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKING_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("BOOKING_HTTP_ADDR", ":7000")

	_, cfg, err := Load([]string{"--addr", ":9000", "--store", "memory", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Store != StoreMemory || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestLoad_DotEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BOOKING_AUTH_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("BOOKING_AUTH_JWT_SECRET") })

	file := filepath.Join(dir, "booking.yaml")
	yaml := []byte("store:\n  kind: memory\npolicy:\n  open_hour: 7\n  close_hour: 19\n")
	if err := os.WriteFile(file, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v, cfg, err := Load([]string{"--config", file})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "from-dotenv" || cfg.Store != StoreMemory || cfg.File != file {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	snap, err := policy.Load(v)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	got := snap.Config()
	if got.OpenHour != 7 || got.CloseHour != 19 || got.MaxDurationMinutes != policy.Default().MaxDurationMinutes {
		t.Fatalf("unexpected policy: %+v", got)
	}
}

func TestLoad_Validation(t *testing.T) {
	chdir(t, t.TempDir())

	if _, _, err := Load(nil); err == nil {
		t.Fatalf("expected missing secret to fail")
	}

	t.Setenv("BOOKING_AUTH_JWT_SECRET", "s3cret")
	if _, _, err := Load([]string{"--store", "sqlite"}); err == nil {
		t.Fatalf("expected unknown store to fail")
	}
	if _, _, err := Load([]string{"--unknown"}); err == nil {
		t.Fatalf("expected unknown flag to fail")
	}
}
