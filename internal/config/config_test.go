package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
timezone: UTC
limits:
  free_swipes_per_day: 15
  discovery:
    max_attempts: 40
    window: 10m
    on_error: deny
  actions:
    message:
      max_attempts: 100
      window: 1h
swipes:
  atomic_consume: false
payments:
  price_refs:
    elite: price_elite_yearly
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Limits.FreeSwipesPerDay != 15 {
		t.Fatalf("unexpected free swipes/day: %d", cfg.Limits.FreeSwipesPerDay)
	}
	if cfg.Limits.Discovery.MaxAttempts != 40 {
		t.Fatalf("unexpected discovery max: %d", cfg.Limits.Discovery.MaxAttempts)
	}
	if cfg.Limits.Discovery.Window.String() != "10m0s" {
		t.Fatalf("unexpected discovery window: %s", cfg.Limits.Discovery.Window)
	}
	if cfg.Limits.Discovery.OnError != "deny" {
		t.Fatalf("unexpected discovery on_error: %s", cfg.Limits.Discovery.OnError)
	}
	if got := cfg.Limits.Actions["message"].MaxAttempts; got != 100 {
		t.Fatalf("unexpected message action max: %d", got)
	}
	if cfg.Swipes.AtomicConsume {
		t.Fatalf("atomic_consume override should be false")
	}
	if cfg.Payments.PriceRefs["elite"] != "price_elite_yearly" {
		t.Fatalf("unexpected elite price ref: %s", cfg.Payments.PriceRefs["elite"])
	}
	if cfg.Location().String() != "UTC" {
		t.Fatalf("unexpected location: %s", cfg.Location())
	}

	if cfg.Limits.Generic.MaxAttempts != 10 {
		t.Fatalf("generic max default should stay 10")
	}
	if cfg.Limits.Generic.Window.String() != "1h0m0s" {
		t.Fatalf("generic window default should stay 60m, got %s", cfg.Limits.Generic.Window)
	}
	if cfg.Engine.Backend != BackendLocal {
		t.Fatalf("engine backend default should stay local")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Limits.Discovery.MaxAttempts != 30 {
		t.Fatalf("unexpected discovery max default: %d", cfg.Limits.Discovery.MaxAttempts)
	}
	if cfg.Limits.Discovery.Window.String() != "5m0s" {
		t.Fatalf("unexpected discovery window default: %s", cfg.Limits.Discovery.Window)
	}
	if cfg.Limits.Discovery.OnError != "allow" {
		t.Fatalf("unexpected discovery on_error default: %s", cfg.Limits.Discovery.OnError)
	}
	if cfg.Limits.FreeSwipesPerDay != 20 {
		t.Fatalf("unexpected free swipes default: %d", cfg.Limits.FreeSwipesPerDay)
	}
	if !cfg.Swipes.AtomicConsume {
		t.Fatalf("atomic consume should default to true")
	}
	if len(cfg.Payments.PriceRefs) != 3 {
		t.Fatalf("unexpected price refs: %+v", cfg.Payments.PriceRefs)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("FREE_SWIPES_PER_DAY", "3")
	t.Setenv("ENGINE_BACKEND", "REMOTE")
	t.Setenv("ENGINE_REMOTE_URL", "http://ledger:8080")
	t.Setenv("ENGINE_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Limits.FreeSwipesPerDay != 3 {
		t.Fatalf("unexpected free swipes: %d", cfg.Limits.FreeSwipesPerDay)
	}
	if cfg.Engine.Backend != BackendRemote || cfg.Engine.RemoteURL != "http://ledger:8080" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.Timeout.String() != "2s" {
		t.Fatalf("unexpected engine timeout: %s", cfg.Engine.Timeout)
	}
}

func TestLoadRejectsRemoteBackendWithoutURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ENGINE_BACKEND", "remote")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for remote backend without url")
	}
}

func TestLoadRejectsDefaultSecretsInProduction(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("APP_ENV", "prod")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error when jwt secret is the default in production")
	}

	t.Setenv("JWT_SECRET", "real-secret")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error when rpc service key is empty in production")
	}

	t.Setenv("RPC_SERVICE_KEY", "svc-key")
	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error with production secrets set: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ENGINE_TIMEOUT", "soon")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected parse error for ENGINE_TIMEOUT")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"APP_TIMEZONE",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"POSTGRES_MIGRATE_ON_BOOT",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"JWT_SECRET",
		"JWT_ACCESS_TTL",
		"RPC_SERVICE_KEY",
		"FREE_SWIPES_PER_DAY",
		"SWIPES_ATOMIC_CONSUME",
		"PAYMENTS_BASE_URL",
		"PAYMENTS_API_KEY",
		"PAYMENTS_TIMEOUT",
		"ENGINE_BACKEND",
		"ENGINE_REMOTE_URL",
		"ENGINE_SERVICE_KEY",
		"ENGINE_TIMEOUT",
		"ENGINE_SESSION_IDLE_TTL",
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_NOTIFY",
		"CLEANUP_INTERVAL",
		"CLEANUP_AUDIT_RETENTION",
	} {
		t.Setenv(key, "")
	}
}
