package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearDreamcoreEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DREAMCORE_ADDR", "DREAMCORE_DATA_ROOT", "DREAMCORE_GLOBAL_ROOT",
		"DREAMCORE_INTERNAL_SECRET", "DREAMCORE_PROXY_URL", "DREAMCORE_NO_PROXY_EXTRA",
		"DREAMCORE_GCP_CREDS_B64", "DREAMCORE_GCP_PROJECT", "DREAMCORE_GCP_REGION",
		"DREAMCORE_MODEL_LARGE", "DREAMCORE_MODEL_MEDIUM", "DREAMCORE_MODEL_SMALL",
		"DREAMCORE_AGENT_CLI", "DREAMCORE_AUDIT_DB", "DREAMCORE_CONFIG_YAML",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFailsWithoutInternalSecret(t *testing.T) {
	clearDreamcoreEnv(t)
	t.Setenv("DREAMCORE_CONFIG_YAML", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when DREAMCORE_INTERNAL_SECRET is unset")
	}
}

func TestLoadAppliesDefaultsWithoutYAML(t *testing.T) {
	clearDreamcoreEnv(t)
	t.Setenv("DREAMCORE_INTERNAL_SECRET", "s3cr3t")
	t.Setenv("DREAMCORE_CONFIG_YAML", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Tuning.MemoryBytes != 2<<30 {
		t.Fatalf("expected default memory bytes, got %d", cfg.Tuning.MemoryBytes)
	}
	if cfg.Tuning.IdleTimeout.Minutes() != 20 {
		t.Fatalf("expected default idle timeout of 20m, got %v", cfg.Tuning.IdleTimeout)
	}
}

func TestLoadOverlaysYAMLTuning(t *testing.T) {
	clearDreamcoreEnv(t)
	t.Setenv("DREAMCORE_INTERNAL_SECRET", "s3cr3t")

	yamlPath := filepath.Join(t.TempDir(), "config.yaml")
	contents := "memory_bytes: 1073741824\nidle_timeout_minutes: 5\n"
	if err := os.WriteFile(yamlPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DREAMCORE_CONFIG_YAML", yamlPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tuning.MemoryBytes != 1073741824 {
		t.Fatalf("expected overridden memory bytes, got %d", cfg.Tuning.MemoryBytes)
	}
	if cfg.Tuning.IdleTimeout.Minutes() != 5 {
		t.Fatalf("expected overridden idle timeout of 5m, got %v", cfg.Tuning.IdleTimeout)
	}
	// Values not present in the override file keep their defaults.
	if cfg.Tuning.MaxTimeoutHours != 5 {
		t.Fatalf("expected default max timeout hours to survive, got %d", cfg.Tuning.MaxTimeoutHours)
	}
}

func TestEnvIntFallsBackOnUnparsable(t *testing.T) {
	t.Setenv("DREAMCORE_TEST_INT", "not-a-number")
	if got := EnvInt("DREAMCORE_TEST_INT", 42); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestEnvIntParsesSetValue(t *testing.T) {
	t.Setenv("DREAMCORE_TEST_INT", "7")
	if got := EnvInt("DREAMCORE_TEST_INT", 42); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}
