// Package config loads the orchestrator's runtime configuration: secrets
// and identifiers from the environment, non-secret operational tuning from
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of values the orchestrator needs to run.
type Config struct {
	Addr string

	DataRoot   string
	GlobalRoot string

	InternalSecret string

	ProxyURL      string
	NoProxyExtra  string
	GCPCredsB64   string
	GCPProject    string
	GCPRegion     string
	ModelLarge    string
	ModelMedium   string
	ModelSmall    string
	AgentCLIBase  string

	AuditDBPath string

	Tuning Tuning
}

// Tuning holds non-secret operational values normally loaded from a YAML
// file (config.yaml) and defaulted in code when the file is absent.
type Tuning struct {
	SandboxImage          string        `yaml:"sandbox_image"`
	SandboxNameSuffix     string        `yaml:"sandbox_name_suffix"`
	IdleTimeout           time.Duration `yaml:"-"`
	IdleTimeoutMinutes    int           `yaml:"idle_timeout_minutes"`
	MaxTimeout            time.Duration `yaml:"-"`
	MaxTimeoutHours       int           `yaml:"max_timeout_hours"`
	MemoryBytes           int64         `yaml:"memory_bytes"`
	DisposableMemoryRatio float64       `yaml:"disposable_memory_ratio"`
	DisposableCapSeconds  int           `yaml:"disposable_cap_seconds"`
	GenerationTimeout     time.Duration `yaml:"-"`
	GenerationTimeoutSecs int           `yaml:"generation_timeout_seconds"`
	ForwardPortRange      string        `yaml:"forward_port_range"`
	MaxForwardedEvents    int           `yaml:"max_forwarded_events"`
}

func defaultTuning() Tuning {
	return Tuning{
		SandboxImage:          "dreamcore/agent-sandbox:latest",
		SandboxNameSuffix:     "gen1",
		IdleTimeoutMinutes:    20,
		MaxTimeoutHours:       5,
		MemoryBytes:           2 << 30, // 2 GiB
		DisposableMemoryRatio: 0.5,
		DisposableCapSeconds:  60,
		GenerationTimeoutSecs: 300,
		ForwardPortRange:      "8800-8810",
		MaxForwardedEvents:    1000,
	}
}

// Load reads environment variables and, if present, an operational YAML
// file named by DREAMCORE_CONFIG_YAML (defaulting to "config.yaml" in the
// working directory; a missing file is not an error).
func Load() (Config, error) {
	cfg := Config{
		Addr:           env("DREAMCORE_ADDR", ":8080"),
		DataRoot:       env("DREAMCORE_DATA_ROOT", "/data"),
		GlobalRoot:     env("DREAMCORE_GLOBAL_ROOT", "/srv/dreamcore"),
		InternalSecret: env("DREAMCORE_INTERNAL_SECRET", ""),
		ProxyURL:       env("DREAMCORE_PROXY_URL", ""),
		NoProxyExtra:   env("DREAMCORE_NO_PROXY_EXTRA", ""),
		GCPCredsB64:    env("DREAMCORE_GCP_CREDS_B64", ""),
		GCPProject:     env("DREAMCORE_GCP_PROJECT", ""),
		GCPRegion:      env("DREAMCORE_GCP_REGION", ""),
		ModelLarge:     env("DREAMCORE_MODEL_LARGE", ""),
		ModelMedium:    env("DREAMCORE_MODEL_MEDIUM", ""),
		ModelSmall:     env("DREAMCORE_MODEL_SMALL", ""),
		AgentCLIBase:   env("DREAMCORE_AGENT_CLI", "agent-cli"),
		AuditDBPath:    env("DREAMCORE_AUDIT_DB", "data/dreamcore-audit.sqlite"),
	}

	if strings.TrimSpace(cfg.InternalSecret) == "" {
		return Config{}, errors.New("missing DREAMCORE_INTERNAL_SECRET")
	}

	tuning := defaultTuning()
	yamlPath := env("DREAMCORE_CONFIG_YAML", "config.yaml")
	if b, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(b, &tuning); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading %s: %w", yamlPath, err)
	}
	tuning.IdleTimeout = time.Duration(tuning.IdleTimeoutMinutes) * time.Minute
	tuning.MaxTimeout = time.Duration(tuning.MaxTimeoutHours) * time.Hour
	tuning.GenerationTimeout = time.Duration(tuning.GenerationTimeoutSecs) * time.Second
	cfg.Tuning = tuning

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// EnvInt reads an integer environment variable, returning def if unset or
// unparsable.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
