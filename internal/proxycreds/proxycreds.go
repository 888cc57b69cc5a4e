// Package proxycreds builds the credential bundle injected into every
// generation sandbox: outbound proxy settings, the decoded service-account
// credentials file, and model-routing identifiers.
package proxycreds

import (
	"encoding/base64"
	"fmt"
	"strings"

	"dreamcore/orchestrator/internal/config"
)

// GCPCredsPath is where the decoded service-account JSON is written inside
// every sandbox. The copy lands owned by root (CopyFileToContainer always
// writes as the Docker daemon's default user) but the agent process runs as
// the unprivileged "agent" user, so the file must be world-readable or the
// agent can't see its own credentials. Do not tighten this mode.
const GCPCredsPath = "/tmp/gcp-creds.json"

// GCPCredsMode is the mode GCPCredsPath is written with inside the
// container: world-readable so the agent user can read it, world-writable
// by no one.
const GCPCredsMode = 0o644

// Bundle is the full set of environment variables a sandbox needs to reach
// the outside world only through the filtering proxy.
type Bundle struct {
	Env          []string
	GCPCredsJSON []byte // empty if no credentials configured
}

// Build assembles a Bundle from the loaded config. controlPlaneEgressHost
// is the static IP/hostname of this service's own egress, exempted from
// proxying so the proxy itself can reach back if needed.
func Build(cfg config.Config, controlPlaneEgressHost string) (Bundle, error) {
	var b Bundle

	noProxy := []string{"localhost", "127.0.0.1"}
	if controlPlaneEgressHost != "" {
		noProxy = append(noProxy, controlPlaneEgressHost)
	}
	if extra := strings.TrimSpace(cfg.NoProxyExtra); extra != "" {
		noProxy = append(noProxy, strings.Split(extra, ",")...)
	}

	if cfg.ProxyURL != "" {
		b.Env = append(b.Env,
			"HTTP_PROXY="+cfg.ProxyURL,
			"HTTPS_PROXY="+cfg.ProxyURL,
			"NO_PROXY="+strings.Join(noProxy, ","),
		)
	}

	if cfg.GCPCredsB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.GCPCredsB64)
		if err != nil {
			return Bundle{}, fmt.Errorf("decoding GCP credentials: %w", err)
		}
		b.GCPCredsJSON = decoded
		b.Env = append(b.Env, "GOOGLE_APPLICATION_CREDENTIALS="+GCPCredsPath)
	}

	b.Env = appendIfSet(b.Env, "DREAMCORE_GCP_PROJECT", cfg.GCPProject)
	b.Env = appendIfSet(b.Env, "DREAMCORE_GCP_REGION", cfg.GCPRegion)
	b.Env = appendIfSet(b.Env, "DREAMCORE_MODEL_LARGE", cfg.ModelLarge)
	b.Env = appendIfSet(b.Env, "DREAMCORE_MODEL_MEDIUM", cfg.ModelMedium)
	b.Env = appendIfSet(b.Env, "DREAMCORE_MODEL_SMALL", cfg.ModelSmall)

	return b, nil
}

func appendIfSet(env []string, key, val string) []string {
	if strings.TrimSpace(val) == "" {
		return env
	}
	return append(env, key+"="+val)
}
