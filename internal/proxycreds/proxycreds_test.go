package proxycreds

import (
	"encoding/base64"
	"strings"
	"testing"

	"dreamcore/orchestrator/internal/config"
)

func TestGCPCredsModeIsWorldReadable(t *testing.T) {
	// The agent CLI runs as an unprivileged user while the credentials file
	// is written by the Docker API as root; anything tighter than
	// world-readable leaves the agent unable to read its own credentials.
	if GCPCredsMode&0o044 != 0o044 {
		t.Fatalf("GCPCredsMode %o must be readable by group and other", GCPCredsMode)
	}
}

func TestBuildDecodesGCPCredentialsAndSetsEnvPath(t *testing.T) {
	raw := []byte(`{"type":"service_account"}`)
	cfg := config.Config{GCPCredsB64: base64.StdEncoding.EncodeToString(raw)}

	b, err := Build(cfg, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(b.GCPCredsJSON) != string(raw) {
		t.Fatalf("expected decoded credentials %s, got %s", raw, b.GCPCredsJSON)
	}
	var sawEnv bool
	for _, kv := range b.Env {
		if kv == "GOOGLE_APPLICATION_CREDENTIALS="+GCPCredsPath {
			sawEnv = true
		}
	}
	if !sawEnv {
		t.Fatalf("expected GOOGLE_APPLICATION_CREDENTIALS pointing at %s, got %+v", GCPCredsPath, b.Env)
	}
}

func TestBuildWithoutCredentialsLeavesBundleEmpty(t *testing.T) {
	b, err := Build(config.Config{}, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(b.GCPCredsJSON) != 0 {
		t.Fatalf("expected no credentials, got %d bytes", len(b.GCPCredsJSON))
	}
	for _, kv := range b.Env {
		if strings.HasPrefix(kv, "GOOGLE_APPLICATION_CREDENTIALS=") {
			t.Fatalf("did not expect credentials env var, got %+v", b.Env)
		}
	}
}

func TestBuildAppendsProxyEnvWhenConfigured(t *testing.T) {
	cfg := config.Config{ProxyURL: "http://proxy.internal:3128", NoProxyExtra: "extra.internal"}
	b, err := Build(cfg, "egress.internal")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	joined := strings.Join(b.Env, " ")
	for _, want := range []string{"HTTP_PROXY=http://proxy.internal:3128", "HTTPS_PROXY=http://proxy.internal:3128", "egress.internal", "extra.internal"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected env to contain %q, got %q", want, joined)
		}
	}
}

func TestBuildRejectsInvalidBase64(t *testing.T) {
	cfg := config.Config{GCPCredsB64: "not-valid-base64!!!"}
	if _, err := Build(cfg, ""); err == nil {
		t.Fatal("expected an error for invalid base64 credentials")
	}
}
