package sandbox

import (
	"testing"
	"time"

	"dreamcore/orchestrator/internal/config"
)

func TestShouldReapPastMaxTimeoutRegardlessOfActivity(t *testing.T) {
	now := time.Now()
	created := now.Add(-6 * time.Hour)
	lastUsed := now // used a moment ago
	if !shouldReap(created, lastUsed, now, 20*time.Minute, 5*time.Hour) {
		t.Fatal("expected reap once past max lifetime even with recent activity")
	}
}

func TestShouldReapPastIdleTimeout(t *testing.T) {
	now := time.Now()
	created := now.Add(-30 * time.Minute)
	lastUsed := now.Add(-25 * time.Minute)
	if !shouldReap(created, lastUsed, now, 20*time.Minute, 5*time.Hour) {
		t.Fatal("expected reap once idle past the idle timeout")
	}
}

func TestShouldReapFalseWithinBothWindows(t *testing.T) {
	now := time.Now()
	created := now.Add(-10 * time.Minute)
	lastUsed := now.Add(-1 * time.Minute)
	if shouldReap(created, lastUsed, now, 20*time.Minute, 5*time.Hour) {
		t.Fatal("expected no reap within both idle and max-lifetime windows")
	}
}

func testManager() *Manager {
	cfg := config.Config{DataRoot: "/data", GlobalRoot: "/srv/dreamcore"}
	cfg.Tuning.SandboxImage = "dreamcore/agent-sandbox:latest"
	cfg.Tuning.MemoryBytes = 1 << 30
	return NewManager(nil, cfg, "egress.internal")
}

func TestBuildSpecMountsWorkspaceAndReadOnlySkills(t *testing.T) {
	m := testManager()
	_, hostCfg, _, _, err := m.buildSpec("dreamcore-u-p-gen1", "u", "p")
	if err != nil {
		t.Fatalf("buildSpec: %v", err)
	}
	var sawWorkspace, sawSkills bool
	for _, mnt := range hostCfg.Mounts {
		switch mnt.Target {
		case "/workspace":
			sawWorkspace = true
			if mnt.ReadOnly {
				t.Fatal("workspace mount must be writable")
			}
			if mnt.Source != "/data/users/u/projects/p" {
				t.Fatalf("unexpected workspace source %q", mnt.Source)
			}
		case "/srv/skills":
			sawSkills = true
			if !mnt.ReadOnly {
				t.Fatal("skills mount must be read-only")
			}
		}
	}
	if !sawWorkspace || !sawSkills {
		t.Fatalf("expected both workspace and skills mounts, got %+v", hostCfg.Mounts)
	}
}

func TestBuildSpecLabelsIdentifyOwner(t *testing.T) {
	m := testManager()
	cfg, _, _, _, err := m.buildSpec("name", "u1", "p1")
	if err != nil {
		t.Fatalf("buildSpec: %v", err)
	}
	if cfg.Labels[LabelUser] != "u1" || cfg.Labels[LabelProject] != "p1" {
		t.Fatalf("unexpected labels %+v", cfg.Labels)
	}
}

func TestTouchRecordsLastUsed(t *testing.T) {
	m := testManager()
	before := time.Now()
	m.touch("dreamcore-u-p-gen1")
	m.mu.Lock()
	got, ok := m.lastUsed["dreamcore-u-p-gen1"]
	m.mu.Unlock()
	if !ok {
		t.Fatal("expected lastUsed entry after touch")
	}
	if got.Before(before) {
		t.Fatalf("expected lastUsed timestamp at or after touch call, got %v before %v", got, before)
	}
}
