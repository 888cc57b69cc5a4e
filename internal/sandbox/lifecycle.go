package sandbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/proxycreds"
	"dreamcore/orchestrator/internal/sandboxname"
)

const (
	LabelApp     = "dreamcore.app"
	LabelUser    = "dreamcore.user"
	LabelProject = "dreamcore.project"
	appLabel     = "dreamcore-sandbox"
	networkName  = "dreamcore"
)

// State is the lifecycle state of a sandbox handle: absent, running, or
// bad (dead/OOM-killed, due for recreation on next acquire).
type State int

const (
	StateAbsent State = iota
	StateRunning
	StateBad
)

// Handle identifies an acquired sandbox container.
type Handle struct {
	ContainerID string
	Name        string
	Warm        bool // true if reused from a warm lookup, false if freshly created
	State       State
}

// StatusFunc receives human-readable status strings as acquisition
// progresses ("Sandbox connected (warm)", "Recreating sandbox", ...), fed
// straight into the event stream shaper as `status` events.
type StatusFunc func(msg string)

// Manager implements the sandbox lifecycle state machine described in the
// component design: warm lookup, cold create, race recovery and
// bad-state recovery.
type Manager struct {
	rt       *Runtime
	cfg      config.Config
	egress   string // this service's own static egress host, listed in NO_PROXY
	imageRef string

	mu       sync.Mutex
	lastUsed map[string]time.Time // sandbox name -> last Acquire time, for idle reaping
}

func NewManager(rt *Runtime, cfg config.Config, controlPlaneEgressHost string) *Manager {
	return &Manager{
		rt:       rt,
		cfg:      cfg,
		egress:   controlPlaneEgressHost,
		imageRef: cfg.Tuning.SandboxImage,
		lastUsed: make(map[string]time.Time),
	}
}

func (m *Manager) touch(name string) {
	m.mu.Lock()
	m.lastUsed[name] = time.Now()
	m.mu.Unlock()
}

// Acquire implements acquire(user_id, project_id) -> Handle.
func (m *Manager) Acquire(ctx context.Context, userID, projectID string, status StatusFunc) (Handle, error) {
	name := sandboxname.Name(userID, projectID, m.cfg.Tuning.SandboxNameSuffix)

	id, info, err := m.rt.ContainerByName(ctx, name)
	if err != nil {
		return Handle{}, fmt.Errorf("sandbox lookup: %w", err)
	}
	if id != "" {
		if info != nil && info.State != nil && (info.State.Dead || info.State.OOMKilled || isTerminated(info.State.Status)) {
			status("Recreating sandbox")
			if err := m.rt.RemoveContainer(ctx, id, true); err != nil {
				return Handle{}, fmt.Errorf("removing bad sandbox: %w", err)
			}
			return m.create(ctx, name, userID, projectID, status)
		}
		if info != nil && info.State != nil && !info.State.Running {
			if err := m.rt.StartContainer(ctx, id); err != nil {
				return Handle{}, fmt.Errorf("restarting sandbox: %w", err)
			}
		}
		status("Sandbox connected (warm)")
		m.touch(name)
		return Handle{ContainerID: id, Name: name, Warm: true, State: StateRunning}, nil
	}

	return m.create(ctx, name, userID, projectID, status)
}

func isTerminated(status string) bool {
	switch strings.ToLower(status) {
	case "exited", "dead":
		return true
	}
	return false
}

func (m *Manager) create(ctx context.Context, name, userID, projectID string, status StatusFunc) (Handle, error) {
	cfg, hostCfg, netCfg, creds, err := m.buildSpec(name, userID, projectID)
	if err != nil {
		return Handle{}, fmt.Errorf("building sandbox spec: %w", err)
	}
	if _, err := m.rt.EnsureNetwork(ctx, networkName, nil); err != nil {
		return Handle{}, fmt.Errorf("ensuring network: %w", err)
	}

	id, err := m.rt.CreateContainer(ctx, cfg, hostCfg, netCfg, name)
	if err != nil {
		if client.IsErrNotFound(err) || isAlreadyExists(err) {
			// Race: another request created the same sandbox first. Fall
			// through to a warm lookup and report it as reused.
			existingID, _, lookupErr := m.rt.ContainerByName(ctx, name)
			if lookupErr != nil {
				return Handle{}, fmt.Errorf("race recovery lookup: %w", lookupErr)
			}
			if existingID != "" {
				status("Sandbox connected (warm)")
				m.touch(name)
				return Handle{ContainerID: existingID, Name: name, Warm: true, State: StateRunning}, nil
			}
		}
		return Handle{}, fmt.Errorf("SANDBOX_ERROR: creating sandbox: %w", err)
	}
	if err := m.rt.StartContainer(ctx, id); err != nil {
		return Handle{}, fmt.Errorf("SANDBOX_ERROR: starting sandbox: %w", err)
	}
	if len(creds.GCPCredsJSON) > 0 {
		if err := m.rt.CopyFileToContainer(ctx, id, proxycreds.GCPCredsPath, creds.GCPCredsJSON, proxycreds.GCPCredsMode); err != nil {
			return Handle{}, fmt.Errorf("SANDBOX_ERROR: writing GCP credentials: %w", err)
		}
	}
	status("Sandbox created")
	m.touch(name)
	return Handle{ContainerID: id, Name: name, Warm: false, State: StateRunning}, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already in use")
}

func (m *Manager) buildSpec(name, userID, projectID string) (*container.Config, *container.HostConfig, *network.NetworkingConfig, proxycreds.Bundle, error) {
	creds, err := proxycreds.Build(m.cfg, m.egress)
	if err != nil {
		return nil, nil, nil, proxycreds.Bundle{}, err
	}
	env := append([]string{}, creds.Env...)
	env = append(env, "DREAMCORE_USER_ID="+userID, "DREAMCORE_PROJECT_ID="+projectID)

	labels := map[string]string{
		LabelApp:     appLabel,
		LabelUser:    userID,
		LabelProject: projectID,
	}

	workspaceHost := strings.TrimRight(m.cfg.DataRoot, "/") + "/users/" + userID + "/projects/" + projectID
	skillsHost := strings.TrimRight(m.cfg.GlobalRoot, "/") + "/.claude/skills"

	cfg := &container.Config{
		Image:      m.imageRef,
		Env:        env,
		Labels:     labels,
		WorkingDir: "/workspace",
		Cmd:        []string{"tail", "-f", "/dev/null"},
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: workspaceHost, Target: "/workspace"},
			{Type: mount.TypeBind, Source: skillsHost, Target: "/srv/skills", ReadOnly: true},
		},
		Resources: container.Resources{
			Memory: m.cfg.Tuning.MemoryBytes,
		},
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}
	return cfg, hostCfg, netCfg, creds, nil
}

// AcquireDisposable creates a short-lived, memory-halved sandbox for the
// lightweight auxiliary-model endpoints. Callers must terminate it
// themselves once done; it is never warm-reused.
func (m *Manager) AcquireDisposable(ctx context.Context, purpose string) (Handle, error) {
	name := "dreamcore-disposable-" + purpose + "-" + randSuffix()
	cfg, hostCfg, netCfg, creds, err := m.buildSpec(name, "disposable", purpose)
	if err != nil {
		return Handle{}, err
	}
	hostCfg.Resources.Memory = int64(float64(m.cfg.Tuning.MemoryBytes) * m.cfg.Tuning.DisposableMemoryRatio)
	if _, err := m.rt.EnsureNetwork(ctx, networkName, nil); err != nil {
		return Handle{}, err
	}
	id, err := m.rt.CreateContainer(ctx, cfg, hostCfg, netCfg, name)
	if err != nil {
		return Handle{}, fmt.Errorf("SANDBOX_ERROR: creating disposable sandbox: %w", err)
	}
	if err := m.rt.StartContainer(ctx, id); err != nil {
		return Handle{}, fmt.Errorf("SANDBOX_ERROR: starting disposable sandbox: %w", err)
	}
	if len(creds.GCPCredsJSON) > 0 {
		if err := m.rt.CopyFileToContainer(ctx, id, proxycreds.GCPCredsPath, creds.GCPCredsJSON, proxycreds.GCPCredsMode); err != nil {
			return Handle{}, fmt.Errorf("SANDBOX_ERROR: writing GCP credentials: %w", err)
		}
	}
	return Handle{ContainerID: id, Warm: false, State: StateRunning}, nil
}

// Release terminates a disposable sandbox. It is never called for a
// regular generation sandbox, which is left running for idle-timeout.
func (m *Manager) Release(ctx context.Context, h Handle) error {
	if h.ContainerID == "" {
		return nil
	}
	return m.rt.RemoveContainer(ctx, h.ContainerID, true)
}

func randSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000)
}

// ReapExpired removes every regular sandbox that has sat idle past
// cfg.Tuning.IdleTimeout or lived past cfg.Tuning.MaxTimeout, returning the
// names it removed. Disposable sandboxes are excluded: their caller
// terminates them directly via Release, bounded by DisposableCapSeconds.
func (m *Manager) ReapExpired(ctx context.Context) ([]string, error) {
	containers, err := m.rt.ListContainers(ctx, LabelApp, appLabel)
	if err != nil {
		return nil, fmt.Errorf("listing sandboxes: %w", err)
	}

	now := time.Now()
	var removed []string
	for _, c := range containers {
		if c.Labels[LabelUser] == "disposable" {
			continue
		}
		name := strings.TrimPrefix(firstName(c.Names), "/")
		created := time.Unix(c.Created, 0)

		m.mu.Lock()
		last, tracked := m.lastUsed[name]
		m.mu.Unlock()
		if !tracked {
			last = created
		}

		if !shouldReap(created, last, now, m.cfg.Tuning.IdleTimeout, m.cfg.Tuning.MaxTimeout) {
			continue
		}
		if err := m.rt.RemoveContainer(ctx, c.ID, true); err != nil {
			return removed, fmt.Errorf("removing expired sandbox %s: %w", name, err)
		}
		m.mu.Lock()
		delete(m.lastUsed, name)
		m.mu.Unlock()
		removed = append(removed, name)
	}
	return removed, nil
}

// shouldReap reports whether a sandbox created at created and last used at
// lastUsed should be removed at now, given the idle and max-lifetime
// thresholds from config.
func shouldReap(created, lastUsed, now time.Time, idleTimeout, maxTimeout time.Duration) bool {
	if maxTimeout > 0 && now.Sub(created) > maxTimeout {
		return true
	}
	return idleTimeout > 0 && now.Sub(lastUsed) > idleTimeout
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// StartReaper runs ReapExpired on a fixed interval until ctx is canceled,
// logging what it removes. Grounded on the same ticker-driven reconcile
// loop shape used elsewhere for background sweeps.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := m.ReapExpired(ctx)
				if err != nil {
					logger.Printf("sandbox reaper error: %v", err)
					continue
				}
				for _, name := range removed {
					logger.Printf("reaped expired sandbox %s", name)
				}
			}
		}
	}()
}
