// Package agentdriver drives the code-generation CLI agent inside an
// already-acquired sandbox: it stages the workspace and prompt, invokes
// the agent non-interactively under a wall-clock timeout, and exposes its
// merged stdout/stderr as a line stream for the event stream shaper.
package agentdriver

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/proxycreds"
	"dreamcore/orchestrator/internal/sandbox"
)

// AgentUser is the non-privileged user the agent CLI runs as inside the
// sandbox image.
const AgentUser = "agent"

// PromptFile is where the prompt is staged inside the workspace for the
// duration of one generation.
const PromptFile = ".prompt.txt"

// Outcome is the result of a completed agent run.
type Outcome struct {
	ExitCode int
	Err      error // non-nil only for driver-level failures (exec/transport), not agent exit codes
}

// Generation streams an in-progress agent run.
type Generation struct {
	Lines <-chan string
	Done  <-chan Outcome
}

// Driver runs generations against a sandbox runtime.
type Driver struct {
	rt          *sandbox.Runtime
	cfg         config.Config
	cliBase     string
	timeout     time.Duration
	controlHost string
}

func New(rt *sandbox.Runtime, cfg config.Config, controlPlaneEgressHost string) *Driver {
	return &Driver{
		rt:          rt,
		cfg:         cfg,
		cliBase:     cfg.AgentCLIBase,
		timeout:     cfg.Tuning.GenerationTimeout,
		controlHost: controlPlaneEgressHost,
	}
}

// RunGeneration implements run_generation(handle, workspace, prompt). The
// returned Generation streams merged stdout/stderr lines as they are
// produced; Done receives exactly one Outcome once the process exits (or
// the driver itself fails before ever exec'ing).
func (d *Driver) RunGeneration(ctx context.Context, h sandbox.Handle, workspaceHost, prompt string) (*Generation, error) {
	if err := d.prepareWorkspace(ctx, h); err != nil {
		return nil, fmt.Errorf("preparing workspace: %w", err)
	}
	if err := d.stagePrompt(ctx, h, prompt); err != nil {
		return nil, fmt.Errorf("staging prompt: %w", err)
	}

	creds, err := proxycreds.Build(d.cfg, d.controlHost)
	if err != nil {
		return nil, err
	}

	script := d.buildInvocation(creds)

	lines := make(chan string, 64)
	done := make(chan Outcome, 1)

	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		result, err := d.rt.Exec(ctx, h.ContainerID, []string{"sh", "-c", script}, sandbox.ExecOptions{}, nil, pw, pw)
		if err != nil {
			done <- Outcome{ExitCode: -1, Err: err}
			return
		}
		done <- Outcome{ExitCode: result.ExitCode}
	}()

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return &Generation{Lines: lines, Done: done}, nil
}

func (d *Driver) prepareWorkspace(ctx context.Context, h sandbox.Handle) error {
	script := strings.Join([]string{
		"mkdir -p /workspace",
		fmt.Sprintf("chown -R %s /workspace || true", AgentUser),
		"mkdir -p /workspace/.claude",
		"cp -r /srv/skills /workspace/.claude/skills 2>/dev/null || true",
		fmt.Sprintf("chown -R %s /workspace/.claude || true", AgentUser),
	}, " && ")
	_, err := d.rt.Exec(ctx, h.ContainerID, []string{"sh", "-c", script}, sandbox.ExecOptions{User: "root"}, nil, nil, nil)
	return err
}

// stagePrompt writes prompt to .prompt.txt inside the workspace. The only
// safe way to carry arbitrary text across the shell boundary is to
// base64-encode it on the way in and decode it inside the sandbox; raw
// string concatenation into a shell command is not safe for arbitrary
// prompt content.
func (d *Driver) stagePrompt(ctx context.Context, h sandbox.Handle, prompt string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(prompt))
	script := fmt.Sprintf("echo %s | base64 -d > /workspace/%s", ShellQuote(encoded), PromptFile)
	_, err := d.rt.Exec(ctx, h.ContainerID, []string{"sh", "-c", script}, sandbox.ExecOptions{User: "root"}, nil, nil, nil)
	return err
}

func (d *Driver) buildInvocation(creds proxycreds.Bundle) string {
	var exports strings.Builder
	for _, kv := range creds.Env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		fmt.Fprintf(&exports, "export %s=%s; ", parts[0], ShellQuote(parts[1]))
	}

	timeoutSecs := int(d.timeout.Seconds())
	if timeoutSecs <= 0 {
		timeoutSecs = 300
	}

	// The agent reads its prompt from stdin and is invoked with flags
	// equivalent to verbose, streaming-JSON output, with interactive
	// permission prompts disabled.
	cmd := fmt.Sprintf(
		"%s --verbose --output-format stream-json --dangerously-skip-permissions < /workspace/%s",
		ShellQuote(d.cliBase), PromptFile,
	)

	return fmt.Sprintf(
		"%scd /workspace && timeout %d su -s /bin/sh %s -c %s",
		exports.String(), timeoutSecs, ShellQuote(AgentUser), ShellQuote(cmd),
	)
}

// ShellQuote wraps v in single quotes, escaping any embedded single quote.
// This is the only primitive used to carry untrusted strings into a shell
// command; string concatenation is never used for that purpose.
func ShellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
