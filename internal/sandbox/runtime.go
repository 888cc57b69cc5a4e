// Package sandbox implements the generation sandbox runtime on top of the
// Docker engine API: name-based lookup-or-create containers, network
// provisioning, and exec/copy primitives used to drive the agent
// CLI inside a sandbox.
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Runtime wraps the Docker engine client with the operations the
// lifecycle manager and agent driver need.
type Runtime struct {
	api *client.Client
}

// NewRuntime connects to the Docker engine using the standard
// DOCKER_HOST/DOCKER_CERT_PATH environment, negotiating the API version.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker engine unreachable: %w", err)
	}
	return &Runtime{api: cli}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.api == nil {
		return nil
	}
	return r.api.Close()
}

// EnsureNetwork returns the named bridge network's ID, creating it if
// absent.
func (r *Runtime) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("network name required")
	}
	args := filters.NewArgs()
	args.Add("name", name)
	list, err := r.api.NetworkList(ctx, types.NetworkListOptions{Filters: args})
	if err != nil {
		return "", err
	}
	for _, item := range list {
		if item.Name == name {
			return item.ID, nil
		}
	}
	resp, err := r.api.NetworkCreate(ctx, name, types.NetworkCreate{
		CheckDuplicate: true,
		Driver:         "bridge",
		Labels:         labels,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ContainerByName looks up a container by its exact name, returning a nil
// info and no error if not found.
func (r *Runtime) ContainerByName(ctx context.Context, name string) (string, *types.ContainerJSON, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil, errors.New("container name required")
	}
	info, err := r.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return info.ID, &info, nil
}

// ListContainers returns summaries for running containers carrying
// label=value, used by the idle/lifetime reaper to enumerate sandboxes
// without inspecting every container on the host.
func (r *Runtime) ListContainers(ctx context.Context, label, value string) ([]types.Container, error) {
	args := filters.NewArgs()
	args.Add("label", label+"="+value)
	return r.api.ContainerList(ctx, container.ListOptions{Filters: args})
}

func (r *Runtime) CreateContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, name string) (string, error) {
	resp, err := r.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *Runtime) StartContainer(ctx context.Context, containerID string) error {
	if strings.TrimSpace(containerID) == "" {
		return errors.New("container id required")
	}
	return r.api.ContainerStart(ctx, containerID, container.StartOptions{})
}

func (r *Runtime) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	if strings.TrimSpace(containerID) == "" {
		return errors.New("container id required")
	}
	return r.api.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: false, // the project volume outlives the sandbox
	})
}

// ExecOptions configures a one-shot exec inside a running container.
type ExecOptions struct {
	Env     []string
	WorkDir string
	User    string
}

// ExecResult is the outcome of a non-TTY exec: the process exit code.
// Output is not kept here; Exec demuxes it to the writers it is given.
type ExecResult struct {
	ExitCode int
}

// Exec runs cmd inside containerID, streaming stdin (if non-nil) in and
// demuxing stdout/stderr to the given writers. It does not itself turn a
// non-zero exit code into an error; the agent driver needs the raw exit
// code to classify the outcome.
func (r *Runtime) Exec(ctx context.Context, containerID string, cmd []string, opts ExecOptions, stdin io.Reader, stdout, stderr io.Writer) (ExecResult, error) {
	if strings.TrimSpace(containerID) == "" {
		return ExecResult{}, errors.New("container id required")
	}
	if len(cmd) == 0 {
		return ExecResult{}, errors.New("command required")
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	execResp, err := r.api.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
		Cmd:          cmd,
		Env:          opts.Env,
		WorkingDir:   opts.WorkDir,
		User:         opts.User,
	})
	if err != nil {
		return ExecResult{}, err
	}

	attach, err := r.api.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, err
	}
	defer attach.Close()

	errCh := make(chan error, 1)
	go func() {
		if stdin == nil {
			errCh <- nil
			return
		}
		_, copyErr := io.Copy(attach.Conn, stdin)
		if cw, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		errCh <- copyErr
	}()

	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		return ExecResult{}, err
	}
	if ioErr := <-errCh; ioErr != nil {
		return ExecResult{}, ioErr
	}

	inspect, err := r.api.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{ExitCode: inspect.ExitCode}, nil
}

// CopyFileToContainer writes data as a single file at destPath inside
// containerID, creating it with the given mode.
func (r *Runtime) CopyFileToContainer(ctx context.Context, containerID, destPath string, data []byte, mode int64) error {
	if strings.TrimSpace(containerID) == "" {
		return errors.New("container id required")
	}
	destPath = strings.TrimSpace(destPath)
	if destPath == "" {
		return errors.New("destination path required")
	}
	if mode == 0 {
		mode = 0o644
	}
	destDir := path.Dir(destPath)
	name := path.Base(destPath)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: name, Mode: mode, Size: int64(len(data)), ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return r.api.CopyToContainer(ctx, containerID, destDir, &buf, types.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	})
}
