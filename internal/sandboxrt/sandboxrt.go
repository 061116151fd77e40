// Package sandboxrt is the Sandbox Runtime Adapter: a thin, narrowly
// scoped wrapper over the Docker SDK exposing image presence, container
// lifecycle, and log retrieval as independently callable steps so the
// Executor can interleave them with its own timeout and cleanup logic.
package sandboxrt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"rce-core/internal/rcerr"
	"rce-core/internal/registry"
)

// Spec describes everything needed to create one sandbox container.
type Spec struct {
	Name        string
	Image       string
	Executor    string
	Language    string // used only to select package-cache mounts when enabled
	ScriptPath  string // sandbox-visible path, e.g. /code/<jobId>/script.py
	HostCodeDir string // host-visible path bind-mounted read-only at /code/<jobId>
	WorkDir     string // sandbox-visible mount point, e.g. /code/<jobId>
}

// Handle identifies a created container.
type Handle struct {
	ID   string
	Name string
}

// Adapter wraps a Docker SDK client.
type Adapter struct {
	cli      *client.Client
	pkgCache *packageCacheManager
}

// New connects to the container runtime at socket (a docker host URL,
// e.g. "unix:///var/run/docker.sock").
func New(socket string) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(socket),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: docker client init: %v", rcerr.ErrSandboxRuntime, err)
	}
	return &Adapter{cli: cli, pkgCache: newPackageCacheManager("", false)}, nil
}

// EnablePackageCache opts the adapter into per-language read-write
// package-cache bind mounts (pip/npm/cargo/m2), off by default since it
// shares state across otherwise-isolated jobs.
func (a *Adapter) EnablePackageCache(baseDir string) {
	a.pkgCache = newPackageCacheManager(baseDir, true)
}

// Close releases the underlying client connection.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// EnsureImage pulls the image if it is not already present locally.
// Idempotent: a second call against an already-pulled image is a no-op.
func (a *Adapter) EnsureImage(ctx context.Context, ref string) error {
	if _, _, err := a.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}
	rc, err := a.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull %s: %v", rcerr.ErrImageUnavailable, ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("%w: stream pull of %s: %v", rcerr.ErrImageUnavailable, ref, err)
	}
	return nil
}

// Create builds the container's argv from spec.Executor (either a direct
// interpreter invocation or a {{file}}-templated shell command for
// compiled languages), applies the security profile, and creates the
// container without starting it. A name collision means a container
// with this job's deterministic name already exists, so the
// duplicate create fails loudly rather than silently adopting it.
func (a *Adapter) Create(ctx context.Context, spec Spec) (Handle, error) {
	cmd := buildCommand(spec)

	pidsLimit := int64(50)
	memoryBytes := int64(128 * 1024 * 1024)
	nanoCPUs := int64(500_000_000) // 50% of one core

	mounts := []mount.Mount{
		{
			Type:     mount.TypeBind,
			Source:   spec.HostCodeDir,
			Target:   spec.WorkDir,
			ReadOnly: true,
		},
	}
	env := []string{"HOME=/tmp", "PYTHONDONTWRITEBYTECODE=1"}
	for _, m := range a.pkgCache.mountsForLanguage(spec.Language) {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.hostPath, Target: m.containerPath})
		for k, v := range m.env {
			env = append(env, k+"="+v)
		}
	}

	hostCfg := &container.HostConfig{
		AutoRemove:     false,
		ReadonlyRootfs: false,
		SecurityOpt:    []string{"no-new-privileges:true"},
		CapDrop:        []string{"ALL"},
		NetworkMode:    "none",
		Mounts:         mounts,
		Resources: container.Resources{
			Memory:     memoryBytes,
			MemorySwap: memoryBytes,
			NanoCPUs:   nanoCPUs,
			PidsLimit:  &pidsLimit,
		},
	}

	created, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:           spec.Image,
		WorkingDir:      spec.WorkDir,
		Cmd:             cmd,
		User:            "nobody",
		Env:             env,
		AttachStdout:    true,
		AttachStderr:    true,
		AttachStdin:     false,
		Tty:             false,
		NetworkDisabled: true,
	}, hostCfg, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: create container %s: %v", rcerr.ErrSandboxRuntime, spec.Name, err)
	}
	return Handle{ID: created.ID, Name: spec.Name}, nil
}

// buildCommand renders a container Cmd from a LanguageSpec's Executor
// field. Direct interpreters use the literal two-element argv
// [executor, scriptPath]; shell-templated executors (compiled
// languages) are rendered and run under "sh -lc".
func buildCommand(spec Spec) []string {
	if registry.IsShellTemplate(spec.Executor) {
		rendered := strings.ReplaceAll(spec.Executor, "{{file}}", spec.ScriptPath)
		return []string{"sh", "-lc", rendered}
	}
	return []string{spec.Executor, spec.ScriptPath}
}

// Start begins execution of a created container.
func (a *Adapter) Start(ctx context.Context, h Handle) error {
	if err := a.cli.ContainerStart(ctx, h.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start container %s: %v", rcerr.ErrSandboxRuntime, h.Name, err)
	}
	return nil
}

// WaitResult is the outcome of waiting on a container.
type WaitResult struct {
	ExitCode  int64
	Cancelled bool
}

// Wait blocks until the container exits, a runtime error surfaces, or
// ctx is cancelled (deadline or parent cancellation). A cancellation is
// reported via Cancelled=true rather than an error so the Executor can
// distinguish "container told us something" from "we stopped waiting".
func (a *Adapter) Wait(ctx context.Context, h Handle) (WaitResult, error) {
	waitCh, errCh := a.cli.ContainerWait(ctx, h.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return WaitResult{Cancelled: true}, nil
	case resp := <-waitCh:
		return WaitResult{ExitCode: resp.StatusCode}, nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return WaitResult{Cancelled: true}, nil
		}
		return WaitResult{}, fmt.Errorf("%w: wait on container %s: %v", rcerr.ErrSandboxRuntime, h.Name, err)
	}
}

// Kill delivers SIGKILL to the container. Tolerant of a container that
// has already exited or been removed.
func (a *Adapter) Kill(ctx context.Context, h Handle) error {
	if err := a.cli.ContainerKill(ctx, h.ID, "SIGKILL"); err != nil {
		// NotFound: already removed. Conflict: not running (already exited).
		if client.IsErrNotFound(err) || errdefs.IsConflict(err) {
			return nil
		}
		return fmt.Errorf("%w: kill container %s: %v", rcerr.ErrSandboxRuntime, h.Name, err)
	}
	return nil
}

// Logs retrieves the full stdout and stderr streams, demultiplexing the
// runtime's framed log stream into two separate buffers.
func (a *Adapter) Logs(ctx context.Context, h Handle) (stdout, stderr string, err error) {
	rc, err := a.cli.ContainerLogs(ctx, h.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: logs for container %s: %v", rcerr.ErrSandboxRuntime, h.Name, err)
	}
	defer rc.Close()

	var outBuf, errBuf bytes.Buffer
	if _, copyErr := demux(&outBuf, &errBuf, rc); copyErr != nil && copyErr != io.EOF {
		return outBuf.String(), errBuf.String(), fmt.Errorf("%w: demux logs for container %s: %v", rcerr.ErrSandboxRuntime, h.Name, copyErr)
	}
	return outBuf.String(), errBuf.String(), nil
}

// Remove force-removes a container and any anonymous volumes it
// created. Idempotent: removing an already-removed container is not an
// error.
func (a *Adapter) Remove(ctx context.Context, h Handle) error {
	err := a.cli.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("%w: remove container %s: %v", rcerr.ErrCleanupFailed, h.Name, err)
	}
	return nil
}
