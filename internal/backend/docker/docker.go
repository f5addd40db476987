// Package docker implements the container-backed execution backend:
// content-addressed image caching, a long-lived container per run, and
// an exec-prefix every adapter invocation is run through. Grounded on
// the teacher's git-worktree-based sandbox lifecycle (adapted to
// containers) and on shelling out to the docker CLI the way the
// example pack's node-sandbox executor does, since no repo in the pack
// imports a Docker Go SDK.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrun/agentrun/internal/backend"
	"github.com/agentrun/agentrun/internal/runerr"
	"github.com/agentrun/agentrun/internal/runid"
)

const defaultMount = "/workspace"

// Config controls how a container sandbox is built and started.
type Config struct {
	ContextDir  string // build context, normally the run's working copy
	Dockerfile  string // absolute or context-relative path
	Mount       string // container mount point; defaults to /workspace
	RunDir      string // where build/inspect/log diagnostics are archived
	EnvDefaults map[string]string
}

// Sandbox is a live docker container backing an agent run.
type Sandbox struct {
	container string
	mount     string
	runDir    string
}

// readinessLimiter bounds how often we poll "docker info" while
// waiting for the daemon, rather than busy-looping.
var readinessLimiter = rate.NewLimiter(rate.Every(500*time.Millisecond), 1)

// WaitForDaemon polls `docker info` until it succeeds or ctx expires.
func WaitForDaemon(ctx context.Context) error {
	for {
		if err := readinessLimiter.Wait(ctx); err != nil {
			return runerr.BackendUnavailable("docker_unreachable", "timed out waiting for docker daemon")
		}
		cmd := exec.CommandContext(ctx, "docker", "info")
		if err := cmd.Run(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return runerr.BackendUnavailable("docker_unreachable", ctx.Err().Error())
		default:
		}
	}
}

// Start builds (or reuses, by content digest) an image and launches a
// long-lived container from it.
func Start(ctx context.Context, cfg Config) (*Sandbox, error) {
	if cfg.Mount == "" {
		cfg.Mount = defaultMount
	}
	if err := WaitForDaemon(ctx); err != nil {
		return nil, err
	}

	digest, err := ComputeImageDigest(cfg.ContextDir, cfg.Dockerfile)
	if err != nil {
		return nil, runerr.BackendUnavailable("image_hash_failed", err.Error())
	}
	tag := fmt.Sprintf("agentrun-%s", digest[:16])

	if !imageExists(ctx, tag) {
		if err := buildImage(ctx, cfg, tag); err != nil {
			return nil, err
		}
	}

	name := runid.ContainerName(timeNow())
	runArgs := []string{"run", "-d", "--name", name, "-v", fmt.Sprintf("%s:%s", mustAbs(cfg.ContextDir), cfg.Mount), "-w", cfg.Mount, tag, "sleep", "infinity"}
	cmd := exec.CommandContext(ctx, "docker", runArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, runerr.BackendUnavailable("container_start_failed", fmt.Sprintf("%v: %s", err, stderr.String()))
	}

	return &Sandbox{container: name, mount: cfg.Mount, runDir: cfg.RunDir}, nil
}

func timeNow() time.Time { return time.Now() }

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func imageExists(ctx context.Context, tag string) bool {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", tag)
	return cmd.Run() == nil
}

func buildImage(ctx context.Context, cfg Config, tag string) error {
	logPath := filepath.Join(cfg.RunDir, "docker_build.log")
	logFile, err := os.Create(logPath)
	if err == nil {
		defer logFile.Close()
	}

	args := []string{"build", "-t", tag, "-f", cfg.Dockerfile, cfg.ContextDir}
	cmd := exec.CommandContext(ctx, "docker", args...)
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	if err := cmd.Run(); err != nil {
		return runerr.BackendUnavailable("image_build_failed", fmt.Sprintf("docker build failed: %v (see %s)", err, logPath))
	}
	return nil
}

func (s *Sandbox) CommandPrefix() []string {
	return []string{"docker", "exec", "-i", "-w", s.mount, s.container}
}

func (s *Sandbox) Mount() string { return s.mount }

func (s *Sandbox) ShellFamily() backend.ShellFamily {
	return backend.EffectiveShellFamily(false, false)
}

// Close archives container logs/inspect output on the way down (best
// effort) and force-removes the container.
func (s *Sandbox) Close(ctx context.Context) error {
	if s.runDir != "" {
		archiveDiagnostic(ctx, s.container, "docker", []string{"logs", s.container}, filepath.Join(s.runDir, "docker_logs.txt"))
		archiveDiagnostic(ctx, s.container, "docker", []string{"inspect", s.container}, filepath.Join(s.runDir, "docker_inspect.json"))
	}
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", s.container)
	return cmd.Run()
}

func archiveDiagnostic(ctx context.Context, container, bin string, args []string, dest string) {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil && len(out) == 0 {
		return
	}
	_ = os.WriteFile(dest, redactEnv(out), 0o644)
}
