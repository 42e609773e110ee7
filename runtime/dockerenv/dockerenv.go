// Package dockerenv provisions workspace runtimes as Docker containers
// driven through the docker CLI. Each workspace gets one container from a
// fixed base image with its root bind-mounted at /workspace, running as a
// non-root user with a memory cap and no-new-privileges.
package dockerenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"forge/apperr"
	"forge/logging"
	"forge/runtime"
	"forge/workspace"
)

// WorkDir is where the workspace root is mounted inside the container.
const WorkDir = "/workspace"

type Config struct {
	BaseImage   string
	User        string // uid:gid, e.g. "1000:1000"
	MemoryLimit string // docker --memory value, e.g. "512m"
	Network     string // docker --network mode, fixed at provision time
	Shell       string
}

type Provisioner struct {
	cfg Config
	log *logging.Logger
}

func New(cfg Config, log *logging.Logger) *Provisioner {
	return &Provisioner{cfg: cfg, log: log}
}

func (p *Provisioner) Isolation() string { return "container" }

// runArgs builds the `docker run` argument list for a workspace container.
// Kept separate so the sandboxing flags are testable without a daemon.
func (p *Provisioner) runArgs(ws workspace.Workspace) []string {
	return []string{
		"run", "-d",
		"--name", containerName(ws.ID),
		"--user", p.cfg.User,
		"--memory", p.cfg.MemoryLimit,
		"--security-opt", "no-new-privileges",
		"--network", p.cfg.Network,
		"-v", fmt.Sprintf("%s:%s", ws.RootPath, WorkDir),
		"-w", WorkDir,
		p.cfg.BaseImage,
		"sleep", "infinity",
	}
}

func containerName(id string) string { return "forge-" + id }

func (p *Provisioner) Provision(ctx context.Context, ws workspace.Workspace) (runtime.Handle, error) {
	// A container left over from a failed earlier attempt would make the
	// name collide; remove it before creating a fresh one.
	rm := exec.CommandContext(ctx, "docker", "rm", "-f", containerName(ws.ID))
	_ = rm.Run()

	args := p.runArgs(ws)
	p.log.Debug("creating container", "workspace_id", ws.ID, "image", p.cfg.BaseImage)

	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeProvisionFailed,
			fmt.Sprintf("docker run failed: %s", strings.TrimSpace(string(out))), err)
	}

	cid := parseContainerID(string(out))
	if cid == "" {
		return "", apperr.Newf(apperr.CodeProvisionFailed,
			"docker run produced no container id: %s", strings.TrimSpace(string(out)))
	}
	p.log.Info("container created", "workspace_id", ws.ID, "container_id", cid)
	return runtime.Handle(cid), nil
}

func (p *Provisioner) InstallDependencies(ctx context.Context, ws workspace.Workspace) error {
	manifest := filepath.Join(ws.RootPath, runtime.ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		return nil
	}

	// Dependencies are installed with docker exec, so the container must
	// exist. Before provisioning the manifest stays on disk and the
	// install runs as part of Provision's follow-up instead.
	if ws.RuntimeHandle == "" {
		return nil
	}

	out, err := exec.CommandContext(ctx, "docker", "exec", ws.RuntimeHandle,
		"pip", "install", "--no-cache-dir", "-r", WorkDir+"/"+runtime.ManifestName).CombinedOutput()
	if err != nil {
		return apperr.Wrap(apperr.CodeDependencyInstall,
			fmt.Sprintf("pip install failed: %s", tail(string(out), 512)), err)
	}
	p.log.Info("dependencies installed", "workspace_id", ws.ID)
	return nil
}

func (p *Provisioner) ExecShell(ctx context.Context, handle runtime.Handle, ws workspace.Workspace) (runtime.Shell, error) {
	if handle == "" {
		return nil, apperr.New(apperr.CodeProvisionFailed, "workspace has no runtime")
	}
	cmd := exec.Command("docker", "exec", "-it",
		"-e", "TERM=xterm-256color",
		"-e", "PYTHONUNBUFFERED=1",
		string(handle), p.cfg.Shell, "-i")

	sh, err := runtime.StartPty(cmd)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProvisionFailed, "start shell", err)
	}
	return sh, nil
}

// Destroy removes the container. Missing containers are fine: destroy is
// idempotent and may run for handles that never finished provisioning.
func (p *Provisioner) Destroy(ctx context.Context, handle runtime.Handle) error {
	if handle == "" {
		return nil
	}
	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", string(handle)).CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "No such container") {
			return nil
		}
		return apperr.Wrap(apperr.CodeProvisionFailed,
			fmt.Sprintf("docker rm failed: %s", strings.TrimSpace(string(out))), err)
	}
	return nil
}

// parseContainerID extracts the container id from docker run output, which
// may carry warnings before the id line.
func parseContainerID(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if (len(line) == 64 || len(line) == 12) && isHex(line) {
			return line
		}
	}
	return ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
