// Package localenv provisions workspace runtimes as plain host
// subprocesses with a per-workspace Python virtual environment. It exists
// for hosts without a container runtime and provides NO isolation: shells
// share the host's process and filesystem namespace. Isolation() reports
// "none" so callers can surface that instead of hiding it.
package localenv

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

// venvDir is the virtual environment directory created under each
// workspace root. It is hidden from file listings.
const venvDir = ".venv"

type Config struct {
	Python string // python interpreter used to create venvs
	Shell  string
}

type Provisioner struct {
	cfg Config
	log *logging.Logger
}

func New(cfg Config, log *logging.Logger) *Provisioner {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	return &Provisioner{cfg: cfg, log: log}
}

func (p *Provisioner) Isolation() string { return "none" }

// Provision creates the workspace's virtual environment if it does not
// exist yet. The handle is synthetic; there is no external resource beyond
// the venv directory inside the root.
func (p *Provisioner) Provision(ctx context.Context, ws workspace.Workspace) (runtime.Handle, error) {
	venv := filepath.Join(ws.RootPath, venvDir)
	if _, err := os.Stat(venv); err == nil {
		return localHandle(ws.ID), nil
	}

	out, err := exec.CommandContext(ctx, p.cfg.Python, "-m", "venv", venv).CombinedOutput()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeProvisionFailed,
			fmt.Sprintf("create venv: %s", strings.TrimSpace(string(out))), err)
	}
	p.log.Info("virtual environment created", "workspace_id", ws.ID)
	return localHandle(ws.ID), nil
}

func localHandle(id string) runtime.Handle { return runtime.Handle("local-" + id) }

func (p *Provisioner) InstallDependencies(ctx context.Context, ws workspace.Workspace) error {
	manifest := filepath.Join(ws.RootPath, runtime.ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		return nil
	}

	pip := filepath.Join(ws.RootPath, venvDir, "bin", "pip")
	if _, err := os.Stat(pip); err != nil {
		// No venv yet: the install re-runs after Provision creates one.
		return nil
	}

	out, err := exec.CommandContext(ctx, pip, "install", "-r", manifest).CombinedOutput()
	if err != nil {
		return apperr.Wrap(apperr.CodeDependencyInstall,
			fmt.Sprintf("pip install failed: %s", tail(string(out), 512)), err)
	}
	p.log.Info("dependencies installed", "workspace_id", ws.ID)
	return nil
}

// ExecShell spawns an interactive shell under a pty with its working
// directory confined to the workspace root and the venv on PATH.
func (p *Provisioner) ExecShell(ctx context.Context, handle runtime.Handle, ws workspace.Workspace) (runtime.Shell, error) {
	cmd := exec.Command(p.cfg.Shell, "-i")
	cmd.Dir = ws.RootPath
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"PYTHONUNBUFFERED=1",
		`PS1=\w $ `,
		"VIRTUAL_ENV="+filepath.Join(ws.RootPath, venvDir),
		"PATH="+filepath.Join(ws.RootPath, venvDir, "bin")+":"+os.Getenv("PATH"),
	)

	sh, err := runtime.StartPty(cmd)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProvisionFailed, "start shell", err)
	}
	return sh, nil
}

// Destroy is a no-op beyond the venv, which lives inside the workspace
// root and is removed with it. Idempotent by construction.
func (p *Provisioner) Destroy(ctx context.Context, handle runtime.Handle) error {
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
