// Package runtime defines the provisioner contract implemented by the
// container-backed and subprocess-backed execution environments.
package runtime

import (
	"context"
	"io"

	"forge/workspace"
)

// Handle is an opaque reference to a provisioned environment: a container
// id for the docker backend, a synthetic local id for the subprocess one.
type Handle string

// Shell is an interactive shell attached inside a runtime. Reads return
// terminal output, writes are keystrokes. Close releases the pty; Kill
// forcibly terminates the process group.
type Shell interface {
	io.ReadWriteCloser
	Resize(cols, rows int) error
	Wait() error
	Kill()
}

// Provisioner creates, executes into, and destroys isolated environments.
// The variant is chosen once at startup from configuration.
type Provisioner interface {
	// Provision creates the isolated environment for the workspace and
	// returns its handle. Failures are PROVISION_FAILED and are never
	// retried automatically.
	Provision(ctx context.Context, ws workspace.Workspace) (Handle, error)

	// InstallDependencies installs the workspace's declared dependencies
	// (requirements.txt) into the environment. Failure is reported as
	// DEPENDENCY_INSTALL_FAILED and does not invalidate extracted files.
	InstallDependencies(ctx context.Context, ws workspace.Workspace) error

	// ExecShell attaches an interactive shell inside the environment.
	ExecShell(ctx context.Context, handle Handle, ws workspace.Workspace) (Shell, error)

	// Destroy tears the environment down. Idempotent: destroying an
	// unknown or already-destroyed handle is a no-op.
	Destroy(ctx context.Context, handle Handle) error

	// Isolation names the isolation level this backend provides
	// ("container" or "none") so callers can surface it.
	Isolation() string
}

// ManifestName is the dependency manifest recognized at a workspace root.
const ManifestName = "requirements.txt"
