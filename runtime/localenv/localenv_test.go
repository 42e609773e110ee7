package localenv

import (
	"context"
	"testing"

	"forge/logging"
	"forge/workspace"
)

func testWorkspace(t *testing.T) workspace.Workspace {
	t.Helper()
	return workspace.Workspace{ID: "test", RootPath: t.TempDir()}
}

func TestIsolationIsSurfaced(t *testing.T) {
	p := New(Config{Shell: "/bin/bash"}, logging.Discard())
	if got := p.Isolation(); got != "none" {
		t.Errorf("Isolation() = %q, want %q", got, "none")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	p := New(Config{Shell: "/bin/bash"}, logging.Discard())

	for _, handle := range []string{"", "local-never-provisioned"} {
		if err := p.Destroy(context.Background(), localHandle(handle)); err != nil {
			t.Errorf("Destroy(%q) = %v, want nil", handle, err)
		}
		// Twice in a row is still a no-op.
		if err := p.Destroy(context.Background(), localHandle(handle)); err != nil {
			t.Errorf("second Destroy(%q) = %v, want nil", handle, err)
		}
	}
}

func TestInstallDependenciesWithoutManifestIsNoop(t *testing.T) {
	p := New(Config{Shell: "/bin/bash"}, logging.Discard())

	ws := testWorkspace(t)
	if err := p.InstallDependencies(context.Background(), ws); err != nil {
		t.Errorf("InstallDependencies without manifest = %v, want nil", err)
	}
}
