package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"forge/archive"
	"forge/files"
	"forge/logging"
	"forge/runtime"
	"forge/terminal"
	"forge/workspace"
)

// stubShell is a minimal runtime.Shell whose Read blocks until killed.
type stubShell struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu     sync.Mutex
	killed bool
}

func newStubShell() *stubShell {
	r, w := io.Pipe()
	return &stubShell{outR: r, outW: w}
}

func (s *stubShell) Read(p []byte) (int, error)  { return s.outR.Read(p) }
func (s *stubShell) Write(p []byte) (int, error) { return len(p), nil }
func (s *stubShell) Resize(cols, rows int) error { return nil }
func (s *stubShell) Close() error                { s.outR.Close(); return nil }
func (s *stubShell) Wait() error                 { return nil }

func (s *stubShell) Kill() {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()
	s.outW.Close()
}

func (s *stubShell) wasKilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// attachProvisioner hands out stub shells and can hold ExecShell open so a
// test can interleave other requests with an attach in progress.
type attachProvisioner struct {
	fakeProvisioner
	hold chan struct{} // when non-nil, ExecShell blocks until closed

	shellMu sync.Mutex
	shells  []*stubShell
}

func (p *attachProvisioner) ExecShell(ctx context.Context, h runtime.Handle, ws workspace.Workspace) (runtime.Shell, error) {
	if p.hold != nil {
		<-p.hold
	}
	sh := newStubShell()
	p.shellMu.Lock()
	p.shells = append(p.shells, sh)
	p.shellMu.Unlock()
	return sh, nil
}

func (p *attachProvisioner) shell() *stubShell {
	p.shellMu.Lock()
	defer p.shellMu.Unlock()
	if len(p.shells) == 0 {
		return nil
	}
	return p.shells[0]
}

func newTerminalTestServer(t *testing.T, prov runtime.Provisioner) (*httptest.Server, *terminal.Registry) {
	t.Helper()

	store, err := workspace.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	log := logging.Discard()
	sessions := terminal.NewRegistry()
	wsHandler := NewWorkspaceHandler(store, prov, archive.NewInstaller(), files.NewService(), sessions, log)
	termHandler := NewTerminalHandler(store, prov, sessions, log)

	r := chi.NewRouter()
	r.Route("/workspaces", func(r chi.Router) {
		r.Post("/", wsHandler.Create)
		r.Delete("/{id}", wsHandler.Delete)
		r.Post("/{id}/start", wsHandler.Start)
		r.Get("/{id}/terminal", termHandler.Handle)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

// A delete arriving while a terminal attach is still spawning its shell must
// not leave that shell running: the session belongs to the workspace and
// goes down with it.
func TestDeleteDuringAttachTearsSessionDown(t *testing.T) {
	hold := make(chan struct{})
	prov := &attachProvisioner{hold: hold}
	srv, sessions := newTerminalTestServer(t, prov)

	id := createWorkspace(t, srv)

	resp, err := http.Post(srv.URL+"/workspaces/"+id+"/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The dial returns once the upgrade is done; the handler is then parked
	// inside ExecShell until hold is released.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/workspaces/" + id + "/terminal"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/workspaces/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	close(hold)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sh := prov.shell()
		if sh != nil && sh.wasKilled() && sessions.Count(id) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	sh := prov.shell()
	t.Fatalf("session outlived its workspace: shell=%v killed=%v registry count=%d",
		sh != nil, sh != nil && sh.wasKilled(), sessions.Count(id))
}
