package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"forge/apperr"
)

// Store is the in-memory workspace registry. Reads are served concurrently;
// mutations are serialized per workspace id so no two lifecycle operations
// on the same workspace can interleave, while unrelated workspaces proceed
// in parallel. The registry does not survive a process restart.
type Store struct {
	baseDir string

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	// opMu serializes lifecycle mutations for this workspace.
	opMu sync.Mutex
	ws   Workspace

	// cancel aborts in-flight provisioning or dependency installation.
	// Set while such an operation runs; Delete invokes it.
	cancel context.CancelFunc
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeIO, "create sandbox base dir", err)
	}
	return &Store{
		baseDir: baseDir,
		entries: make(map[string]*entry),
	}, nil
}

// Create registers a new workspace and materializes its private root
// directory. The root path never changes afterwards.
func (s *Store) Create() (Workspace, error) {
	id := uuid.NewString()
	root := filepath.Join(s.baseDir, id, "workspace")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Workspace{}, apperr.Wrap(apperr.CodeIO, "create workspace root", err)
	}

	ws := Workspace{
		ID:        id,
		RootPath:  root,
		State:     StateCreated,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.entries[id] = &entry{ws: ws}
	s.mu.Unlock()

	return ws, nil
}

// Get returns a snapshot of the workspace. Deleted or unknown ids both
// report NotFound; a deleted workspace is indistinguishable from one that
// never existed.
func (s *Store) Get(id string) (Workspace, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return Workspace{}, apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}

	e.opMu.Lock()
	ws := e.ws
	e.opMu.Unlock()
	if ws.State == StateDeleted {
		return Workspace{}, apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}
	return ws, nil
}

// Mutate runs fn with exclusive ownership of the workspace's lifecycle.
// fn receives a pointer to the live record; changes it makes are visible to
// subsequent reads once fn returns. State changes must follow the lifecycle
// graph; fn is expected to use Transition for that.
func (s *Store) Mutate(id string, fn func(ws *Workspace) error) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()
	if e.ws.State == StateDeleted {
		return apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}
	return fn(&e.ws)
}

// Transition moves ws to the target state, enforcing the lifecycle graph.
// Entering Error records detail; leaving it clears the detail.
func Transition(ws *Workspace, to State, detail string) error {
	if !CanTransition(ws.State, to) {
		return apperr.Newf(apperr.CodeConflict,
			"workspace %s cannot go from %s to %s", ws.ID, ws.State, to)
	}
	ws.State = to
	if to == StateError {
		ws.ErrorDetail = detail
	} else {
		ws.ErrorDetail = ""
	}
	return nil
}

// BindCancel associates a cancel func with the workspace's current
// long-running operation. The operation must call ClearCancel when done.
func (s *Store) BindCancel(id string, cancel context.CancelFunc) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		e.opMu.Lock()
		e.cancel = cancel
		e.opMu.Unlock()
	}
}

func (s *Store) ClearCancel(id string) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		e.opMu.Lock()
		e.cancel = nil
		e.opMu.Unlock()
	}
}

// Delete marks the workspace deleted, cancels any in-flight operation, and
// returns the final snapshot so the caller can tear down the runtime and
// the root directory. Idempotent: deleting twice reports NotFound.
func (s *Store) Delete(id string) (Workspace, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return Workspace{}, apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}

	e.opMu.Lock()
	if e.ws.State == StateDeleted {
		e.opMu.Unlock()
		return Workspace{}, apperr.Newf(apperr.CodeNotFound, "workspace %s not found", id)
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.ws.State = StateDeleted
	ws := e.ws
	e.opMu.Unlock()

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	return ws, nil
}

// List returns snapshots of all live workspaces.
func (s *Store) List() []Workspace {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Workspace, 0, len(entries))
	for _, e := range entries {
		e.opMu.Lock()
		ws := e.ws
		e.opMu.Unlock()
		if ws.State != StateDeleted {
			out = append(out, ws)
		}
	}
	return out
}
