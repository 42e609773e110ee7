package terminal

import "sync"

// Registry tracks live sessions per workspace so workspace deletion can
// cascade into session teardown. It is passed to collaborators explicitly
// rather than reached through package globals.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Session]struct{})}
}

// Add registers a session under its workspace id.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[s.WorkspaceID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[s.WorkspaceID] = set
	}
	set[s] = struct{}{}
}

// Remove drops a session once it has ended.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sessions[s.WorkspaceID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.sessions, s.WorkspaceID)
		}
	}
}

// CloseAll ends every session attached to the workspace. Each session
// kills its shell and closes its stream as part of ending.
func (r *Registry) CloseAll(workspaceID string) {
	r.mu.Lock()
	var toClose []*Session
	for s := range r.sessions[workspaceID] {
		toClose = append(toClose, s)
	}
	delete(r.sessions, workspaceID)
	r.mu.Unlock()

	for _, s := range toClose {
		s.Close()
	}
}

// Count returns the number of live sessions for a workspace.
func (r *Registry) Count(workspaceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[workspaceID])
}
