// Package workspace holds the workspace model, its lifecycle state machine,
// and the in-memory registry that is the single source of truth for state.
package workspace

import (
	"time"
)

type State string

const (
	StateCreated    State = "created"
	StateUploading  State = "uploading"
	StateInstalling State = "installing"
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateError      State = "error"
	StateDeleted    State = "deleted"
)

// transitions is the allowed lifecycle graph. Error is reachable from any
// non-terminal state and is retryable (a new upload or start may leave it).
// Deleted is terminal and reachable from everywhere but itself.
var transitions = map[State][]State{
	StateCreated:    {StateUploading, StateStarting},
	StateUploading:  {StateInstalling, StateCreated},
	StateInstalling: {StateCreated},
	StateStarting:   {StateReady},
	StateReady:      {},
	StateError:      {StateUploading, StateStarting},
	StateDeleted:    {},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	if from == StateDeleted {
		return false
	}
	if to == StateDeleted {
		return true
	}
	if to == StateError {
		// Any non-terminal state may fail; Deleted was rejected above.
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Workspace is one uploaded project plus its runtime and root directory.
// RootPath is fixed at creation and exclusively owned for the lifetime of
// the workspace. RuntimeHandle is empty until provisioning succeeds.
type Workspace struct {
	ID            string    `json:"id"`
	RootPath      string    `json:"-"`
	State         State     `json:"state"`
	RuntimeHandle string    `json:"runtime_handle,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
