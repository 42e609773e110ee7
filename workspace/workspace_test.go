package workspace

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"created to uploading", StateCreated, StateUploading, true},
		{"created to starting", StateCreated, StateStarting, true},
		{"uploading to installing", StateUploading, StateInstalling, true},
		{"installing to created", StateInstalling, StateCreated, true},
		{"starting to ready", StateStarting, StateReady, true},
		{"error retry upload", StateError, StateUploading, true},
		{"error retry start", StateError, StateStarting, true},
		{"any to error", StateStarting, StateError, true},
		{"ready to error", StateReady, StateError, true},
		{"any to deleted", StateReady, StateDeleted, true},
		{"created to deleted", StateCreated, StateDeleted, true},
		{"ready to starting", StateReady, StateStarting, false},
		{"ready to uploading", StateReady, StateUploading, false},
		{"created to ready", StateCreated, StateReady, false},
		{"deleted is terminal", StateDeleted, StateCreated, false},
		{"deleted to error", StateDeleted, StateError, false},
		{"deleted to deleted", StateDeleted, StateDeleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionErrorDetail(t *testing.T) {
	ws := &Workspace{ID: "w1", State: StateStarting}

	if err := Transition(ws, StateError, "image missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.ErrorDetail != "image missing" {
		t.Errorf("expected error detail to be recorded, got %q", ws.ErrorDetail)
	}

	if err := Transition(ws, StateStarting, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.ErrorDetail != "" {
		t.Errorf("expected error detail cleared on recovery, got %q", ws.ErrorDetail)
	}
}

func TestTransitionRejectsIllegalStep(t *testing.T) {
	ws := &Workspace{ID: "w1", State: StateReady}
	if err := Transition(ws, StateStarting, ""); err == nil {
		t.Fatal("expected transition ready -> starting to fail")
	}
	if ws.State != StateReady {
		t.Errorf("state changed on rejected transition: %s", ws.State)
	}
}
