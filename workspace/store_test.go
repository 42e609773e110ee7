package workspace

import (
	"context"
	"os"
	"sync"
	"testing"

	"forge/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	ws, err := s.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ws.ID == "" {
		t.Error("expected non-empty id")
	}
	if ws.State != StateCreated {
		t.Errorf("expected state created, got %s", ws.State)
	}
	if info, err := os.Stat(ws.RootPath); err != nil || !info.IsDir() {
		t.Errorf("expected root dir to exist: %v", err)
	}

	got, err := s.Get(ws.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != ws.ID || got.RootPath != ws.RootPath {
		t.Errorf("Get returned different workspace: %+v", got)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestMutateSerializesAndPersists(t *testing.T) {
	s := newTestStore(t)
	ws, _ := s.Create()

	err := s.Mutate(ws.ID, func(cur *Workspace) error {
		return Transition(cur, StateUploading, "")
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	got, _ := s.Get(ws.ID)
	if got.State != StateUploading {
		t.Errorf("expected uploading, got %s", got.State)
	}
}

func TestConcurrentStartOnlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ws, _ := s.Create()

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Mutate(ws.ID, func(cur *Workspace) error {
				return Transition(cur, StateStarting, "")
			})
			if err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("expected exactly one start transition to succeed, got %d", n)
	}
}

func TestDeleteIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ws, _ := s.Create()

	if _, err := s.Delete(ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Get(ws.ID); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
	if _, err := s.Delete(ws.ID); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND on second delete, got %v", err)
	}
	if err := s.Mutate(ws.ID, func(cur *Workspace) error { return nil }); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND on mutate after delete, got %v", err)
	}
}

func TestDeleteCancelsInFlightOperation(t *testing.T) {
	s := newTestStore(t)
	ws, _ := s.Create()

	ctx, cancel := context.WithCancel(context.Background())
	s.BindCancel(ws.ID, cancel)

	if _, err := s.Delete(ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("expected in-flight context to be canceled by delete")
	}
}

func TestListSkipsDeleted(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create()
	b, _ := s.Create()
	s.Delete(a.ID)

	live := s.List()
	if len(live) != 1 || live[0].ID != b.ID {
		t.Errorf("expected only %s live, got %+v", b.ID, live)
	}
}
