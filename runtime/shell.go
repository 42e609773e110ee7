package runtime

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// DefaultCols and DefaultRows are the initial pty dimensions before the
// client sends its first resize frame.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// PtyShell runs a command under a pseudo-terminal. Both backends use it:
// the subprocess backend for the shell itself, the docker backend for the
// interactive `docker exec` client.
type PtyShell struct {
	ptmx *os.File
	cmd  *exec.Cmd

	waitOnce sync.Once
	waitErr  error
}

// StartPty launches cmd attached to a fresh pty sized to the defaults.
// pty.StartWithSize puts the command in its own session, so Kill can reap
// the whole process group.
func StartPty(cmd *exec.Cmd) (*PtyShell, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: DefaultRows,
		Cols: DefaultCols,
	})
	if err != nil {
		return nil, err
	}
	return &PtyShell{ptmx: ptmx, cmd: cmd}, nil
}

func (s *PtyShell) Read(p []byte) (int, error)  { return s.ptmx.Read(p) }
func (s *PtyShell) Write(p []byte) (int, error) { return s.ptmx.Write(p) }

func (s *PtyShell) Resize(cols, rows int) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Close releases the pty master. The process sees EOF/SIGHUP and exits on
// its own; callers that need a hard stop use Kill first.
func (s *PtyShell) Close() error {
	return s.ptmx.Close()
}

// Wait blocks until the process exits. Safe to call more than once.
func (s *PtyShell) Wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Kill terminates the whole process group.
func (s *PtyShell) Kill() {
	if s.cmd.Process != nil {
		// Negative pid signals the process group created by Setsid.
		_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL)
	}
}
