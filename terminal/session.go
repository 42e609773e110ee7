// Package terminal bridges a client websocket to an interactive shell
// running inside a workspace runtime. Bytes pass through untouched in both
// directions; the single interpreted message is the JSON resize frame,
// which adjusts the pty and is never forwarded as shell input.
package terminal

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forge/logging"
	"forge/runtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	readBufSize    = 4096
)

// ControlFrame is the one structured message on the stream. The client
// sends {"type":"resize","cols":N,"rows":N}; the server sends
// {"type":"exit"} when the shell process ends.
type ControlFrame struct {
	Type string `json:"type"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// Session is one live terminal connection. It owns its shell process and
// websocket exclusively; both are released when the session ends, from
// whichever side ends it first.
type Session struct {
	WorkspaceID string

	conn  *websocket.Conn
	shell runtime.Shell
	log   *logging.Logger

	done      chan struct{}
	closeOnce sync.Once

	// wsMu serializes websocket writes across the relay, ping, and exit
	// notification paths; gorilla permits only one concurrent writer.
	wsMu sync.Mutex
}

func NewSession(workspaceID string, conn *websocket.Conn, shell runtime.Shell, log *logging.Logger) *Session {
	return &Session{
		WorkspaceID: workspaceID,
		conn:        conn,
		shell:       shell,
		log:         log.With("workspace_id", workspaceID),
		done:        make(chan struct{}),
	}
}

// Close ends the session from outside (cascading workspace teardown).
func (s *Session) Close() {
	s.closeDone()
}

func (s *Session) closeDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session has begun tearing down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run relays until either side closes, then reclaims the shell and the
// socket. The two relay directions run independently so a stalled reader
// on one side cannot block the other.
func (s *Session) Run() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.relayShellOutput()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.relayClientInput()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pingLoop()
	}()

	<-s.done

	// Unblock the relay goroutines: killing the shell fails the pty read,
	// closing the socket fails the websocket read.
	s.shell.Kill()
	s.shell.Close()
	s.conn.Close()
	wg.Wait()
	_ = s.shell.Wait()

	s.log.Info("terminal session ended")
}

// relayShellOutput copies pty output to the client as binary frames,
// preserving byte order. When the shell exits the client gets an explicit
// exit frame before the socket closes, never a silent drop.
func (s *Session) relayShellOutput() {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.shell.Read(buf)
		if n > 0 {
			if werr := s.writeMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				s.closeDone()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debug("shell read ended", "error", err)
			}
			s.notifyExit()
			s.closeDone()
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) relayClientInput() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket read ended", "error", err)
			}
			s.closeDone()
			return
		}

		// Text frames may carry the resize control message; everything
		// else is raw keystrokes for the shell.
		if msgType == websocket.TextMessage {
			var frame ControlFrame
			if json.Unmarshal(data, &frame) == nil && frame.Type == "resize" {
				if frame.Cols > 0 && frame.Rows > 0 {
					if err := s.shell.Resize(frame.Cols, frame.Rows); err != nil {
						s.log.Debug("pty resize failed", "error", err)
					}
				}
				continue
			}
		}

		if _, err := s.shell.Write(data); err != nil {
			s.closeDone()
			return
		}

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// notifyExit tells the client the shell process ended, as a control frame
// followed by a proper close frame.
func (s *Session) notifyExit() {
	exit, _ := json.Marshal(ControlFrame{Type: "exit"})
	_ = s.writeMessage(websocket.TextMessage, exit)
	_ = s.writeMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "process ended"))
}

func (s *Session) writeMessage(msgType int, data []byte) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(msgType, data)
}
