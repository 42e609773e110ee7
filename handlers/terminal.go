package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"forge/apperr"
	"forge/logging"
	"forge/runtime"
	"forge/terminal"
	"forge/workspace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type TerminalHandler struct {
	store    *workspace.Store
	prov     runtime.Provisioner
	sessions *terminal.Registry
	log      *logging.Logger
}

func NewTerminalHandler(store *workspace.Store, prov runtime.Provisioner, sessions *terminal.Registry, log *logging.Logger) *TerminalHandler {
	return &TerminalHandler{store: store, prov: prov, sessions: sessions, log: log}
}

// Handle attaches a new terminal session to a Ready workspace. Every
// attach is a fresh session: there is no resumption or replay.
// GET /workspaces/{id}/terminal
func (h *TerminalHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ws, err := h.store.Get(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if ws.State != workspace.StateReady {
		WriteErrorMsg(w, http.StatusConflict, apperr.CodeConflict, "workspace is not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "workspace_id", id, "error", err)
		return
	}

	shell, err := h.prov.ExecShell(r.Context(), runtime.Handle(ws.RuntimeHandle), ws)
	if err != nil {
		h.log.Error("shell attach failed", "workspace_id", id, "error", err)
		sendSocketError(conn, "failed to attach shell")
		conn.Close()
		return
	}

	h.log.Info("terminal session opened", "workspace_id", id)

	session := terminal.NewSession(id, conn, shell, h.log)
	h.sessions.Add(session)

	// A delete that ran between the state check and Add saw an empty
	// registry; re-check after registering so either the delete finds this
	// session or this re-check finds the delete.
	if _, err := h.store.Get(id); err != nil {
		session.Close()
	}

	session.Run()
	h.sessions.Remove(session)
}

func sendSocketError(conn *websocket.Conn, msg string) {
	frame, _ := json.Marshal(map[string]string{"type": "error", "error": msg})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}
