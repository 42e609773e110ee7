package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"forge/apperr"
	"forge/files"
	"forge/logging"
	"forge/workspace"
)

type FilesHandler struct {
	store *workspace.Store
	files *files.Service
	log   *logging.Logger
}

func NewFilesHandler(store *workspace.Store, fileSvc *files.Service, log *logging.Logger) *FilesHandler {
	return &FilesHandler{store: store, files: fileSvc, log: log}
}

type WriteFileRequest struct {
	Content string `json:"content"`
}

type FileContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Tree lists the workspace's files as a deterministic tree: directories
// before files, each level lexicographic.
// GET /workspaces/{id}/files/tree
func (h *FilesHandler) Tree(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	tree, err := h.files.List(ws.RootPath)
	if err != nil {
		h.log.Error("list files failed", "workspace_id", ws.ID, "error", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"files": tree})
}

// Read returns a file's content.
// GET /workspaces/{id}/files?path=main.py
func (h *FilesHandler) Read(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeBadRequest, "path is required")
		return
	}

	data, err := h.files.Read(ws.RootPath, path)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, FileContentResponse{Path: path, Content: string(data)})
}

// Write replaces a file's content whole.
// PUT /workspaces/{id}/files?path=main.py
func (h *FilesHandler) Write(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeBadRequest, "path is required")
		return
	}

	var req WriteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeBadRequest, "invalid request body")
		return
	}

	if err := h.files.Write(ws.RootPath, path, []byte(req.Content)); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"path": path, "status": "saved"})
}
