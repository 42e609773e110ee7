package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"forge/apperr"
	"forge/archive"
	"forge/files"
	"forge/logging"
	"forge/runtime"
	"forge/terminal"
	"forge/workspace"
)

// maxUploadBytes caps the accepted archive upload size.
const maxUploadBytes = 100 << 20

// destroyTimeout bounds runtime teardown during workspace deletion.
const destroyTimeout = 30 * time.Second

type WorkspaceHandler struct {
	store     *workspace.Store
	prov      runtime.Provisioner
	installer *archive.Installer
	files     *files.Service
	sessions  *terminal.Registry
	log       *logging.Logger
}

func NewWorkspaceHandler(store *workspace.Store, prov runtime.Provisioner, installer *archive.Installer, fileSvc *files.Service, sessions *terminal.Registry, log *logging.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		store:     store,
		prov:      prov,
		installer: installer,
		files:     fileSvc,
		sessions:  sessions,
		log:       log,
	}
}

type WorkspaceResponse struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	RuntimeHandle string    `json:"runtime_handle,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	Isolation     string    `json:"isolation"`
	CreatedAt     time.Time `json:"created_at"`
}

type UploadResponse struct {
	Files           []files.Node `json:"files"`
	DependencyError string       `json:"dependency_error,omitempty"`
}

type StartResponse struct {
	State           string `json:"state"`
	RuntimeHandle   string `json:"runtime_handle"`
	TerminalURL     string `json:"terminal_url"`
	Isolation       string `json:"isolation"`
	DependencyError string `json:"dependency_error,omitempty"`
}

func (h *WorkspaceHandler) toResponse(ws workspace.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:            ws.ID,
		State:         string(ws.State),
		RuntimeHandle: ws.RuntimeHandle,
		ErrorDetail:   ws.ErrorDetail,
		Isolation:     h.prov.Isolation(),
		CreatedAt:     ws.CreatedAt,
	}
}

// Create registers a new empty workspace.
// POST /workspaces
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.Create()
	if err != nil {
		h.log.Error("create workspace failed", "error", err)
		WriteError(w, err)
		return
	}
	h.log.Info("workspace created", "workspace_id", ws.ID)
	WriteJSON(w, http.StatusCreated, h.toResponse(ws))
}

// Get reports the workspace's current state and error detail.
// GET /workspaces/{id}
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.toResponse(ws))
}

// List returns all live workspaces.
// GET /workspaces
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.store.List()
	out := make([]WorkspaceResponse, len(all))
	for i, ws := range all {
		out[i] = h.toResponse(ws)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"workspaces": out})
}

// Upload extracts a project zip into the workspace root and installs
// declared dependencies. Extraction is all-or-nothing; a dependency
// install failure is reported but leaves the files editable.
// POST /workspaces/{id}/upload
func (h *WorkspaceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeInvalidArchive, "only zip archives are supported")
		return
	}

	zipBytes, err := io.ReadAll(file)
	if err != nil {
		WriteErrorMsg(w, http.StatusBadRequest, apperr.CodeBadRequest, "failed to read upload")
		return
	}

	var ws workspace.Workspace
	err = h.store.Mutate(id, func(cur *workspace.Workspace) error {
		if err := workspace.Transition(cur, workspace.StateUploading, ""); err != nil {
			return err
		}
		ws = *cur
		return nil
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	h.store.BindCancel(id, cancel)
	defer h.store.ClearCancel(id)

	if err := h.installer.Install(ws.RootPath, zipBytes); err != nil {
		h.log.Warn("archive install failed", "workspace_id", id, "error", err)
		h.fail(id, err)
		WriteError(w, err)
		return
	}

	if err := h.store.Mutate(id, func(cur *workspace.Workspace) error {
		return workspace.Transition(cur, workspace.StateInstalling, "")
	}); err != nil {
		WriteError(w, err)
		return
	}

	// Dependency installation runs under the workspace's cancellable
	// context; deleting the workspace aborts it.
	var depErr string
	if err := h.prov.InstallDependencies(ctx, ws); err != nil {
		h.log.Warn("dependency install failed", "workspace_id", id, "error", err)
		depErr = err.Error()
	}

	if err := h.store.Mutate(id, func(cur *workspace.Workspace) error {
		return workspace.Transition(cur, workspace.StateCreated, "")
	}); err != nil {
		// The workspace was deleted mid-install.
		WriteError(w, err)
		return
	}

	tree, err := h.files.List(ws.RootPath)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.log.Info("archive installed", "workspace_id", id, "file", header.Filename)
	WriteJSON(w, http.StatusOK, UploadResponse{Files: tree, DependencyError: depErr})
}

// Start provisions the isolated runtime for the workspace. Starting an
// already-Ready workspace is an explicit conflict, never a second runtime.
// POST /workspaces/{id}/start
func (h *WorkspaceHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var ws workspace.Workspace
	var staleHandle string
	err := h.store.Mutate(id, func(cur *workspace.Workspace) error {
		if cur.State == workspace.StateReady {
			return apperr.Newf(apperr.CodeConflict, "workspace %s is already running", id)
		}
		if err := workspace.Transition(cur, workspace.StateStarting, ""); err != nil {
			return err
		}
		// A runtime left over from a failed earlier start is replaced,
		// never doubled up.
		staleHandle = cur.RuntimeHandle
		cur.RuntimeHandle = ""
		ws = *cur
		return nil
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	// Provisioning may be slow; it runs under a cancel bound to the store
	// so deletion aborts it, and never blocks other workspaces.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.store.BindCancel(id, cancel)
	defer h.store.ClearCancel(id)

	if staleHandle != "" {
		if err := h.prov.Destroy(ctx, runtime.Handle(staleHandle)); err != nil {
			h.log.Warn("stale runtime cleanup failed", "workspace_id", id, "error", err)
		}
	}

	handle, err := h.prov.Provision(ctx, ws)
	if err != nil {
		h.log.Error("provisioning failed", "workspace_id", id, "error", err)
		h.fail(id, err)
		WriteError(w, err)
		return
	}

	ws.RuntimeHandle = string(handle)
	var depErr string
	if err := h.prov.InstallDependencies(ctx, ws); err != nil {
		h.log.Warn("dependency install failed", "workspace_id", id, "error", err)
		depErr = err.Error()
	}

	err = h.store.Mutate(id, func(cur *workspace.Workspace) error {
		if err := workspace.Transition(cur, workspace.StateReady, ""); err != nil {
			return err
		}
		cur.RuntimeHandle = string(handle)
		return nil
	})
	if err != nil {
		// Deleted (or otherwise invalid) while provisioning: don't leak
		// the runtime we just created.
		dctx, dcancel := context.WithTimeout(context.Background(), destroyTimeout)
		defer dcancel()
		if derr := h.prov.Destroy(dctx, handle); derr != nil {
			h.log.Error("orphaned runtime cleanup failed", "workspace_id", id, "error", derr)
		}
		WriteError(w, err)
		return
	}

	h.log.Info("workspace started", "workspace_id", id, "runtime_handle", string(handle))
	WriteJSON(w, http.StatusOK, StartResponse{
		State:           string(workspace.StateReady),
		RuntimeHandle:   string(handle),
		TerminalURL:     "/workspaces/" + id + "/terminal",
		Isolation:       h.prov.Isolation(),
		DependencyError: depErr,
	})
}

// Delete tears the workspace down: cancels in-flight work, closes every
// terminal session, destroys the runtime, and removes the root directory.
// DELETE /workspaces/{id}
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ws, err := h.store.Delete(id)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.sessions.CloseAll(id)

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if ws.RuntimeHandle != "" {
		if err := h.prov.Destroy(ctx, runtime.Handle(ws.RuntimeHandle)); err != nil {
			h.log.Error("runtime teardown failed", "workspace_id", id, "error", err)
		}
	}

	// The root lives at <base>/<id>/workspace; remove the whole <id> dir.
	if err := os.RemoveAll(filepath.Dir(ws.RootPath)); err != nil {
		h.log.Error("root cleanup failed", "workspace_id", id, "error", err)
	}

	h.log.Info("workspace deleted", "workspace_id", id)
	WriteJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(workspace.StateDeleted)})
}

// fail transitions the workspace into Error with the cause. A later upload
// or start attempt may retry from there.
func (h *WorkspaceHandler) fail(id string, cause error) {
	if err := h.store.Mutate(id, func(cur *workspace.Workspace) error {
		return workspace.Transition(cur, workspace.StateError, cause.Error())
	}); err != nil {
		h.log.Debug("error transition skipped", "workspace_id", id, "error", err)
	}
}
