package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"forge/archive"
	"forge/config"
	"forge/files"
	"forge/handlers"
	"forge/logging"
	"forge/runtime"
	"forge/runtime/dockerenv"
	"forge/runtime/localenv"
	"forge/terminal"
	"forge/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	sentryCleanup, err := logging.InitSentry(logging.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		os.Stderr.WriteString("failed to initialize Sentry: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer sentryCleanup()

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	store, err := workspace.NewStore(cfg.SandboxDir)
	if err != nil {
		logger.Error("failed to initialize workspace store", "error", err)
		os.Exit(1)
	}
	// The registry is in-memory only: workspaces do not survive a restart.
	logger.Info("workspace store initialized", "sandbox_dir", cfg.SandboxDir)

	var prov runtime.Provisioner
	switch cfg.RuntimeBackend {
	case config.BackendDocker:
		prov = dockerenv.New(dockerenv.Config{
			BaseImage:   cfg.BaseImage,
			User:        cfg.ContainerUser,
			MemoryLimit: cfg.MemoryLimit,
			Network:     cfg.Network,
			Shell:       cfg.Shell,
		}, logger)
	case config.BackendLocal:
		prov = localenv.New(localenv.Config{Shell: cfg.Shell}, logger)
		logger.Warn("local runtime backend selected: workspace shells share the host's process and filesystem namespace, with no isolation")
	}

	installer := archive.NewInstaller()
	fileSvc := files.NewService()
	sessions := terminal.NewRegistry()

	workspaceHandler := handlers.NewWorkspaceHandler(store, prov, installer, fileSvc, sessions, logger)
	filesHandler := handlers.NewFilesHandler(store, fileSvc, logger)
	terminalHandler := handlers.NewTerminalHandler(store, prov, sessions, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"backend":   cfg.RuntimeBackend,
			"isolation": prov.Isolation(),
		})
	})

	// REST surface gets a request timeout; the terminal stream is
	// registered outside the group because sessions are long-lived.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Minute))

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", workspaceHandler.List)
			r.Post("/", workspaceHandler.Create)
			r.Get("/{id}", workspaceHandler.Get)
			r.Delete("/{id}", workspaceHandler.Delete)
			r.Post("/{id}/upload", workspaceHandler.Upload)
			r.Post("/{id}/start", workspaceHandler.Start)
			r.Get("/{id}/files/tree", filesHandler.Tree)
			r.Get("/{id}/files", filesHandler.Read)
			r.Put("/{id}/files", filesHandler.Write)
		})
	})

	r.Get("/workspaces/{id}/terminal", terminalHandler.Handle)

	logger.Info("server starting",
		"addr", cfg.HTTPAddr,
		"runtime_backend", cfg.RuntimeBackend,
		"base_image", cfg.BaseImage,
	)

	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
