// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend selects the runtime provisioner variant at startup.
const (
	BackendDocker = "docker"
	BackendLocal  = "local"
)

type Config struct {
	HTTPAddr string `envconfig:"FORGE_HTTP_ADDR" default:"0.0.0.0:8080"`

	// SandboxDir is the base directory under which every workspace root
	// is created. Destroyed content never leaves this subtree.
	SandboxDir string `envconfig:"FORGE_SANDBOX_DIR" default:"/tmp/forge-sandboxes"`

	// RuntimeBackend is "docker" or "local". The local backend runs shells
	// as host subprocesses with no isolation; see README.
	RuntimeBackend string `envconfig:"FORGE_RUNTIME_BACKEND" default:"docker"`

	BaseImage     string `envconfig:"FORGE_BASE_IMAGE" default:"python:3.12-slim"`
	ContainerUser string `envconfig:"FORGE_CONTAINER_USER" default:"1000:1000"`
	MemoryLimit   string `envconfig:"FORGE_MEMORY_LIMIT" default:"512m"`

	// Network is the docker network mode for workspace containers,
	// fixed at provision time ("none" cuts all egress).
	Network string `envconfig:"FORGE_NETWORK" default:"bridge"`

	Shell string `envconfig:"FORGE_SHELL" default:"/bin/bash"`

	LogLevel  string `envconfig:"FORGE_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"FORGE_LOG_FORMAT" default:""`

	SentryDSN   string `envconfig:"SENTRY_DSN" default:""`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// Load reads .env (if present) and populates Config from the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.RuntimeBackend != BackendDocker && cfg.RuntimeBackend != BackendLocal {
		return nil, fmt.Errorf("invalid FORGE_RUNTIME_BACKEND %q: must be %q or %q",
			cfg.RuntimeBackend, BackendDocker, BackendLocal)
	}
	return &cfg, nil
}
