// Package config provides centralized configuration management.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TodoaiEnv holds all todoai environment variables.
type TodoaiEnv struct {
	// APIKey authenticates against the execution service (TODOAI_API_KEY)
	APIKey string

	// APIURL is the service endpoint (TODOAI_API_URL)
	APIURL string

	// Project is the default project identifier (TODOAI_PROJECT)
	Project string

	// AutoApprove skips all approval prompts when set (TODOAI_AUTO_APPROVE)
	AutoApprove bool
}

var (
	env     *TodoaiEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *TodoaiEnv {
	envOnce.Do(func() {
		env = &TodoaiEnv{
			APIKey:      os.Getenv("TODOAI_API_KEY"),
			APIURL:      getEnvDefault("TODOAI_API_URL", "wss://api.todofor.ai/ws"),
			Project:     os.Getenv("TODOAI_PROJECT"),
			AutoApprove: os.Getenv("TODOAI_AUTO_APPROVE") == "1",
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Paths holds standard todoai directory paths.
type Paths struct {
	// Home is the todoai home directory (~/.todoai)
	Home string

	// History is the interactive input history file (~/.todoai/history)
	History string

	// Approvals is the auto-allow rules file (~/.todoai/approvals.yaml)
	Approvals string

	// ClientID is the persistent client identity file (~/.todoai/client-id)
	ClientID string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		todoaiHome := filepath.Join(home, ".todoai")

		paths = &Paths{
			Home:      todoaiHome,
			History:   filepath.Join(todoaiHome, "history"),
			Approvals: filepath.Join(todoaiHome, "approvals.yaml"),
			ClientID:  filepath.Join(todoaiHome, "client-id"),
		}
	})
	return paths
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// ClientID returns the persistent client identity, generating and storing
// a new one on first use. Each installation gets a stable uuid so the
// service can correlate reconnects.
func ClientID() string {
	p := GetPaths()
	if data, err := os.ReadFile(p.ClientID); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := EnsureDir(p.Home); err == nil {
		os.WriteFile(p.ClientID, []byte(id+"\n"), 0600)
	}
	return id
}
