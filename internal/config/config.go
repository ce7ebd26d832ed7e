// Package config provides configuration loading for oracled.
//
// Precedence (highest to lowest): environment variables (ORACLE_*), optional
// YAML config file, hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full oracled configuration.
type Config struct {
	Port     int    `koanf:"port"`
	DataDir  string `koanf:"data_dir"`
	DBPath   string `koanf:"db_path"`
	RepoRoot string `koanf:"repo_root"`

	Log    LogConfig    `koanf:"log"`
	Vector VectorConfig `koanf:"vector"`

	// Projects maps repository paths (ghq-style or absolute) to project slugs
	// for cwd-based project detection.
	Projects []ProjectConfig `koanf:"projects"`
}

// LogConfig controls the zap logger. Logs always go to stderr; stdout is
// reserved for the stdio tool protocol.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// VectorConfig selects and tunes the vector backend.
type VectorConfig struct {
	// Provider is "pipe" (child process over JSON-RPC) or "chromem" (embedded).
	Provider string `koanf:"provider"`

	// Collection is the single named collection all documents live in.
	Collection string `koanf:"collection"`

	// Command and Args launch the pipe provider's child process.
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`

	// QueryTimeout bounds a single similarity query before retrieval
	// degrades to keyword-only.
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// Path is the chromem provider's persistence directory.
	Path string `koanf:"path"`

	// EmbedURL and EmbedModel configure the chromem provider's local
	// embedding endpoint (Ollama-compatible).
	EmbedURL   string `koanf:"embed_url"`
	EmbedModel string `koanf:"embed_model"`
}

// ProjectConfig declares a known project for detection and display.
type ProjectConfig struct {
	ID    string `koanf:"id"`
	Name  string `koanf:"name"`
	Color string `koanf:"color"`
	Path  string `koanf:"path"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 47778
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(homeDir(), ".oracle-v2")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "oracle.db")
	}
	if c.RepoRoot == "" {
		if root := findRepoRoot(); root != "" {
			c.RepoRoot = root
		} else {
			c.RepoRoot = c.DataDir
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Vector.ApplyDefaults()
}

// ApplyDefaults fills unset vector fields.
func (c *VectorConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "pipe"
	}
	if c.Collection == "" {
		c.Collection = "oracle_knowledge"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 2 * time.Second
	}
	if c.Path == "" {
		c.Path = filepath.Join(homeDir(), ".chromadb")
	}
	if c.EmbedURL == "" {
		c.EmbedURL = "http://localhost:11434/api"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "nomic-embed-text"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Vector.Provider {
	case "pipe", "chromem":
	default:
		return fmt.Errorf("unknown vector provider %q", c.Vector.Provider)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// KnowledgeRoot returns the directory holding the markdown corpus.
func (c *Config) KnowledgeRoot() string {
	return filepath.Join(c.RepoRoot, "ψ", "memory")
}

// LearningsDir returns the directory new learnings are written to.
func (c *Config) LearningsDir() string {
	return filepath.Join(c.KnowledgeRoot(), "learnings")
}

// PIDFile returns the HTTP server PID file path.
func (c *Config) PIDFile() string {
	return filepath.Join(c.DataDir, "oracle-http.pid")
}

// LockFile returns the HTTP server instance lock path.
func (c *Config) LockFile() string {
	return filepath.Join(c.DataDir, "oracle-http.lock")
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	if h := os.Getenv("USERPROFILE"); h != "" {
		return h
	}
	return "."
}

// findRepoRoot walks up from the working directory looking for a ψ/
// directory, the marker of a knowledge repo.
func findRepoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if st, err := os.Stat(filepath.Join(dir, "ψ")); err == nil && st.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
