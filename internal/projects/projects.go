// Package projects resolves which project a caller is working in. Detection
// is cwd-based: stdio tool calls run inside the caller's checkout, so the
// working directory is the only signal available.
package projects

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xaxixak/oracle-v2/internal/config"
)

// Detector maps working directories to project slugs.
type Detector struct {
	known []config.ProjectConfig
}

// NewDetector builds a Detector over the configured projects.
func NewDetector(known []config.ProjectConfig) *Detector {
	return &Detector{known: known}
}

// DetectCwd resolves the project for the current working directory. An empty
// string means no project context, which scopes retrieval to shared documents.
func (d *Detector) DetectCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return d.Detect(cwd)
}

// Detect walks up from dir looking for a repository marker (.git or ψ). The
// first marker found wins. A configured project whose path matches the
// repository root supplies the slug; otherwise the root's base name does.
func (d *Detector) Detect(dir string) string {
	root := repoRoot(dir)
	if root == "" {
		return ""
	}
	for _, p := range d.known {
		if p.Path == "" {
			continue
		}
		if pathsEqual(p.Path, root) || strings.HasSuffix(filepath.ToSlash(root), "/"+strings.Trim(filepath.ToSlash(p.Path), "/")) {
			return p.ID
		}
	}
	return Slug(filepath.Base(root))
}

// Lookup returns the configured project for a slug, if any.
func (d *Detector) Lookup(id string) (config.ProjectConfig, bool) {
	for _, p := range d.known {
		if p.ID == id {
			return p, true
		}
	}
	return config.ProjectConfig{}, false
}

func repoRoot(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		if isDir(filepath.Join(dir, ".git")) || isDir(filepath.Join(dir, "ψ")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func pathsEqual(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}

// Slug normalizes a directory name into a project slug.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
