// Package learn appends new patterns to the knowledge base: one markdown
// file on disk, one metadata row, one keyword-index row. The vector index is
// deliberately untouched; new learnings become vector-searchable on the next
// full re-index.
package learn

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/metrics"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/parser"
	"github.com/xaxixak/oracle-v2/internal/projects"
	"github.com/xaxixak/oracle-v2/internal/store"
)

const (
	slugMax    = 50
	titleMax   = 80
	previewMax = 100
)

// Service writes learnings.
type Service struct {
	store    *store.Store
	dir      string // learnings directory under the knowledge root
	detector *projects.Detector
	logger   *zap.Logger

	now func() time.Time
}

// New creates a learn Service writing markdown into dir.
func New(st *store.Store, dir string, detector *projects.Detector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = projects.NewDetector(nil)
	}
	return &Service{store: st, dir: dir, detector: detector, logger: logger, now: time.Now}
}

// Request is one pattern to capture.
type Request struct {
	Pattern  string
	Source   string
	Concepts []string
	Origin   string

	Project *string
	Cwd     string
}

// Response reports where the pattern landed.
type Response struct {
	ID       string   `json:"id"`
	File     string   `json:"file"`
	Concepts []string `json:"concepts"`
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9\s-]`)

// Slug derives the filename fragment from a pattern: lowercase, strip
// everything outside [a-z0-9 -], collapse whitespace runs to single hyphens,
// cap at 50 characters.
func Slug(pattern string) string {
	s := strings.ToLower(pattern)
	s = nonSlugRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	if len(s) > slugMax {
		s = s[:slugMax]
	}
	return strings.Trim(s, "-")
}

// Learn captures one pattern.
func (s *Service) Learn(req Request) (*Response, error) {
	if strings.TrimSpace(req.Pattern) == "" {
		return nil, oracle.Invalidf("pattern is required")
	}
	if req.Origin != "" && !oracle.ValidOrigin(oracle.Origin(req.Origin)) {
		return nil, oracle.Invalidf("origin %q is not one of mother, arthur, volt, human", req.Origin)
	}
	project, _ := s.resolveProject(req)

	date := s.now().UTC().Format("2006-01-02")
	slug := Slug(req.Pattern)
	if slug == "" {
		return nil, oracle.Invalidf("pattern yields an empty slug")
	}

	filename := date + "_" + slug + ".md"
	path := filepath.Join(s.dir, filename)

	concepts := req.Concepts
	if len(concepts) == 0 {
		concepts = parser.ExtractConcepts(req.Pattern)
	}
	title := deriveTitle(req.Pattern)
	markdown := render(title, req.Source, date, concepts, req.Pattern)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating learnings dir: %w", err)
	}
	// O_EXCL makes the duplicate check atomic with the write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, oracle.Conflictf("File already exists: %s", filename)
		}
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}
	if _, err := f.WriteString(markdown); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}

	id := "learning_" + date + "_" + slug
	now := s.now()
	doc := oracle.Document{
		ID:         id,
		Type:       oracle.DocTypeLearning,
		SourceFile: "learnings/" + filename,
		Concepts:   concepts,
		CreatedAt:  now,
		UpdatedAt:  now,
		IndexedAt:  now,
		Provenance: oracle.Provenance{
			Origin:    oracle.Origin(req.Origin),
			Project:   project,
			CreatedBy: req.Source,
		},
	}
	if err := s.store.InsertDocument(&doc, title, markdown); err != nil {
		return nil, fmt.Errorf("indexing learning %s: %w", id, err)
	}

	if err := s.store.LogLearn(store.LearnLogEntry{
		DocumentID:     id,
		PatternPreview: truncate(req.Pattern, previewMax),
		Source:         req.Source,
		Concepts:       concepts,
		Project:        project,
	}); err != nil {
		s.logger.Debug("learn_log append failed", zap.Error(err))
	}

	metrics.LearnedPatterns.Inc()
	s.logger.Info("pattern learned", zap.String("id", id), zap.String("file", filename))
	return &Response{ID: id, File: path, Concepts: concepts}, nil
}

// deriveTitle takes the first non-empty line of the pattern, markdown
// heading marks stripped.
func deriveTitle(pattern string) string {
	for _, line := range strings.Split(pattern, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return truncate(line, titleMax)
		}
	}
	return "Untitled"
}

func render(title, source, date string, concepts []string, pattern string) string {
	if source == "" {
		source = "oracle"
	}
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", title)
	fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(concepts, ", "))
	fmt.Fprintf(&b, "created: %s\n", date)
	fmt.Fprintf(&b, "source: %s\n", source)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString(strings.TrimRight(pattern, "\n"))
	b.WriteString("\n\n---\n*Added via Oracle Learn*\n")
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (s *Service) resolveProject(req Request) (string, bool) {
	if req.Project != nil {
		return *req.Project, true
	}
	if req.Cwd != "" {
		if p := s.detector.Detect(req.Cwd); p != "" {
			return p, true
		}
	}
	return "", false
}
