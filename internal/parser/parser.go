// Package parser walks the knowledge directory tree and splits markdown files
// into granular, addressable chunks. Chunk boundaries determine document id
// stability: ids survive re-indexing only while the boundaries are unchanged.
package parser

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// Chunk is one parsed document with the text destined for the indices.
type Chunk struct {
	Doc     oracle.Document
	Title   string
	Content string
}

// Parser turns the three subtrees (resonance, learnings, retrospectives)
// into a stream of chunks.
type Parser struct {
	root   string
	logger *zap.Logger

	// now stamps created/updated/indexed on every chunk: freshness is a
	// property of the indexing run, not of the source file's mtime.
	now func() time.Time
}

// New creates a Parser over root, the directory holding the three subtrees.
func New(root string, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{root: root, logger: logger, now: time.Now}
}

var bulletRe = regexp.MustCompile(`^[-*]\s+`)

// Parse walks all three subtrees in order. Missing subtrees are skipped, so
// an empty corpus parses to zero chunks.
func (p *Parser) Parse() ([]Chunk, error) {
	var chunks []Chunk

	resonance, err := p.parseResonance(filepath.Join(p.root, "resonance"))
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, resonance...)

	learnings, err := p.parseLearnings(filepath.Join(p.root, "learnings"))
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, learnings...)

	retros, err := p.parseRetros(filepath.Join(p.root, "retrospectives"))
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, retros...)

	p.logger.Info("corpus parsed",
		zap.Int("chunks", len(chunks)),
		zap.Int("resonance", len(resonance)),
		zap.Int("learnings", len(learnings)),
		zap.Int("retrospectives", len(retros)))
	return chunks, nil
}

// markdownFiles lists .md files under dir. With recursive it walks the whole
// subtree; otherwise only the directory itself. A missing dir yields nil.
func markdownFiles(dir string, recursive bool) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// section is one heading-delimited block of a markdown file.
type section struct {
	heading string
	body    string
}

// splitSections splits text on lines starting with prefix (e.g. "### ").
// Text before the first heading is dropped.
func splitSections(text, prefix string) []section {
	var sections []section
	var cur *section
	var body []string

	flush := func() {
		if cur != nil {
			cur.body = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *cur)
		}
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			flush()
			cur = &section{heading: strings.TrimSpace(strings.TrimPrefix(line, prefix))}
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return sections
}

// parseResonance emits one principle per "### " section with a non-empty
// body, plus one sub-document per top-level bullet line. The granular split
// is what lets retrieval return a single bullet instead of a whole principle.
func (p *Parser) parseResonance(dir string) ([]Chunk, error) {
	files, err := markdownFiles(dir, true)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		rel := p.rel(file)
		fileStem := stem(file)

		idx := 0
		for _, sec := range splitSections(string(raw), "### ") {
			if sec.body == "" {
				continue
			}
			id := fmt.Sprintf("resonance_%s_%d", fileStem, idx)
			content := sec.heading + ": " + sec.body
			chunks = append(chunks, p.chunk(id, oracle.DocTypePrinciple, rel, sec.heading, content))

			bulletIdx := 0
			for _, line := range strings.Split(sec.body, "\n") {
				if !bulletRe.MatchString(line) {
					continue
				}
				text := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
				if text == "" {
					continue
				}
				subID := fmt.Sprintf("%s_sub_%d", id, bulletIdx)
				chunks = append(chunks, p.chunk(subID, oracle.DocTypePrinciple, rel, sec.heading, text))
				bulletIdx++
			}
			idx++
		}
	}
	return chunks, nil
}

// parseLearnings emits one learning per "## " section; files without any
// "## " heading become a single whole-file document.
func (p *Parser) parseLearnings(dir string) ([]Chunk, error) {
	files, err := markdownFiles(dir, true)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		rel := p.rel(file)
		fileStem := stem(file)

		fm, body := splitFrontMatter(string(raw))
		prefix := fm["title"]
		if prefix == "" {
			prefix = fileStem
		}

		sections := splitSections(body, "## ")
		if len(sections) == 0 {
			id := "learning_" + fileStem
			content := strings.TrimSpace(body)
			if content == "" {
				continue
			}
			chunks = append(chunks, p.chunk(id, oracle.DocTypeLearning, rel, prefix, content))
			continue
		}

		idx := 0
		for _, sec := range sections {
			if sec.body == "" {
				continue
			}
			id := fmt.Sprintf("learning_%s_%d", fileStem, idx)
			title := prefix + " - " + sec.heading
			content := sec.heading + ": " + sec.body
			chunks = append(chunks, p.chunk(id, oracle.DocTypeLearning, rel, title, content))
			idx++
		}
	}
	return chunks, nil
}

// retroMinBody is the minimum section body length; shorter sections carry
// too little signal to index.
const retroMinBody = 50

// parseRetros walks the retrospectives subtree recursively.
func (p *Parser) parseRetros(dir string) ([]Chunk, error) {
	files, err := markdownFiles(dir, true)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		rel := p.rel(file)
		fileStem := stem(file)

		idx := 0
		for _, sec := range splitSections(string(raw), "## ") {
			if len(sec.body) < retroMinBody {
				continue
			}
			id := fmt.Sprintf("retro_%s_%d", fileStem, idx)
			content := sec.heading + ": " + sec.body
			chunks = append(chunks, p.chunk(id, oracle.DocTypeRetro, rel, sec.heading, content))
			idx++
		}
	}
	return chunks, nil
}

func (p *Parser) rel(path string) string {
	if rel, err := filepath.Rel(p.root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func (p *Parser) chunk(id string, typ oracle.DocType, sourceFile, title, content string) Chunk {
	now := p.now()
	return Chunk{
		Doc: oracle.Document{
			ID:         id,
			Type:       typ,
			SourceFile: sourceFile,
			Concepts:   ExtractConcepts(title + " " + content),
			CreatedAt:  now,
			UpdatedAt:  now,
			IndexedAt:  now,
		},
		Title:   title,
		Content: content,
	}
}
