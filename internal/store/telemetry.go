package store

import (
	"strings"
	"time"
)

// Telemetry inserts are fire-and-forget at the service layer: callers log
// failures to stderr and move on. The store methods themselves return errors
// so tests can assert on them.

// SearchLogEntry is one append-only search_log row.
type SearchLogEntry struct {
	Query        string
	Type         string
	Mode         string
	ResultsCount int
	SearchTimeMS int64
	Project      string
}

// LogSearch appends to search_log.
func (s *Store) LogSearch(e SearchLogEntry) error {
	_, err := s.db.Exec(`INSERT INTO search_log
		(query, type, mode, results_count, search_time_ms, project, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Query, e.Type, e.Mode, e.ResultsCount, e.SearchTimeMS,
		nullIfEmpty(e.Project), fmtTime(time.Now()))
	return err
}

// ConsultLogEntry is one append-only consult_log row.
type ConsultLogEntry struct {
	Decision        string
	Context         string
	PrinciplesFound int
	PatternsFound   int
	Guidance        string
	Project         string
}

// LogConsult appends to consult_log.
func (s *Store) LogConsult(e ConsultLogEntry) error {
	_, err := s.db.Exec(`INSERT INTO consult_log
		(decision, context, principles_found, patterns_found, guidance, project, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Decision, e.Context, e.PrinciplesFound, e.PatternsFound,
		e.Guidance, nullIfEmpty(e.Project), fmtTime(time.Now()))
	return err
}

// LearnLogEntry is one append-only learn_log row.
type LearnLogEntry struct {
	DocumentID     string
	PatternPreview string
	Source         string
	Concepts       []string
	Project        string
}

// LogLearn appends to learn_log.
func (s *Store) LogLearn(e LearnLogEntry) error {
	_, err := s.db.Exec(`INSERT INTO learn_log
		(document_id, pattern_preview, source, concepts, project, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.DocumentID, e.PatternPreview, nullIfEmpty(e.Source),
		strings.Join(e.Concepts, " "), nullIfEmpty(e.Project), fmtTime(time.Now()))
	return err
}

// LogAccess appends one document_access row per returned document.
func (s *Store) LogAccess(documentID, accessType, project string) error {
	_, err := s.db.Exec(`INSERT INTO document_access
		(document_id, access_type, project, created_at)
		VALUES (?, ?, ?, ?)`,
		documentID, accessType, nullIfEmpty(project), fmtTime(time.Now()))
	return err
}
