package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// FTSRow is one keyword-index hit joined against document metadata.
// Rank is the raw bm25 score: negative, more negative = better match.
type FTSRow struct {
	ID         string
	Type       oracle.DocType
	Title      string
	Content    string
	SourceFile string
	Concepts   []string
	Project    string
	Rank       float64
}

// DocMeta is the metadata subset needed to filter vector hits.
type DocMeta struct {
	ID         string
	Type       oracle.DocType
	SourceFile string
	Concepts   []string
	Project    string
}

// InsertDocument writes the metadata row (INSERT OR REPLACE) and the
// keyword-index row for one document. content is the indexed text; title is
// the display title stored only in the FTS table.
func (s *Store) InsertDocument(doc *oracle.Document, title, content string) error {
	concepts, err := json.Marshal(doc.Concepts)
	if err != nil {
		return fmt.Errorf("marshaling concepts: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO oracle_documents
		(id, type, source_file, concepts, created_at, updated_at, indexed_at,
		 superseded_by, superseded_at, superseded_reason, origin, project, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Type), doc.SourceFile, string(concepts),
		fmtTime(doc.CreatedAt), fmtTime(doc.UpdatedAt), fmtTime(doc.IndexedAt),
		nullIfEmpty(doc.SupersededBy), fmtTimePtr(doc.SupersededAt), nullIfEmpty(doc.SupersededReason),
		nullIfEmpty(string(doc.Origin)), nullIfEmpty(doc.Project), nullIfEmpty(doc.CreatedBy))
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}

	// FTS5 has no primary key; replace by hand to keep duplicate ids out.
	if _, err = tx.Exec(`DELETE FROM oracle_fts WHERE id = ?`, doc.ID); err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO oracle_fts (id, type, title, content, concepts)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, string(doc.Type), title, content, strings.Join(doc.Concepts, " "))
	if err != nil {
		return fmt.Errorf("inserting fts row %s: %w", doc.ID, err)
	}

	return tx.Commit()
}

// ClearIndex truncates both the metadata table and the keyword index. Only
// the indexer calls this, bracketed by the indexing_status guard.
func (s *Store) ClearIndex() error {
	if _, err := s.db.Exec(`DELETE FROM oracle_fts`); err != nil {
		return fmt.Errorf("clearing fts: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM oracle_documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

// GetDocument returns one document with its indexed content, or NotFound.
func (s *Store) GetDocument(id string) (*oracle.Document, error) {
	row := s.db.QueryRow(`SELECT d.id, d.type, d.source_file, d.concepts,
		d.created_at, d.updated_at, d.indexed_at,
		d.superseded_by, d.superseded_at, d.superseded_reason,
		d.origin, d.project, d.created_by,
		COALESCE(f.content, '')
		FROM oracle_documents d
		LEFT JOIN oracle_fts f ON f.id = d.id
		WHERE d.id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, oracle.NotFoundf("document %s", id)
	}
	return doc, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanDocument(row rowScanner) (*oracle.Document, error) {
	var (
		doc                                  oracle.Document
		typ, concepts, created, updated, idx string
		supBy, supAt, supReason              sql.NullString
		origin, project, createdBy           sql.NullString
	)
	err := row.Scan(&doc.ID, &typ, &doc.SourceFile, &concepts,
		&created, &updated, &idx,
		&supBy, &supAt, &supReason,
		&origin, &project, &createdBy,
		&doc.Content)
	if err != nil {
		return nil, err
	}
	doc.Type = oracle.DocType(typ)
	if err := json.Unmarshal([]byte(concepts), &doc.Concepts); err != nil {
		doc.Concepts = nil
	}
	doc.CreatedAt, doc.UpdatedAt, doc.IndexedAt = parseTime(created), parseTime(updated), parseTime(idx)
	doc.SupersededBy = supBy.String
	doc.SupersededAt = parseTimePtr(supAt)
	doc.SupersededReason = supReason.String
	doc.Origin = oracle.Origin(origin.String)
	doc.Project = project.String
	doc.CreatedBy = createdBy.String
	return &doc, nil
}

// projectClause renders the project filter: an explicit project matches that
// project or universal rows; no project matches universal rows only.
func projectClause(project string, hasProject bool, col string) (string, []any) {
	if !hasProject {
		return "", nil
	}
	if project == "" {
		return fmt.Sprintf(" AND %s IS NULL", col), nil
	}
	return fmt.Sprintf(" AND (%s = ? OR %s IS NULL)", col, col), []any{project}
}

// SearchFTS runs the keyword query. match must already be sanitized; a bad
// query propagates the FTS5 syntax error to the caller.
func (s *Store) SearchFTS(match string, docType oracle.DocType, project string, hasProject bool, limit int) ([]FTSRow, error) {
	q := `SELECT f.id, d.type, f.title, f.content, d.source_file, d.concepts, d.project,
		bm25(oracle_fts) AS rank
		FROM oracle_fts f
		JOIN oracle_documents d ON d.id = f.id
		WHERE oracle_fts MATCH ?`
	args := []any{match}
	if docType != "" {
		q += ` AND d.type = ?`
		args = append(args, string(docType))
	}
	clause, clauseArgs := projectClause(project, hasProject, "d.project")
	q += clause
	args = append(args, clauseArgs...)
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []FTSRow
	for rows.Next() {
		var (
			r        FTSRow
			typ      string
			concepts string
			proj     sql.NullString
		)
		if err := rows.Scan(&r.ID, &typ, &r.Title, &r.Content, &r.SourceFile, &concepts, &proj, &r.Rank); err != nil {
			return nil, err
		}
		r.Type = oracle.DocType(typ)
		json.Unmarshal([]byte(concepts), &r.Concepts)
		r.Project = proj.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountFTS returns the total keyword matches under the same filters, no limit.
func (s *Store) CountFTS(match string, docType oracle.DocType, project string, hasProject bool) (int, error) {
	q := `SELECT COUNT(*)
		FROM oracle_fts f
		JOIN oracle_documents d ON d.id = f.id
		WHERE oracle_fts MATCH ?`
	args := []any{match}
	if docType != "" {
		q += ` AND d.type = ?`
		args = append(args, string(docType))
	}
	clause, clauseArgs := projectClause(project, hasProject, "d.project")
	q += clause
	args = append(args, clauseArgs...)

	var n int
	err := s.db.QueryRow(q, args...).Scan(&n)
	return n, err
}

// DocumentMeta fetches metadata for the given ids, used to apply project and
// type filters to vector hits. Unknown ids are absent from the result.
func (s *Store) DocumentMeta(ids []string) (map[string]DocMeta, error) {
	if len(ids) == 0 {
		return map[string]DocMeta{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(`SELECT id, type, source_file, concepts, project
		FROM oracle_documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]DocMeta, len(ids))
	for rows.Next() {
		var (
			m        DocMeta
			typ      string
			concepts string
			proj     sql.NullString
		)
		if err := rows.Scan(&m.ID, &typ, &m.SourceFile, &concepts, &proj); err != nil {
			return nil, err
		}
		m.Type = oracle.DocType(typ)
		json.Unmarshal([]byte(concepts), &m.Concepts)
		m.Project = proj.String
		out[m.ID] = m
	}
	return out, rows.Err()
}

// DocumentIDs returns every document id, for re-index parity checks.
func (s *Store) DocumentIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM oracle_documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FTSIDs returns every keyword-index id, for re-index parity checks.
func (s *Store) FTSIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM oracle_fts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RandomReflectDocument returns one random principle or learning with full
// content, or NotFound on an empty corpus.
func (s *Store) RandomReflectDocument() (*oracle.Document, error) {
	row := s.db.QueryRow(`SELECT d.id, d.type, d.source_file, d.concepts,
		d.created_at, d.updated_at, d.indexed_at,
		d.superseded_by, d.superseded_at, d.superseded_reason,
		d.origin, d.project, d.created_by,
		COALESCE(f.content, '')
		FROM oracle_documents d
		LEFT JOIN oracle_fts f ON f.id = d.id
		WHERE d.type IN ('principle', 'learning')
		ORDER BY RANDOM() LIMIT 1`)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, oracle.NotFoundf("no principles or learnings indexed")
	}
	return doc, err
}

// ListDocuments returns documents ordered by indexed_at descending. With
// groupByFile, one row per source_file surfaces (the most recently indexed
// chunk; which chunk of a multi-chunk file wins is unspecified).
func (s *Store) ListDocuments(docType oracle.DocType, limit, offset int, groupByFile bool) ([]oracle.Document, int, error) {
	where := ""
	var args []any
	if docType != "" {
		where = ` WHERE d.type = ?`
		args = append(args, string(docType))
	}

	var q, countQ string
	if groupByFile {
		q = `SELECT d.id, d.type, d.source_file, d.concepts,
			d.created_at, d.updated_at, MAX(d.indexed_at) AS indexed_at,
			d.superseded_by, d.superseded_at, d.superseded_reason,
			d.origin, d.project, d.created_by,
			COALESCE(f.content, '')
			FROM oracle_documents d
			LEFT JOIN oracle_fts f ON f.id = d.id` + where + `
			GROUP BY d.source_file
			ORDER BY indexed_at DESC LIMIT ? OFFSET ?`
		countQ = `SELECT COUNT(DISTINCT d.source_file) FROM oracle_documents d` + where
	} else {
		q = `SELECT d.id, d.type, d.source_file, d.concepts,
			d.created_at, d.updated_at, d.indexed_at,
			d.superseded_by, d.superseded_at, d.superseded_reason,
			d.origin, d.project, d.created_by,
			COALESCE(f.content, '')
			FROM oracle_documents d
			LEFT JOIN oracle_fts f ON f.id = d.id` + where + `
			ORDER BY d.indexed_at DESC LIMIT ? OFFSET ?`
		countQ = `SELECT COUNT(*) FROM oracle_documents d` + where
	}

	var total int
	if err := s.db.QueryRow(countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []oracle.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

// ConceptCounts tallies concept tags across documents, optionally filtered
// by type, sorted by descending count.
func (s *Store) ConceptCounts(docType oracle.DocType, limit int) (map[string]int, error) {
	q := `SELECT concepts FROM oracle_documents`
	var args []any
	if docType != "" {
		q += ` WHERE type = ?`
		args = append(args, string(docType))
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var concepts []string
		if err := json.Unmarshal([]byte(raw), &concepts); err != nil {
			continue
		}
		for _, c := range concepts {
			counts[c]++
		}
	}
	_ = limit // callers truncate after sorting; counts carry everything
	return counts, rows.Err()
}

// CountDocuments returns the total document count and a per-type breakdown.
func (s *Store) CountDocuments() (total int, byType map[string]int, err error) {
	byType = map[string]int{}
	rows, err := s.db.Query(`SELECT type, COUNT(*) FROM oracle_documents GROUP BY type`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return 0, nil, err
		}
		byType[typ] = n
		total += n
	}
	return total, byType, rows.Err()
}

// GraphDocuments returns all principles plus a random sample of up to
// sampleLearnings learnings, with concepts, for the shared-concept graph.
func (s *Store) GraphDocuments(sampleLearnings int) ([]oracle.Document, error) {
	rows, err := s.db.Query(`SELECT d.id, d.type, d.source_file, d.concepts,
		d.created_at, d.updated_at, d.indexed_at,
		d.superseded_by, d.superseded_at, d.superseded_reason,
		d.origin, d.project, d.created_by, ''
		FROM oracle_documents d WHERE d.type = 'principle'
		UNION ALL
		SELECT * FROM (
			SELECT d.id, d.type, d.source_file, d.concepts,
			d.created_at, d.updated_at, d.indexed_at,
			d.superseded_by, d.superseded_at, d.superseded_reason,
			d.origin, d.project, d.created_by, ''
			FROM oracle_documents d WHERE d.type = 'learning'
			ORDER BY RANDOM() LIMIT ?
		)`, sampleLearnings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []oracle.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Supersede links an older document to its replacement. Provenance fields
// are left untouched; the old row stays forever.
func (s *Store) Supersede(oldID, newID, reason string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE oracle_documents
		SET superseded_by = ?, superseded_at = ?, superseded_reason = ?
		WHERE id = ?`, newID, fmtTime(at), nullIfEmpty(reason), oldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oracle.NotFoundf("document %s", oldID)
	}
	return nil
}
