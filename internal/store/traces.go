package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// TraceStatus is the review state of a discovery session.
type TraceStatus string

const (
	TraceStatusRaw        TraceStatus = "raw"
	TraceStatusReviewed   TraceStatus = "reviewed"
	TraceStatusDistilling TraceStatus = "distilling"
	TraceStatusDistilled  TraceStatus = "distilled"
)

// DigPoints are the evidence arrays a trace accumulates.
type DigPoints struct {
	Files     []string `json:"files"`
	Commits   []string `json:"commits"`
	Issues    []string `json:"issues"`
	Retros    []string `json:"retros"`
	Learnings []string `json:"learnings"`
	Resonance []string `json:"resonance"`
}

// Trace is one node in the discovery forest.
type Trace struct {
	TraceID       string      `json:"trace_id"`
	Query         string      `json:"query"`
	QueryType     string      `json:"query_type,omitempty"`
	DigPoints     DigPoints   `json:"dig_points"`
	FileCount     int         `json:"file_count"`
	CommitCount   int         `json:"commit_count"`
	IssueCount    int         `json:"issue_count"`
	Depth         int         `json:"depth"`
	ParentTraceID string      `json:"parent_trace_id,omitempty"`
	ChildTraceIDs []string    `json:"child_trace_ids"`
	Status        TraceStatus `json:"status"`
	Awakening     string      `json:"awakening,omitempty"`
	DistilledToID string      `json:"distilled_to_id,omitempty"`
	Project       string      `json:"project,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	DistilledAt   *time.Time  `json:"distilled_at,omitempty"`
}

// TraceSummary is the list projection.
type TraceSummary struct {
	TraceID       string      `json:"trace_id"`
	Query         string      `json:"query"`
	QueryType     string      `json:"query_type,omitempty"`
	Depth         int         `json:"depth"`
	Status        TraceStatus `json:"status"`
	ParentTraceID string      `json:"parent_trace_id,omitempty"`
	ChildCount    int         `json:"child_count"`
	HasAwakening  bool        `json:"has_awakening"`
	CreatedAt     time.Time   `json:"created_at"`
}

func marshalList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// InsertTrace writes a new trace row and, when it has a parent, appends the
// child id onto the parent's child_trace_ids in the same transaction.
func (s *Store) InsertTrace(t *Trace) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO trace_log
		(trace_id, query, query_type, files, commits, issues, retros, learnings, resonance,
		 file_count, commit_count, issue_count, depth, parent_trace_id, child_trace_ids,
		 status, awakening, distilled_to_id, project, created_at, distilled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.Query, nullIfEmpty(t.QueryType),
		marshalList(t.DigPoints.Files), marshalList(t.DigPoints.Commits), marshalList(t.DigPoints.Issues),
		marshalList(t.DigPoints.Retros), marshalList(t.DigPoints.Learnings), marshalList(t.DigPoints.Resonance),
		t.FileCount, t.CommitCount, t.IssueCount, t.Depth,
		nullIfEmpty(t.ParentTraceID), marshalList(t.ChildTraceIDs),
		string(t.Status), nullIfEmpty(t.Awakening), nullIfEmpty(t.DistilledToID),
		nullIfEmpty(t.Project), fmtTime(t.CreatedAt), fmtTimePtr(t.DistilledAt))
	if err != nil {
		return fmt.Errorf("inserting trace: %w", err)
	}

	if t.ParentTraceID != "" {
		var raw string
		err := tx.QueryRow(`SELECT child_trace_ids FROM trace_log WHERE trace_id = ?`,
			t.ParentTraceID).Scan(&raw)
		if err == sql.ErrNoRows {
			return oracle.NotFoundf("parent trace %s", t.ParentTraceID)
		}
		if err != nil {
			return err
		}
		var children []string
		json.Unmarshal([]byte(raw), &children)
		children = append(children, t.TraceID)
		if _, err := tx.Exec(`UPDATE trace_log SET child_trace_ids = ? WHERE trace_id = ?`,
			marshalList(children), t.ParentTraceID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTrace reads one trace with JSON arrays parsed.
func (s *Store) GetTrace(traceID string) (*Trace, error) {
	row := s.db.QueryRow(`SELECT trace_id, query, query_type,
		files, commits, issues, retros, learnings, resonance,
		file_count, commit_count, issue_count, depth, parent_trace_id, child_trace_ids,
		status, awakening, distilled_to_id, project, created_at, distilled_at
		FROM trace_log WHERE trace_id = ?`, traceID)

	var (
		t                                                   Trace
		queryType, parent, awakening, distilledTo, project  sql.NullString
		files, commits, issues, retros, learnings, reso     string
		children, status, created                           string
		distilledAt                                         sql.NullString
	)
	err := row.Scan(&t.TraceID, &t.Query, &queryType,
		&files, &commits, &issues, &retros, &learnings, &reso,
		&t.FileCount, &t.CommitCount, &t.IssueCount, &t.Depth, &parent, &children,
		&status, &awakening, &distilledTo, &project, &created, &distilledAt)
	if err == sql.ErrNoRows {
		return nil, oracle.NotFoundf("trace %s", traceID)
	}
	if err != nil {
		return nil, err
	}

	t.QueryType = queryType.String
	json.Unmarshal([]byte(files), &t.DigPoints.Files)
	json.Unmarshal([]byte(commits), &t.DigPoints.Commits)
	json.Unmarshal([]byte(issues), &t.DigPoints.Issues)
	json.Unmarshal([]byte(retros), &t.DigPoints.Retros)
	json.Unmarshal([]byte(learnings), &t.DigPoints.Learnings)
	json.Unmarshal([]byte(reso), &t.DigPoints.Resonance)
	t.ParentTraceID = parent.String
	json.Unmarshal([]byte(children), &t.ChildTraceIDs)
	t.Status = TraceStatus(status)
	t.Awakening = awakening.String
	t.DistilledToID = distilledTo.String
	t.Project = project.String
	t.CreatedAt = parseTime(created)
	t.DistilledAt = parseTimePtr(distilledAt)
	return &t, nil
}

// ListTraces returns summary projections ordered by created_at descending.
func (s *Store) ListTraces(status TraceStatus, queryType string, limit, offset int) ([]TraceSummary, error) {
	q := `SELECT trace_id, query, query_type, depth, status, parent_trace_id,
		child_trace_ids, awakening, created_at FROM trace_log WHERE 1=1`
	var args []any
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	if queryType != "" {
		q += ` AND query_type = ?`
		args = append(args, queryType)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceSummary
	for rows.Next() {
		var (
			ts                         TraceSummary
			queryType, parent, awaken  sql.NullString
			children, statusStr, created string
		)
		if err := rows.Scan(&ts.TraceID, &ts.Query, &queryType, &ts.Depth, &statusStr,
			&parent, &children, &awaken, &created); err != nil {
			return nil, err
		}
		ts.QueryType = queryType.String
		ts.Status = TraceStatus(statusStr)
		ts.ParentTraceID = parent.String
		var childIDs []string
		json.Unmarshal([]byte(children), &childIDs)
		ts.ChildCount = len(childIDs)
		ts.HasAwakening = awaken.String != ""
		ts.CreatedAt = parseTime(created)
		out = append(out, ts)
	}
	return out, rows.Err()
}

// MarkTraceDistilled stamps the distill result onto a trace.
func (s *Store) MarkTraceDistilled(traceID, awakening, distilledToID string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE trace_log
		SET status = ?, awakening = ?, distilled_to_id = ?, distilled_at = ?
		WHERE trace_id = ?`,
		string(TraceStatusDistilled), awakening, nullIfEmpty(distilledToID),
		fmtTime(at), traceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oracle.NotFoundf("trace %s", traceID)
	}
	return nil
}
