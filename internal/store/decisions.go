package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// DecisionStatus is a decision's lifecycle state.
type DecisionStatus string

const (
	DecisionPending     DecisionStatus = "pending"
	DecisionParked      DecisionStatus = "parked"
	DecisionResearching DecisionStatus = "researching"
	DecisionDecided     DecisionStatus = "decided"
	DecisionImplemented DecisionStatus = "implemented"
	DecisionClosed      DecisionStatus = "closed"
)

// Decision is one decision record.
type Decision struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Status    DecisionStatus `json:"status"`
	Context   string         `json:"context,omitempty"`
	Options   []string       `json:"options"`
	Decision  string         `json:"decision,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	Project   string         `json:"project,omitempty"`
	Tags      []string       `json:"tags"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
	DecidedBy string         `json:"decided_by,omitempty"`
}

// InsertDecision writes a new decision and returns its id.
func (s *Store) InsertDecision(d *Decision) (int64, error) {
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`INSERT INTO decisions
		(title, status, context, options, decision, rationale, project, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Title, string(d.Status), nullIfEmpty(d.Context), marshalList(d.Options),
		nullIfEmpty(d.Decision), nullIfEmpty(d.Rationale), nullIfEmpty(d.Project),
		marshalList(d.Tags), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDecision reads one decision or NotFound.
func (s *Store) GetDecision(id int64) (*Decision, error) {
	row := s.db.QueryRow(`SELECT id, title, status, context, options, decision, rationale,
		project, tags, created_at, updated_at, decided_at, decided_by
		FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, oracle.NotFoundf("decision %d", id)
	}
	return d, err
}

func scanDecision(row rowScanner) (*Decision, error) {
	var (
		d                              Decision
		status, options, tags          string
		created, updated               string
		context, decision, rationale   sql.NullString
		project, decidedBy, decidedAt  sql.NullString
	)
	err := row.Scan(&d.ID, &d.Title, &status, &context, &options, &decision, &rationale,
		&project, &tags, &created, &updated, &decidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}
	d.Status = DecisionStatus(status)
	d.Context = context.String
	json.Unmarshal([]byte(options), &d.Options)
	d.Decision = decision.String
	d.Rationale = rationale.String
	d.Project = project.String
	json.Unmarshal([]byte(tags), &d.Tags)
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	d.DecidedAt = parseTimePtr(decidedAt)
	d.DecidedBy = decidedBy.String
	return &d, nil
}

// ListDecisions filters by status and project, newest first.
func (s *Store) ListDecisions(status DecisionStatus, project string, limit, offset int) ([]Decision, error) {
	q := `SELECT id, title, status, context, options, decision, rationale,
		project, tags, created_at, updated_at, decided_at, decided_by
		FROM decisions WHERE 1=1`
	var args []any
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	if project != "" {
		q += ` AND project = ?`
		args = append(args, project)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DecisionUpdate carries optional field updates; nil means unchanged.
type DecisionUpdate struct {
	Title     *string
	Context   *string
	Options   []string
	Decision  *string
	Rationale *string
	Tags      []string
}

// UpdateDecision applies a partial update and bumps updated_at.
func (s *Store) UpdateDecision(id int64, u DecisionUpdate) error {
	d, err := s.GetDecision(id)
	if err != nil {
		return err
	}
	if u.Title != nil {
		d.Title = *u.Title
	}
	if u.Context != nil {
		d.Context = *u.Context
	}
	if u.Options != nil {
		d.Options = u.Options
	}
	if u.Decision != nil {
		d.Decision = *u.Decision
	}
	if u.Rationale != nil {
		d.Rationale = *u.Rationale
	}
	if u.Tags != nil {
		d.Tags = u.Tags
	}
	_, err = s.db.Exec(`UPDATE decisions
		SET title = ?, context = ?, options = ?, decision = ?, rationale = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		d.Title, nullIfEmpty(d.Context), marshalList(d.Options), nullIfEmpty(d.Decision),
		nullIfEmpty(d.Rationale), marshalList(d.Tags), fmtTime(time.Now()), id)
	return err
}

// SetDecisionStatus writes the new status. Entering decided stamps
// decided_at and decided_by; legality is checked by the decision service.
func (s *Store) SetDecisionStatus(id int64, status DecisionStatus, decidedBy string) error {
	now := fmtTime(time.Now())
	var err error
	if status == DecisionDecided {
		_, err = s.db.Exec(`UPDATE decisions
			SET status = ?, decided_at = ?, decided_by = ?, updated_at = ? WHERE id = ?`,
			string(status), now, nullIfEmpty(decidedBy), now, id)
	} else {
		_, err = s.db.Exec(`UPDATE decisions SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	}
	return err
}
