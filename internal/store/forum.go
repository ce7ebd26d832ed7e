package store

import (
	"database/sql"
	"time"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// ThreadStatus is a forum thread's state tag. Any state may move to any
// other; the dashboard uses these only as filters.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadAnswered ThreadStatus = "answered"
	ThreadPending  ThreadStatus = "pending"
	ThreadClosed   ThreadStatus = "closed"
)

// ValidThreadStatus reports whether st is a known status value.
func ValidThreadStatus(st ThreadStatus) bool {
	switch st {
	case ThreadActive, ThreadAnswered, ThreadPending, ThreadClosed:
		return true
	}
	return false
}

// Thread is one forum thread.
type Thread struct {
	ID                  int64        `json:"id"`
	Title               string       `json:"title"`
	Status              ThreadStatus `json:"status"`
	Project             string       `json:"project,omitempty"`
	CreatedBy           string       `json:"created_by,omitempty"`
	ExternalIssueURL    string       `json:"external_issue_url,omitempty"`
	ExternalIssueNumber int64        `json:"external_issue_number,omitempty"`
	SyncedAt            *time.Time   `json:"synced_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Message is one forum message. The oracle reply rows carry the retrieval
// counts and the query that produced them.
type Message struct {
	ID              int64     `json:"id"`
	ThreadID        int64     `json:"thread_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	Author          string    `json:"author,omitempty"`
	PrinciplesFound *int      `json:"principles_found,omitempty"`
	PatternsFound   *int      `json:"patterns_found,omitempty"`
	SearchQuery     string    `json:"search_query,omitempty"`
	CommentID       string    `json:"comment_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// InsertThread creates a thread and returns its id.
func (s *Store) InsertThread(t *Thread) (int64, error) {
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`INSERT INTO forum_threads
		(title, status, project, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Title, string(t.Status), nullIfEmpty(t.Project), nullIfEmpty(t.CreatedBy), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetThread reads one thread or NotFound.
func (s *Store) GetThread(id int64) (*Thread, error) {
	row := s.db.QueryRow(`SELECT id, title, status, project, created_by,
		external_issue_url, external_issue_number, synced_at, created_at, updated_at
		FROM forum_threads WHERE id = ?`, id)

	var (
		t                            Thread
		status, created, updated     string
		project, createdBy, issueURL sql.NullString
		issueNumber                  sql.NullInt64
		synced                       sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &status, &project, &createdBy,
		&issueURL, &issueNumber, &synced, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, oracle.NotFoundf("thread %d", id)
	}
	if err != nil {
		return nil, err
	}
	t.Status = ThreadStatus(status)
	t.Project = project.String
	t.CreatedBy = createdBy.String
	t.ExternalIssueURL = issueURL.String
	t.ExternalIssueNumber = issueNumber.Int64
	t.SyncedAt = parseTimePtr(synced)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// ListThreads filters by status, newest activity first.
func (s *Store) ListThreads(status ThreadStatus, limit, offset int) ([]Thread, error) {
	q := `SELECT id, title, status, project, created_by,
		external_issue_url, external_issue_number, synced_at, created_at, updated_at
		FROM forum_threads WHERE 1=1`
	var args []any
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var (
			t                            Thread
			statusStr, created, updated  string
			project, createdBy, issueURL sql.NullString
			issueNumber                  sql.NullInt64
			synced                       sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &statusStr, &project, &createdBy,
			&issueURL, &issueNumber, &synced, &created, &updated); err != nil {
			return nil, err
		}
		t.Status = ThreadStatus(statusStr)
		t.Project = project.String
		t.CreatedBy = createdBy.String
		t.ExternalIssueURL = issueURL.String
		t.ExternalIssueNumber = issueNumber.Int64
		t.SyncedAt = parseTimePtr(synced)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetThreadStatus updates the status tag and bumps updated_at.
func (s *Store) SetThreadStatus(id int64, status ThreadStatus) error {
	res, err := s.db.Exec(`UPDATE forum_threads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oracle.NotFoundf("thread %d", id)
	}
	return nil
}

// TouchThread bumps updated_at after new messages.
func (s *Store) TouchThread(id int64) error {
	_, err := s.db.Exec(`UPDATE forum_threads SET updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id)
	return err
}

// InsertMessage appends a message to a thread and returns its id.
func (s *Store) InsertMessage(m *Message) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO forum_messages
		(thread_id, role, content, author, principles_found, patterns_found,
		 search_query, comment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ThreadID, m.Role, m.Content, nullIfEmpty(m.Author),
		nullableInt(m.PrinciplesFound), nullableInt(m.PatternsFound),
		nullIfEmpty(m.SearchQuery), nullIfEmpty(m.CommentID), fmtTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// ListMessages returns a thread's messages in creation order.
func (s *Store) ListMessages(threadID int64) ([]Message, error) {
	rows, err := s.db.Query(`SELECT id, thread_id, role, content, author,
		principles_found, patterns_found, search_query, comment_id, created_at
		FROM forum_messages WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m                           Message
			author, searchQ, commentID  sql.NullString
			principles, patterns        sql.NullInt64
			created                     string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &author,
			&principles, &patterns, &searchQ, &commentID, &created); err != nil {
			return nil, err
		}
		m.Author = author.String
		if principles.Valid {
			v := int(principles.Int64)
			m.PrinciplesFound = &v
		}
		if patterns.Valid {
			v := int(patterns.Int64)
			m.PatternsFound = &v
		}
		m.SearchQuery = searchQ.String
		m.CommentID = commentID.String
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
