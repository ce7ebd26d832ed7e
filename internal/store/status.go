package store

import (
	"database/sql"
	"time"
)

// IndexingStatus mirrors the singleton indexing_status row (id = 1).
type IndexingStatus struct {
	IsIndexing      bool       `json:"is_indexing"`
	ProgressCurrent int        `json:"progress_current"`
	ProgressTotal   int        `json:"progress_total"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// BeginIndexing marks the singleton row as running and resets progress.
func (s *Store) BeginIndexing(total int) error {
	_, err := s.db.Exec(`INSERT INTO indexing_status
		(id, is_indexing, progress_current, progress_total, started_at, completed_at, error)
		VALUES (1, 1, 0, ?, ?, NULL, NULL)
		ON CONFLICT(id) DO UPDATE SET
			is_indexing = 1, progress_current = 0, progress_total = excluded.progress_total,
			started_at = excluded.started_at, completed_at = NULL, error = NULL`,
		total, fmtTime(time.Now()))
	return err
}

// SetIndexingProgress publishes intermediate progress.
func (s *Store) SetIndexingProgress(current, total int) error {
	_, err := s.db.Exec(`UPDATE indexing_status
		SET progress_current = ?, progress_total = ? WHERE id = 1`, current, total)
	return err
}

// FinishIndexing clears the running flag. errMsg is empty on success.
func (s *Store) FinishIndexing(current int, errMsg string) error {
	_, err := s.db.Exec(`UPDATE indexing_status
		SET is_indexing = 0, progress_current = ?, completed_at = ?, error = ?
		WHERE id = 1`, current, fmtTime(time.Now()), nullIfEmpty(errMsg))
	return err
}

// ResetIndexing force-clears is_indexing. The HTTP server calls this on
// startup: if we are starting, nothing is indexing.
func (s *Store) ResetIndexing() error {
	_, err := s.db.Exec(`UPDATE indexing_status SET is_indexing = 0 WHERE id = 1`)
	return err
}

// GetIndexingStatus reads the singleton row.
func (s *Store) GetIndexingStatus() (*IndexingStatus, error) {
	var (
		st                  IndexingStatus
		isIndexing          int
		started, completed  sql.NullString
		errMsg              sql.NullString
	)
	err := s.db.QueryRow(`SELECT is_indexing, progress_current, progress_total,
		started_at, completed_at, error FROM indexing_status WHERE id = 1`).
		Scan(&isIndexing, &st.ProgressCurrent, &st.ProgressTotal, &started, &completed, &errMsg)
	if err == sql.ErrNoRows {
		return &IndexingStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	st.IsIndexing = isIndexing != 0
	st.StartedAt = parseTimePtr(started)
	st.CompletedAt = parseTimePtr(completed)
	st.Error = errMsg.String
	return &st, nil
}
