package store

import (
	"fmt"
	"time"
)

// Dashboard aggregations. All read-only; writes are a bug here.

// RecentCounts tallies log rows newer than since for the three main verbs.
type RecentCounts struct {
	Consultations int `json:"consultations"`
	Searches      int `json:"searches"`
	Learnings     int `json:"learnings"`
}

// CountRecent returns counts of rows with created_at > since per log table.
func (s *Store) CountRecent(since time.Time) (RecentCounts, error) {
	var rc RecentCounts
	cutoff := fmtTime(since)
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"consult_log", &rc.Consultations},
		{"search_log", &rc.Searches},
		{"learn_log", &rc.Learnings},
	} {
		err := s.db.QueryRow(
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE created_at > ?`, q.table), cutoff,
		).Scan(q.dst)
		if err != nil {
			return rc, fmt.Errorf("counting %s: %w", q.table, err)
		}
	}
	return rc, nil
}

// ActivityEntry is one recent telemetry row with its content truncated.
type ActivityEntry struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const activityCap = 20

// RecentActivity returns up to activityCap rows per log table newer than
// since. Text fields are truncated to 100 characters.
func (s *Store) RecentActivity(since time.Time) (map[string][]ActivityEntry, error) {
	cutoff := fmtTime(since)
	out := map[string][]ActivityEntry{}

	queries := []struct {
		kind string
		sql  string
	}{
		{"searches", `SELECT query, project, created_at FROM search_log
			WHERE created_at > ? ORDER BY created_at DESC LIMIT ?`},
		{"consultations", `SELECT decision, project, created_at FROM consult_log
			WHERE created_at > ? ORDER BY created_at DESC LIMIT ?`},
		{"learnings", `SELECT pattern_preview, project, created_at FROM learn_log
			WHERE created_at > ? ORDER BY created_at DESC LIMIT ?`},
	}
	for _, q := range queries {
		rows, err := s.db.Query(q.sql, cutoff, activityCap)
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", q.kind, err)
		}
		entries := []ActivityEntry{}
		for rows.Next() {
			var (
				e       ActivityEntry
				text    string
				projStr *string
				created string
			)
			if err := rows.Scan(&text, &projStr, &created); err != nil {
				rows.Close()
				return nil, err
			}
			if r := []rune(text); len(r) > 100 {
				text = string(r[:100])
			}
			e.Kind = q.kind
			e.Text = text
			if projStr != nil {
				e.Project = *projStr
			}
			e.CreatedAt = parseTime(created)
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out[q.kind] = entries
	}
	return out, nil
}

// GrowthPoint is one day's worth of new rows.
type GrowthPoint struct {
	Day           string `json:"day"`
	Documents     int    `json:"documents"`
	Consultations int    `json:"consultations"`
	Searches      int    `json:"searches"`
}

// Growth buckets new documents, consultations and searches per day over the
// trailing days window.
func (s *Store) Growth(days int) ([]GrowthPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	byDay := map[string]*GrowthPoint{}
	point := func(day string) *GrowthPoint {
		if p, ok := byDay[day]; ok {
			return p
		}
		p := &GrowthPoint{Day: day}
		byDay[day] = p
		return p
	}

	type agg struct {
		sql string
		add func(*GrowthPoint, int)
	}
	aggs := []agg{
		{`SELECT substr(indexed_at, 1, 10), COUNT(*) FROM oracle_documents
			WHERE indexed_at > ? GROUP BY 1`, func(p *GrowthPoint, n int) { p.Documents = n }},
		{`SELECT substr(created_at, 1, 10), COUNT(*) FROM consult_log
			WHERE created_at > ? GROUP BY 1`, func(p *GrowthPoint, n int) { p.Consultations = n }},
		{`SELECT substr(created_at, 1, 10), COUNT(*) FROM search_log
			WHERE created_at > ? GROUP BY 1`, func(p *GrowthPoint, n int) { p.Searches = n }},
	}
	for _, a := range aggs {
		rows, err := s.db.Query(a.sql, fmtTime(since))
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var day string
			var n int
			if err := rows.Scan(&day, &n); err != nil {
				rows.Close()
				return nil, err
			}
			a.add(point(day), n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	// Emit a dense series so charts have no gaps.
	out := make([]GrowthPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := time.Now().AddDate(0, 0, -i).UTC().Format("2006-01-02")
		if p, ok := byDay[day]; ok {
			out = append(out, *p)
		} else {
			out = append(out, GrowthPoint{Day: day})
		}
	}
	return out, nil
}

// LastIndexedAt returns the newest indexed_at across documents, or zero.
func (s *Store) LastIndexedAt() (time.Time, error) {
	var raw *string
	if err := s.db.QueryRow(`SELECT MAX(indexed_at) FROM oracle_documents`).Scan(&raw); err != nil {
		return time.Time{}, err
	}
	if raw == nil {
		return time.Time{}, nil
	}
	return parseTime(*raw), nil
}
