package store

import (
	"database/sql"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

// UpsertProject registers or updates a project slug.
func (s *Store) UpsertProject(p oracle.Project) error {
	_, err := s.db.Exec(`INSERT INTO projects (id, name, color, description, path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, color = excluded.color,
			description = excluded.description, path = excluded.path`,
		p.ID, p.Name, p.Color, nullIfEmpty(p.Description), nullIfEmpty(p.Path))
	return err
}

// ListProjects returns all registered projects ordered by id.
func (s *Store) ListProjects() ([]oracle.Project, error) {
	rows, err := s.db.Query(`SELECT id, name, color, description, path FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []oracle.Project
	for rows.Next() {
		var (
			p           oracle.Project
			desc, ppath sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Color, &desc, &ppath); err != nil {
			return nil, err
		}
		p.Description = desc.String
		p.Path = ppath.String
		out = append(out, p)
	}
	return out, rows.Err()
}
